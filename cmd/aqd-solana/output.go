package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mr-tron/base58"

	"github.com/aqd-labs/aqd-solana/pkg/builder"
	"github.com/aqd-labs/aqd-solana/pkg/codec"
	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
)

type returnValue struct {
	value interface{}
}

func (r *returnValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

type callResult struct {
	Signature string       `json:"signature,omitempty"`
	Return    *returnValue `json:"return,omitempty"`
	Logs      []string     `json:"logs,omitempty"`
}

func renderOutcome(ix *builder.EncodedInstruction, outcome *pipeline.Outcome, simulated bool) callResult {
	var result callResult
	if !simulated {
		result.Signature = base58.Encode(outcome.Signature[:])
	} else {
		result.Logs = outcome.Logs
	}
	if ix.Returns != nil {
		result.Return = &returnValue{value: render(outcome.Return)}
	}
	return result
}

func (r callResult) lines() []string {
	var lines []string
	if r.Signature != "" {
		lines = append(lines, "Signature: "+r.Signature)
	}
	if r.Return != nil {
		b, err := json.Marshal(r.Return)
		if err != nil {
			b = []byte(fmt.Sprint(r.Return.value))
		}
		lines = append(lines, "Return: "+string(b))
	}
	if len(r.Logs) > 0 {
		lines = append(lines, "Logs:")
		for _, l := range r.Logs {
			lines = append(lines, "  "+l)
		}
	}
	return lines
}

// render converts decoded values into the shapes accepted by -args, with
// addresses in base58 and raw bytes in hex.
func render(v interface{}) interface{} {
	switch x := v.(type) {
	case ed25519.PublicKey:
		return base58.Encode(x)
	case []byte:
		return hex.EncodeToString(x)
	case codec.EnumValue:
		if x.Value == nil {
			return x.Variant
		}
		return map[string]interface{}{x.Variant: render(x.Value)}
	case codec.Some:
		return map[string]interface{}{"some": render(x.Value)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, fv := range x {
			out[k] = render(fv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = render(item)
		}
		return out
	}
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func printLines(w io.Writer, lines ...string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
