package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/builder"
	"github.com/aqd-labs/aqd-solana/pkg/idl"
	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/resolver"
)

type callRequest struct {
	idlPath     string
	instruction string
	programID   string
	args        string
	accounts    string
	simulate    bool
	outputJSON  bool
}

func parseCallFlags(args []string) (*callRequest, error) {
	var req callRequest

	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.StringVar(&req.idlPath, "idl", "", "IDL document")
	fs.StringVar(&req.instruction, "instruction", "", "instruction name")
	fs.StringVar(&req.programID, "program-id", "", "program address, overriding the IDL")
	fs.StringVar(&req.args, "args", "", "instruction arguments as a JSON object")
	fs.StringVar(&req.accounts, "accounts", "", "comma separated accounts: [name=](self|new|system|<address>)")
	fs.BoolVar(&req.simulate, "simulate", false, "simulate instead of sending")
	fs.BoolVar(&req.outputJSON, "output-json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if req.idlPath == "" || req.instruction == "" {
		return nil, errors.New("call requires -idl and -instruction")
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments %v", fs.Args())
	}
	return &req, nil
}

// parseArgs decodes the -args object, keeping numbers exact.
func parseArgs(raw string) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}

	d := json.NewDecoder(strings.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&args); err != nil {
		return nil, errors.Wrap(err, "-args must be a JSON object")
	}
	return args, nil
}

func splitAccounts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// buildCall loads the IDL and produces the encoded instruction along with the
// keys generated for "new" accounts that bound to signer slots.
func buildCall(req *callRequest, payer ed25519.PrivateKey) (*builder.EncodedInstruction, []ed25519.PrivateKey, error) {
	def, err := idl.LoadFile(req.idlPath)
	if err != nil {
		return nil, nil, err
	}

	if req.programID != "" {
		programID, err := base58.Decode(req.programID)
		if err != nil || len(programID) != ed25519.PublicKeySize {
			return nil, nil, errors.Errorf("invalid program id %q", req.programID)
		}
		def = def.WithProgramID(programID)
	}

	ix, err := def.Instruction(req.instruction)
	if err != nil {
		return nil, nil, err
	}

	args, err := parseArgs(req.args)
	if err != nil {
		return nil, nil, err
	}

	candidates, generated, err := resolver.ParseCandidates(splitAccounts(req.accounts), payer)
	if err != nil {
		return nil, nil, err
	}

	accounts, err := resolver.Resolve(ix.Accounts, candidates)
	if err != nil {
		return nil, nil, err
	}

	encoded, err := builder.Build(def, req.instruction, args, accounts)
	if err != nil {
		return nil, nil, err
	}
	return encoded, signingKeys(generated, resolver.Signers(accounts)), nil
}

// signingKeys keeps the generated keys whose public key must sign.
func signingKeys(generated []ed25519.PrivateKey, signers []ed25519.PublicKey) []ed25519.PrivateKey {
	var keys []ed25519.PrivateKey
	for _, key := range generated {
		pub := key.Public().(ed25519.PublicKey)
		for _, s := range signers {
			if pub.Equal(s) {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

func runCall(ctx context.Context, env *environment, args []string) error {
	req, err := parseCallFlags(args)
	if err != nil {
		return err
	}

	encoded, signers, err := buildCall(req, env.payer)
	if err != nil {
		return err
	}

	intent := pipeline.IntentSend
	if req.simulate {
		intent = pipeline.IntentSimulate
	}

	outcome, err := env.pipeline.Submit(ctx, encoded, env.payer, signers, intent)
	if err != nil {
		return err
	}

	result := renderOutcome(encoded, outcome, req.simulate)
	if req.outputJSON {
		return printJSON(os.Stdout, result)
	}
	return printLines(os.Stdout, result.lines()...)
}
