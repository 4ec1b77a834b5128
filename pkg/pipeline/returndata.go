package pipeline

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

const returnLogPrefix = "Program return: "

// ExtractReturnData finds the return data program set in logs. When several
// entries exist the last one wins. A nil program matches any program.
func ExtractReturnData(logs []string, program ed25519.PublicKey) ([]byte, bool, error) {
	var programID string
	if program != nil {
		programID = base58.Encode(program)
	}

	for i := len(logs) - 1; i >= 0; i-- {
		rest, ok := strings.CutPrefix(logs[i], returnLogPrefix)
		if !ok {
			continue
		}

		id, encoded, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok {
			// Empty return data is logged without a payload.
			id, encoded = strings.TrimSpace(rest), ""
		}
		if programID != "" && id != programID {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, false, errors.Wrapf(err, "invalid return data in log %q", logs[i])
		}
		return data, true, nil
	}

	return nil, false, nil
}

func hasReturnLog(logs []string) bool {
	for _, l := range logs {
		if strings.HasPrefix(l, returnLogPrefix) {
			return true
		}
	}
	return false
}

func returnLog(data *solana.ReturnData) string {
	return returnLogPrefix + base58.Encode(data.ProgramID) + " " + base64.StdEncoding.EncodeToString(data.Data)
}
