package resolver

import (
	"bytes"
	"crypto/ed25519"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/solana/system"
)

const (
	// Self is the fee payer, which can always sign.
	Self = "self"
	// New is a freshly generated keypair.
	New = "new"
	// System is the system program.
	System = "system"
)

// ParseCandidate parses an account argument of the form [name=]value, where
// value is "self", "new", "system" or a base58 address. When value is "new",
// the generated keypair is returned so the caller can sign with it.
func ParseCandidate(s string, payer ed25519.PrivateKey) (Candidate, ed25519.PrivateKey, error) {
	var c Candidate

	value := strings.TrimSpace(s)
	if name, rest, ok := strings.Cut(value, "="); ok {
		c.Name = strings.TrimSpace(name)
		value = strings.TrimSpace(rest)
		if c.Name == "" {
			return Candidate{}, nil, errors.Wrapf(ErrInvalidAccount, "empty account name in %q", s)
		}
	}

	var payerKey ed25519.PublicKey
	if payer != nil {
		payerKey = payer.Public().(ed25519.PublicKey)
	}

	switch value {
	case Self:
		if payerKey == nil {
			return Candidate{}, nil, errors.Wrap(ErrInvalidAccount, "no fee payer configured for \"self\"")
		}
		c.PublicKey = payerKey
		c.CanSign = true
		return c, nil, nil
	case New:
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return Candidate{}, nil, errors.Wrap(err, "failed to generate keypair")
		}
		c.PublicKey = pub
		c.CanSign = true
		return c, priv, nil
	case System:
		c.PublicKey = append(ed25519.PublicKey{}, system.ProgramKey[:]...)
		return c, nil, nil
	}

	key, err := base58.Decode(value)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return Candidate{}, nil, errors.Wrapf(ErrInvalidAccount, "%q is not a base58 address", value)
	}
	c.PublicKey = key
	c.CanSign = payerKey != nil && bytes.Equal(key, payerKey)
	return c, nil, nil
}

// ParseCandidates parses a list of account arguments, returning any keypairs
// generated along the way.
func ParseCandidates(args []string, payer ed25519.PrivateKey) ([]Candidate, []ed25519.PrivateKey, error) {
	candidates := make([]Candidate, 0, len(args))
	var generated []ed25519.PrivateKey
	for _, arg := range args {
		c, key, err := ParseCandidate(arg, payer)
		if err != nil {
			return nil, nil, err
		}
		candidates = append(candidates, c)
		if key != nil {
			generated = append(generated, key)
		}
	}
	return candidates, generated, nil
}
