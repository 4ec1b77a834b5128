// Package resolver binds caller supplied addresses to the account slots an
// instruction declares.
package resolver

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

var (
	ErrMissingAccount          = errors.New("missing account")
	ErrMissingSigner           = errors.New("missing signer")
	ErrAccountCountMismatch    = errors.New("account count mismatch")
	ErrInvalidOptionalPosition = errors.New("optional account omitted before a supplied account")
	ErrUnknownAccount          = errors.New("unknown account")
	ErrDuplicateAccount        = errors.New("account bound more than once")
	ErrInvalidAccount          = errors.New("invalid account")
)

// SlotError attributes a resolution failure to an account slot.
type SlotError struct {
	Slot string
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("account %q: %v", e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}

// Candidate is an address offered for an instruction's accounts. A named
// candidate binds to the slot of the same name; unnamed candidates fill the
// remaining slots in order.
type Candidate struct {
	Name      string
	PublicKey ed25519.PublicKey
	CanSign   bool
}

func (c Candidate) String() string {
	if c.Name == "" {
		return base58.Encode(c.PublicKey)
	}
	return c.Name + "=" + base58.Encode(c.PublicKey)
}

// ResolvedAccount is an address bound to a slot, carrying the slot's flags.
type ResolvedAccount struct {
	Name      string
	PublicKey ed25519.PublicKey
	Signer    bool
	Writable  bool
}

// AccountMeta converts the account into transaction account metadata.
func (a ResolvedAccount) AccountMeta() solana.AccountMeta {
	if a.Writable {
		return solana.NewAccountMeta(a.PublicKey, a.Signer)
	}
	return solana.NewReadonlyAccountMeta(a.PublicKey, a.Signer)
}

// Resolve binds candidates to slots and returns the accounts in slot order.
// Optional slots without a candidate are dropped, which is only permitted
// when every later slot is also dropped.
func Resolve(slots []idl.AccountSlot, candidates []Candidate) ([]ResolvedAccount, error) {
	index := make(map[string]int, len(slots))
	for i, slot := range slots {
		index[slot.Name] = i
	}

	bound := make([]*Candidate, len(slots))
	var positional []Candidate
	for i := range candidates {
		c := candidates[i]
		if len(c.PublicKey) != ed25519.PublicKeySize {
			name := c.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, &SlotError{
				Slot: name,
				Err:  errors.Wrapf(ErrInvalidAccount, "public key has %d bytes", len(c.PublicKey)),
			}
		}

		if c.Name == "" {
			positional = append(positional, c)
			continue
		}

		slot, ok := index[c.Name]
		if !ok {
			return nil, &SlotError{Slot: c.Name, Err: ErrUnknownAccount}
		}
		if bound[slot] != nil {
			return nil, &SlotError{Slot: c.Name, Err: ErrDuplicateAccount}
		}
		bound[slot] = &c
	}

	next := 0
	for i := range slots {
		if bound[i] != nil || next >= len(positional) {
			continue
		}
		bound[i] = &positional[next]
		next++
	}
	if next < len(positional) {
		return nil, errors.Wrapf(
			ErrAccountCountMismatch,
			"%d accounts supplied for %d declared slots",
			len(candidates),
			len(slots),
		)
	}

	resolved := make([]ResolvedAccount, 0, len(slots))
	omitted := -1
	for i, slot := range slots {
		c := bound[i]
		if c == nil {
			if !slot.Optional {
				return nil, &SlotError{Slot: slot.Name, Err: ErrMissingAccount}
			}
			if omitted < 0 {
				omitted = i
			}
			continue
		}

		if omitted >= 0 {
			return nil, &SlotError{Slot: slots[omitted].Name, Err: ErrInvalidOptionalPosition}
		}
		if slot.Signer && !c.CanSign {
			return nil, &SlotError{Slot: slot.Name, Err: ErrMissingSigner}
		}

		resolved = append(resolved, ResolvedAccount{
			Name:      slot.Name,
			PublicKey: c.PublicKey,
			Signer:    slot.Signer,
			Writable:  slot.Writable,
		})
	}

	return resolved, nil
}

// Signers returns the resolved accounts that must sign, without duplicates.
func Signers(accounts []ResolvedAccount) []ed25519.PublicKey {
	var signers []ed25519.PublicKey
	for _, a := range accounts {
		if !a.Signer {
			continue
		}

		seen := false
		for _, s := range signers {
			if bytes.Equal(s, a.PublicKey) {
				seen = true
				break
			}
		}
		if !seen {
			signers = append(signers, a.PublicKey)
		}
	}
	return signers
}
