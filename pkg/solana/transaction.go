package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrTransactionTooLarge = errors.New("transaction exceeds maximum size")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy transaction message. Versioned messages are not
// produced by this package.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles the provided instructions into an unsigned legacy
// transaction with payer as the fee payer.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	keys := messageKeys(payer, instructions)

	var m Message
	m.Accounts = make([]ed25519.PublicKey, len(keys))
	for i, k := range keys {
		m.Accounts[i] = k.PublicKey
		switch {
		case k.IsSigner && k.IsWritable:
			m.Header.NumSignatures++
		case k.IsSigner:
			m.Header.NumSignatures++
			m.Header.NumReadonlySigned++
		case !k.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	m.Instructions = make([]CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		c := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, ix.Program)),
			Accounts:     make([]byte, 0, len(ix.Accounts)),
			Data:         ix.Data,
		}
		for _, a := range ix.Accounts {
			c.Accounts = append(c.Accounts, byte(indexOf(m.Accounts, a.PublicKey)))
		}
		m.Instructions[i] = c
	}

	// Unset keys are encoded as the zero address.
	for i := range m.Accounts {
		if len(m.Accounts[i]) == 0 {
			m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		}
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// messageKey is an account in the message key list, with the roles it plays
// across all instructions.
type messageKey struct {
	AccountMeta
	payer   bool
	program bool
}

// messageKeys deduplicates every account referenced by instructions and
// orders them the way the runtime expects: fee payer first, then signers
// before non-signers and writable before read-only within each group, with
// invoked programs after everything else. Ties are broken by public key
// bytes, matching the sorted key map of the Rust SDK.
func messageKeys(payer ed25519.PublicKey, instructions []Instruction) []messageKey {
	keys := []messageKey{{
		AccountMeta: AccountMeta{PublicKey: payer, IsSigner: true, IsWritable: true},
		payer:       true,
	}}

	add := func(k messageKey) {
		for i := range keys {
			if bytes.Equal(keys[i].PublicKey, k.PublicKey) {
				keys[i].IsSigner = keys[i].IsSigner || k.IsSigner
				keys[i].IsWritable = keys[i].IsWritable || k.IsWritable
				keys[i].payer = keys[i].payer || k.payer
				return
			}
		}
		keys = append(keys, k)
	}

	for _, ix := range instructions {
		add(messageKey{AccountMeta: AccountMeta{PublicKey: ix.Program}, program: true})
		for _, a := range ix.Accounts {
			add(messageKey{AccountMeta: a})
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.payer != b.payer:
			return a.payer
		case a.program != b.program:
			return b.program
		case a.IsSigner != b.IsSigner:
			return a.IsSigner
		case a.IsWritable != b.IsWritable:
			return a.IsWritable
		}
		return bytes.Compare(a.PublicKey, b.PublicKey) < 0
	})
	return keys
}

// Signature returns the fee payer's signature, which identifies the
// transaction on the ledger.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign signs the message with each of the provided keys. Every key must
// belong to a signer slot of the message.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Public().(ed25519.PublicKey)
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// MissingSignatures returns the signer accounts that have not signed yet.
func (t *Transaction) MissingSignatures() []ed25519.PublicKey {
	var missing []ed25519.PublicKey
	for i := range t.Signatures {
		if t.Signatures[i] == (Signature{}) {
			missing = append(missing, t.Message.Accounts[i])
		}
	}
	return missing
}

// CheckSize verifies the wire encoding of the transaction fits within a
// single packet.
func (t *Transaction) CheckSize() error {
	if size := len(t.Marshal()); size > MaxTransactionSize {
		return errors.Wrapf(ErrTransactionTooLarge, "%d > %d bytes", size, MaxTransactionSize)
	}
	return nil
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s))
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString(fmt.Sprintf("    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString(fmt.Sprintf("  RecentBlockhash: %s\n", t.Message.RecentBlockhash))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, base58.Encode(a)))
	}
	sb.WriteString("  Instructions:\n")
	for i := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", t.Message.Instructions[i].ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", t.Message.Instructions[i].Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", t.Message.Instructions[i].Data))
	}
	return sb.String()
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}

	return -1
}
