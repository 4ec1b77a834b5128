// Package builder turns an IDL instruction, named arguments and resolved
// accounts into an encoded program instruction.
package builder

import (
	"crypto/ed25519"
	"crypto/sha256"
	"sort"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/codec"
	"github.com/aqd-labs/aqd-solana/pkg/idl"
	"github.com/aqd-labs/aqd-solana/pkg/resolver"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

var (
	ErrArgumentMismatch = errors.New("argument mismatch")
	ErrNoProgramID      = errors.New("idl has no program id")
)

const discriminatorNamespace = "global"

// EncodedInstruction is a ready to submit program instruction.
type EncodedInstruction struct {
	ProgramID ed25519.PublicKey
	Accounts  []resolver.ResolvedAccount
	Data      []byte

	// Name is the IDL instruction this was built from, and Returns its
	// declared return type, if any.
	Name    string
	Returns *idl.Type
}

// ToInstruction converts the encoded instruction into a transaction
// instruction.
func (e *EncodedInstruction) ToInstruction() solana.Instruction {
	metas := make([]solana.AccountMeta, len(e.Accounts))
	for i, a := range e.Accounts {
		metas[i] = a.AccountMeta()
	}
	return solana.NewInstruction(e.ProgramID, e.Data, metas...)
}

// Discriminator returns the first eight bytes of sha256("global:<name>").
func Discriminator(name string) []byte {
	h := sha256.Sum256([]byte(discriminatorNamespace + ":" + name))
	return h[:idl.DiscriminatorSize]
}

// Build encodes the named instruction of d. args must contain exactly the
// instruction's declared arguments. accounts are expected in slot order, as
// returned by resolver.Resolve.
func Build(d *idl.Definition, name string, args map[string]interface{}, accounts []resolver.ResolvedAccount) (*EncodedInstruction, error) {
	program := d.ProgramID()
	if len(program) == 0 {
		return nil, ErrNoProgramID
	}

	ix, err := d.Instruction(name)
	if err != nil {
		return nil, err
	}

	if err := checkArgs(ix, args); err != nil {
		return nil, err
	}

	data := ix.Discriminator
	if data == nil {
		data = Discriminator(ix.Name)
	}
	data = append([]byte{}, data...)

	for _, arg := range ix.Args {
		encoded, err := codec.Encode(args[arg.Name], arg.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "arg %q", arg.Name)
		}
		data = append(data, encoded...)
	}

	return &EncodedInstruction{
		ProgramID: program,
		Accounts:  accounts,
		Data:      data,
		Name:      ix.Name,
		Returns:   ix.Returns,
	}, nil
}

func checkArgs(ix *idl.Instruction, args map[string]interface{}) error {
	declared := make(map[string]struct{}, len(ix.Args))
	var missing []string
	for _, arg := range ix.Args {
		declared[arg.Name] = struct{}{}
		if _, ok := args[arg.Name]; !ok {
			missing = append(missing, arg.Name)
		}
	}

	var extra []string
	for name := range args {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	switch {
	case len(missing) > 0 && len(extra) > 0:
		return errors.Wrapf(ErrArgumentMismatch, "instruction %q: missing %v, unexpected %v", ix.Name, missing, extra)
	case len(missing) > 0:
		return errors.Wrapf(ErrArgumentMismatch, "instruction %q: missing %v", ix.Name, missing)
	case len(extra) > 0:
		return errors.Wrapf(ErrArgumentMismatch, "instruction %q: unexpected %v", ix.Name, extra)
	}
	return nil
}
