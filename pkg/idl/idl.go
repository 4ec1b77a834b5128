// Package idl loads program interface definitions and exposes their
// instructions and named types.
package idl

import (
	"crypto/ed25519"
	"os"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var (
	ErrMalformedIdl    = errors.New("malformed idl")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrNotFound        = errors.New("not found")
)

// DiscriminatorSize is the length of an instruction discriminator.
const DiscriminatorSize = 8

// AccountSlot is an account an instruction expects, in the order the
// program reads them.
type AccountSlot struct {
	Name     string
	Signer   bool
	Writable bool
	Optional bool
}

// Arg is a named instruction argument.
type Arg struct {
	Name string
	Type *Type
}

// Instruction describes a callable program entrypoint.
type Instruction struct {
	Name     string
	Accounts []AccountSlot
	Args     []Arg
	Returns  *Type

	// Discriminator is set when the document declares one explicitly.
	Discriminator []byte
}

// Definition is a loaded IDL document. It is never mutated after Load and
// may be shared between goroutines.
type Definition struct {
	Name    string
	Version string

	programID    ed25519.PublicKey
	instructions map[string]*Instruction
	order        []string
	types        map[string]*Type
}

// LoadFile reads and parses the IDL document at path.
func LoadFile(path string) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read idl %s", path)
	}
	return Load(b)
}

// ProgramID returns the program address declared by the document, or nil if
// it has none.
func (d *Definition) ProgramID() ed25519.PublicKey {
	return d.programID
}

// WithProgramID returns a copy of the definition bound to program.
func (d *Definition) WithProgramID(program ed25519.PublicKey) *Definition {
	clone := *d
	clone.programID = program
	return &clone
}

// Instruction returns the instruction with the given name.
func (d *Definition) Instruction(name string) (*Instruction, error) {
	ix, ok := d.instructions[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "instruction %q", name)
	}
	return ix, nil
}

// Instructions returns every instruction in declaration order.
func (d *Definition) Instructions() []*Instruction {
	ixs := make([]*Instruction, 0, len(d.order))
	for _, name := range d.order {
		ixs = append(ixs, d.instructions[name])
	}
	return ixs
}

// NamedType returns the type declared under name.
func (d *Definition) NamedType(name string) (*Type, error) {
	t, ok := d.types[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "type %q", name)
	}
	return t, nil
}

func parseProgramID(s string) (ed25519.PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid program address %q", s)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrMalformedIdl, "invalid program address length %d", len(b))
	}
	return b, nil
}
