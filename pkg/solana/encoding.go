package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/solana/shortvec"
)

// Marshal returns the wire encoding of the transaction: the compact-u16
// prefixed signatures followed by the message.
func (t Transaction) Marshal() []byte {
	b := shortvec.AppendLen(nil, len(t.Signatures))
	for i := range t.Signatures {
		b = append(b, t.Signatures[i][:]...)
	}
	return append(b, t.Message.Marshal()...)
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := wireReader{bytes.NewReader(b)}

	n, err := r.length("signatures")
	if err != nil {
		return err
	}

	t.Signatures = make([]Signature, n)
	for i := range t.Signatures {
		if err := r.fill(t.Signatures[i][:], "signature %d", i); err != nil {
			return err
		}
	}

	return t.Message.Unmarshal(r.rest())
}

// Marshal returns the legacy message encoding that signatures are computed
// over.
func (m Message) Marshal() []byte {
	b := []byte{m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly}

	b = shortvec.AppendLen(b, len(m.Accounts))
	for _, key := range m.Accounts {
		b = append(b, key...)
	}

	b = append(b, m.RecentBlockhash[:]...)

	b = shortvec.AppendLen(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIndex)
		b = shortvec.AppendLen(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = shortvec.AppendLen(b, len(ix.Data))
		b = append(b, ix.Data...)
	}
	return b
}

// Unmarshal decodes a legacy message. Versioned messages, flagged by the high
// bit of the first byte, are rejected.
func (m *Message) Unmarshal(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	if b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	r := wireReader{bytes.NewReader(b)}

	var header [3]byte
	if err := r.fill(header[:], "header"); err != nil {
		return err
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	n, err := r.length("accounts")
	if err != nil {
		return err
	}
	m.Accounts = make([]ed25519.PublicKey, n)
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		if err := r.fill(m.Accounts[i], "account %d", i); err != nil {
			return err
		}
	}

	if err := r.fill(m.RecentBlockhash[:], "recent blockhash"); err != nil {
		return err
	}

	if n, err = r.length("instructions"); err != nil {
		return err
	}
	m.Instructions = make([]CompiledInstruction, n)
	for i := range m.Instructions {
		if m.Instructions[i], err = r.instruction(i, len(m.Accounts)); err != nil {
			return err
		}
	}

	return nil
}

type wireReader struct {
	*bytes.Reader
}

func (r wireReader) length(what string) (int, error) {
	n, err := shortvec.DecodeLen(r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s length", what)
	}
	return n, nil
}

func (r wireReader) fill(dst []byte, format string, args ...interface{}) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return errors.Wrapf(err, "failed to read "+format, args...)
	}
	return nil
}

func (r wireReader) rest() []byte {
	b := make([]byte, r.Len())
	_, _ = r.Read(b)
	return b
}

// instruction reads the i-th compiled instruction and checks its indexes
// against a message of numAccounts keys.
func (r wireReader) instruction(i, numAccounts int) (c CompiledInstruction, err error) {
	if c.ProgramIndex, err = r.ReadByte(); err != nil {
		return c, errors.Wrapf(err, "failed to read instruction %d program index", i)
	}
	if int(c.ProgramIndex) >= numAccounts {
		return c, errors.Errorf("instruction %d: program index %d out of range", i, c.ProgramIndex)
	}

	n, err := r.length("instruction accounts")
	if err != nil {
		return c, err
	}
	c.Accounts = make([]byte, n)
	if err := r.fill(c.Accounts, "instruction %d accounts", i); err != nil {
		return c, err
	}
	for _, index := range c.Accounts {
		if int(index) >= numAccounts {
			return c, errors.Errorf("instruction %d: account index %d out of range", i, index)
		}
	}

	if n, err = r.length("instruction data"); err != nil {
		return c, err
	}
	c.Data = make([]byte, n)
	if err := r.fill(c.Data, "instruction %d data", i); err != nil {
		return c, err
	}
	return c, nil
}
