package pipeline

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

var (
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrReturnDecode        = errors.New("failed to decode return data")
)

// ProgramExecutionError is a transaction the ledger executed, or simulated,
// and rejected.
type ProgramExecutionError struct {
	// ProgramID is the program of the failing instruction. It is nil for
	// failures that are not attributed to an instruction.
	ProgramID        ed25519.PublicKey
	InstructionIndex int

	// ErrorCode is the program's custom error code, if it returned one.
	ErrorCode *uint32

	Err  *solana.TransactionError
	Logs []string
}

func newProgramExecutionError(txErr *solana.TransactionError, instructions []solana.Instruction, logs []string) *ProgramExecutionError {
	e := &ProgramExecutionError{
		InstructionIndex: -1,
		Err:              txErr,
		Logs:             logs,
	}
	if len(e.Logs) == 0 {
		e.Logs = txErr.Logs()
	}

	if ie := txErr.InstructionError(); ie != nil {
		e.InstructionIndex = ie.Index
		if ie.Index >= 0 && ie.Index < len(instructions) {
			e.ProgramID = instructions[ie.Index].Program
		}
		if ce := ie.CustomError(); ce != nil {
			code := uint32(*ce)
			e.ErrorCode = &code
		}
	}

	return e
}

func (e *ProgramExecutionError) Error() string {
	if len(e.ProgramID) == 0 {
		return fmt.Sprintf("transaction failed: %v", e.Err)
	}
	return fmt.Sprintf("program %s failed: %v", base58.Encode(e.ProgramID), e.Err)
}

func (e *ProgramExecutionError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

type returnDecodeError struct {
	err error
}

func (e *returnDecodeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrReturnDecode, e.err)
}

func (e *returnDecodeError) Is(target error) bool {
	return target == ErrReturnDecode
}

func (e *returnDecodeError) Unwrap() error {
	return e.err
}
