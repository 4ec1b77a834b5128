package deploy

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/solana/system"
)

// Custom error code of the system program's AccountAlreadyInUse.
const systemErrorAccountAlreadyInUse = 0

var (
	ErrAccountInUse = errors.New("account already in use")
	ErrEmptyBinary  = errors.New("program binary is empty")
	ErrInvalidELF   = errors.New("program binary is not an ELF file")
)

// DeploymentFailedError halts a deployment. Offset is the start of the chunk
// that failed while writing, and the number of bytes handed out otherwise.
type DeploymentFailedError struct {
	Offset int
	Stage  State
	Cause  error
}

func (e *DeploymentFailedError) Error() string {
	return fmt.Sprintf("deployment failed while %s at offset %d: %v", e.Stage, e.Offset, e.Cause)
}

func (e *DeploymentFailedError) Unwrap() error {
	return e.Cause
}

// classify turns the ways the ledger reports an existing account into
// ErrAccountInUse.
func classify(err error) error {
	var txErr *solana.TransactionError
	if errors.As(err, &txErr) && txErr.ErrorKey() == solana.TransactionErrorAccountInUse {
		return errors.Wrap(ErrAccountInUse, err.Error())
	}

	var execErr *pipeline.ProgramExecutionError
	if errors.As(err, &execErr) &&
		bytes.Equal(execErr.ProgramID, system.ProgramKey[:]) &&
		execErr.ErrorCode != nil &&
		*execErr.ErrorCode == systemErrorAccountAlreadyInUse {
		return errors.Wrap(ErrAccountInUse, err.Error())
	}

	return err
}
