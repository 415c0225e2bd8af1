package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTransaction      = errors.New("transaction has no instructions")
	ErrMissingSignature      = errors.New("missing required signature")
	ErrAccountNotFound       = errors.New("account not found")
	ErrProgramNotFound       = errors.New("program not found")
	ErrMissingAccount        = errors.New("instruction references an account the caller did not pass")
	ErrPrivilegeEscalation   = errors.New("cross-program invocation escalates account privilege")
	ErrReadonlyModified      = errors.New("read-only account modified")
	ErrExternalDataModified  = errors.New("data of an account owned by another program modified")
	ErrExternalLamportSpend  = errors.New("lamports debited from an account owned by another program")
	ErrOwnerModified         = errors.New("account owner modified")
	ErrUnbalancedInstruction = errors.New("sum of account balances changed")
	ErrCallDepth             = errors.New("cross-program invocation call depth exceeded")
)

// CustomError is implemented by program errors that carry a numeric code,
// the only diagnostic a failed transaction reports besides its logs.
type CustomError interface {
	error
	CustomCode() uint32
}

func CustomCode(err error) (uint32, bool) {
	var custom CustomError
	if errors.As(err, &custom) {
		return custom.CustomCode(), true
	}
	return 0, false
}

// TransactionError reports which instruction aborted a transaction.
type TransactionError struct {
	InstructionIndex int
	Err              error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", e.InstructionIndex, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
