package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/stepc/internal/ir"
)

// StepError reports a failed step item. The step it belongs to is aborted;
// items before it have already run and their effects stay in the table.
type StepError struct {
	// Seq is the step's logical clock value.
	Seq int64

	// Index is the item's position in the step's execution order.
	Index int

	// StepID identifies the failed item.
	StepID string

	// Err is the cause, usually an *ir.Error.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d item %d (%s): %v", e.Seq, e.Index, e.StepID, e.Err)
}

// Unwrap returns the cause.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Code returns the ir error code of the cause, or "".
func (e *StepError) Code() ir.ErrorCode {
	return ir.CodeOf(e.Err)
}

// IsStepError reports whether err is or wraps a *StepError.
// Uses errors.As to handle wrapped errors.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// IsStaleError reports whether err is a stale address map failure.
func IsStaleError(err error) bool {
	return ir.IsCode(err, ir.ErrCodeStaleAddressMap)
}

// IsSchemaMismatch reports whether err is a schema mismatch failure.
func IsSchemaMismatch(err error) bool {
	return ir.IsCode(err, ir.ErrCodeSchemaMismatch)
}
