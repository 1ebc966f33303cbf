package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stepc/internal/ir"
)

func TestStepError(t *testing.T) {
	cause := ir.Errorf(ir.ErrCodeStaleAddressMap, "v", "buffer changed since refresh")
	err := fmt.Errorf("run: %w", &StepError{Seq: 3, Index: 1, StepID: "integrate", Err: cause})

	assert.True(t, IsStepError(err))
	assert.True(t, IsStaleError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "step 3 item 1 (integrate)")

	var se *StepError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, ir.ErrCodeStaleAddressMap, se.Code())
}

func TestIsStaleError_OtherCodes(t *testing.T) {
	overflow := &StepError{Seq: 1, StepID: "grow", Err: ir.Errorf(ir.ErrCodeCapacityOverflow, "v", "full")}
	assert.False(t, IsStaleError(overflow))
	assert.False(t, IsStaleError(errors.New("plain")))
	assert.False(t, IsStepError(errors.New("plain")))
}
