package engine

import (
	"context"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
	"github.com/roach88/stepc/internal/vartable"
)

// Step is one item a Scheduler can run within a step.
type Step interface {
	// ID is the unique name the item is registered and scheduled under.
	ID() string

	// Execute runs the item. sc.AddressMap is fresh when Execute is called.
	Execute(ctx context.Context, sc *StepContext) error
}

// StepContext is what a step item sees of the running step.
type StepContext struct {
	// Seq is the step's logical clock value.
	Seq int64

	// Time is the simulated time at the start of the step, (Seq-1)*dt, when
	// the scheduler has a clock variable; otherwise 0.
	Time float64

	// RunID identifies the run.
	RunID string

	// Table is the scheduler's variable table. Items may mutate it; the
	// scheduler refreshes before the next item if they do.
	Table *vartable.Table

	// AddressMap is the current snapshot.
	AddressMap *vartable.AddressMap
}

// CodeObjectStep executes a compiled code object.
//
// The loop bound is the length of SizeVar when set, otherwise the shortest
// buffer in the code object's schema.
type CodeObjectStep struct {
	Name    string
	Code    *kernel.CodeObject
	SizeVar string
}

// ID implements Step.
func (s *CodeObjectStep) ID() string { return s.Name }

// Execute implements Step.
func (s *CodeObjectStep) Execute(_ context.Context, sc *StepContext) error {
	n, err := s.bound(sc.AddressMap)
	if err != nil {
		return err
	}
	return s.Code.Execute(sc.AddressMap, n)
}

func (s *CodeObjectStep) bound(am *vartable.AddressMap) (int, error) {
	if s.SizeVar == "" {
		return s.Code.Bound(am)
	}
	slot, ok := am.Get(s.SizeVar)
	if !ok {
		return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, s.SizeVar, "size variable %q is not bound", s.SizeVar)
	}
	if slot.Constant {
		return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, s.SizeVar, "size variable %q is a constant", s.SizeVar)
	}
	return slot.Len, nil
}

// FuncStep runs a Go function between code objects. It is how a model
// creates or removes elements mid-step.
type FuncStep struct {
	Name string
	Fn   func(ctx context.Context, sc *StepContext) error
}

// ID implements Step.
func (s *FuncStep) ID() string { return s.Name }

// Execute implements Step.
func (s *FuncStep) Execute(ctx context.Context, sc *StepContext) error {
	return s.Fn(ctx, sc)
}
