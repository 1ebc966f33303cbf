package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/vartable"
)

// State is the scheduler's position in the step state machine.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRefreshing:
		return "Refreshing"
	case StateExecuting:
		return "Executing"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Status is a State plus, while executing, the item being run.
type Status struct {
	State  State
	Index  int
	StepID string
}

func (s Status) String() string {
	if s.State == StateExecuting {
		return fmt.Sprintf("Executing(%d)", s.Index)
	}
	return s.State.String()
}

// StepReport describes one completed or aborted step.
type StepReport struct {
	Seq       int64         `json:"seq"`
	Time      float64       `json:"time"`
	Items     []string      `json:"items"`
	Refreshes int           `json:"refreshes"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Scheduler runs step items against a variable table once per step.
//
// Thread-safety model:
//   - Register/RunStep/Run: one goroutine (the step loop)
//   - State/RunID/Steps: safe from any goroutine
type Scheduler struct {
	table  *vartable.Table
	clock  *Clock
	runIDs RunIDGenerator
	runID  string
	logger *slog.Logger

	clockVar string
	dt       float64

	steps map[string]Step
	order []string // registration order

	mu     sync.Mutex
	status Status
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock starts the scheduler from an existing clock, e.g.
// NewClockAt(k) to resume after k completed steps.
func WithClock(c *Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithClockVariable keeps the float64 constant name equal to the simulated
// time at the start of each step, (seq-1)*dt. The constant is bound on the
// first step if the table does not have it.
func WithClockVariable(name string, dt float64) SchedulerOption {
	return func(s *Scheduler) {
		s.clockVar = name
		s.dt = dt
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		s.runIDs = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a scheduler over table.
func New(table *vartable.Table, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		table:  table,
		clock:  NewClock(),
		runIDs: UUIDv7Generator{},
		logger: slog.Default(),
		steps:  make(map[string]Step),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runID = s.runIDs.Generate()
	return s
}

// Register adds a step item. IDs are unique.
func (s *Scheduler) Register(st Step) error {
	if st == nil || st.ID() == "" {
		return fmt.Errorf("register: step must have an id")
	}
	if _, ok := s.steps[st.ID()]; ok {
		return ir.Errorf(ir.ErrCodeDuplicateName, st.ID(), "step %q is already registered", st.ID())
	}
	s.steps[st.ID()] = st
	s.order = append(s.order, st.ID())
	return nil
}

// Steps returns the registered step ids in registration order.
func (s *Scheduler) Steps() []string {
	return append([]string(nil), s.order...)
}

// RunID returns the id of this scheduler's run.
func (s *Scheduler) RunID() string { return s.runID }

// Clock returns the scheduler's step clock.
func (s *Scheduler) Clock() *Clock { return s.clock }

// Table returns the variable table the scheduler runs against.
func (s *Scheduler) Table() *vartable.Table { return s.table }

// State returns the current status.
func (s *Scheduler) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Scheduler) resolve(ids []string) ([]Step, []string, error) {
	if len(ids) == 0 {
		ids = s.order
	}
	items := make([]Step, len(ids))
	for i, id := range ids {
		st, ok := s.steps[id]
		if !ok {
			return nil, nil, ir.Errorf(ir.ErrCodeUnknownName, id, "step %q is not registered", id)
		}
		items[i] = st
	}
	return items, append([]string(nil), ids...), nil
}

// RunStep runs one step: the items named by ids in that order, or every
// registered item in registration order when ids is empty.
//
// The table is refreshed once before the first item and again before any
// item whose predecessor left the snapshot stale. A failing item aborts the
// step with a *StepError; the clock still advanced.
func (s *Scheduler) RunStep(ctx context.Context, ids ...string) (StepReport, error) {
	items, ids, err := s.resolve(ids)
	if err != nil {
		return StepReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}

	start := time.Now()
	rep := StepReport{Seq: s.clock.Next(), Items: ids}
	defer s.setStatus(Status{State: StateIdle})

	if s.clockVar != "" {
		rep.Time = float64(rep.Seq-1) * s.dt
		if err := s.setTime(rep.Time); err != nil {
			return rep, fmt.Errorf("step %d: set clock variable %q: %w", rep.Seq, s.clockVar, err)
		}
	}

	sc := &StepContext{Seq: rep.Seq, Time: rep.Time, RunID: s.runID, Table: s.table}
	for i, st := range items {
		if i == 0 || sc.AddressMap.Stale() {
			s.setStatus(Status{State: StateRefreshing})
			sc.AddressMap = s.table.Refresh()
			rep.Refreshes++
			if i > 0 {
				s.logger.Debug("address map invalidated mid-step",
					"run_id", s.runID,
					"seq", rep.Seq,
					"after", items[i-1].ID(),
				)
			}
		}
		if err := ctx.Err(); err != nil {
			return rep, &StepError{Seq: rep.Seq, Index: i, StepID: st.ID(), Err: err}
		}

		s.setStatus(Status{State: StateExecuting, Index: i, StepID: st.ID()})
		if err := st.Execute(ctx, sc); err != nil {
			s.logger.Error("step item failed",
				"run_id", s.runID,
				"seq", rep.Seq,
				"index", i,
				"step", st.ID(),
				"error", err,
			)
			rep.Elapsed = time.Since(start)
			return rep, &StepError{Seq: rep.Seq, Index: i, StepID: st.ID(), Err: err}
		}
	}

	rep.Elapsed = time.Since(start)
	s.logger.Debug("step complete",
		"run_id", s.runID,
		"seq", rep.Seq,
		"items", len(items),
		"refreshes", rep.Refreshes,
	)
	return rep, nil
}

func (s *Scheduler) setTime(t float64) error {
	if !s.table.Has(s.clockVar) {
		return s.table.BindConstant(s.clockVar, ir.Float64, t)
	}
	return s.table.SetConstant(s.clockVar, t)
}

// Run runs n steps with the same ids and returns their reports. It stops at
// the first failed step or when ctx is done.
func (s *Scheduler) Run(ctx context.Context, n int, ids ...string) ([]StepReport, error) {
	s.logger.Info("run starting", "run_id", s.runID, "steps", n, "from_seq", s.clock.Current()+1)

	reports := make([]StepReport, 0, n)
	for i := 0; i < n; i++ {
		rep, err := s.RunStep(ctx, ids...)
		if err != nil {
			s.logger.Warn("run aborted", "run_id", s.runID, "completed", len(reports), "error", err)
			return reports, err
		}
		reports = append(reports, rep)
	}

	s.logger.Info("run finished", "run_id", s.runID, "steps", n, "seq", s.clock.Current())
	return reports, nil
}
