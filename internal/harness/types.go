package harness

import (
	"github.com/roach88/stepc/internal/codecache"
)

// VarSummary describes one buffer variable after a step.
type VarSummary struct {
	Len   int     `json:"len"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
}

// StepTrace records one step.
type StepTrace struct {
	Seq       int64                 `json:"seq"`
	Time      float64               `json:"time"`
	Items     []string              `json:"items"`
	Refreshes int                   `json:"refreshes"`
	Vars      map[string]VarSummary `json:"vars"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// RunID is the scheduler run id.
	RunID string `json:"run_id"`

	// Trace has one entry per completed step.
	Trace []StepTrace `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Cache is the code object cache's counters after the run.
	Cache codecache.Stats `json:"cache"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
