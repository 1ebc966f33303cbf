package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/stepc/internal/compiler"
	"github.com/roach88/stepc/internal/engine"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/vartable"
)

// Run loads the scenario's model, runs it for sc.Steps steps applying the
// scenario's actions, and evaluates its assertions.
//
// A returned error means the run itself failed (bad model, failed step).
// Assertion failures are reported in Result.Errors instead.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	loaded, err := compiler.LoadModel(sc.Model)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return RunModel(ctx, loaded.Model, sc, opts...)
}

// RunModel is Run with an already compiled model; sc.Model is ignored.
func RunModel(ctx context.Context, m *ir.Model, sc *Scenario, opts ...Option) (*Result, error) {
	runID := sc.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	opts = append([]Option{WithRunIDGenerator(engine.NewFixedGenerator(runID))}, opts...)

	inst, err := Instantiate(ctx, m, opts...)
	if err != nil {
		return nil, err
	}

	// Mid-step actions become scheduler items named after their index.
	midStep := make(map[int][]midItem)
	for i, a := range sc.Actions {
		if a.After == "" {
			continue
		}
		if !slices.Contains(m.Schedule, a.After) {
			return nil, fmt.Errorf("actions[%d]: %q is not in the schedule", i, a.After)
		}
		step := &engine.FuncStep{
			Name: fmt.Sprintf("action[%d]", i),
			Fn: func(_ context.Context, stc *engine.StepContext) error {
				return applyAction(stc.Table, a)
			},
		}
		if err := inst.Scheduler.Register(step); err != nil {
			return nil, err
		}
		midStep[a.BeforeStep] = append(midStep[a.BeforeStep], midItem{id: step.Name, after: a.After})
	}

	result := NewResult()
	result.RunID = inst.Scheduler.RunID()
	for n := 1; n <= sc.Steps; n++ {
		for i, a := range sc.Actions {
			if a.BeforeStep != n || a.After != "" {
				continue
			}
			if err := applyAction(inst.Table, a); err != nil {
				return result, fmt.Errorf("actions[%d] before step %d: %w", i, n, err)
			}
		}

		rep, err := inst.Scheduler.RunStep(ctx, stepItems(m.Schedule, midStep[n])...)
		if err != nil {
			return result, err
		}
		vars, err := inst.Summaries()
		if err != nil {
			return result, err
		}
		result.Trace = append(result.Trace, StepTrace{
			Seq:       rep.Seq,
			Time:      rep.Time,
			Items:     rep.Items,
			Refreshes: rep.Refreshes,
			Vars:      vars,
		})
	}

	for _, msg := range EvaluateAssertions(inst.Table, sc.Assertions) {
		result.AddError(msg)
	}
	result.Cache = inst.Cache.Stats()
	return result, nil
}

type midItem struct {
	id    string
	after string
}

// stepItems interleaves a step's mid-step action items into schedule, each
// right after the code object it names.
func stepItems(schedule []string, mid []midItem) []string {
	if len(mid) == 0 {
		return schedule
	}
	after := make(map[string][]string)
	for _, it := range mid {
		after[it.after] = append(after[it.after], it.id)
	}
	items := make([]string, 0, len(schedule)+len(mid))
	for _, id := range schedule {
		items = append(items, id)
		items = append(items, after[id]...)
		delete(after, id) // once per step, even if id is scheduled twice
	}
	return items
}

// applyAction performs one table mutation.
func applyAction(table *vartable.Table, a Action) error {
	switch {
	case a.Append != nil:
		buf, err := table.Buffer(a.Append.Variable)
		if err != nil {
			return err
		}
		vals := make([]float64, a.Append.Count)
		for i := range vals {
			vals[i] = a.Append.Value
		}
		return buf.AppendFloat64s(vals...)
	case a.Resize != nil:
		buf, err := table.Buffer(a.Resize.Variable)
		if err != nil {
			return err
		}
		return buf.Resize(a.Resize.Length)
	case a.Compact != nil:
		buf, err := table.Buffer(a.Compact.Variable)
		if err != nil {
			return err
		}
		buf.Compact()
		return nil
	case a.Set != nil:
		return table.SetConstant(a.Set.Variable, a.Set.Value)
	}
	return fmt.Errorf("empty action")
}
