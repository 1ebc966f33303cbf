package harness

import (
	"context"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stepc/internal/ir"
)

// TraceSnapshot is the golden form of a run.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	RunID        string      `json:"run_id,omitempty"`
	Trace        []StepTrace `json:"trace"`
}

// traceDigits is the significant digits kept for trace floats, so golden
// files survive last-bit differences between platforms.
const traceDigits = 10

func traceFloat(f float64) ir.IRString {
	return ir.IRString(strconv.FormatFloat(f, 'g', traceDigits, 64))
}

// toCanonical converts the snapshot to an IR value for ir.MarshalCanonical,
// which accepts no floats.
func (s *TraceSnapshot) toCanonical() ir.IRObject {
	steps := make(ir.IRArray, len(s.Trace))
	for i, st := range s.Trace {
		items := make(ir.IRArray, len(st.Items))
		for j, id := range st.Items {
			items[j] = ir.IRString(id)
		}
		vars := make(ir.IRObject, len(st.Vars))
		for name, v := range st.Vars {
			vars[name] = ir.IRObject{
				"len":   ir.IRInt(v.Len),
				"sum":   traceFloat(v.Sum),
				"min":   traceFloat(v.Min),
				"max":   traceFloat(v.Max),
				"first": traceFloat(v.First),
				"last":  traceFloat(v.Last),
			}
		}
		steps[i] = ir.IRObject{
			"seq":       ir.IRInt(st.Seq),
			"time":      traceFloat(st.Time),
			"items":     items,
			"refreshes": ir.IRInt(st.Refreshes),
			"vars":      vars,
		}
	}

	out := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         steps,
	}
	if s.RunID != "" {
		out["run_id"] = ir.IRString(s.RunID)
	}
	return out
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: scenarioName, RunID: result.RunID, Trace: result.Trace}
	return ir.MarshalCanonical(snap.toCanonical())
}

// RunWithGolden runs a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
