// Package harness runs stepc models end to end: it instantiates a compiled
// model (buffers, constants, cached code objects, scheduler), drives it
// through a YAML scenario, and records a per-step trace for assertions and
// golden comparison.
//
// # Scenario Format
//
//	name: leaky
//	description: "Leaky integrator with growth between steps"
//	model: ../models/leaky      # model directory, relative to this file
//	steps: 3
//	run_id: run-leaky           # optional; fixed for golden traces
//	golden: true                # a golden trace file must exist
//	actions:
//	  - before_step: 2          # between steps 1 and 2
//	    append: {variable: v, count: 50, value: 1.0}
//	  - before_step: 3
//	    after: integrate        # mid-step, right after this code object
//	    resize: {variable: v, length: 160}
//	assertions:
//	  - variable: v
//	    length: 150
//	  - variable: v
//	    index: 0
//	    approx: 0.27
//	    tolerance: 0.01
//
// Actions are append, resize, compact and set (a constant). An action
// with after runs inside the step as a FuncStep, which forces the
// scheduler to refresh before the next code object.
//
// # Assertions
//
//   - length: the buffer's element count
//   - index + approx: one element, within tolerance (default 1e-9)
//   - all: every element, within tolerance
//   - sum: the sum of all elements, within tolerance
//
// # Deterministic Testing
//
// Runs use a fixed run id (run_id, or "test-run-default") and the
// scheduler's logical clock, so traces are identical across runs. Trace
// floats are rendered with 10 significant digits before canonical JSON
// encoding.
package harness
