package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a model run with assertions on the final buffers.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the CUE model directory. Relative paths are resolved against
	// the scenario file's directory.
	Model string `yaml:"model"`

	// Steps is the number of steps to run.
	Steps int `yaml:"steps"`

	// RunID fixes the scheduler run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Golden requires a golden trace file; without it the trace is only
	// compared when a golden file happens to exist.
	Golden bool `yaml:"golden,omitempty"`

	// Actions mutate the table between or within steps.
	Actions []Action `yaml:"actions,omitempty"`

	// Assertions are checked against the table after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultRunID is used when a scenario does not set run_id.
const DefaultRunID = "test-run-default"

// Action is one table mutation. Exactly one of Append, Resize, Compact and
// Set must be present.
type Action struct {
	// BeforeStep is the 1-based step the action precedes.
	BeforeStep int `yaml:"before_step"`

	// After names a scheduled code object. When set the action runs
	// inside step BeforeStep, right after that code object.
	After string `yaml:"after,omitempty"`

	Append  *AppendAction  `yaml:"append,omitempty"`
	Resize  *ResizeAction  `yaml:"resize,omitempty"`
	Compact *CompactAction `yaml:"compact,omitempty"`
	Set     *SetAction     `yaml:"set,omitempty"`
}

// AppendAction appends Count copies of Value to a buffer.
type AppendAction struct {
	Variable string  `yaml:"variable"`
	Count    int     `yaml:"count"`
	Value    float64 `yaml:"value"`
}

// ResizeAction sets a buffer's length; new elements are zero.
type ResizeAction struct {
	Variable string `yaml:"variable"`
	Length   int    `yaml:"length"`
}

// CompactAction shrinks a buffer's capacity to its length.
type CompactAction struct {
	Variable string `yaml:"variable"`
}

// SetAction updates a constant.
type SetAction struct {
	Variable string  `yaml:"variable"`
	Value    float64 `yaml:"value"`
}

// Kind returns the action's kind name.
func (a Action) Kind() string {
	switch {
	case a.Append != nil:
		return "append"
	case a.Resize != nil:
		return "resize"
	case a.Compact != nil:
		return "compact"
	case a.Set != nil:
		return "set"
	}
	return ""
}

// Assertion checks one variable after the run.
type Assertion struct {
	Variable string `yaml:"variable"`

	Length *int     `yaml:"length,omitempty"`
	Index  *int     `yaml:"index,omitempty"`
	Approx *float64 `yaml:"approx,omitempty"`
	All    *float64 `yaml:"all,omitempty"`
	Sum    *float64 `yaml:"sum,omitempty"`

	// Tolerance is the absolute tolerance for value checks. Default 1e-9.
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// DefaultTolerance applies when an assertion sets no tolerance.
const DefaultTolerance = 1e-9

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. The model path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model not found: %s", s.Model)
	}
	if s.Steps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, a := range s.Actions {
		if err := validateAction(i, a, s.Steps); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(index int, a Action, steps int) error {
	if a.BeforeStep < 1 || a.BeforeStep > steps {
		return fmt.Errorf("actions[%d]: before_step must be in [1, %d]", index, steps)
	}
	n := 0
	for _, set := range []bool{a.Append != nil, a.Resize != nil, a.Compact != nil, a.Set != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("actions[%d]: exactly one of append, resize, compact, set is required", index)
	}

	var variable string
	switch {
	case a.Append != nil:
		variable = a.Append.Variable
		if a.Append.Count < 0 {
			return fmt.Errorf("actions[%d]: append count must be non-negative", index)
		}
	case a.Resize != nil:
		variable = a.Resize.Variable
		if a.Resize.Length < 0 {
			return fmt.Errorf("actions[%d]: resize length must be non-negative", index)
		}
	case a.Compact != nil:
		variable = a.Compact.Variable
	case a.Set != nil:
		variable = a.Set.Variable
	}
	if variable == "" {
		return fmt.Errorf("actions[%d]: %s variable is required", index, a.Kind())
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Variable == "" {
		return fmt.Errorf("assertions[%d]: variable is required", index)
	}
	if a.Length == nil && a.Index == nil && a.All == nil && a.Sum == nil {
		return fmt.Errorf("assertions[%d]: one of length, index, all, sum is required", index)
	}
	if (a.Index == nil) != (a.Approx == nil) {
		return fmt.Errorf("assertions[%d]: index and approx must be given together", index)
	}
	if a.Index != nil && *a.Index < 0 {
		return fmt.Errorf("assertions[%d]: index must be non-negative", index)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}
	return nil
}
