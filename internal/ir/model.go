package ir

// VariableSpec declares one model variable.
//
// A variable with Size > 0, Values or Volatile is backed by a buffer;
// otherwise it is a constant scalar holding Value. Volatile buffers may grow
// between steps, so a volatile variable may start empty.
type VariableSpec struct {
	Name     string    `json:"name"`
	Type     DType     `json:"type"`
	Size     int       `json:"size,omitempty"`
	Volatile bool      `json:"volatile,omitempty"`
	Init     float64   `json:"init,omitempty"`
	Values   []float64 `json:"values,omitempty"`
	Value    float64   `json:"value,omitempty"`
}

// IsConstant reports whether the variable is a constant scalar.
func (v VariableSpec) IsConstant() bool {
	return v.Size == 0 && len(v.Values) == 0 && !v.Volatile
}

// Length returns the initial element count of a buffer variable.
func (v VariableSpec) Length() int {
	return max(v.Size, len(v.Values))
}

// CodeSpec declares one code object: an ordered statement sequence and the
// variable whose length sets the loop bound (empty = minimum length).
type CodeSpec struct {
	ID         string      `json:"id"`
	Source     []string    `json:"source"`
	Statements []Statement `json:"-"`
	SizeVar    string      `json:"size,omitempty"`
}

// Model is a compiled model description: variables, code objects and the
// per-step execution order.
type Model struct {
	Name      string         `json:"name"`
	Variables []VariableSpec `json:"variables"`
	Code      []CodeSpec     `json:"code"`
	Schedule  []string       `json:"schedule"`
	Clock     string         `json:"clock,omitempty"`
	DT        float64        `json:"dt,omitempty"`
}

// Variable looks up a variable spec by name.
func (m *Model) Variable(name string) (VariableSpec, bool) {
	for _, v := range m.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableSpec{}, false
}

// CodeObject looks up a code spec by id.
func (m *Model) CodeObject(id string) (CodeSpec, bool) {
	for _, c := range m.Code {
		if c.ID == id {
			return c, true
		}
	}
	return CodeSpec{}, false
}
