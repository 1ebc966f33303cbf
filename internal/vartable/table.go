// Package vartable maps stable variable names to typed buffers or inline
// constants and produces AddressMap snapshots for code object execution.
//
// Refresh is the single synchronization point between buffer management and
// compiled code: it reads the current base address and element count of
// every bound buffer. A snapshot records the table epoch and the version of
// every buffer it saw, so any later bind, unbind, constant update or buffer
// mutation makes it stale, and the kernel runtime refuses stale snapshots.
//
// Thread-safety model:
//   - Bind/Unbind/SetConstant/Refresh: safe from any goroutine (mutex)
//   - Buffer mutation through Buffer(name): owner's goroutine only; the
//     scheduler's step loop is the only mutator during a run
package vartable

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/stepc/internal/buffer"
	"github.com/roach88/stepc/internal/ir"
)

// entry is one bound name. Exactly one of buf and constant is meaningful.
type entry struct {
	name     string
	buf      *buffer.Buffer
	typ      ir.DType
	constant bool
	value    float64
}

// Table is the variable table.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	owners  map[*buffer.Buffer]string
	epoch   uint64
}

// New creates an empty table.
func New() *Table {
	return &Table{
		entries: make(map[string]*entry),
		owners:  make(map[*buffer.Buffer]string),
	}
}

// BindBuffer binds name to buf. The table becomes the buffer's exclusive
// owner: binding the same buffer under a second name fails, so two names
// never alias the same memory.
func (t *Table) BindBuffer(name string, buf *buffer.Buffer) error {
	if buf == nil {
		return fmt.Errorf("bind %q: nil buffer", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkFree(name); err != nil {
		return err
	}
	if owner, ok := t.owners[buf]; ok {
		return ir.Errorf(ir.ErrCodeAliasedBuffer, name, "buffer already bound as %q", owner)
	}
	t.entries[name] = &entry{name: name, buf: buf, typ: buf.Type()}
	t.owners[buf] = name
	t.epoch++
	return nil
}

// BindConstant binds name to an inline step-constant scalar.
func (t *Table) BindConstant(name string, typ ir.DType, value float64) error {
	if !typ.Valid() {
		return ir.Errorf(ir.ErrCodeSchemaMismatch, name, "invalid element type %q", typ)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkFree(name); err != nil {
		return err
	}
	t.entries[name] = &entry{name: name, typ: typ, constant: true, value: value}
	t.epoch++
	return nil
}

func (t *Table) checkFree(name string) error {
	if err := ir.CheckName(name); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if _, ok := t.entries[name]; ok {
		return ir.Errorf(ir.ErrCodeDuplicateName, name, "variable %q is already bound", name)
	}
	return nil
}

// Unbind removes a binding. The buffer, if any, is released by the table.
func (t *Table) Unbind(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[name]
	if !ok {
		return ir.Errorf(ir.ErrCodeUnknownName, name, "variable %q is not bound", name)
	}
	if e.buf != nil {
		delete(t.owners, e.buf)
	}
	delete(t.entries, name)
	t.epoch++
	return nil
}

// SetConstant updates the value of a bound constant.
func (t *Table) SetConstant(name string, value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[name]
	if !ok {
		return ir.Errorf(ir.ErrCodeUnknownName, name, "variable %q is not bound", name)
	}
	if !e.constant {
		return ir.Errorf(ir.ErrCodeSchemaMismatch, name, "variable %q is a buffer, not a constant", name)
	}
	if e.value != value {
		e.value = value
		t.epoch++
	}
	return nil
}

// Constant returns the current value of a bound constant.
func (t *Table) Constant(name string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[name]
	if !ok {
		return 0, ir.Errorf(ir.ErrCodeUnknownName, name, "variable %q is not bound", name)
	}
	if !e.constant {
		return 0, ir.Errorf(ir.ErrCodeSchemaMismatch, name, "variable %q is a buffer, not a constant", name)
	}
	return e.value, nil
}

// Buffer returns the buffer bound to name.
func (t *Table) Buffer(name string) (*buffer.Buffer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeUnknownName, name, "variable %q is not bound", name)
	}
	if e.constant {
		return nil, ir.Errorf(ir.ErrCodeSchemaMismatch, name, "variable %q is a constant, not a buffer", name)
	}
	return e.buf, nil
}

// Has reports whether name is bound.
func (t *Table) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[name]
	return ok
}

// Names returns all bound names, sorted.
func (t *Table) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedNamesLocked()
}

func (t *Table) sortedNamesLocked() []string {
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Volatile returns the names whose buffers may be reallocated between
// executions: every buffer that is not fixed-size. Sorted.
func (t *Table) Volatile() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for n, e := range t.entries {
		if e.buf != nil && !e.buf.Fixed() {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Schema describes the named variables (all bound variables when names is
// empty) as a schema, in the order given.
func (t *Table) Schema(names ...string) (ir.Schema, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(names) == 0 {
		names = t.sortedNamesLocked()
	}
	schema := make(ir.Schema, 0, len(names))
	for _, n := range names {
		e, ok := t.entries[n]
		if !ok {
			return nil, ir.Errorf(ir.ErrCodeUnknownName, n, "variable %q is not bound", n)
		}
		schema = append(schema, ir.Variable{
			Name:     n,
			Type:     e.typ,
			Constant: e.constant,
			Volatile: e.buf != nil && !e.buf.Fixed(),
		})
	}
	return schema, nil
}

// Epoch returns the binding epoch. It moves on bind, unbind and constant
// updates, not on buffer mutation.
func (t *Table) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}
