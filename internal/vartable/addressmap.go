package vartable

import (
	"slices"
	"unsafe"

	"github.com/roach88/stepc/internal/buffer"
	"github.com/roach88/stepc/internal/ir"
)

// Slot is one variable in an AddressMap: a base address and element count
// for buffers, or a value for constants.
type Slot struct {
	Name     string
	Type     ir.DType
	Constant bool
	Value    float64
	Addr     unsafe.Pointer
	Len      int

	buf     *buffer.Buffer
	version uint64
}

// AddressMap is an immutable snapshot of current addresses. It is valid
// only until the next mutation of any buffer it covers or any change to the
// table's bindings. Do not keep one across a step boundary.
type AddressMap struct {
	table *Table
	epoch uint64
	slots map[string]Slot
}

// Refresh reads the current address, count or value of every bound
// variable. Calling it twice without an intervening mutation yields equal
// maps.
func (t *Table) Refresh() *AddressMap {
	t.mu.Lock()
	defer t.mu.Unlock()

	am := &AddressMap{
		table: t,
		epoch: t.epoch,
		slots: make(map[string]Slot, len(t.entries)),
	}
	for name, e := range t.entries {
		s := Slot{Name: name, Type: e.typ, Constant: e.constant}
		if e.constant {
			s.Value = e.value
		} else {
			s.buf = e.buf
			s.version = e.buf.Version()
			s.Addr = e.buf.RawAddress()
			s.Len = e.buf.Len()
		}
		am.slots[name] = s
	}
	return am
}

// Get returns the slot for name.
func (am *AddressMap) Get(name string) (Slot, bool) {
	s, ok := am.slots[name]
	return s, ok
}

// Names returns the snapshot's variable names, sorted.
func (am *AddressMap) Names() []string {
	names := make([]string, 0, len(am.slots))
	for n := range am.slots {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of slots.
func (am *AddressMap) Len() int {
	return len(am.slots)
}

// Epoch returns the table epoch the snapshot was taken at.
func (am *AddressMap) Epoch() uint64 {
	return am.epoch
}

// Stale reports whether the table or any covered buffer changed since the
// snapshot was taken.
func (am *AddressMap) Stale() bool {
	if am.table.Epoch() != am.epoch {
		return true
	}
	for _, s := range am.slots {
		if s.buf != nil && s.buf.Version() != s.version {
			return true
		}
	}
	return false
}

// Validate returns STALE_ADDRESS_MAP if the snapshot is stale.
func (am *AddressMap) Validate() error {
	if am == nil {
		return ir.Errorf(ir.ErrCodeStaleAddressMap, "", "nil address map")
	}
	if am.table.Epoch() != am.epoch {
		return ir.Errorf(ir.ErrCodeStaleAddressMap, "", "bindings changed since refresh")
	}
	for name, s := range am.slots {
		if s.buf != nil && s.buf.Version() != s.version {
			return ir.Errorf(ir.ErrCodeStaleAddressMap, name, "buffer %q mutated since refresh", name)
		}
	}
	return nil
}

// Equal reports whether two snapshots hold the same addresses, counts and
// values for the same names.
func (am *AddressMap) Equal(other *AddressMap) bool {
	if am == nil || other == nil || len(am.slots) != len(other.slots) {
		return am == other
	}
	for name, s := range am.slots {
		o, ok := other.slots[name]
		if !ok {
			return false
		}
		if s.Type != o.Type || s.Constant != o.Constant || s.Value != o.Value ||
			s.Addr != o.Addr || s.Len != o.Len {
			return false
		}
	}
	return true
}
