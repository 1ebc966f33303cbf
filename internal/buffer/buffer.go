// Package buffer implements growable, contiguous, typed memory regions.
//
// A Buffer keeps an explicit length/capacity pair and a documented growth
// factor so that reallocation is an observable event: every reallocation
// bumps Generation, and every mutation of any kind bumps Version. Consumers
// that took a RawAddress must drop it once either counter moves; the
// vartable package enforces that for the kernel runtime.
//
// Backing memory is a []uint64 so every element type is naturally aligned.
package buffer

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"

	"github.com/roach88/stepc/internal/ir"
)

// DefaultGrowthFactor is the capacity multiplier applied on overflow.
const DefaultGrowthFactor = 2.0

// MaxBytes is the largest backing allocation a buffer attempts: 128 TiB on
// 64-bit platforms, math.MaxInt32 on 32-bit ones. Larger requests fail with
// CAPACITY_OVERFLOW instead of reaching the allocator.
const MaxBytes = 1<<47*(strconv.IntSize/64) + math.MaxInt32*(1-strconv.IntSize/64)

// Buffer is a single growable typed region. It is not safe for concurrent
// mutation; ownership belongs to exactly one variable table entry.
type Buffer struct {
	typ      ir.DType
	size     int // element size in bytes
	words    []uint64
	length   int
	capacity int

	growth float64
	maxCap int
	fixed  bool

	version    uint64
	generation uint64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithGrowthFactor sets the growth factor. Values <= 1 are ignored.
func WithGrowthFactor(f float64) Option {
	return func(b *Buffer) {
		if f > 1 && !math.IsInf(f, 0) && !math.IsNaN(f) {
			b.growth = f
		}
	}
}

// WithMaxCapacity bounds the capacity in elements. Growth past it fails with
// CAPACITY_OVERFLOW. It cannot raise the bound above MaxBytes.
func WithMaxCapacity(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxCap = n
		}
	}
}

// WithFixedSize makes the buffer constant-shape: any growth past the initial
// capacity fails. Fixed buffers are never volatile.
func WithFixedSize() Option {
	return func(b *Buffer) {
		b.fixed = true
	}
}

// New creates a zero-initialized buffer with capacity == length == n.
func New(t ir.DType, n int, opts ...Option) (*Buffer, error) {
	if !t.Valid() {
		return nil, ir.Errorf(ir.ErrCodeSchemaMismatch, "", "invalid element type %q", t)
	}
	if n < 0 {
		return nil, fmt.Errorf("buffer: negative length %d", n)
	}
	b := &Buffer{
		typ:    t,
		size:   t.Size(),
		growth: DefaultGrowthFactor,
		maxCap: MaxBytes / t.Size(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.maxCap = min(b.maxCap, MaxBytes/b.size)
	if n > b.maxCap {
		return nil, b.overflow(n)
	}
	b.words = make([]uint64, wordsFor(n, b.size))
	b.length = n
	b.capacity = n
	return b, nil
}

// Type returns the element type.
func (b *Buffer) Type() ir.DType { return b.typ }

// Len returns the logical element count.
func (b *Buffer) Len() int { return b.length }

// Cap returns the physical element count.
func (b *Buffer) Cap() int { return b.capacity }

// GrowthFactor returns the capacity multiplier.
func (b *Buffer) GrowthFactor() float64 { return b.growth }

// Fixed reports whether the buffer rejects growth.
func (b *Buffer) Fixed() bool { return b.fixed }

// Version increases on every mutation (append, resize, set, compact).
func (b *Buffer) Version() uint64 { return b.version }

// Generation increases on every reallocation.
func (b *Buffer) Generation() uint64 { return b.generation }

// RawAddress returns the current base address, or nil for an empty
// allocation. The value must not be retained across Append, Resize or Compact.
func (b *Buffer) RawAddress() unsafe.Pointer {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b.words))
}

// Bytes returns the first Len elements as raw bytes.
func (b *Buffer) Bytes() []byte {
	if b.length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.RawAddress()), b.length*b.size)
}

// Resize sets the logical length. Growing past capacity reallocates with the
// same rule as Append; new elements are zero. Shrinking never reallocates.
func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("buffer: negative length %d", n)
	}
	if n > b.capacity {
		if err := b.grow(n); err != nil {
			return err
		}
	}
	if n > b.length {
		region := unsafe.Slice((*byte)(b.RawAddress()), n*b.size)
		clear(region[b.length*b.size:])
	}
	b.length = n
	b.version++
	return nil
}

// AppendZero appends n zero elements.
func (b *Buffer) AppendZero(n int) error {
	if n < 0 {
		return fmt.Errorf("buffer: negative count %d", n)
	}
	if n > math.MaxInt-b.length {
		return b.overflow(math.MaxInt)
	}
	return b.Resize(b.length + n)
}

// Compact reallocates so that capacity == length, reclaiming memory.
// Like growth, it moves the base address and invalidates snapshots.
func (b *Buffer) Compact() {
	if b.capacity == b.length {
		return
	}
	b.realloc(b.length)
	b.version++
}

// reserve makes room for needed elements, reallocating if necessary.
func (b *Buffer) reserve(needed int) error {
	if needed <= b.capacity {
		return nil
	}
	return b.grow(needed)
}

// grow reallocates to ceil(needed * growth), clamped to the maximum capacity.
func (b *Buffer) grow(needed int) error {
	if b.fixed {
		return ir.Errorf(ir.ErrCodeCapacityOverflow, "",
			"fixed-size buffer cannot grow from %d to %d elements", b.capacity, needed)
	}
	if needed > b.maxCap {
		return b.overflow(needed)
	}
	target := math.Ceil(float64(needed) * b.growth)
	newCap := b.maxCap
	if target < float64(b.maxCap) {
		newCap = int(target)
	}
	if newCap < needed {
		newCap = needed
	}
	b.realloc(newCap)
	return nil
}

func (b *Buffer) realloc(newCap int) {
	words := make([]uint64, wordsFor(newCap, b.size))
	copy(words, b.words[:wordsFor(min(b.length, newCap), b.size)])
	b.words = words
	b.capacity = newCap
	b.generation++
}

func (b *Buffer) overflow(needed int) error {
	return &ir.Error{
		Code:    ir.ErrCodeCapacityOverflow,
		Message: fmt.Sprintf("%d elements exceeds the addressable capacity", needed),
		Details: map[string]string{
			"needed": fmt.Sprintf("%d", needed),
			"max":    fmt.Sprintf("%d", b.maxCap),
			"type":   string(b.typ),
		},
	}
}

func wordsFor(n, size int) int {
	return (n*size + 7) / 8
}
