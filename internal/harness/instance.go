package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stepc/internal/buffer"
	"github.com/roach88/stepc/internal/codecache"
	"github.com/roach88/stepc/internal/compiler"
	"github.com/roach88/stepc/internal/engine"
	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
	"github.com/roach88/stepc/internal/vartable"
)

// Instance is a model bound to live buffers, ready to step.
type Instance struct {
	Model     *ir.Model
	Table     *vartable.Table
	Scheduler *engine.Scheduler
	Cache     *codecache.Cache

	// Keys maps code object id to fingerprint.
	Keys map[string]ir.Key
}

type options struct {
	cache   *codecache.Cache
	logger  *slog.Logger
	runIDs  engine.RunIDGenerator
	workers int
}

// Option configures Instantiate and Run.
type Option func(*options)

// WithCache shares a code object cache between instances. Without it each
// instance gets its own unbounded cache.
func WithCache(c *codecache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRunIDGenerator sets the scheduler's run id source.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(o *options) { o.runIDs = g }
}

// WithWorkers sets intra-execute parallelism for code objects linked by
// the instance's own cache. Ignored with WithCache.
func WithWorkers(k int) Option {
	return func(o *options) { o.workers = k }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		var link []kernel.LinkOption
		if o.workers > 1 {
			link = append(link, kernel.WithWorkers(o.workers))
		}
		o.cache = codecache.New(codecache.WithLogger(o.logger), codecache.WithLinkOptions(link...))
	}
	return o
}

// Instantiate validates m, binds its variables into a fresh table, fetches
// or compiles every code object through the cache, and registers them with
// a new scheduler in declaration order.
func Instantiate(ctx context.Context, m *ir.Model, opts ...Option) (*Instance, error) {
	if verrs := compiler.Validate(m); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("model %s: %w", m.Name, errors.Join(errs...))
	}
	o := buildOptions(opts)

	table := vartable.New()
	for _, v := range m.Variables {
		if err := bindVariable(table, v); err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
	}

	var sopts []engine.SchedulerOption
	sopts = append(sopts, engine.WithLogger(o.logger))
	if o.runIDs != nil {
		sopts = append(sopts, engine.WithRunIDGenerator(o.runIDs))
	}
	if m.Clock != "" {
		if !table.Has(m.Clock) {
			if err := table.BindConstant(m.Clock, ir.Float64, 0); err != nil {
				return nil, err
			}
		}
		sopts = append(sopts, engine.WithClockVariable(m.Clock, m.DT))
	}
	sched := engine.New(table, sopts...)

	inst := &Instance{
		Model:     m,
		Table:     table,
		Scheduler: sched,
		Cache:     o.cache,
		Keys:      make(map[string]ir.Key, len(m.Code)),
	}
	for _, c := range m.Code {
		co, key, err := CodeObject(ctx, o.cache, m, c)
		if err != nil {
			return nil, err
		}
		inst.Keys[c.ID] = key
		if err := sched.Register(&engine.CodeObjectStep{Name: c.ID, Code: co, SizeVar: c.SizeVar}); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// CodeObject fetches or compiles code object c of model m through cache.
func CodeObject(ctx context.Context, cache *codecache.Cache, m *ir.Model, c ir.CodeSpec) (*kernel.CodeObject, ir.Key, error) {
	schema, err := compiler.SchemaFor(m, c)
	if err != nil {
		return nil, "", fmt.Errorf("code %s: %w", c.ID, err)
	}
	key, err := ir.Fingerprint(c.Statements, schema, kernel.ToolchainID())
	if err != nil {
		return nil, "", fmt.Errorf("code %s: %w", c.ID, err)
	}
	co, err := cache.GetOrCompile(ctx, key, func(context.Context) (*kernel.Program, error) {
		return kernel.Compile(c.Statements, schema)
	})
	if err != nil {
		return nil, "", fmt.Errorf("code %s: %w", c.ID, err)
	}
	return co, key, nil
}

func bindVariable(table *vartable.Table, v ir.VariableSpec) error {
	if v.IsConstant() {
		return table.BindConstant(v.Name, v.Type, v.Value)
	}
	var opts []buffer.Option
	if !v.Volatile {
		opts = append(opts, buffer.WithFixedSize())
	}
	buf, err := buffer.New(v.Type, v.Length(), opts...)
	if err != nil {
		return err
	}
	for i := range buf.Len() {
		x := v.Init
		if i < len(v.Values) {
			x = v.Values[i]
		}
		if x == 0 {
			continue
		}
		if err := buf.SetAt(i, x); err != nil {
			return err
		}
	}
	return table.BindBuffer(v.Name, buf)
}

// Run runs n steps of the model's schedule.
func (inst *Instance) Run(ctx context.Context, n int) ([]engine.StepReport, error) {
	return inst.Scheduler.Run(ctx, n, inst.Model.Schedule...)
}

// Summaries describes every buffer variable, keyed by name.
func (inst *Instance) Summaries() (map[string]VarSummary, error) {
	out := make(map[string]VarSummary)
	for _, name := range inst.Table.Names() {
		buf, err := inst.Table.Buffer(name)
		if err != nil {
			continue // constant
		}
		out[name] = summarize(buf.Float64s())
	}
	return out, nil
}

func summarize(xs []float64) VarSummary {
	s := VarSummary{Len: len(xs)}
	if len(xs) == 0 {
		return s
	}
	s.Min, s.Max = xs[0], xs[0]
	s.First, s.Last = xs[0], xs[len(xs)-1]
	for _, x := range xs {
		s.Sum += x
		s.Min = min(s.Min, x)
		s.Max = max(s.Max, x)
	}
	return s
}
