package loom

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Configuration
// ============================================================================

// Options configures a Registry
type Options struct {
	// Logger receives registration and dispatch events (default discards)
	Logger *slog.Logger

	// Allocator backs every Arrow array built by op implementations
	Allocator memory.Allocator

	// MaxWorkers bounds InvokeBatch concurrency (0 = GOMAXPROCS)
	MaxWorkers int
}

// DefaultOptions returns the default registry configuration
func DefaultOptions() Options {
	return Options{
		Logger:     slog.New(slog.DiscardHandler),
		Allocator:  memory.DefaultAllocator,
		MaxWorkers: 0,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Allocator == nil {
		o.Allocator = d.Allocator
	}
	return o
}

func (o Options) numWorkers() int {
	if o.MaxWorkers > 0 {
		return o.MaxWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// ============================================================================
// Op definitions
// ============================================================================

// ImplFunc is one implementation variant of an op
type ImplFunc func(call *Call) (Datum, error)

// OpDef binds an op name to its parameters, output type rule and one
// implementation per admitted combination of operand shapes.
type OpDef struct {
	Name   string
	Params []Param
	Output OutputFunc
	Impls  map[Variant]ImplFunc

	// NullTolerant marks ops whose implementations handle null rows
	// themselves instead of following the either-null-is-null rule.
	NullTolerant bool

	Doc string
}

// Call is the resolved invocation handed to an implementation
type Call struct {
	Ctx    context.Context
	Op     string
	Args   map[string]Datum
	Shapes map[string]Shape
	Types  map[string]*Type

	// Out is the result type computed by the op's OutputFunc
	Out *Type

	Alloc  memory.Allocator
	Logger *slog.Logger
}

// Arg returns the named argument
func (c *Call) Arg(name string) Datum {
	return c.Args[name]
}

// List returns the named columnar argument
func (c *Call) List(name string) *List {
	return c.Args[name].List()
}

// Value returns the named scalar argument's value
func (c *Call) Value(name string) any {
	return c.Args[name].Value()
}

// result wraps arr as a column of the computed element type, keeping src's
// provenance and tags
func (c *Call) result(src *List, arr arrow.Array) Datum {
	return Column(src.derive(c.OutElem(), arr, src.rowTags))
}

// OutElem returns the element type of a columnar result
func (c *Call) OutElem() *Type {
	if c.Out.kind == KindColumn {
		return c.Out.elem
	}
	return c.Out
}

// ============================================================================
// Registry
// ============================================================================

// Registry maps op names to definitions. Registration is guarded by a single
// lock; once populated it is safe for concurrent Invoke calls.
type Registry struct {
	mu   sync.RWMutex
	ops  map[string]*OpDef
	opts Options
}

// NewRegistry returns an empty registry
func NewRegistry(opts ...Options) *Registry {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0].withDefaults()
	}
	return &Registry{ops: make(map[string]*OpDef), opts: o}
}

// NewStandardRegistry returns a registry holding the string and list op suites
func NewStandardRegistry(opts ...Options) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := RegisterStringOps(r); err != nil {
		return nil, err
	}
	if err := RegisterListOps(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Options returns the registry configuration
func (r *Registry) Options() Options {
	return r.opts
}

// Register adds an op. It fails with ErrDuplicateOp if the name is taken and
// with ErrIncompleteOp if some admitted shape combination has no implementation.
func (r *Registry) Register(def OpDef) error {
	if def.Name == "" {
		return fmt.Errorf("register: op name is empty")
	}
	if def.Output == nil {
		return &OpError{Op: def.Name, Err: fmt.Errorf("%w: no output type", ErrIncompleteOp)}
	}
	for _, p := range def.Params {
		if p.Constraint.Scalar == nil && p.Constraint.Column == nil {
			return &OpError{Op: def.Name, Err: fmt.Errorf("%w: parameter %q has an empty constraint", ErrIncompleteOp, p.Name)}
		}
	}
	for _, v := range variants(def.Params) {
		if def.Impls[v] == nil {
			return &OpError{Op: def.Name, Err: fmt.Errorf("%w: no implementation for variant (%s)", ErrIncompleteOp, v)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ops[def.Name]; ok {
		return &OpError{Op: def.Name, Err: ErrDuplicateOp}
	}
	d := def
	d.Params = append([]Param{}, def.Params...)
	r.ops[def.Name] = &d

	r.opts.Logger.Debug("registered op", "op", def.Name, "params", len(def.Params), "variants", len(def.Impls))
	return nil
}

// MustRegister is Register that panics on error, for op suites built at init
func (r *Registry) MustRegister(def OpDef) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition of a registered op
func (r *Registry) Lookup(name string) (*OpDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.ops[name]
	return def, ok
}

// Ops returns the registered op names in sorted order
func (r *Registry) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputType runs an op's output type rule on the given input types
// without executing it.
func (r *Registry) OutputType(name string, inputs map[string]*Type) (*Type, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, &OpError{Op: name, Err: ErrUnknownOp}
	}
	out := def.Output(inputs)
	if out == nil {
		return nil, &OpError{Op: name, Err: fmt.Errorf("%w: output type rule returned nil", ErrOutputType)}
	}
	return out, nil
}

// Invoke resolves args against the named op, runs the matching implementation
// and checks the result against the computed output type. Inputs are never
// mutated. Kernel errors are returned as the implementation produced them.
func (r *Registry) Invoke(name string, args map[string]Datum) (Datum, error) {
	return r.InvokeContext(context.Background(), name, args)
}

// InvokeContext is Invoke with a context handed to compute kernels
func (r *Registry) InvokeContext(ctx context.Context, name string, args map[string]Datum) (Datum, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return Datum{}, &OpError{Op: name, Err: ErrUnknownOp}
	}

	res, err := Resolve(name, def.Params, args)
	if err != nil {
		return Datum{}, err
	}

	out := def.Output(res.Types)
	if out == nil {
		return Datum{}, &OpError{Op: name, Err: fmt.Errorf("%w: output type rule returned nil", ErrOutputType)}
	}

	variant := res.Variant()
	impl := def.Impls[variant]
	r.opts.Logger.Debug("dispatch", "op", name, "variant", string(variant), "out", out.String())

	call := &Call{
		Ctx:    ctx,
		Op:     name,
		Args:   args,
		Shapes: res.Shapes,
		Types:  res.Types,
		Out:    out,
		Alloc:  r.opts.Allocator,
		Logger: r.opts.Logger,
	}
	result, err := impl(call)
	if err != nil {
		return Datum{}, err
	}

	if got := result.Type(); !got.Equal(out) {
		return Datum{}, &OpError{Op: name, Err: fmt.Errorf("%w: computed %s, implementation returned %s", ErrOutputType, out, got)}
	}
	return result, nil
}
