// Package elab builds the instance forest: it resolves instantiation targets
// through configs and the definition table, binds parameters, expands arrays
// and generate constructs, binds ports and applies bind statements.
package elab

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/generate"
	"github.com/jward/arbor/internal/hdlconfig"
	"github.com/jward/arbor/internal/params"
	"github.com/jward/arbor/internal/syntax"
)

// DefaultMaxDepth bounds the hierarchy depth when no limit is configured.
const DefaultMaxDepth = 256

// ArrayOrder selects the enumeration order of arrayed instantiations.
type ArrayOrder uint8

const (
	// ArrayAscending enumerates indices from the lower bound up.
	ArrayAscending ArrayOrder = iota
	// ArrayDeclared enumerates from the left bound to the right bound.
	ArrayDeclared
)

// ParseArrayOrder maps a settings value to an ArrayOrder.
func ParseArrayOrder(s string) (ArrayOrder, error) {
	switch s {
	case "", "ascending":
		return ArrayAscending, nil
	case "declared":
		return ArrayDeclared, nil
	}
	return 0, fmt.Errorf("elab: unknown array order %q", s)
}

func (o ArrayOrder) String() string {
	if o == ArrayDeclared {
		return "declared"
	}
	return "ascending"
}

// Builder elaborates tops of one design set. The table and config resolver
// are read-only, so a Builder may build several tops concurrently.
type Builder struct {
	table     *design.Table
	configs   *hdlconfig.Resolver
	evaluator eval.Evaluator
	binder    *params.Binder
	expander  *generate.Expander

	reporter   diag.Reporter
	logger     *zap.Logger
	maxDepth   int
	loopLimit  int
	arrayOrder ArrayOrder
	parallel   int
	tops       []string
}

// Option configures a Builder.
type Option func(*Builder)

// WithReporter sets where elaboration diagnostics go.
func WithReporter(r diag.Reporter) Option {
	return func(b *Builder) {
		if r != nil {
			b.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithConfigs sets the config resolver. Without one, syntactic names bind
// directly.
func WithConfigs(r *hdlconfig.Resolver) Option {
	return func(b *Builder) { b.configs = r }
}

// WithMaxDepth bounds the hierarchy depth.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// WithLoopLimit bounds generate-for iterations and array sizes.
func WithLoopLimit(n int) Option {
	return func(b *Builder) { b.loopLimit = n }
}

// WithArrayOrder sets the enumeration order of instance arrays.
func WithArrayOrder(o ArrayOrder) Option {
	return func(b *Builder) { b.arrayOrder = o }
}

// WithParallel sets how many tops are built concurrently. Values below 1
// mean one worker per CPU.
func WithParallel(n int) Option {
	return func(b *Builder) { b.parallel = n }
}

// WithTops replaces the computed top-level set.
func WithTops(tops ...string) Option {
	return func(b *Builder) { b.tops = tops }
}

// NewBuilder returns a Builder over table evaluating constant expressions
// with ev.
func NewBuilder(table *design.Table, ev eval.Evaluator, opts ...Option) *Builder {
	b := &Builder{
		table:     table,
		evaluator: ev,
		reporter:  diag.Discard,
		logger:    zap.NewNop(),
		maxDepth:  DefaultMaxDepth,
		loopLimit: eval.DefaultLoopLimit,
		parallel:  1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.loopLimit <= 0 {
		b.loopLimit = eval.DefaultLoopLimit
	}
	b.binder = params.NewBinder(ev, table, params.WithLogger(b.logger))
	b.expander = generate.NewExpander(ev,
		generate.WithLoopLimit(b.loopLimit),
		generate.WithLogger(b.logger))
	return b
}

// Tops returns the top-level definition names. Unless an explicit list was
// configured, a top is a module, interface or program no instantiation or
// bind references, in declaration order, plus the design cells of active
// configs.
func (b *Builder) Tops() []string {
	if len(b.tops) > 0 {
		return unique(b.tops)
	}
	referenced := make(map[string]bool)
	for _, fc := range b.table.Files() {
		for _, n := range fc.CollectAll(fc.Root(), []syntax.Kind{syntax.KindInstantiation}, nil, false) {
			referenced[fc.Name(n)] = true
		}
	}
	if b.configs != nil {
		for _, name := range b.configs.Referenced() {
			referenced[name] = true
		}
	}
	var tops []string
	for _, def := range b.table.Definitions() {
		switch def.Kind {
		case design.DefModule, design.DefInterface, design.DefProgram:
		default:
			continue
		}
		if !referenced[def.Name] {
			tops = append(tops, def.Name)
		}
	}
	if b.configs != nil {
		tops = append(tops, b.configs.Tops()...)
	}
	return unique(tops)
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Build elaborates the single top named top into its own forest. Binds
// found along the way are returned for the bind pass.
func (b *Builder) Build(ctx context.Context, top string, rep diag.Reporter) (*design.Forest, []Bind, error) {
	w := b.newWorker(ctx, design.NewForest(), rep)
	if err := w.buildTop(top); err != nil {
		return nil, nil, err
	}
	return w.forest, w.binds, nil
}

// topResult is one worker's output for one top.
type topResult struct {
	forest *design.Forest
	sink   *diag.Sink
	binds  []Bind
}

// BuildAll elaborates every top and applies bind statements. Tops are built
// concurrently when parallelism allows; each worker owns its forest and
// diagnostic sink and results merge in top order, so the outcome does not
// depend on scheduling.
func (b *Builder) BuildAll(ctx context.Context) (*design.Design, error) {
	tops := b.Tops()
	results := make([]topResult, len(tops))

	// ---- Phase A: per-top builds ----
	workers := b.parallel
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, top := range tops {
		g.Go(func() error {
			sink := diag.NewSink()
			forest, binds, err := b.Build(gctx, top, sink)
			if err != nil {
				return fmt.Errorf("elaborate %s: %w", top, err)
			}
			results[i] = topResult{forest: forest, sink: sink, binds: binds}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ---- Phase B: deterministic merge ----
	forest := design.NewForest()
	var binds []Bind
	for _, r := range results {
		forest.Graft(r.forest)
		for _, d := range r.sink.All() {
			b.reporter.Report(d)
		}
		binds = append(binds, r.binds...)
	}

	// ---- Phase C: bind statements over the merged forest ----
	for _, fc := range b.table.Files() {
		for _, n := range fc.AllChildren(fc.Root(), syntax.KindBind) {
			binds = append(binds, Bind{Target: fc.Name(n), File: fc, Node: n, Loc: fc.Location(n)})
		}
	}
	w := b.newWorker(ctx, forest, b.reporter)
	if err := w.applyBinds(binds); err != nil {
		return nil, err
	}

	b.logger.Info("elaboration complete",
		zap.Int("tops", len(tops)),
		zap.Int("instances", forest.Len()),
		zap.Int("binds", len(binds)))
	return &design.Design{Table: b.table, Forest: forest}, nil
}
