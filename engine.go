package arbor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/elab"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/hdlconfig"
	"github.com/jward/arbor/internal/resolve"
	"github.com/jward/arbor/internal/runtime"
	"github.com/jward/arbor/internal/store"
	"github.com/jward/arbor/internal/syntax"
	"github.com/jward/arbor/internal/validate"
)

// DefaultKeepRuns is how many runs the database retains.
const DefaultKeepRuns = 5

// Engine orchestrates the arbor pipeline: design file loading, elaboration,
// late binding, persistence, and query access.
type Engine struct {
	store     *store.Store
	settings  *config.Settings
	logger    *zap.Logger
	evaluator eval.Evaluator
	runtime   *runtime.Runtime // set when the risor evaluator is active
	scriptsFS fs.FS
	tops      []string
	keepRuns  int

	// useParallel enables per-top parallel elaboration and persistence.
	useParallel bool
	// force re-elaborates even when the design hash matches the latest run.
	force bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings replaces the default settings.
func WithSettings(s *config.Settings) Option {
	return func(e *Engine) {
		if s != nil {
			e.settings = s
		}
	}
}

// WithLogger sets the logger threaded through every phase.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEvaluator overrides the evaluator chosen by the settings.
func WithEvaluator(ev eval.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithScriptsFS makes the risor evaluator load its prelude from fsys instead
// of the settings' scripts directory. This enables embedding scripts via
// go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithParallel controls parallel elaboration. When true (default), tops are
// built and persisted concurrently up to the configured parallelism; when
// false everything runs on the calling goroutine.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithTops names the top-level definitions explicitly, overriding both the
// settings and automatic top detection.
func WithTops(tops ...string) Option {
	return func(e *Engine) {
		e.tops = tops
	}
}

// WithKeepRuns sets how many runs are retained after each Run. Zero keeps
// every run.
func WithKeepRuns(n int) Option {
	return func(e *Engine) {
		e.keepRuns = n
	}
}

// WithForce disables the unchanged-design shortcut of Run.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// New creates an Engine backed by a SQLite database at dbPath. An empty
// dbPath uses the database named by the settings.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		settings:    config.DefaultSettings(),
		logger:      zap.NewNop(),
		keepRuns:    DefaultKeepRuns,
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.settings.Validate(); err != nil {
		return nil, fmt.Errorf("arbor: settings: %w", err)
	}
	if e.evaluator == nil {
		ev, err := e.newEvaluator()
		if err != nil {
			return nil, err
		}
		e.evaluator = ev
	}

	if dbPath == "" {
		dbPath = e.settings.DatabasePath()
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("arbor: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("arbor: migrate: %w", err)
	}
	e.store = s
	return e, nil
}

// newEvaluator builds the evaluator the settings select.
func (e *Engine) newEvaluator() (eval.Evaluator, error) {
	switch e.settings.Evaluator {
	case "hcl":
		return eval.NewHCL(), nil
	case "risor":
		rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.logger.Named("risor"))}
		if e.scriptsFS != nil {
			rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
		}
		e.runtime = runtime.NewRuntime(e.settings.ScriptsDir, rtOpts...)
		return e.runtime, nil
	}
	return nil, fmt.Errorf("arbor: unknown evaluator %q", e.settings.Evaluator)
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Settings returns the effective settings.
func (e *Engine) Settings() *config.Settings {
	return e.settings
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store)
}

// parallelism is the worker count handed to the builder.
func (e *Engine) parallelism() int {
	if !e.useParallel {
		return 1
	}
	return e.settings.Parallel // 0 means one per CPU
}

// activeTops returns the explicit tops, option first, then settings.
func (e *Engine) activeTops() []string {
	if len(e.tops) > 0 {
		return e.tops
	}
	return e.settings.Tops
}

// preludeHash hashes the risor prelude so a prelude edit invalidates the
// unchanged-design shortcut. Empty when the prelude is absent or unused.
func (e *Engine) preludeHash() string {
	if e.runtime == nil {
		return ""
	}
	src, err := e.runtime.LoadScript(runtime.DefaultPrelude)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(src)))
}

// fingerprint lists the settings that change elaboration results. It is
// folded into the design hash.
func (e *Engine) fingerprint() []string {
	s := e.settings
	return []string{
		"evaluator=" + s.Evaluator,
		"prelude=" + e.preludeHash(),
		"default_nettype=" + s.DefaultNetType,
		"max_depth=" + strconv.Itoa(s.MaxDepth),
		"max_generate_iterations=" + strconv.Itoa(s.LoopLimit),
		"array_order=" + s.ArrayOrder,
		"tops=" + strings.Join(e.activeTops(), ","),
		"configs=" + strings.Join(s.Configs, ","),
	}
}

// Loaded is a set of design files flattened into node stores that share
// one symbol table.
type Loaded struct {
	Files   []*syntax.FileContent
	Records []*store.File
	// Hash identifies the design set together with the settings that
	// affect elaboration.
	Hash string
}

// LoadFiles reads, validates and flattens the design files at paths. Node
// store diagnostics go to rep. Every file is attempted; if any fails the
// first error is returned with the failure count.
func (e *Engine) LoadFiles(ctx context.Context, paths []string, rep diag.Reporter) (*Loaded, error) {
	if rep == nil {
		rep = diag.Discard
	}
	v, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	symbols := syntax.NewSymbolTable()
	loaded := &Loaded{}

	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fc, rec, err := e.loadFile(v, symbols, path, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", path, err))
			continue
		}
		loaded.Files = append(loaded.Files, fc)
		loaded.Records = append(loaded.Records, rec)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("arbor: loading had %d error(s): %w", len(errs), errs[0])
	}
	loaded.Hash = store.ComputeDesignHash(loaded.Records, e.fingerprint()...)
	e.logger.Debug("design files loaded",
		zap.Int("files", len(loaded.Files)),
		zap.Int("symbols", symbols.Len()),
		zap.String("hash", loaded.Hash))
	return loaded, nil
}

func (e *Engine) loadFile(v *validate.Validator, symbols *syntax.SymbolTable, path string, rep diag.Reporter) (*syntax.FileContent, *store.File, error) {
	format, err := syntax.FormatFor(path)
	if err != nil {
		return nil, nil, err
	}
	sf, data, err := syntax.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if err := v.Validate(sf); err != nil {
		return nil, nil, err
	}
	fc, err := syntax.Flatten(sf, symbols, syntax.WithReporter(rep), syntax.WithLogger(e.logger))
	if err != nil {
		return nil, nil, err
	}
	return fc, &store.File{
		Path:      path,
		Format:    string(format),
		Hash:      store.HashBytes(data),
		NodeCount: fc.Len() - 2, // sentinel and source_text root
	}, nil
}

// Elaboration is the in-memory result of elaborating a design set.
type Elaboration struct {
	Design *design.Design
	Stats  resolve.Stats
}

// Elaborate runs the core pipeline over already loaded node stores:
// definition table, configurations, instance tree with binds, then late
// binding. Design problems are reported to rep; only API failures and an
// empty design set are returned as errors.
func (e *Engine) Elaborate(ctx context.Context, files []*syntax.FileContent, rep diag.Reporter) (*Elaboration, error) {
	if rep == nil {
		rep = diag.Discard
	}
	s := e.settings

	table, err := design.BuildTable(files,
		design.WithReporter(rep),
		design.WithLogger(e.logger),
		design.WithDefaultNetType(s.DefaultNetType))
	if err != nil {
		return nil, fmt.Errorf("arbor: definition table: %w", err)
	}
	configs := hdlconfig.Build(files, s.Configs,
		hdlconfig.WithReporter(rep),
		hdlconfig.WithLogger(e.logger))

	order, err := elab.ParseArrayOrder(s.ArrayOrder)
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	builder := elab.NewBuilder(table, e.evaluator,
		elab.WithReporter(rep),
		elab.WithLogger(e.logger),
		elab.WithConfigs(configs),
		elab.WithTops(e.activeTops()...),
		elab.WithMaxDepth(s.MaxDepth),
		elab.WithLoopLimit(s.LoopLimit),
		elab.WithArrayOrder(order),
		elab.WithParallel(e.parallelism()))
	d, err := builder.BuildAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}

	stats, err := resolve.New(d,
		resolve.WithReporter(rep),
		resolve.WithLogger(e.logger)).ResolveAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("arbor: resolve: %w", err)
	}
	return &Elaboration{Design: d, Stats: stats}, nil
}

// Result describes one Run.
type Result struct {
	Run *store.Run
	// Design and Diagnostics are nil when Cached is set; the persisted run
	// is then the latest one and can be queried instead.
	Design      *design.Design
	Diagnostics []diag.Diagnostic
	Stats       resolve.Stats
	Cached      bool
}

// Run loads, elaborates and persists the design files at paths as a new
// run. When the design hash matches the latest run, nothing is rebuilt and
// the latest run is returned with Cached set.
func (e *Engine) Run(ctx context.Context, paths []string) (*Result, error) {
	sink := diag.NewSink()
	loaded, err := e.LoadFiles(ctx, paths, sink)
	if err != nil {
		return nil, err
	}

	if !e.force {
		latest, err := e.store.LatestRun()
		if err != nil {
			return nil, fmt.Errorf("arbor: %w", err)
		}
		if latest != nil && latest.DesignHash == loaded.Hash {
			e.logger.Info("design unchanged, reusing run", zap.Int64("run", latest.ID))
			return &Result{Run: latest, Cached: true}, nil
		}
	}

	started := time.Now()
	el, err := e.Elaborate(ctx, loaded.Files, sink)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		DesignHash: loaded.Hash,
		Evaluator:  e.settings.Evaluator,
		StartedAt:  started,
	}
	for _, top := range el.Design.Tops() {
		run.Tops = append(run.Tops, top.Name)
	}
	if _, err := e.store.InsertRun(run); err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	for _, rec := range loaded.Records {
		rec.RunID = run.ID
		if _, err := e.store.InsertFile(rec); err != nil {
			return nil, fmt.Errorf("arbor: %w", err)
		}
	}

	diags := sink.All()
	if err := e.persist(ctx, run.ID, el.Design, diags); err != nil {
		return nil, errors.Join(fmt.Errorf("arbor: persist: %w", err), e.store.DeleteRun(run.ID))
	}
	run.InstanceCount, run.DiagnosticCount = el.Design.Forest.Len(), len(diags)
	if err := e.store.FinishRun(run.ID, run.InstanceCount, run.DiagnosticCount); err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	if e.keepRuns > 0 {
		if err := e.store.PruneRuns(e.keepRuns); err != nil {
			return nil, fmt.Errorf("arbor: %w", err)
		}
	}

	e.logger.Info("run complete",
		zap.Int64("run", run.ID),
		zap.Int("instances", run.InstanceCount),
		zap.Int("diagnostics", run.DiagnosticCount),
		zap.Int("bound", el.Stats.Bound),
		zap.Int("unresolved", el.Stats.Unresolved),
		zap.Duration("elapsed", time.Since(started)))
	return &Result{Run: run, Design: el.Design, Diagnostics: diags, Stats: el.Stats}, nil
}

// RunDirectory runs the design files the settings' patterns match under the
// settings root.
func (e *Engine) RunDirectory(ctx context.Context) (*Result, error) {
	paths, err := e.settings.DesignFiles()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("arbor: no design files under %s", e.settings.Root())
	}
	return e.Run(ctx, paths)
}
