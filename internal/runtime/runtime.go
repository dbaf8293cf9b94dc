// Package runtime embeds a Risor VM as an alternative constant-expression
// evaluator. Expressions run with the parameters and genvars in scope as
// globals, after an optional prelude script that can define helper
// functions for a project's parameter arithmetic.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// DefaultPrelude is the prelude script name looked up in the scripts source.
const DefaultPrelude = "prelude.risor"

// Runtime evaluates expressions with Risor.
type Runtime struct {
	scriptsDir  string
	fsys        fs.FS
	preludePath string
	logger      *zap.Logger

	preludeOnce sync.Once
	prelude     string
	preludeErr  error
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts from fsys instead of the scripts directory.
// The Risor importer resolves import statements against the same FS.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithPrelude sets the prelude script path, relative to the scripts source.
// An empty path disables the prelude.
func WithPrelude(path string) RuntimeOption {
	return func(r *Runtime) {
		r.preludePath = path
	}
}

// WithLogger sets the logger scripts write to through the log global.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime creates a Runtime reading scripts from scriptsDir. A missing
// prelude is not an error; scriptsDir may be empty.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir:  scriptsDir,
		preludePath: DefaultPrelude,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate implements eval.Evaluator.
func (r *Runtime) Evaluate(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings) (eval.Value, error) {
	if err := ctx.Err(); err != nil {
		return eval.Value{}, err
	}
	text := eval.Text(fc, node)
	if text == "" {
		return eval.Value{}, eval.Unresolved("empty expression")
	}
	prelude, err := r.loadPrelude()
	if err != nil {
		return eval.Value{}, err
	}

	globals := make(map[string]any)
	for name, v := range scope.All() {
		switch v.Kind {
		case eval.KindInt:
			globals[name] = v.Int
		case eval.KindBool:
			globals[name] = v.Bool
		case eval.KindString:
			globals[name] = v.Str
		}
	}

	src := eval.Normalize(text)
	if prelude != "" {
		src = prelude + "\n" + src
	}
	result, err := r.eval(ctx, src, globals)
	if err != nil {
		if ctx.Err() != nil {
			return eval.Value{}, ctx.Err()
		}
		return eval.Value{}, eval.Unresolved("%q: %v", text, err)
	}
	v, ok := fromObject(result)
	if !ok {
		return eval.Value{}, eval.Unresolved("%q evaluated to %s", text, result.Type())
	}
	return v, nil
}

// RunSource executes Risor source with the standard globals plus extra and
// returns the value of its last expression.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	result, err := r.eval(ctx, source, extraGlobals)
	if err != nil {
		return nil, fmt.Errorf("runtime: script <inline>: %w", err)
	}
	return result, nil
}

func (r *Runtime) eval(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}
	return risor.Eval(ctx, source, opts...)
}

// buildImporter returns a Risor importer for the configured script source,
// or nil when there is none.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

func (r *Runtime) loadPrelude() (string, error) {
	r.preludeOnce.Do(func() {
		if r.preludePath == "" || (r.fsys == nil && r.scriptsDir == "") {
			return
		}
		src, err := r.LoadScript(r.preludePath)
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("no prelude script", zap.String("path", r.preludePath))
			return
		}
		r.prelude, r.preludeErr = src, err
	})
	return r.prelude, r.preludeErr
}

// LoadScript reads a .risor file from the configured FS, or from disk
// relative to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to every script.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"clog2": makeClog2Fn(),
		"log":   mustProxy(&logObject{logger: r.logger}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func fromObject(obj object.Object) (eval.Value, bool) {
	switch v := obj.(type) {
	case *object.Int:
		return eval.Int(v.Value()), true
	case *object.Bool:
		return eval.Bool(v.Value()), true
	case *object.String:
		return eval.String(v.Value()), true
	case *object.Float:
		return eval.Int(int64(v.Value())), true
	}
	return eval.Value{}, false
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
