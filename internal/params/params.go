// Package params computes the effective parameter set of one instantiation
// site from the site's #(...) overrides, overrides inherited from a config
// rule and the definition's own defaults.
package params

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// Request describes one instantiation site.
type Request struct {
	Def *design.Definition
	// Site holds the #(...) assignments written at the instantiation.
	Site []design.SiteOverride
	// Inherited holds assignments from the config rule that selected Def.
	Inherited []design.SiteOverride
	// ParentScope is the instantiating scope; site and config overrides are
	// evaluated in it.
	ParentScope *eval.Bindings
	// Path is the hierarchical path of the instance, used in diagnostics.
	Path string
	Loc  diag.Location
}

// Set is the effective parameter binding of one site.
type Set struct {
	// Overrides lists every parameter of the definition in declaration
	// order with its effective value.
	Overrides  []design.ParamOverride
	Overridden map[string]bool
	// Bindings holds the evaluated values; the instance body is elaborated
	// in this scope.
	Bindings *eval.Bindings
}

// Binder evaluates parameter sets. It holds no per-site state, so one
// Binder is shared by every site and every worker.
type Binder struct {
	evaluator eval.Evaluator
	table     *design.Table
	reporter  diag.Reporter
	logger    *zap.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithReporter sets the default diagnostic reporter.
func WithReporter(r diag.Reporter) Option {
	return func(b *Binder) { b.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBinder returns a Binder evaluating with ev. table supplies the
// packages whose parameters a definition imports; it may be nil.
func NewBinder(ev eval.Evaluator, table *design.Table, opts ...Option) *Binder {
	b := &Binder{
		evaluator: ev,
		table:     table,
		reporter:  diag.Discard,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// assignment is a site or config override matched to its declaration.
type assignment struct {
	param *design.Param
	src   design.SiteOverride
}

// Bind computes the parameter set for req, reporting binding diagnostics
// to b's reporter.
func (b *Binder) Bind(ctx context.Context, req Request) (*Set, error) {
	return b.BindTo(ctx, req, b.reporter)
}

// BindTo is Bind with an explicit reporter, for callers that keep one sink
// per worker.
func (b *Binder) BindTo(ctx context.Context, req Request, rep diag.Reporter) (*Set, error) {
	if rep == nil {
		rep = diag.Discard
	}
	set := &Set{Overridden: make(map[string]bool)}
	if req.Def == nil {
		set.Bindings = eval.NewBindings(nil)
		return set, nil
	}

	explicit := b.match(req, req.Site, "instantiation", rep)
	inherited := b.match(req, req.Inherited, "config rule", rep)

	scope := eval.NewBindings(b.packageScope(ctx, req.Def))
	for _, p := range req.Def.Params {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		po := design.ParamOverride{Name: p.Name, Source: design.SourceDefault, IsType: p.IsType, Loc: p.Location()}
		var (
			fc        = p.File
			node      = p.Default
			evalScope = scope
		)
		if a, ok := explicit[p.Name]; ok {
			po.Source, po.Loc = design.SourceExplicit, a.src.Loc
			fc, node, evalScope = a.src.File, a.src.Node, req.ParentScope
		} else if a, ok := inherited[p.Name]; ok {
			po.Source, po.Loc = design.SourceConfig, a.src.Loc
			fc, node, evalScope = a.src.File, a.src.Node, req.ParentScope
		}
		if po.Source != design.SourceDefault {
			set.Overridden[p.Name] = true
		}
		if err := b.value(ctx, &po, fc, node, evalScope); err != nil {
			return nil, err
		}
		if po.Evaluated {
			scope.Set(p.Name, po.Value)
		}
		set.Overrides = append(set.Overrides, po)
	}
	set.Bindings = scope
	b.logger.Debug("parameters bound",
		zap.String("path", req.Path),
		zap.String("definition", req.Def.Name),
		zap.Int("overridden", len(set.Overridden)))
	return set, nil
}

// match pairs each assignment with its declaration. Positional assignments
// follow the order of the overridable parameters.
func (b *Binder) match(req Request, list []design.SiteOverride, origin string, rep diag.Reporter) map[string]assignment {
	if len(list) == 0 {
		return nil
	}
	var positional []*design.Param
	for _, p := range req.Def.Params {
		if !p.Local {
			positional = append(positional, p)
		}
	}
	out := make(map[string]assignment)
	for _, so := range list {
		var p *design.Param
		if so.Name == "" {
			if so.Position >= len(positional) {
				rep.Report(diag.New(diag.UnknownParameter, so.Loc,
					fmt.Sprintf("%s: too many parameter overrides for %s (%d declared)", req.Path, req.Def.Name, len(positional))))
				continue
			}
			p = positional[so.Position]
		} else if p = req.Def.Param(so.Name); p == nil {
			rep.Report(diag.New(diag.UnknownParameter, so.Loc,
				fmt.Sprintf("%s: %s has no parameter %s", req.Path, req.Def.Name, so.Name)))
			continue
		}
		if p.Local {
			rep.Report(diag.New(diag.LocalParamOverride, so.Loc,
				fmt.Sprintf("%s: localparam %s of %s cannot be overridden", req.Path, p.Name, req.Def.Name)))
			continue
		}
		if first, dup := out[p.Name]; dup {
			rep.Report(diag.New(diag.DuplicateOverride, so.Loc,
				fmt.Sprintf("%s: parameter %s overridden more than once by %s", req.Path, p.Name, origin),
				first.src.Loc))
			continue
		}
		if so.Node == syntax.InvalidNode {
			// An empty assignment keeps the default.
			continue
		}
		out[p.Name] = assignment{param: p, src: so}
	}
	return out
}

// value fills po from the expression at node. Unevaluable expressions are
// kept as text; only cancellation is an error.
func (b *Binder) value(ctx context.Context, po *design.ParamOverride, fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings) error {
	if fc == nil || node == syntax.InvalidNode {
		return nil
	}
	po.Expr = eval.Text(fc, node)
	if po.IsType {
		po.Value = eval.Type(eval.TypeHandle{Name: po.Expr, File: fc, Node: node})
		po.Evaluated = true
		return nil
	}
	v, err := b.evaluator.Evaluate(ctx, fc, node, scope)
	switch {
	case err == nil:
		po.Value, po.Evaluated = v, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		b.logger.Debug("parameter left unevaluated",
			zap.String("param", po.Name),
			zap.String("expr", po.Expr),
			zap.Error(err))
	}
	return nil
}

// packageScope binds the parameters of packages def imports. Wildcard
// imports bring every parameter; item imports only the named one.
func (b *Binder) packageScope(ctx context.Context, def *design.Definition) *eval.Bindings {
	if b.table == nil || len(def.Imports) == 0 {
		return nil
	}
	scope := eval.NewBindings(nil)
	for _, imp := range def.Imports {
		pkg := b.table.Lookup(imp.Package)
		if pkg == nil || pkg.Kind != design.DefPackage {
			continue
		}
		vals := b.Defaults(ctx, pkg)
		for _, p := range pkg.Params {
			if imp.Item != "*" && imp.Item != p.Name {
				continue
			}
			if v, ok := vals.Lookup(p.Name); ok {
				scope.Set(p.Name, v)
			}
		}
	}
	return scope
}

// Defaults evaluates def's parameters with no overrides, each default in
// the scope of the parameters before it.
func (b *Binder) Defaults(ctx context.Context, def *design.Definition) *eval.Bindings {
	scope := eval.NewBindings(nil)
	for _, p := range def.Params {
		po := design.ParamOverride{Name: p.Name, IsType: p.IsType}
		if err := b.value(ctx, &po, p.File, p.Default, scope); err != nil {
			break
		}
		if po.Evaluated {
			scope.Set(p.Name, po.Value)
		}
	}
	return scope
}
