// Package resolve completes the instance forest by binding the references
// the builder left open. Each reference is searched for outward from its
// lexical position: subroutine, loop and block declarations first, then
// the enclosing instance scopes, parameters, types and imports, and as a
// last resort an implicit net.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// maxAliasDepth bounds typedef alias chains.
const maxAliasDepth = 16

// Stats summarizes one ResolveAll run.
type Stats struct {
	Bound      int
	Parameters int
	Implicit   int
	Unresolved int
}

func (s *Stats) count(ref *design.Reference) {
	switch {
	case ref.AsParameter:
		s.Parameters++
	case ref.Target == nil:
		s.Unresolved++
	case ref.Target.Kind == design.TargetImplicitNet:
		s.Implicit++
		s.Bound++
	default:
		s.Bound++
	}
}

// Resolver binds references in place. It only ever fills Reference.Target
// or Reference.AsParameter and adds implicit nets.
type Resolver struct {
	design   *design.Design
	forest   *design.Forest
	table    *design.Table
	reporter diag.Reporter
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReporter sets where resolution diagnostics go.
func WithReporter(r diag.Reporter) Option {
	return func(res *Resolver) { res.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(res *Resolver) {
		if l != nil {
			res.logger = l
		}
	}
}

// New returns a Resolver over an elaborated design.
func New(d *design.Design, opts ...Option) *Resolver {
	r := &Resolver{
		design:   d,
		forest:   d.Forest,
		table:    d.Table,
		reporter: diag.Discard,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAll resolves every open reference of the packages, then of the
// forest in pre-order.
func (r *Resolver) ResolveAll(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := r.resolvePackages(ctx, &stats); err != nil {
		return stats, err
	}
	var err error
	r.forest.Walk(func(inst *design.Instance) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		for _, ref := range inst.Netlist.Unresolved() {
			r.Resolve(inst, ref)
			stats.count(ref)
		}
		return true
	})
	if err != nil {
		return stats, err
	}
	r.logger.Debug("references resolved",
		zap.Int("bound", stats.Bound),
		zap.Int("parameters", stats.Parameters),
		zap.Int("implicit", stats.Implicit),
		zap.Int("unresolved", stats.Unresolved))
	return stats, nil
}

// Resolve binds ref, which belongs to inst's netlist, and reports whether
// it is resolved afterwards.
func (r *Resolver) Resolve(inst *design.Instance, ref *design.Reference) bool {
	if ref.Resolved() {
		return true
	}
	if pkg, item, ok := strings.Cut(ref.Name, "::"); ok {
		return r.packageItem(ref, pkg, item)
	}
	if strings.Contains(ref.Name, ".") {
		return r.hierarchical(inst, ref)
	}
	if t := r.lexical(ref); t != nil {
		ref.Target = t
		return true
	}
	if r.instanceScopes(inst, ref) {
		return true
	}
	scope := r.forest.EnclosingScope(inst.ID)
	if scope == nil || scope.Def == nil {
		return false
	}
	if t := r.types(scope.Def, ref.Name); t != nil {
		ref.Target = t
		return true
	}
	if t := r.enumConstants(inst, scope.Def, ref); t != nil {
		ref.Target = t
		return true
	}
	return r.implicitNet(scope, ref)
}

// packageItem resolves pkg::name by direct lookup.
func (r *Resolver) packageItem(ref *design.Reference, pkg, name string) bool {
	it, ok := r.table.PackageItem(pkg, name)
	if !ok {
		r.reporter.Report(diag.New(diag.UnresolvedPackageItem, ref.Loc,
			fmt.Sprintf("%s::%s is not declared", pkg, name)))
		return false
	}
	ref.Target = &design.Target{Kind: design.TargetPackageItem, Name: name, Scope: pkg, Loc: it.Loc}
	if it.Kind == design.ItemParameter {
		ref.AsParameter = true
	}
	return true
}

// hierarchical resolves a dotted name downward from the enclosing scopes:
// the leading segments name child instances, the last a net or variable.
func (r *Resolver) hierarchical(inst *design.Instance, ref *design.Reference) bool {
	segs := design.SplitPath(ref.Name)
	for cur := inst; cur != nil; cur = r.forest.Get(cur.Parent) {
		target := cur
		for _, seg := range segs[:len(segs)-1] {
			if target = r.forest.ChildByName(target.ID, seg); target == nil {
				break
			}
		}
		if target == nil {
			continue
		}
		if t := signal(r.forest.Path(target.ID), target, segs[len(segs)-1]); t != nil {
			ref.Target = t
			return true
		}
	}
	r.logger.Debug("hierarchical reference unresolved", zap.String("name", ref.Name))
	return false
}

// lexical searches the subroutines, loops and blocks enclosing ref,
// innermost first, up to the instance body.
func (r *Resolver) lexical(ref *design.Reference) *design.Target {
	fc := ref.File
	for cur := ref.Parent; cur != syntax.InvalidNode; cur = fc.Parent(cur) {
		switch kind := fc.Kind(cur); {
		case kind == syntax.KindFunction || kind == syntax.KindTask:
			if t := r.subroutine(fc, cur, ref.Name); t != nil {
				return t
			}
		case kind == syntax.KindFor:
			if t := loopVar(fc, cur, ref.Name); t != nil {
				return t
			}
		case kind == syntax.KindBlock || kind == syntax.KindFork:
			if t := block(fc, cur, ref.Name); t != nil {
				return t
			}
		case kind.IsDesignUnit(), kind == syntax.KindGenerateBlock, kind == syntax.KindSourceText:
			return nil
		}
	}
	return nil
}

// subroutine checks a function or task: the function's return variable,
// IO declarations, local variables, parameters, then the variables of the
// package owning it.
func (r *Resolver) subroutine(fc *syntax.FileContent, node syntax.NodeID, name string) *design.Target {
	sub := fc.Name(node)
	if fc.Kind(node) == syntax.KindFunction && sub == name {
		return &design.Target{Kind: design.TargetReturn, Name: name, Scope: sub, Loc: fc.Location(node)}
	}
	if t := declared(fc, node, name, sub, syntax.KindPort, design.TargetIODecl); t != nil {
		return t
	}
	if t := declared(fc, node, name, sub, syntax.KindVar, design.TargetLocalVar); t != nil {
		return t
	}
	if t := declared(fc, node, name, sub, syntax.KindParam, design.TargetLocalParam); t != nil {
		return t
	}
	if t := declared(fc, node, name, sub, syntax.KindLocalParam, design.TargetLocalParam); t != nil {
		return t
	}
	unit, kind := fc.Ancestor(node, syntax.KindPackage, syntax.KindModule, syntax.KindInterface, syntax.KindProgram, syntax.KindClass)
	if kind != syntax.KindPackage {
		return nil
	}
	pkg := r.table.Lookup(fc.Name(unit))
	if pkg == nil {
		return nil
	}
	if it, ok := pkg.Item(name); ok && (it.Kind == design.ItemVariable || it.Kind == design.ItemNet) {
		return &design.Target{Kind: design.TargetPackageItem, Name: name, Scope: pkg.Name, Loc: it.Loc}
	}
	return nil
}

// declared finds a direct child of node of kind named name.
func declared(fc *syntax.FileContent, node syntax.NodeID, name, scope string, kind syntax.Kind, target design.TargetKind) *design.Target {
	for _, c := range fc.AllChildren(node, kind) {
		if fc.Name(c) == name {
			return &design.Target{Kind: target, Name: name, Scope: scope, Loc: fc.Location(c)}
		}
	}
	return nil
}

// loopVar matches the left-hand side of a for loop's init statement.
func loopVar(fc *syntax.FileContent, node syntax.NodeID, name string) *design.Target {
	for c := fc.Child(node); c != syntax.InvalidNode; c = fc.Sibling(c) {
		k := fc.Kind(c)
		if k != syntax.KindAssign && k != syntax.KindVar {
			break
		}
		if fc.Name(c) == name {
			return &design.Target{Kind: design.TargetLoopVar, Name: name, Scope: "for", Loc: fc.Location(c)}
		}
	}
	return nil
}

// block checks a block or fork: local variables, parameters, then the
// left-hand sides of its immediate assignments.
func block(fc *syntax.FileContent, node syntax.NodeID, name string) *design.Target {
	scope := fc.Name(node)
	if scope == "" {
		scope = fc.Kind(node).String()
	}
	if t := declared(fc, node, name, scope, syntax.KindVar, design.TargetLocalVar); t != nil {
		return t
	}
	if t := declared(fc, node, name, scope, syntax.KindParam, design.TargetLocalParam); t != nil {
		return t
	}
	if t := declared(fc, node, name, scope, syntax.KindLocalParam, design.TargetLocalParam); t != nil {
		return t
	}
	return declared(fc, node, name, scope, syntax.KindAssign, design.TargetAssignLHS)
}

// instanceScopes searches inst and the generate scopes above it up to the
// enclosing module, interface or program: nets, then variables, then
// parameters. A parameter match marks the reference and leaves it unbound.
func (r *Resolver) instanceScopes(inst *design.Instance, ref *design.Reference) bool {
	for cur := inst; cur != nil; cur = r.forest.Get(cur.Parent) {
		if t := signal(r.forest.Path(cur.ID), cur, ref.Name); t != nil {
			ref.Target = t
			return true
		}
		if cur.IsScopeLike() || cur.Kind == design.InstUndefined {
			break
		}
	}
	for cur := inst; cur != nil; cur = r.forest.Get(cur.Parent) {
		if isParameter(cur, ref.Name) {
			ref.AsParameter = true
			return true
		}
		if cur.IsScopeLike() || cur.Kind == design.InstUndefined {
			break
		}
	}
	return false
}

// signal finds a net (scalar, then arrayed) or a variable (exact, then
// qualified by the definition name) of one instance.
func signal(path string, inst *design.Instance, name string) *design.Target {
	nl := inst.Netlist
	if net := nl.Net(name); net != nil {
		return &design.Target{Kind: design.TargetNet, Name: name, Scope: path, Net: net, Loc: net.Loc}
	}
	v := nl.Variable(name)
	if v == nil && inst.Def != nil {
		v = nl.Variable(inst.Def.Name + "::" + name)
	}
	if v != nil {
		return &design.Target{Kind: design.TargetVariable, Name: name, Scope: path, Variable: v, Loc: v.Loc}
	}
	return nil
}

func isParameter(inst *design.Instance, name string) bool {
	if inst.Scope.Local(name) {
		return true
	}
	if _, ok := inst.Param(name); ok {
		return true
	}
	return inst.IsScopeLike() && inst.Def != nil && inst.Def.Param(name) != nil
}

// types checks the definition's typedefs, enum constants, subroutines and
// names imported from packages.
func (r *Resolver) types(def *design.Definition, name string) *design.Target {
	it, ok := def.Item(name)
	if ok {
		switch it.Kind {
		case design.ItemTypedef:
			return &design.Target{Kind: design.TargetTypespec, Name: name, Scope: def.Name, Loc: it.Loc}
		case design.ItemEnumConst:
			return &design.Target{Kind: design.TargetEnumConst, Name: name, Scope: def.Name, Loc: it.Loc}
		case design.ItemFunction, design.ItemTask:
			return &design.Target{Kind: design.TargetSubroutine, Name: name, Scope: def.Name, Loc: it.Loc}
		}
	}
	for _, imp := range def.Imports {
		if imp.Item != "*" && imp.Item != name {
			continue
		}
		if it, ok := r.table.PackageItem(imp.Package, name); ok {
			return &design.Target{Kind: design.TargetImportedItem, Name: name, Scope: imp.Package, Loc: it.Loc}
		}
	}
	return nil
}

// enumConstants searches the enum typedefs of the file holding ref,
// following alias chains, then the enum types of variables in scope.
func (r *Resolver) enumConstants(inst *design.Instance, def *design.Definition, ref *design.Reference) *design.Target {
	tds := r.table.FileTypedefs(ref.File)
	byName := make(map[string]*design.Typedef, len(tds))
	for _, td := range tds {
		if _, dup := byName[td.Name]; !dup {
			byName[td.Name] = td
		}
	}
	for _, td := range tds {
		if enum := r.followAlias(td, byName, def); enum != nil && enum.HasEnumConst(ref.Name) {
			return &design.Target{Kind: design.TargetEnumConst, Name: ref.Name, Scope: enum.Name, Loc: enum.Location()}
		}
	}
	for cur := inst; cur != nil; cur = r.forest.Get(cur.Parent) {
		for _, v := range cur.Netlist.Variables {
			td := byName[v.Type]
			if td == nil {
				td = def.Typedefs[v.Type]
			}
			if td == nil {
				continue
			}
			if enum := r.followAlias(td, byName, def); enum != nil && enum.HasEnumConst(ref.Name) {
				return &design.Target{Kind: design.TargetEnumConst, Name: ref.Name, Scope: enum.Name, Loc: enum.Location()}
			}
		}
		if cur.IsScopeLike() {
			break
		}
	}
	return nil
}

// followAlias walks td's alias chain to the typedef declaring the enum.
// Aliases resolve through the file, the definition and pkg::name lookups.
func (r *Resolver) followAlias(td *design.Typedef, byName map[string]*design.Typedef, def *design.Definition) *design.Typedef {
	for range maxAliasDepth {
		if td == nil || len(td.EnumConsts) > 0 || td.Alias == "" {
			return td
		}
		next := byName[td.Alias]
		if next == nil {
			next = def.Typedefs[td.Alias]
		}
		if next == nil {
			if pkg, name, ok := strings.Cut(td.Alias, "::"); ok {
				if p := r.table.Lookup(pkg); p != nil {
					next = p.Typedefs[name]
				}
			}
		}
		td = next
	}
	return nil
}

// implicitNet creates a net of the default net type at scope, or reports
// the reference when implicit nets are disabled.
func (r *Resolver) implicitNet(scope *design.Instance, ref *design.Reference) bool {
	if !scope.Def.ImplicitNetsAllowed() {
		r.reporter.Report(diag.New(diag.IllegalImplicitNet, ref.Loc,
			fmt.Sprintf("%s: %s is not declared and implicit nets are disabled", r.forest.Path(scope.ID), ref.Name)))
		return false
	}
	net := scope.Netlist.AddNet(&design.Net{
		Name:     ref.Name,
		NetType:  scope.Def.DefaultNetType,
		Implicit: true,
		Loc:      ref.Loc,
	})
	ref.Target = &design.Target{Kind: design.TargetImplicitNet, Name: ref.Name, Scope: r.forest.Path(scope.ID), Net: net, Loc: net.Loc}
	return true
}
