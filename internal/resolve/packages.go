package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/syntax"
)

// Subtrees of a subroutine whose names are constant expressions.
var packageRefStops = []syntax.Kind{syntax.KindRange, syntax.KindParam, syntax.KindLocalParam}

// resolvePackages collects the references inside every package's functions
// and tasks on first use and binds those still open.
func (r *Resolver) resolvePackages(ctx context.Context, stats *Stats) error {
	if r.design.Packages == nil {
		r.design.Packages = r.collectPackages()
	}
	for _, pr := range r.design.Packages {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ref := range pr.Refs {
			if ref.Resolved() {
				continue
			}
			r.ResolveInPackage(pr.Package, ref)
			stats.count(ref)
		}
	}
	return nil
}

func (r *Resolver) collectPackages() []*design.PackageRefs {
	out := []*design.PackageRefs{}
	if r.table == nil {
		return out
	}
	for _, def := range r.table.Definitions() {
		if def.Kind != design.DefPackage {
			continue
		}
		pr := &design.PackageRefs{Package: def}
		for _, src := range def.Sources {
			fc := src.File
			for _, sub := range fc.AllChildren(src.Node, syntax.KindFunction, syntax.KindTask) {
				for _, n := range fc.CollectAll(sub, []syntax.Kind{syntax.KindRef}, packageRefStops, false) {
					pr.Refs = append(pr.Refs, &design.Reference{
						Name:   fc.Name(n),
						File:   fc,
						Node:   n,
						Parent: fc.Parent(n),
						Loc:    fc.Location(n),
					})
				}
			}
		}
		if len(pr.Refs) > 0 {
			out = append(out, pr)
		}
	}
	return out
}

// ResolveInPackage binds a reference made inside a subroutine of pkg: the
// subroutine's own declarations and the package variables, then the
// package's parameters, types, subroutines and imports. Packages hold no
// implicit nets.
func (r *Resolver) ResolveInPackage(pkg *design.Definition, ref *design.Reference) bool {
	if ref.Resolved() {
		return true
	}
	if p, item, ok := strings.Cut(ref.Name, "::"); ok {
		return r.packageItem(ref, p, item)
	}
	if t := r.lexical(ref); t != nil {
		ref.Target = t
		return true
	}
	if pkg.Param(ref.Name) != nil {
		ref.AsParameter = true
		return true
	}
	if t := r.types(pkg, ref.Name); t != nil {
		ref.Target = t
		return true
	}
	r.logger.Debug("package reference unresolved",
		zap.String("package", pkg.Name),
		zap.String("name", ref.Name))
	return false
}
