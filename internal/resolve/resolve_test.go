package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/elab"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// =============================================================================
// Fixtures
// =============================================================================

type resolved struct {
	design *design.Design
	sink   *diag.Sink
	stats  Stats
}

func resolveFiles(t *testing.T, files ...*syntax.SourceFile) resolved {
	t.Helper()
	st := syntax.NewSymbolTable()
	var fcs []*syntax.FileContent
	for _, f := range files {
		fc, err := syntax.Flatten(f, st)
		require.NoError(t, err)
		fcs = append(fcs, fc)
	}
	sink := diag.NewSink()
	table, err := design.BuildTable(fcs, design.WithReporter(sink), design.WithDefaultNetType("wire"))
	require.NoError(t, err)
	d, err := elab.NewBuilder(table, eval.NewHCL(), elab.WithReporter(sink)).BuildAll(context.Background())
	require.NoError(t, err)
	stats, err := New(d, WithReporter(sink)).ResolveAll(context.Background())
	require.NoError(t, err)
	return resolved{design: d, sink: sink, stats: stats}
}

func resolveUnits(t *testing.T, nodes ...syntax.SourceNode) resolved {
	t.Helper()
	return resolveFiles(t, syntax.File("design.sv", nodes...))
}

// ref returns the nth reference named name held by the instance at path.
func (r resolved) ref(t *testing.T, path, name string, nth int) *design.Reference {
	t.Helper()
	inst := r.design.Forest.Lookup(path)
	require.NotNil(t, inst, "instance %s", path)
	for _, ref := range inst.Netlist.Refs {
		if ref.Name != name {
			continue
		}
		if nth == 0 {
			return ref
		}
		nth--
	}
	t.Fatalf("no reference %s in %s", name, path)
	return nil
}

func requireTarget(t *testing.T, ref *design.Reference, kind design.TargetKind, scope string) {
	t.Helper()
	require.NotNil(t, ref.Target, "reference %s is unbound", ref.Name)
	assert.Equal(t, kind, ref.Target.Kind, "reference %s", ref.Name)
	assert.Equal(t, scope, ref.Target.Scope, "reference %s", ref.Name)
}

func assign(expr string, refs ...string) syntax.SourceNode {
	return syntax.N(syntax.KindContAssign, "", syntax.E(expr, refs...))
}

func stmt(expr string, refs ...string) syntax.SourceNode {
	return syntax.N(syntax.KindStmt, "", syntax.E(expr, refs...))
}

func netsNamed(inst *design.Instance, name string) []*design.Net {
	var out []*design.Net
	for _, n := range inst.Netlist.Nets {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

// =============================================================================
// Lexical scopes
// =============================================================================

func TestResolve_BlockShadowsModuleNet(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindNet, "x"),
		syntax.N(syntax.KindAlways, "",
			stmt("x", "x"),
			syntax.N(syntax.KindBlock, "blk",
				syntax.N(syntax.KindVar, "x").WithAttr("logic"),
				stmt("x + 1", "x"),
			),
		),
	))
	outer := r.ref(t, "M", "x", 0)
	requireTarget(t, outer, design.TargetNet, "M")
	inner := r.ref(t, "M", "x", 1)
	requireTarget(t, inner, design.TargetLocalVar, "blk")
	assert.Zero(t, r.sink.Len())
}

func TestResolve_Subroutine(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindNet, "x"),
		syntax.N(syntax.KindFunction, "add",
			syntax.N(syntax.KindPort, "a").WithAttr("input"),
			syntax.N(syntax.KindVar, "tmp"),
			stmt("add = a + tmp + x", "add", "a", "tmp", "x"),
		),
		assign("add(x)", "add", "x"),
	))
	requireTarget(t, r.ref(t, "M", "add", 0), design.TargetReturn, "add")
	requireTarget(t, r.ref(t, "M", "a", 0), design.TargetIODecl, "add")
	requireTarget(t, r.ref(t, "M", "tmp", 0), design.TargetLocalVar, "add")
	requireTarget(t, r.ref(t, "M", "x", 0), design.TargetNet, "M")
	requireTarget(t, r.ref(t, "M", "add", 1), design.TargetSubroutine, "M")
}

func TestResolve_LoopVariable(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindVar, "mem").WithAttr("logic"),
		syntax.N(syntax.KindInitial, "",
			syntax.N(syntax.KindFor, "",
				syntax.N(syntax.KindAssign, "i", syntax.E("0")),
				syntax.E("i < 4", "i"),
				syntax.E("i + 1", "i"),
				stmt("mem[i] = 0", "mem", "i"),
			),
		),
	))
	for n := range 3 {
		requireTarget(t, r.ref(t, "M", "i", n), design.TargetLoopVar, "for")
	}
	requireTarget(t, r.ref(t, "M", "mem", 0), design.TargetVariable, "M")
}

// =============================================================================
// Instance scopes and parameters
// =============================================================================

func TestResolve_ParametersAndGenvars(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindParam, "W", syntax.E("4")),
		syntax.N(syntax.KindNet, "x"),
		assign("W + 1", "W"),
		syntax.N(syntax.KindGenerateFor, "i",
			syntax.E("0"), syntax.E("i < 2", "i"), syntax.E("i++", "i"),
			syntax.N(syntax.KindGenerateBlock, "g",
				assign("x[i]", "x", "i"),
			),
		),
	))
	w := r.ref(t, "M", "W", 0)
	assert.True(t, w.AsParameter)
	assert.Nil(t, w.Target)

	i := r.ref(t, "M.g[1]", "i", 0)
	assert.True(t, i.AsParameter)
	requireTarget(t, r.ref(t, "M.g[1]", "x", 0), design.TargetNet, "M")
	assert.Equal(t, 3, r.stats.Parameters)
	assert.Equal(t, 2, r.stats.Bound)
	assert.Zero(t, r.stats.Unresolved)
}

func TestResolve_Hierarchical(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t,
		syntax.N(syntax.KindModule, "top",
			syntax.N(syntax.KindInstantiation, "N", syntax.N(syntax.KindInstance, "u")),
			assign("u.n1", "u.n1"),
			assign("u.missing", "u.missing"),
		),
		syntax.N(syntax.KindModule, "N", syntax.N(syntax.KindNet, "n1")),
	)
	hit := r.ref(t, "top", "u.n1", 0)
	requireTarget(t, hit, design.TargetNet, "top.u")
	assert.Same(t, r.design.Forest.Lookup("top.u").Netlist.Net("n1"), hit.Target.Net)

	assert.Nil(t, r.ref(t, "top", "u.missing", 0).Target)
	assert.Equal(t, 1, r.stats.Unresolved)
	// Dotted names never become implicit nets.
	assert.Empty(t, netsNamed(r.design.Forest.Lookup("top"), "u.missing"))
}

// =============================================================================
// Packages, imports and enums
// =============================================================================

func pkg() syntax.SourceNode {
	return syntax.N(syntax.KindPackage, "pkg",
		syntax.N(syntax.KindParam, "WIDTH", syntax.E("8")),
		syntax.N(syntax.KindVar, "counter").WithAttr("int"),
		syntax.N(syntax.KindTypedef, "color_t",
			syntax.N(syntax.KindEnumConst, "RED"),
			syntax.N(syntax.KindEnumConst, "GREEN"),
		),
	)
}

func TestResolve_PackageItems(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, pkg(), syntax.N(syntax.KindModule, "M",
		assign("pkg::counter", "pkg::counter"),
		assign("pkg::WIDTH", "pkg::WIDTH"),
		assign("pkg::nope", "pkg::nope"),
	))
	counter := r.ref(t, "M", "pkg::counter", 0)
	requireTarget(t, counter, design.TargetPackageItem, "pkg")
	assert.False(t, counter.AsParameter)

	width := r.ref(t, "M", "pkg::WIDTH", 0)
	requireTarget(t, width, design.TargetPackageItem, "pkg")
	assert.True(t, width.AsParameter)

	assert.Nil(t, r.ref(t, "M", "pkg::nope", 0).Target)
	assert.Equal(t, 1, r.sink.Count(diag.UnresolvedPackageItem))
}

func TestResolve_PackageSubroutine(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t,
		syntax.N(syntax.KindPackage, "pkg",
			syntax.N(syntax.KindParam, "STEP", syntax.E("2")),
			syntax.N(syntax.KindVar, "counter").WithAttr("int"),
			syntax.N(syntax.KindVar, "pkg::total").WithAttr("int"),
			syntax.N(syntax.KindFunction, "bump",
				syntax.N(syntax.KindPort, "by").WithAttr("input"),
				stmt("counter = counter + by + STEP", "counter", "by", "STEP"),
				stmt("bump = total + missing", "bump", "total", "missing"),
			),
		),
		syntax.N(syntax.KindModule, "M"),
	)
	require.Len(t, r.design.Packages, 1)
	pr := r.design.Packages[0]
	assert.Equal(t, "pkg", pr.Package.Name)

	byName := make(map[string]*design.Reference)
	for _, ref := range pr.Refs {
		byName[ref.Name] = ref
	}
	require.Len(t, byName, 6)
	requireTarget(t, byName["counter"], design.TargetPackageItem, "pkg")
	requireTarget(t, byName["total"], design.TargetPackageItem, "pkg")
	requireTarget(t, byName["by"], design.TargetIODecl, "bump")
	requireTarget(t, byName["bump"], design.TargetReturn, "bump")
	assert.True(t, byName["STEP"].AsParameter)
	assert.False(t, byName["missing"].Resolved())

	assert.Equal(t, Stats{Bound: 4, Parameters: 1, Unresolved: 1}, r.stats)

	// A second pass leaves the package references alone.
	stats, err := New(r.design).ResolveAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Unresolved: 1}, stats)
	assert.Len(t, r.design.Packages[0].Refs, 6)
}

func TestResolve_Imports(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, pkg(), syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindImport, "pkg::*"),
		assign("counter", "counter"),
	))
	requireTarget(t, r.ref(t, "M", "counter", 0), design.TargetImportedItem, "pkg")
	assert.Empty(t, netsNamed(r.design.Forest.Lookup("M"), "counter"))
}

func TestResolve_EnumConstantThroughAlias(t *testing.T) {
	t.Parallel()
	r := resolveFiles(t,
		syntax.File("pkg.sv", pkg()),
		syntax.File("top.sv",
			syntax.N(syntax.KindTypedef, "my_color").WithAttr("pkg::color_t"),
			syntax.N(syntax.KindTypedef, "paint_t").WithAttr("my_color"),
			syntax.N(syntax.KindModule, "M",
				syntax.N(syntax.KindVar, "c").WithAttr("paint_t"),
				assign("c == GREEN", "c", "GREEN"),
			),
		),
	)
	requireTarget(t, r.ref(t, "M", "GREEN", 0), design.TargetEnumConst, "color_t")
	requireTarget(t, r.ref(t, "M", "c", 0), design.TargetVariable, "M")
	assert.Zero(t, r.sink.Len())
}

func TestResolve_AliasCycleTerminates(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t,
		syntax.N(syntax.KindTypedef, "a_t").WithAttr("b_t"),
		syntax.N(syntax.KindTypedef, "b_t").WithAttr("a_t"),
		syntax.N(syntax.KindModule, "M",
			syntax.N(syntax.KindDefaultNetType, "").WithAttr("none"),
			syntax.N(syntax.KindVar, "v").WithAttr("a_t"),
			assign("v == LOOP", "v", "LOOP"),
		),
	)
	assert.Nil(t, r.ref(t, "M", "LOOP", 0).Target)
	assert.Equal(t, 1, r.sink.Count(diag.IllegalImplicitNet))
}

// =============================================================================
// Implicit nets
// =============================================================================

func TestResolve_ImplicitNet(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindNet, "a"),
		assign("a | y", "a", "y"),
		assign("y", "y"),
	))
	m := r.design.Forest.Lookup("M")
	nets := netsNamed(m, "y")
	require.Len(t, nets, 1)
	assert.True(t, nets[0].Implicit)
	assert.Equal(t, "wire", nets[0].NetType)

	first := r.ref(t, "M", "y", 0)
	requireTarget(t, first, design.TargetImplicitNet, "M")
	second := r.ref(t, "M", "y", 1)
	require.NotNil(t, second.Target)
	assert.Same(t, nets[0], second.Target.Net)

	assert.Equal(t, 1, r.stats.Implicit)
	assert.Zero(t, r.sink.Len())
}

func TestResolve_ImplicitNetDisabled(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindDefaultNetType, "").WithAttr("none"),
		assign("y", "y"),
	))
	assert.Empty(t, netsNamed(r.design.Forest.Lookup("M"), "y"))
	assert.Nil(t, r.ref(t, "M", "y", 0).Target)
	assert.Equal(t, 1, r.sink.Count(diag.IllegalImplicitNet))
	assert.Equal(t, 1, r.stats.Unresolved)
}

func TestResolve_ImplicitNetInGenerateScope(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindGenerateIf, "",
			syntax.E("1"),
			syntax.N(syntax.KindGenerateBlock, "g", assign("z", "z")),
		),
	))
	requireTarget(t, r.ref(t, "M.g", "z", 0), design.TargetImplicitNet, "M")
	assert.Len(t, netsNamed(r.design.Forest.Lookup("M"), "z"), 1)
	assert.Empty(t, netsNamed(r.design.Forest.Lookup("M.g"), "z"))
}

// =============================================================================
// Driver
// =============================================================================

func TestResolveAll_LeavesBoundReferences(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M",
		syntax.N(syntax.KindNet, "a"),
		assign("a", "a"),
	))
	ref := r.ref(t, "M", "a", 0)
	before := ref.Target
	require.NotNil(t, before)

	stats, err := New(r.design).ResolveAll(context.Background())
	require.NoError(t, err)
	assert.Same(t, before, ref.Target)
	assert.Equal(t, Stats{}, stats)
}

func TestResolveAll_Canceled(t *testing.T) {
	t.Parallel()
	r := resolveUnits(t, syntax.N(syntax.KindModule, "M"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(r.design).ResolveAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
