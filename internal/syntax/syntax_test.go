package syntax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/diag"
)

func sampleFile(t *testing.T, opts ...Option) *FileContent {
	t.Helper()
	sf := File("top.sv",
		N(KindModule, "top",
			N(KindNet, "a").WithAttr("wire").At(2, 3),
			N(KindAlways, "",
				N(KindBlock, "blk",
					N(KindVar, "x").WithAttr("logic"),
					N(KindAssign, "x", E("a", "a")),
				),
			),
			N(KindFunction, "f",
				N(KindBlock, "",
					N(KindAssign, "f", E("1")),
				),
			),
		).At(1, 1),
		N(KindPackage, "pkg").At(20, 1),
	)
	fc, err := Flatten(sf, NewSymbolTable(), opts...)
	require.NoError(t, err)
	return fc
}

// =============================================================================
// Node store
// =============================================================================

func TestFlatten_LinksAndPositions(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)

	units := fc.Units()
	require.Len(t, units, 2)
	top := units[0]
	assert.Equal(t, KindModule, fc.Kind(top))
	assert.Equal(t, "top", fc.Name(top))
	assert.Equal(t, fc.Root(), fc.Parent(top))
	assert.Equal(t, units[1], fc.Sibling(top))

	net := fc.FirstChild(top, KindNet)
	assert.Equal(t, "wire", fc.Attr(net))
	assert.Equal(t, diag.Location{File: "top.sv", Line: 2, Col: 3}, fc.Location(net))

	// Unpositioned nodes inherit from their parent.
	always := fc.FirstChild(top, KindAlways)
	assert.Equal(t, uint32(1), fc.Location(always).Line)
}

func TestFirstChild_IncludesSelf(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)
	top := fc.Units()[0]
	assert.Equal(t, top, fc.FirstChild(top, KindModule))
	assert.Equal(t, InvalidNode, fc.FirstChild(top, KindTask))
	assert.Equal(t, InvalidNode, fc.FirstChild(InvalidNode, KindModule))
}

func TestAllChildren(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)
	top := fc.Units()[0]
	got := fc.AllChildren(top, KindNet, KindFunction)
	require.Len(t, got, 2)
	assert.Equal(t, "a", fc.Name(got[0]))
	assert.Equal(t, "f", fc.Name(got[1]))
}

func TestAncestor(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)
	top := fc.Units()[0]
	assign := fc.Collect(top, KindAssign)
	require.NotEqual(t, InvalidNode, assign)

	id, kind := fc.Ancestor(assign, KindFunction, KindBlock)
	assert.Equal(t, KindBlock, kind)
	assert.Equal(t, "blk", fc.Name(id))

	id, kind = fc.Ancestor(assign, KindModule)
	assert.Equal(t, top, id)
	assert.Equal(t, KindModule, kind)

	id, _ = fc.Ancestor(assign, KindClass)
	assert.Equal(t, InvalidNode, id)
}

func TestCollect_StopKinds(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)
	top := fc.Units()[0]

	first := fc.Collect(top, KindAssign)
	assert.Equal(t, "x", fc.Name(first))

	// Stopping at always skips the first assignment.
	got := fc.Collect(top, KindAssign, KindAlways)
	assert.Equal(t, "f", fc.Name(got))

	assert.Equal(t, InvalidNode, fc.Collect(top, KindAssign, KindAlways, KindFunction))
}

func TestCollectAll_OrderAndFirst(t *testing.T) {
	t.Parallel()
	fc := sampleFile(t)
	top := fc.Units()[0]

	all := fc.CollectAll(top, []Kind{KindAssign, KindRef}, nil, false)
	names := make([]string, len(all))
	for i, id := range all {
		names[i] = fc.Kind(id).String() + ":" + fc.Name(id)
	}
	assert.Equal(t, []string{"assign:x", "ref:a", "assign:f"}, names)

	firstOnly := fc.CollectAll(top, []Kind{KindAssign}, nil, true)
	require.Len(t, firstOnly, 1)
	assert.Equal(t, "x", fc.Name(firstOnly[0]))
}

func TestOutOfRange_ReturnsSentinelAndReports(t *testing.T) {
	t.Parallel()
	sink := diag.NewSink()
	fc := sampleFile(t, WithReporter(sink))

	bad := NodeID(fc.Len() + 10)
	assert.Equal(t, KindSentinel, fc.Kind(bad))
	assert.Equal(t, "", fc.Name(bad))
	assert.Equal(t, InvalidNode, fc.FirstChild(bad, KindModule))
	assert.Nil(t, fc.CollectAll(bad, []Kind{KindRef}, nil, false))

	assert.Equal(t, 4, sink.Count(diag.NodeOutOfRange))
	assert.Equal(t, diag.CategoryInternal, sink.All()[0].Kind.Category())
}

func TestSymbolTable_Interning(t *testing.T) {
	t.Parallel()
	st := NewSymbolTable()
	a := st.Register("a")
	assert.Equal(t, a, st.Register("a"))
	assert.Equal(t, "a", st.Name(a))
	assert.Equal(t, SymbolID(0), st.Register(""))
	_, ok := st.Lookup("b")
	assert.False(t, ok)
	assert.Equal(t, "", st.Name(999))
}

// =============================================================================
// Decoding
// =============================================================================

func TestDecode_JSON(t *testing.T) {
	t.Parallel()
	src := `{"file":"m.sv","nodes":[{"kind":"module","name":"m","line":1,"children":[{"kind":"net","name":"w","attr":"wire"}]}]}`
	sf, err := Decode(strings.NewReader(src), FormatJSON)
	require.NoError(t, err)
	fc, err := Flatten(sf, nil)
	require.NoError(t, err)
	require.Len(t, fc.Units(), 1)
	assert.Equal(t, "w", fc.Name(fc.FirstChild(fc.Units()[0], KindNet)))
}

func TestDecode_YAML(t *testing.T) {
	t.Parallel()
	src := `
file: m.sv
nodes:
  - kind: module
    name: m
    children:
      - kind: instantiation
        name: sub
        children:
          - kind: instance
            name: u0
`
	sf, err := Decode(strings.NewReader(src), FormatYAML)
	require.NoError(t, err)
	fc, err := Flatten(sf, NewSymbolTable())
	require.NoError(t, err)
	inst := fc.Collect(fc.Root(), KindInstance)
	assert.Equal(t, "u0", fc.Name(inst))
}

func TestDecode_RejectsUnknownFieldsAndKinds(t *testing.T) {
	t.Parallel()
	_, err := Decode(strings.NewReader(`{"file":"x","bogus":1}`), FormatJSON)
	require.Error(t, err)

	sf := File("x.sv", SourceNode{Kind: "wormhole", Line: 7})
	_, err = Flatten(sf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `x.sv:7: unknown node kind "wormhole"`)
}

func TestFormatFor(t *testing.T) {
	t.Parallel()
	f, err := FormatFor("a/b.YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = FormatFor("a.sv")
	require.Error(t, err)
}

func TestParseKind_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range KindNames() {
		k, ok := ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, name, k.String())
	}
	_, ok := ParseKind("sentinel")
	assert.False(t, ok)
}
