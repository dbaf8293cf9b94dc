package generate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// construct flattens a module holding node and returns the construct's id.
func construct(t *testing.T, node syntax.SourceNode) (*syntax.FileContent, syntax.NodeID) {
	t.Helper()
	fc, err := syntax.Flatten(syntax.File("g.sv", syntax.N(syntax.KindModule, "m", node)), nil)
	require.NoError(t, err)
	mod := fc.Units()[0]
	return fc, fc.Child(mod)
}

func expand(t *testing.T, node syntax.SourceNode, scope *eval.Bindings, opts ...Option) ([]Scope, *diag.Sink) {
	t.Helper()
	fc, id := construct(t, node)
	sink := diag.NewSink()
	opts = append(opts, WithReporter(sink))
	scopes, err := NewExpander(eval.NewHCL(), opts...).Expand(context.Background(), fc, id, scope, 1)
	require.NoError(t, err)
	return scopes, sink
}

func names(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = s.Name
	}
	return out
}

func withParams(kv map[string]int64) *eval.Bindings {
	b := eval.NewBindings(nil)
	for k, v := range kv {
		b.Set(k, eval.Int(v))
	}
	return b
}

// =============================================================================
// generate-if
// =============================================================================

func TestExpand_If(t *testing.T) {
	t.Parallel()
	node := syntax.N(syntax.KindGenerateIf, "",
		syntax.E("W > 4", "W"),
		syntax.N(syntax.KindGenerateBlock, "wide"),
		syntax.N(syntax.KindGenerateBlock, ""),
	)

	scopes, sink := expand(t, node, withParams(map[string]int64{"W": 8}))
	assert.Equal(t, []string{"wide"}, names(scopes))
	assert.Equal(t, KindIf, scopes[0].Kind)
	assert.Zero(t, sink.Len())

	scopes, _ = expand(t, node, withParams(map[string]int64{"W": 2}))
	assert.Equal(t, []string{"genblk1"}, names(scopes))
}

func TestExpand_IfFalseWithoutElse(t *testing.T) {
	t.Parallel()
	scopes, sink := expand(t, syntax.N(syntax.KindGenerateIf, "",
		syntax.E("0"),
		syntax.N(syntax.KindGenerateBlock, "never"),
	), nil)
	assert.Empty(t, scopes)
	assert.Zero(t, sink.Len())
}

func TestExpand_IfUntakenBranchNeverEvaluated(t *testing.T) {
	t.Parallel()
	var seen []string
	ev := eval.Func(func(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings) (eval.Value, error) {
		seen = append(seen, eval.Text(fc, node))
		return eval.NewHCL().Evaluate(ctx, fc, node, scope)
	})
	fc, id := construct(t, syntax.N(syntax.KindGenerateIf, "",
		syntax.E("1"),
		syntax.N(syntax.KindGenerateBlock, "a"),
		syntax.N(syntax.KindGenerateIf, "",
			syntax.E("undefined_param", "undefined_param"),
			syntax.N(syntax.KindGenerateBlock, "b"),
		),
	))
	sink := diag.NewSink()
	scopes, err := NewExpander(ev, WithReporter(sink)).Expand(context.Background(), fc, id, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(scopes))
	assert.Equal(t, []string{"1"}, seen)
	assert.Zero(t, sink.Len())
}

func TestExpand_ElseIfChain(t *testing.T) {
	t.Parallel()
	scopes, _ := expand(t, syntax.N(syntax.KindGenerateIf, "",
		syntax.E("MODE == 0", "MODE"),
		syntax.N(syntax.KindGenerateBlock, "zero"),
		syntax.N(syntax.KindGenerateIf, "",
			syntax.E("MODE == 1", "MODE"),
			syntax.N(syntax.KindGenerateBlock, "one"),
			syntax.N(syntax.KindGenerateBlock, "other"),
		),
	), withParams(map[string]int64{"MODE": 1}))
	assert.Equal(t, []string{"one"}, names(scopes))
}

func TestExpand_IfUnresolvedCondition(t *testing.T) {
	t.Parallel()
	scopes, sink := expand(t, syntax.N(syntax.KindGenerateIf, "",
		syntax.E("NOPE", "NOPE"),
		syntax.N(syntax.KindGenerateBlock, "a"),
	), nil)
	assert.Empty(t, scopes)
	assert.Equal(t, 1, sink.Count(diag.GenerateCondition))
}

// =============================================================================
// generate-for
// =============================================================================

func TestExpand_For(t *testing.T) {
	t.Parallel()
	scopes, sink := expand(t, syntax.N(syntax.KindGenerateFor, "i",
		syntax.E("0"),
		syntax.E("i < N", "i", "N"),
		syntax.E("i++", "i"),
		syntax.N(syntax.KindGenerateBlock, "lane"),
	), withParams(map[string]int64{"N": 3}))

	require.Equal(t, []string{"lane[0]", "lane[1]", "lane[2]"}, names(scopes))
	for i, s := range scopes {
		assert.Equal(t, KindFor, s.Kind)
		assert.Equal(t, "i", s.Genvar)
		assert.Equal(t, int64(i), s.Index)
		v, ok := s.Bindings.Lookup("i")
		require.True(t, ok)
		assert.Equal(t, eval.Int(int64(i)), v)
		n, ok := s.Bindings.Lookup("N")
		require.True(t, ok)
		assert.Equal(t, eval.Int(3), n)
	}
	assert.Zero(t, sink.Len())
}

func TestExpand_ForSteps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		init string
		cond string
		step string
		want []string
	}{
		{name: "plus equals", init: "0", cond: "i < 6", step: "i += 2", want: []string{"genblk1[0]", "genblk1[2]", "genblk1[4]"}},
		{name: "decrement", init: "2", cond: "i >= 0", step: "i--", want: []string{"genblk1[2]", "genblk1[1]", "genblk1[0]"}},
		{name: "expression", init: "1", cond: "i < 10", step: "i * 3", want: []string{"genblk1[1]", "genblk1[3]", "genblk1[9]"}},
		{name: "assignment", init: "0", cond: "i < N", step: "i = i + 1", want: []string{"genblk1[0]", "genblk1[1]", "genblk1[2]", "genblk1[3]"}},
		{name: "assignment without spaces", init: "0", cond: "i<N", step: "i=i+2", want: []string{"genblk1[0]", "genblk1[2]"}},
		{name: "compound by parameter", init: "1", cond: "i <= 8", step: "i *= N/2", want: []string{"genblk1[1]", "genblk1[2]", "genblk1[4]", "genblk1[8]"}},
		{name: "plus equals parameter", init: "0", cond: "i < 2*N", step: "i += N", want: []string{"genblk1[0]", "genblk1[4]"}},
		{name: "no iterations", init: "5", cond: "i < 5", step: "i++", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scopes, sink := expand(t, syntax.N(syntax.KindGenerateFor, "i",
				syntax.E(tt.init),
				syntax.E(tt.cond, "i"),
				syntax.E(tt.step, "i"),
				syntax.N(syntax.KindGenerateBlock, ""),
			), withParams(map[string]int64{"N": 4}))
			assert.Equal(t, tt.want, names(scopes))
			assert.Zero(t, sink.Len())
		})
	}
}

func TestExpand_ConstantScopes(t *testing.T) {
	t.Parallel()
	block := syntax.N(syntax.KindGenerateBlock, "")
	tests := []struct {
		name string
		node syntax.SourceNode
		want bool
	}{
		{"literal if", syntax.N(syntax.KindGenerateIf, "", syntax.E("1"), block), true},
		{"parameter if", syntax.N(syntax.KindGenerateIf, "", syntax.E("N > 2", "N"), block), false},
		{"literal for", syntax.N(syntax.KindGenerateFor, "i", syntax.E("0"), syntax.E("i < 2", "i"), syntax.E("i = i + 1", "i"), block), true},
		{"parameter for", syntax.N(syntax.KindGenerateFor, "i", syntax.E("0"), syntax.E("i < N", "i", "N"), syntax.E("i++", "i"), block), false},
		{"parameter case", syntax.N(syntax.KindGenerateCase, "", syntax.E("N", "N"),
			syntax.N(syntax.KindCaseItem, "", syntax.E("4"), block)), false},
		{"bare block", block, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scopes, _ := expand(t, tt.node, withParams(map[string]int64{"N": 4}))
			require.NotEmpty(t, scopes)
			for _, sc := range scopes {
				assert.Equal(t, tt.want, sc.Constant, sc.Name)
			}
		})
	}
}

func TestExpand_ForLoopLimit(t *testing.T) {
	t.Parallel()
	scopes, sink := expand(t, syntax.N(syntax.KindGenerateFor, "i",
		syntax.E("0"),
		syntax.E("1"),
		syntax.E("i++", "i"),
		syntax.N(syntax.KindGenerateBlock, "g"),
	), nil, WithLoopLimit(5))
	assert.Len(t, scopes, 5)
	assert.Equal(t, 1, sink.Count(diag.GenerateLoopLimit))
}

func TestParseStep(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want step
	}{
		{"i++", step{delta: 1, ok: true}},
		{"++i", step{delta: 1, ok: true}},
		{"i--", step{delta: -1, ok: true}},
		{"i += 4", step{delta: 4, ok: true}},
		{"i -= 0x2", step{delta: -2, ok: true}},
		{"i = i + 1", step{rhs: "i + 1"}},
		{"i=2*i", step{rhs: "2*i"}},
		{"i += STRIDE", step{rhs: "i + (STRIDE)"}},
		{"i <<= 1", step{rhs: "i << (1)"}},
		{"i + 1", step{}},
		{"i == 1", step{}},
		{"i =", step{}},
		{"idx = 0", step{}},
		{"j++", step{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseStep(tt.text, "i"), tt.text)
	}
}

// =============================================================================
// generate-case
// =============================================================================

func TestExpand_Case(t *testing.T) {
	t.Parallel()
	node := syntax.N(syntax.KindGenerateCase, "",
		syntax.E("SEL", "SEL"),
		syntax.N(syntax.KindCaseItem, "", syntax.E("0"), syntax.E("1"), syntax.N(syntax.KindGenerateBlock, "low")),
		syntax.N(syntax.KindCaseItem, "", syntax.E("2"), syntax.N(syntax.KindGenerateBlock, "two")),
		syntax.N(syntax.KindCaseItem, "", syntax.N(syntax.KindGenerateBlock, "")).WithAttr("default"),
	)
	tests := []struct {
		sel  int64
		want []string
	}{
		{0, []string{"low"}},
		{1, []string{"low"}},
		{2, []string{"two"}},
		{7, []string{"genblk1"}},
	}
	for _, tt := range tests {
		scopes, sink := expand(t, node, withParams(map[string]int64{"SEL": tt.sel}))
		assert.Equal(t, tt.want, names(scopes), "SEL=%d", tt.sel)
		assert.Equal(t, KindCase, scopes[0].Kind)
		assert.Zero(t, sink.Len())
	}
}

func TestExpand_CaseNoMatchNoDefault(t *testing.T) {
	t.Parallel()
	scopes, sink := expand(t, syntax.N(syntax.KindGenerateCase, "",
		syntax.E("3"),
		syntax.N(syntax.KindCaseItem, "", syntax.E("0"), syntax.N(syntax.KindGenerateBlock, "a")),
	), nil)
	assert.Empty(t, scopes)
	assert.Zero(t, sink.Len())
}

func TestExpand_BareBlock(t *testing.T) {
	t.Parallel()
	scopes, _ := expand(t, syntax.N(syntax.KindGenerateBlock, ""), nil)
	assert.Equal(t, []string{"genblk1"}, names(scopes))
	assert.Equal(t, KindBlock, scopes[0].Kind)
}
