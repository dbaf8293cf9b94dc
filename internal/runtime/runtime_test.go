package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

func exprNode(t *testing.T, text string) (*syntax.FileContent, syntax.NodeID) {
	t.Helper()
	fc, err := syntax.Flatten(syntax.File("expr.sv", syntax.E(text)), nil)
	require.NoError(t, err)
	return fc, fc.Collect(fc.Root(), syntax.KindExpr)
}

func testScope() *eval.Bindings {
	s := eval.NewBindings(nil)
	s.Set("WIDTH", eval.Int(8))
	s.Set("DEPTH", eval.Int(16))
	s.Set("ENABLE", eval.Bool(true))
	return s
}

// =============================================================================
// Evaluate
// =============================================================================

func TestEvaluate_Arithmetic(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	tests := []struct {
		text string
		want eval.Value
	}{
		{"WIDTH * 2", eval.Int(16)},
		{"WIDTH + DEPTH - 4", eval.Int(20)},
		{"WIDTH-1", eval.Int(7)},
		{"(DEPTH-1)/WIDTH", eval.Int(1)},
		{"$clog2(DEPTH)", eval.Int(4)},
		{"8'hFF", eval.Int(255)},
		{"WIDTH > 4", eval.Bool(true)},
		{"ENABLE", eval.Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			fc, node := exprNode(t, tt.text)
			got, err := rt.Evaluate(context.Background(), fc, node, testScope())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_UnknownNameIsUnresolved(t *testing.T) {
	t.Parallel()
	fc, node := exprNode(t, "MISSING + 1")
	_, err := NewRuntime("").Evaluate(context.Background(), fc, node, testScope())
	require.Error(t, err)
	assert.ErrorIs(t, err, eval.ErrUnresolved)
}

func TestEvaluate_PreludeFromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		DefaultPrelude: &fstest.MapFile{Data: []byte("func double(x) {\n  return x * 2\n}\n")},
	}
	rt := NewRuntime("", WithRuntimeFS(fsys))
	fc, node := exprNode(t, "double(WIDTH)")
	got, err := rt.Evaluate(context.Background(), fc, node, testScope())
	require.NoError(t, err)
	assert.Equal(t, eval.Int(16), got)
}

func TestEvaluate_MissingPreludeIsIgnored(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(t.TempDir())
	fc, node := exprNode(t, "WIDTH")
	got, err := rt.Evaluate(context.Background(), fc, node, testScope())
	require.NoError(t, err)
	assert.Equal(t, eval.Int(8), got)
}

func TestEvaluate_ImplementsEvaluator(t *testing.T) {
	t.Parallel()
	var _ eval.Evaluator = NewRuntime("")
}

// =============================================================================
// Scripts
// =============================================================================

func TestRunSource_HostFunctions(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	result, err := rt.RunSource(context.Background(), "clog2(n)", map[string]any{"n": int64(9)})
	require.NoError(t, err)
	i, ok := result.(*object.Int)
	require.True(t, ok)
	assert.Equal(t, int64(4), i.Value())
}

func TestRunSource_SyntaxError(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").RunSource(context.Background(), "func (", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime: script <inline>")
}

func TestLoadScript_FromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.risor"), []byte("1"), 0o644))
	rt := NewRuntime(dir)
	src, err := rt.LoadScript("helpers.risor")
	require.NoError(t, err)
	assert.Equal(t, "1", src)

	_, err = rt.LoadScript("missing.risor")
	require.Error(t, err)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{"lib/x.risor": &fstest.MapFile{Data: []byte("2")}}
	rt := NewRuntime("", WithRuntimeFS(fsys))
	src, err := rt.LoadScript("/lib/x.risor")
	require.NoError(t, err)
	assert.Equal(t, "2", src)
}
