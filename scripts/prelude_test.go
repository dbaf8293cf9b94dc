package scripts_test

import (
	"context"
	"testing"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/runtime"
	"github.com/jward/arbor/scripts"
)

// callPrelude evaluates expr after the embedded prelude.
func callPrelude(t *testing.T, expr string, globals map[string]any) int64 {
	t.Helper()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	prelude, err := rt.LoadScript(runtime.DefaultPrelude)
	require.NoError(t, err)

	result, err := rt.RunSource(context.Background(), prelude+"\n"+expr, globals)
	require.NoError(t, err)
	i, ok := result.(*object.Int)
	require.True(t, ok, "result %s is not an int", result.Type())
	return i.Value()
}

func TestPrelude_Widest(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(6), callPrelude(t, "widest(a, 6)", map[string]any{"a": int64(4)}))
	assert.Equal(t, int64(9), callPrelude(t, "widest(a, 6)", map[string]any{"a": int64(9)}))
}

func TestPrelude_BytesFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bits int64
		want int64
	}{
		{1, 1},
		{8, 1},
		{9, 2},
		{32, 4},
	}
	for _, tt := range tests {
		got := callPrelude(t, "bytes_for(n)", map[string]any{"n": tt.bits})
		assert.Equal(t, tt.want, got, "bytes_for(%d)", tt.bits)
	}
}

func TestPrelude_UsesHostFunctions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(2), callPrelude(t, "bytes_for(clog2(n) * 4)", map[string]any{"n": int64(16)}))
}
