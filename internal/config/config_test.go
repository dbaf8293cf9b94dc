package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// Parse
// =============================================================================

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte(""), "arbor.hcl")
	require.NoError(t, err)

	want := DefaultSettings()
	want.Path = "arbor.hcl"
	assert.Equal(t, want, s)
}

func TestParse_Values(t *testing.T) {
	t.Parallel()
	s, err := Parse([]byte(`
evaluator               = "risor"
scripts_dir             = "scripts"
default_nettype         = "none"
parallel                = 4
max_depth               = 64
max_generate_iterations = 1000
array_order             = "declared"
tops                    = ["soc_top"]
configs                 = ["rtl_cfg"]
files                   = ["rtl/**/*.json"]
database                = "out/soc.db"
`), "proj/arbor.hcl")
	require.NoError(t, err)

	assert.Equal(t, "risor", s.Evaluator)
	assert.Equal(t, "scripts", s.ScriptsDir)
	assert.Equal(t, "none", s.DefaultNetType)
	assert.Equal(t, 4, s.Parallel)
	assert.Equal(t, 64, s.MaxDepth)
	assert.Equal(t, 1000, s.LoopLimit)
	assert.Equal(t, "declared", s.ArrayOrder)
	assert.Equal(t, []string{"soc_top"}, s.Tops)
	assert.Equal(t, []string{"rtl_cfg"}, s.Configs)
	assert.Equal(t, []string{"rtl/**/*.json"}, s.Files)
	assert.Equal(t, "proj", s.Root())
	assert.Equal(t, filepath.Join("proj", "out", "soc.db"), s.DatabasePath())
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `evaluator = `, "parse settings"},
		{"unknown attribute", `colour = "red"`, "decode settings"},
		{"wrong type", `parallel = "many"`, "decode settings"},
		{"evaluator", `evaluator = "lua"`, "evaluator must be"},
		{"array order", `array_order = "random"`, "array_order must be"},
		{"negative parallel", `parallel = -1`, "parallel must not be negative"},
		{"max depth", `max_depth = -3`, "max_depth must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src), "arbor.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// Load and Save
// =============================================================================

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), FileName)
	s := DefaultSettings()
	s.Evaluator = "risor"
	s.Parallel = 2
	s.Tops = []string{"a", "b"}
	s.Configs = []string{"cfg"}
	require.NoError(t, s.Save(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	s.Path = path
	assert.Equal(t, s, got)
}

func TestLoad_SearchOrder(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	writeFile(t, filepath.Join(dir, ".arbor.hcl"), `max_depth = 10`)
	s, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, s.MaxDepth)

	writeFile(t, filepath.Join(dir, "arbor.hcl"), `max_depth = 20`)
	s, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 20, s.MaxDepth)
	assert.Equal(t, filepath.Join(dir, "arbor.hcl"), s.Path)
}

func TestLoad_UserConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "arbor", FileName), `array_order = "declared"`)

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "declared", s.ArrayOrder)
}

// =============================================================================
// DesignFiles
// =============================================================================

func TestDesignFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, f := range []string{
		"a.json",
		"sub/b.yaml",
		"sub/deep/c.yml",
		".hidden/d.json",
		"notes.txt",
	} {
		writeFile(t, filepath.Join(dir, f), "{}")
	}
	writeFile(t, filepath.Join(dir, FileName), `files = ["**/*.json", "**/*.yaml", "sub/**/*.yml", "a.json"]`)

	s, err := LoadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	files, err := s.DesignFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "sub", "b.yaml"),
		filepath.Join(dir, "sub", "deep", "c.yml"),
	}, files)
}

func TestDesignFiles_BadPattern(t *testing.T) {
	t.Parallel()
	s := DefaultSettings()
	s.Files = []string{"[unclosed"}
	_, err := s.DesignFiles()
	assert.Error(t, err)
}

func TestSave_DefaultsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, DefaultSettings().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tops")

	got, err := LoadFile(path)
	require.NoError(t, err)
	want := DefaultSettings()
	want.Path = path
	assert.Equal(t, want, got)
}
