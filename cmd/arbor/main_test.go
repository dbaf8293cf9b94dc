package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/config"
)

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), `invalid format "xml"`)
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"module", "gen_scope"}, splitList(" module, ,gen_scope "))
	assert.Nil(t, splitList(""))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestResolveDBPath_FromSettings(t *testing.T) {
	s := config.DefaultSettings()
	s.Path = filepath.Join("proj", config.FileName)
	assert.Equal(t, filepath.Join("proj", "arbor.db"), resolveDBPath(s))
}

func TestInstanceTag(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "(alu)", instanceTag(CLIInstance{Kind: "module", DefName: "alu"}))
	assert.Equal(t, "[generate]", instanceTag(CLIInstance{Kind: "gen_scope"}))
	assert.Equal(t, "(ghost?)", instanceTag(CLIInstance{Kind: "undefined", DefName: "ghost"}))
}

// =============================================================================
// Text output
// =============================================================================

func TestOutputText_Tree(t *testing.T) {
	t.Parallel()
	roots := []CLIHierarchyNode{{
		CLIInstance: CLIInstance{Path: "top", Name: "top", DefName: "top", Kind: "module"},
		Children: []CLIHierarchyNode{
			{CLIInstance: CLIInstance{Path: "top.g[0]", Name: "g[0]", Kind: "gen_scope"},
				Children: []CLIHierarchyNode{
					{CLIInstance: CLIInstance{Path: "top.g[0].u", Name: "u", DefName: "leaf", Kind: "module"}},
				}},
		},
	}}
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: roots, TotalCount: count(1)}))
	assert.Equal(t, "top (top)\n  g[0] [generate]\n    u (leaf)\n", buf.String())
}

func TestOutputText_PaginationFooter(t *testing.T) {
	t.Parallel()
	insts := []CLIInstance{{Path: "a", DefName: "m", Kind: "module"}, {Path: "b", DefName: "m", Kind: "module"}}
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: insts, TotalCount: count(7)}))
	assert.Contains(t, buf.String(), "Showing 2 of 7 results")
	assert.Contains(t, buf.String(), "PATH")
}

func TestOutputText_Diagnostics(t *testing.T) {
	t.Parallel()
	diags := []CLIDiagnostic{{
		Kind:      "multiply-defined",
		Severity:  "error",
		Message:   "module m is defined more than once",
		File:      "a.sv",
		Line:      3,
		Col:       1,
		Secondary: []string{"b.sv:9:1"},
	}}
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: diags}))
	out := buf.String()
	assert.Contains(t, out, "a.sv:3:1: ")
	assert.Contains(t, out, "module m is defined more than once")
	assert.Contains(t, out, "[multiply-defined]")
	assert.Contains(t, out, "see b.sv:9:1")
}

func TestOutputText_Params(t *testing.T) {
	t.Parallel()
	params := []CLIParameter{
		{Name: "W", Value: "16", Source: "explicit", Evaluated: true, Overridden: true, Expr: "16"},
		{Name: "T", Source: "default", Expr: "missing + 1"},
	}
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: params}))
	assert.Contains(t, buf.String(), "explicit*")
	assert.Contains(t, buf.String(), "missing + 1")
}

func TestOutputText_Unsupported(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := outputResultText(&buf, CLIResult{Results: 42})
	assert.ErrorContains(t, err, "unsupported result type")
}

func TestBuildSort(t *testing.T) {
	// Mutates package-level flags; not parallel.
	flagSort, flagOrder = "depth", "desc"
	t.Cleanup(func() { flagSort, flagOrder = "", "asc" })
	assert.Equal(t, arbor.Sort{Field: arbor.SortByDepth, Order: arbor.Desc}, buildSort())

	flagSort, flagOrder = "bogus", "asc"
	assert.Equal(t, arbor.Sort{Field: arbor.SortByPath, Order: arbor.Asc}, buildSort())
}
