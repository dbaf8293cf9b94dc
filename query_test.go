package arbor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/syntax"
)

func TestQuery_NoRuns(t *testing.T) {
	t.Parallel()
	q := newTestEngine(t).Query()

	_, err := q.Hierarchy(0, "", 0)
	require.ErrorIs(t, err, ErrNoRuns)
	_, err = q.Unresolved(0)
	require.ErrorIs(t, err, ErrNoRuns)

	// An explicit run ID skips the latest-run lookup.
	run, err := q.Run(42)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestQuery_RunAndFiles(t *testing.T) {
	t.Parallel()
	e, res := runSoc(t)
	q := e.Query()

	run, err := q.Run(0)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, res.Run.ID, run.ID)

	files, err := q.Files(res.Run.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, "json", f.Format)
		assert.NotEmpty(t, f.Hash)
	}
}

func TestInstanceLocation(t *testing.T) {
	t.Parallel()
	e, _ := runSoc(t)

	loc, err := e.Query().InstanceLocation(0, "soc.u_alu")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "rtl/soc.sv", loc.File)

	loc, err = e.Query().InstanceLocation(0, "soc.nope")
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestUnresolved(t *testing.T) {
	t.Parallel()
	e, _ := runSoc(t)

	refs, err := e.Query().Unresolved(0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "u_alu.missing", refs[0].Name)
	assert.Equal(t, "soc", refs[0].InstancePath)
	assert.Empty(t, refs[0].TargetKind)
}

func TestLocation_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a.sv:3:7", Location{File: "a.sv", Line: 3, Col: 7}.String())
	assert.Equal(t, "<unknown>", Location{}.String())
}

func TestPackageReferences(t *testing.T) {
	t.Parallel()
	files := []*syntax.SourceFile{
		syntax.File("rtl/pkg.sv", syntax.N(syntax.KindPackage, "cnt_pkg",
			syntax.N(syntax.KindParam, "STEP", syntax.E("1")),
			syntax.N(syntax.KindVar, "count").WithAttr("int"),
			syntax.N(syntax.KindFunction, "next",
				syntax.N(syntax.KindStmt, "", syntax.E("next = count + STEP", "next", "count", "STEP").At(4, 7)),
				syntax.N(syntax.KindStmt, "", syntax.E("undeclared", "undeclared")),
			),
		)),
		syntax.File("rtl/top.sv", mod("top")),
	}
	for _, parallel := range []bool{true, false} {
		e := newTestEngine(t, WithParallel(parallel))
		_, err := e.Run(context.Background(), writeDesign(t, t.TempDir(), files))
		require.NoError(t, err)

		refs, err := e.Query().PackageReferences(0, "cnt_pkg")
		require.NoError(t, err)
		require.Len(t, refs, 4)

		byName := make(map[string]*PackageReference)
		for _, r := range refs {
			assert.Equal(t, "cnt_pkg", r.Package)
			byName[r.Name] = r
		}
		assert.Equal(t, "return", byName["next"].TargetKind)
		assert.Equal(t, "package_item", byName["count"].TargetKind)
		assert.Equal(t, "cnt_pkg", byName["count"].TargetScope)
		assert.Equal(t, "rtl/pkg.sv", byName["count"].FilePath)
		assert.True(t, byName["STEP"].AsParameter)
		assert.Empty(t, byName["undeclared"].TargetKind)

		other, err := e.Query().PackageReferences(0, "other_pkg")
		require.NoError(t, err)
		assert.Empty(t, other)
	}
}
