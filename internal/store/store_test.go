package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// insertTestRun inserts a run and returns it with ID set.
func insertTestRun(t *testing.T, s *Store) *Run {
	t.Helper()
	r := &Run{DesignHash: "abc123", Evaluator: "hcl", Tops: []string{"top"}, StartedAt: time.Now().Truncate(time.Second)}
	id, err := s.InsertRun(r)
	require.NoError(t, err)
	require.Positive(t, id)
	return r
}

// insertTestInstance inserts an instance under parent (nil for a top).
func insertTestInstance(t *testing.T, s *Store, runID int64, parent *Instance, name, def string, ordinal int) *Instance {
	t.Helper()
	inst := &Instance{RunID: runID, Name: name, Path: name, DefName: def, Kind: "module", Ordinal: ordinal}
	if parent != nil {
		inst.ParentID = &parent.ID
		inst.Path = parent.Path + "." + name
		inst.Depth = parent.Depth + 1
	}
	id, err := s.InsertInstance(inst)
	require.NoError(t, err)
	require.Positive(t, id)
	return inst
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"runs", "files", "instances", "parameters", "nets", "variables",
		"ports", "references_", "port_connections", "diagnostics",
	}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// Running migrate again should not error.
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Runs and files
// =============================================================================

func TestRun_InsertAndLatest(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, got)

	insertTestRun(t, s)
	second := insertTestRun(t, s)
	require.NoError(t, s.FinishRun(second.ID, 12, 3))

	got, err = s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "abc123", got.DesignHash)
	assert.Equal(t, []string{"top"}, got.Tops)
	assert.Equal(t, 12, got.InstanceCount)
	assert.Equal(t, 3, got.DiagnosticCount)
}

func TestFile_InsertAndList(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)

	for _, p := range []string{"/rtl/b.json", "/rtl/a.yaml"} {
		_, err := s.InsertFile(&File{RunID: r.ID, Path: p, Format: "json", Hash: "h", NodeCount: 7})
		require.NoError(t, err)
	}
	_, err := s.InsertFile(&File{RunID: r.ID, Path: "/rtl/a.yaml", Format: "yaml"})
	assert.Error(t, err, "path is unique per run")

	files, err := s.FilesByRun(r.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/rtl/a.yaml", files[0].Path)
	assert.Equal(t, 7, files[0].NodeCount)
}

// =============================================================================
// Instances
// =============================================================================

func TestInstance_Hierarchy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)

	top := insertTestInstance(t, s, r.ID, nil, "top", "top", 0)
	insertTestInstance(t, s, r.ID, top, "u2", "adder", 1)
	insertTestInstance(t, s, r.ID, top, "u1", "adder", 0)

	roots, err := s.RootInstances(r.ID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "top", roots[0].Path)
	assert.Nil(t, roots[0].ParentID)

	children, err := s.ChildInstances(top.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "top.u1", children[0].Path, "children follow ordinal")
	assert.Equal(t, "top.u2", children[1].Path)
	assert.Equal(t, 1, children[0].Depth)

	got, err := s.InstanceByPath(r.ID, "top.u2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "adder", got.DefName)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, top.ID, *got.ParentID)

	byDef, err := s.InstancesByDefinition(r.ID, "adder")
	require.NoError(t, err)
	assert.Len(t, byDef, 2)

	missing, err := s.InstanceByPath(r.ID, "top.nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestParameter_InsertAndQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)
	top := insertTestInstance(t, s, r.ID, nil, "top", "top", 0)

	_, err := s.InsertParameter(&Parameter{InstanceID: top.ID, Name: "W", Source: "explicit", Value: "16", Expr: "16", Evaluated: true, Overridden: true})
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{InstanceID: top.ID, Name: "T", Source: "default", Expr: "logic [W-1:0]", IsType: true})
	require.NoError(t, err)

	params, err := s.ParametersByInstance(top.ID)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "W", params[0].Name)
	assert.True(t, params[0].Evaluated)
	assert.True(t, params[0].Overridden)
	assert.Equal(t, "16", params[0].Value)
	assert.True(t, params[1].IsType)
	assert.False(t, params[1].Evaluated)
}

func TestPort_LowConnAndConnections(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)
	top := insertTestInstance(t, s, r.ID, nil, "top", "top", 0)
	u := insertTestInstance(t, s, r.ID, top, "u", "child", 0)

	x := &Net{InstanceID: top.ID, Name: "x", NetType: "wire"}
	_, err := s.InsertNet(x)
	require.NoError(t, err)
	a := &Net{InstanceID: u.ID, Name: "a", NetType: "wire"}
	_, err = s.InsertNet(a)
	require.NoError(t, err)

	port := &Port{InstanceID: u.ID, Name: "a", Direction: "input", HighExpr: "x", LowNetID: &a.ID}
	_, err = s.InsertPort(port)
	require.NoError(t, err)
	ref := &Reference{InstanceID: top.ID, Name: "x", TargetKind: "net", TargetName: "x", TargetScope: "top", TargetNetID: &x.ID}
	_, err = s.InsertReference(ref)
	require.NoError(t, err)
	_, err = s.InsertPortConnection(&PortConnection{PortID: port.ID, ReferenceID: ref.ID})
	require.NoError(t, err)

	ports, err := s.PortsByInstance(u.ID)
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.NotNil(t, ports[0].LowNetID)
	assert.Equal(t, a.ID, *ports[0].LowNetID)

	conns, err := s.NetConnections(x.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, &Connection{InstancePath: "top.u", Port: "a", Direction: "input", HighExpr: "x"}, conns[0])

	owner, err := s.PortOfNet(a.ID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, port.ID, owner.ID)

	none, err := s.PortOfNet(x.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	refs, err := s.ReferencesToNet(x.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "top", refs[0].TargetScope)
}

func TestReference_Unresolved(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)
	top := insertTestInstance(t, s, r.ID, nil, "top", "top", 0)

	v := &Variable{InstanceID: top.ID, Name: "count", Type: "int"}
	_, err := s.InsertVariable(v)
	require.NoError(t, err)
	for _, ref := range []*Reference{
		{InstanceID: top.ID, Name: "count", TargetKind: "variable", TargetVariableID: &v.ID},
		{InstanceID: top.ID, Name: "W", AsParameter: true},
		{InstanceID: top.ID, Name: "ghost", Line: 4, Col: 2},
	} {
		_, err := s.InsertReference(ref)
		require.NoError(t, err)
	}

	open, err := s.UnresolvedReferences(r.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ghost", open[0].Name)
	assert.Equal(t, 4, open[0].Line)

	all, err := s.ReferencesByInstance(top.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	vars, err := s.VariablesByInstance(top.ID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "int", vars[0].Type)
}

// =============================================================================
// Diagnostics
// =============================================================================

func TestDiagnostics_Filter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s)

	for _, d := range []*Diagnostic{
		{RunID: r.ID, Kind: "undefined-module", Category: "definition", Severity: "error", Message: "Ghost"},
		{RunID: r.ID, Kind: "generate-condition", Category: "structural", Severity: "warning"},
		{RunID: r.ID, Kind: "duplicate-parameter-override", Category: "binding", Severity: "error", Secondary: []string{"a.json:3:4"}},
	} {
		_, err := s.InsertDiagnostic(d)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter DiagnosticFilter
		want   []string
	}{
		{"all", DiagnosticFilter{}, []string{"undefined-module", "generate-condition", "duplicate-parameter-override"}},
		{"by kind", DiagnosticFilter{Kinds: []string{"generate-condition"}}, []string{"generate-condition"}},
		{"by severity", DiagnosticFilter{Severities: []string{"error"}}, []string{"undefined-module", "duplicate-parameter-override"}},
		{"by category", DiagnosticFilter{Category: "binding"}, []string{"duplicate-parameter-override"}},
		{"no match", DiagnosticFilter{Kinds: []string{"config-cycle"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Diagnostics(r.ID, tt.filter)
			require.NoError(t, err)
			var kinds []string
			for _, d := range got {
				kinds = append(kinds, d.Kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}

	got, err := s.Diagnostics(r.ID, DiagnosticFilter{Category: "binding"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a.json:3:4"}, got[0].Secondary)
}

// =============================================================================
// Deletion
// =============================================================================

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	old := insertTestRun(t, s)
	top := insertTestInstance(t, s, old.ID, nil, "top", "top", 0)
	u := insertTestInstance(t, s, old.ID, top, "u", "child", 0)
	n := &Net{InstanceID: u.ID, Name: "a"}
	_, err := s.InsertNet(n)
	require.NoError(t, err)
	p := &Port{InstanceID: u.ID, Name: "a", LowNetID: &n.ID}
	_, err = s.InsertPort(p)
	require.NoError(t, err)
	ref := &Reference{InstanceID: top.ID, Name: "a"}
	_, err = s.InsertReference(ref)
	require.NoError(t, err)
	_, err = s.InsertPortConnection(&PortConnection{PortID: p.ID, ReferenceID: ref.ID})
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{InstanceID: u.ID, Name: "W", Source: "default"})
	require.NoError(t, err)
	_, err = s.InsertDiagnostic(&Diagnostic{RunID: old.ID, Kind: "k", Category: "c", Severity: "error"})
	require.NoError(t, err)
	_, err = s.InsertFile(&File{RunID: old.ID, Path: "a.json", Format: "json"})
	require.NoError(t, err)

	keep := insertTestRun(t, s)
	insertTestInstance(t, s, keep.ID, nil, "top", "top", 0)

	require.NoError(t, s.DeleteRun(old.ID))

	for _, table := range []string{"instances", "nets", "ports", "references_", "port_connections", "parameters", "diagnostics", "files", "runs"} {
		var count int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		want := 0
		if table == "instances" || table == "runs" {
			want = 1
		}
		assert.Equal(t, want, count, "table %s", table)
	}
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var last *Run
	for range 4 {
		last = insertTestRun(t, s)
		insertTestInstance(t, s, last.ID, nil, "top", "top", 0)
	}
	require.NoError(t, s.PruneRuns(1))

	var runs int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs))
	assert.Equal(t, 1, runs)
	got, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, last.ID, got.ID)
}

// =============================================================================
// Hashing
// =============================================================================

func TestDesignHash_OrderIndependent(t *testing.T) {
	t.Parallel()
	a := &File{Path: "a.json", Hash: HashBytes([]byte("a"))}
	b := &File{Path: "b.json", Hash: HashBytes([]byte("b"))}
	assert.Equal(t, ComputeDesignHash([]*File{a, b}), ComputeDesignHash([]*File{b, a}))
}

func TestDesignHash_Changes(t *testing.T) {
	t.Parallel()
	a := &File{Path: "a.json", Hash: HashBytes([]byte("a"))}
	base := ComputeDesignHash([]*File{a}, "evaluator=hcl")

	edited := &File{Path: "a.json", Hash: HashBytes([]byte("a2"))}
	assert.NotEqual(t, base, ComputeDesignHash([]*File{edited}, "evaluator=hcl"))
	assert.NotEqual(t, base, ComputeDesignHash([]*File{a}, "evaluator=risor"))
	assert.Equal(t, base, ComputeDesignHash([]*File{a}, "evaluator=hcl"))
}
