package arbor

import (
	"errors"
	"fmt"

	"github.com/jward/arbor/internal/store"
)

// ErrNoRuns is returned by queries for the latest run when nothing has been
// elaborated yet.
var ErrNoRuns = errors.New("arbor: no elaboration runs")

// QueryBuilder provides a read API over persisted runs. Every method taking
// a runID treats 0 as the latest run.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder reads runs from s. Use Engine.Query when an engine is at
// hand.
func NewQueryBuilder(s *store.Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Location is a source position.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// LatestRun returns the most recent run, or nil with no error if there is
// none.
func (q *QueryBuilder) LatestRun() (*Run, error) {
	return q.store.LatestRun()
}

// Run returns the run with the given ID, or the latest for 0.
func (q *QueryBuilder) Run(runID int64) (*Run, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	return q.store.RunByID(id)
}

// Files lists the design files a run was built from.
func (q *QueryBuilder) Files(runID int64) ([]*File, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	files, err := q.store.FilesByRun(id)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	if files == nil {
		files = []*File{}
	}
	return files, nil
}

// resolveRun maps 0 to the latest run ID.
func (q *QueryBuilder) resolveRun(runID int64) (int64, error) {
	if runID != 0 {
		return runID, nil
	}
	r, err := q.store.LatestRun()
	if err != nil {
		return 0, err
	}
	if r == nil {
		return 0, ErrNoRuns
	}
	return r.ID, nil
}

// instance looks an instance up by full path. Returns nil with no error if
// the path does not exist.
func (q *QueryBuilder) instance(runID int64, path string) (*Instance, int64, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, 0, err
	}
	inst, err := q.store.InstanceByPath(id, path)
	if err != nil {
		return nil, 0, err
	}
	return inst, id, nil
}

// InstanceLocation returns where the instance at path was instantiated.
// Returns nil with no error if the path does not exist.
func (q *QueryBuilder) InstanceLocation(runID int64, path string) (*Location, error) {
	inst, _, err := q.instance(runID, path)
	if err != nil {
		return nil, fmt.Errorf("instance location: %w", err)
	}
	if inst == nil {
		return nil, nil
	}
	return &Location{File: inst.FilePath, Line: inst.Line, Col: inst.Col}, nil
}

// UnresolvedReference is a reference late binding left unbound, with the
// path of the instance it belongs to.
type UnresolvedReference struct {
	Reference
	InstancePath string
}

// PackageReferences returns the references made inside package functions
// and tasks, optionally limited to one package.
func (q *QueryBuilder) PackageReferences(runID int64, pkg string) ([]*PackageReference, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	refs, err := q.store.PackageReferences(id, pkg)
	if err != nil {
		return nil, fmt.Errorf("package references: %w", err)
	}
	return refs, nil
}

// Unresolved returns every reference of a run that is neither bound nor a
// parameter, in elaboration order.
func (q *QueryBuilder) Unresolved(runID int64) ([]*UnresolvedReference, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	refs, err := q.store.UnresolvedReferences(id)
	if err != nil {
		return nil, fmt.Errorf("unresolved: %w", err)
	}
	paths := make(map[int64]string)
	out := make([]*UnresolvedReference, 0, len(refs))
	for _, ref := range refs {
		path, ok := paths[ref.InstanceID]
		if !ok {
			inst, err := q.store.InstanceByID(ref.InstanceID)
			if err != nil {
				return nil, fmt.Errorf("unresolved: instance %d: %w", ref.InstanceID, err)
			}
			if inst != nil {
				path = inst.Path
			}
			paths[ref.InstanceID] = path
		}
		out = append(out, &UnresolvedReference{Reference: *ref, InstancePath: path})
	}
	return out, nil
}
