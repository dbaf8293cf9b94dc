package arbor

import (
	"fmt"
	"strings"

	"github.com/jward/arbor/internal/store"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order instance results.
type SortField string

const (
	SortByPath  SortField = "path"
	SortByName  SortField = "name"
	SortByDef   SortField = "def"
	SortByDepth SortField = "depth"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// InstanceFilter specifies which instances to include. All fields are
// optional.
type InstanceFilter struct {
	DefName string   // exact definition name
	Kinds   []string // match any of these kinds
	// Under restricts results to the instance at this path and its
	// descendants.
	Under string
	// BoundOnly keeps only instances created by bind statements.
	BoundOnly bool
}

// --- Internal Helpers ---

// instanceSortColumn returns the SQL ORDER BY expression for instance
// queries. Falls back to "path" for unknown fields.
func instanceSortColumn(field SortField) string {
	switch field {
	case SortByName:
		return "name"
	case SortByDef:
		return "def_name"
	case SortByDepth:
		return "depth"
	default:
		return "path"
	}
}

// sortDirection returns "ASC" or "DESC".
func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

// escapeLike escapes LIKE metacharacters; the query must use ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// --- Enumeration Endpoints ---

// Instances is the primary listing endpoint for elaborated instances.
func (q *QueryBuilder) Instances(runID int64, filter InstanceFilter, sort Sort, page Pagination) (*PagedResult[*Instance], error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	page = page.normalize()

	where := []string{"run_id = ?"}
	args := []any{id}
	if filter.DefName != "" {
		where = append(where, "def_name = ?")
		args = append(args, filter.DefName)
	}
	if len(filter.Kinds) > 0 {
		where = append(where, "kind IN ("+strings.Repeat("?,", len(filter.Kinds)-1)+"?)")
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}
	if filter.Under != "" {
		where = append(where, `(path = ? OR path LIKE ? ESCAPE '\')`)
		args = append(args, filter.Under, escapeLike(filter.Under+".")+"%")
	}
	if filter.BoundOnly {
		where = append(where, "bound_from != ''")
	}
	whereClause := "WHERE " + strings.Join(where, " AND ")

	var totalCount int
	if err := q.store.DB().QueryRow("SELECT COUNT(*) FROM instances "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("instances: count: %w", err)
	}

	dataSQL := fmt.Sprintf("SELECT %s FROM instances %s ORDER BY %s %s, id LIMIT ? OFFSET ?",
		store.InstanceCols, whereClause, instanceSortColumn(sort.Field), sortDirection(sort.Order))
	rows, err := q.store.DB().Query(dataSQL, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("instances: query: %w", err)
	}
	defer rows.Close()

	items := []*Instance{}
	for rows.Next() {
		inst, err := store.ScanInstanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("instances: scan: %w", err)
		}
		items = append(items, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("instances: rows: %w", err)
	}
	return &PagedResult[*Instance]{Items: items, TotalCount: totalCount}, nil
}

// InstancesOf lists every instance of the named definition, by path.
func (q *QueryBuilder) InstancesOf(runID int64, defName string, page Pagination) (*PagedResult[*Instance], error) {
	return q.Instances(runID, InstanceFilter{DefName: defName}, Sort{Field: SortByPath}, page)
}

// Diagnostics returns a page of a run's diagnostics in report order.
func (q *QueryBuilder) Diagnostics(runID int64, filter DiagnosticFilter, page Pagination) (*PagedResult[*Diagnostic], error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	page = page.normalize()
	all, err := q.store.Diagnostics(id, filter)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	items := []*Diagnostic{}
	if page.Offset < len(all) {
		items = all[page.Offset:min(page.Offset+page.Limit, len(all))]
	}
	return &PagedResult[*Diagnostic]{Items: items, TotalCount: len(all)}, nil
}

// KindCount is the number of diagnostics of one kind.
type KindCount struct {
	Kind     string
	Category string
	Severity string
	Count    int
}

// DiagnosticSummary counts a run's diagnostics per kind, most frequent
// first.
func (q *QueryBuilder) DiagnosticSummary(runID int64) ([]*KindCount, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	rows, err := q.store.DB().Query(
		`SELECT kind, category, severity, COUNT(*) AS n FROM diagnostics
		 WHERE run_id = ? GROUP BY kind, category, severity ORDER BY n DESC, kind`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostic summary: %w", err)
	}
	defer rows.Close()
	out := []*KindCount{}
	for rows.Next() {
		kc := &KindCount{}
		if err := rows.Scan(&kc.Kind, &kc.Category, &kc.Severity, &kc.Count); err != nil {
			return nil, fmt.Errorf("diagnostic summary: scan: %w", err)
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}
