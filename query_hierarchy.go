package arbor

import (
	"fmt"

	"github.com/jward/arbor/internal/store"
)

// HierarchyNode is one instance in a hierarchy view.
type HierarchyNode struct {
	Instance
	Children []*HierarchyNode
}

// Hierarchy returns the instance tree of a run. With root empty every top
// is returned; otherwise the subtree at that path. maxDepth limits how many
// levels below the returned roots are included; 0 means unlimited.
// Returns an empty slice with no error if root does not exist.
func (q *QueryBuilder) Hierarchy(runID int64, root string, maxDepth int) ([]*HierarchyNode, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}

	// One query for the whole run; the tree is assembled in memory.
	rows, err := q.store.DB().Query(
		"SELECT "+store.InstanceCols+" FROM instances WHERE run_id = ? ORDER BY depth, ordinal, id", id,
	)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	defer rows.Close()

	nodes := make(map[int64]*HierarchyNode)
	var roots []*HierarchyNode
	for rows.Next() {
		inst, err := store.ScanInstanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: scan: %w", err)
		}
		n := &HierarchyNode{Instance: *inst, Children: []*HierarchyNode{}}
		nodes[inst.ID] = n
		if inst.ParentID == nil {
			roots = append(roots, n)
		} else if p, ok := nodes[*inst.ParentID]; ok {
			// Depth ordering guarantees the parent was scanned first.
			p.Children = append(p.Children, n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy: rows: %w", err)
	}

	if root != "" {
		roots = []*HierarchyNode{}
		for _, n := range nodes {
			if n.Path == root {
				roots = append(roots, n)
				break
			}
		}
	}
	if roots == nil {
		roots = []*HierarchyNode{}
	}
	if maxDepth > 0 {
		for _, r := range roots {
			prune(r, maxDepth)
		}
	}
	return roots, nil
}

// prune drops descendants more than levels below n.
func prune(n *HierarchyNode, levels int) {
	if levels == 0 {
		n.Children = []*HierarchyNode{}
		return
	}
	for _, c := range n.Children {
		prune(c, levels-1)
	}
}

// Walk visits n and its descendants in pre-order with their depth relative
// to n.
func (n *HierarchyNode) Walk(fn func(node *HierarchyNode, depth int)) {
	var visit func(*HierarchyNode, int)
	visit = func(cur *HierarchyNode, depth int) {
		fn(cur, depth)
		for _, c := range cur.Children {
			visit(c, depth+1)
		}
	}
	visit(n, 0)
}

// Ancestors returns the chain of instances from the top down to, but not
// including, the instance at path. Returns nil with no error if the path
// does not exist.
func (q *QueryBuilder) Ancestors(runID int64, path string) ([]*Instance, error) {
	inst, _, err := q.instance(runID, path)
	if err != nil {
		return nil, fmt.Errorf("ancestors: %w", err)
	}
	if inst == nil {
		return nil, nil
	}
	var chain []*Instance
	for cur := inst; cur.ParentID != nil; {
		parent, err := q.store.InstanceByID(*cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("ancestors: %w", err)
		}
		if parent == nil {
			break
		}
		chain = append([]*Instance{parent}, chain...)
		cur = parent
	}
	if chain == nil {
		chain = []*Instance{}
	}
	return chain, nil
}
