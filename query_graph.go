package arbor

import (
	"fmt"
	"sort"

	"github.com/jward/arbor/internal/store"
)

// NetDetail is a net together with how it is wired.
type NetDetail struct {
	Net
	// Port is the port of the owning instance whose low-conn is this net,
	// nil for internal nets.
	Port *Port
	// Connections are the child-instance ports whose high-conn expressions
	// reference the net.
	Connections []*Connection
	// References counts every bound reference to the net.
	References int
}

// Nets returns the nets of the instance at path with their connectivity.
// Returns nil with no error if the path does not exist.
func (q *QueryBuilder) Nets(runID int64, path string) ([]*NetDetail, error) {
	inst, _, err := q.instance(runID, path)
	if err != nil {
		return nil, fmt.Errorf("nets: %w", err)
	}
	if inst == nil {
		return nil, nil
	}
	nets, err := q.store.NetsByInstance(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("nets: %w", err)
	}

	out := make([]*NetDetail, 0, len(nets))
	for _, n := range nets {
		port, err := q.store.PortOfNet(n.ID)
		if err != nil {
			return nil, fmt.Errorf("nets: port of %s: %w", n.Name, err)
		}
		conns, err := q.store.NetConnections(n.ID)
		if err != nil {
			return nil, fmt.Errorf("nets: connections of %s: %w", n.Name, err)
		}
		refs, err := q.store.ReferencesToNet(n.ID)
		if err != nil {
			return nil, fmt.Errorf("nets: references to %s: %w", n.Name, err)
		}
		if conns == nil {
			conns = []*Connection{}
		}
		out = append(out, &NetDetail{Net: *n, Port: port, Connections: conns, References: len(refs)})
	}
	return out, nil
}

// DefinitionEdge records that Parent instantiates Child Count times.
// Generate scopes are transparent: an instance inside one counts for the
// enclosing definition.
type DefinitionEdge struct {
	Parent string
	Child  string
	Count  int
}

// DefinitionGraph returns the instantiation graph between definitions of a
// run, sorted by parent then child.
func (q *QueryBuilder) DefinitionGraph(runID int64) ([]*DefinitionEdge, error) {
	id, err := q.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	rows, err := q.store.DB().Query("SELECT "+store.InstanceCols+" FROM instances WHERE run_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("definition graph: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Instance)
	for rows.Next() {
		inst, err := store.ScanInstanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("definition graph: scan: %w", err)
		}
		byID[inst.ID] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("definition graph: rows: %w", err)
	}

	type key struct{ parent, child string }
	counts := make(map[key]int)
	for _, inst := range byID {
		if inst.Kind == "gen_scope" || inst.ParentID == nil {
			continue
		}
		parent := byID[*inst.ParentID]
		for parent != nil && parent.Kind == "gen_scope" && parent.ParentID != nil {
			parent = byID[*parent.ParentID]
		}
		if parent == nil {
			continue
		}
		counts[key{parent.DefName, inst.DefName}]++
	}

	edges := make([]*DefinitionEdge, 0, len(counts))
	for k, n := range counts {
		edges = append(edges, &DefinitionEdge{Parent: k.parent, Child: k.child, Count: n})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Parent != edges[j].Parent {
			return edges[i].Parent < edges[j].Parent
		}
		return edges[i].Child < edges[j].Child
	})
	return edges, nil
}
