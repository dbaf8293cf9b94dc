package arbor

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/store"
)

// persist writes an elaborated design as run runID using a three-phase
// pipeline:
//
//	Phase A (parallel): each top's subtree is written to its own BatchedStore.
//	Phase B (serial):   batches are committed to SQLite in top order.
//	Phase C (serial):   diagnostics are committed in report order.
//
// Serial mode writes straight to the Store. Package subroutine references
// are written last, straight to the Store, in both modes.
func (e *Engine) persist(ctx context.Context, runID int64, d *design.Design, diags []diag.Diagnostic) error {
	roots := d.Forest.Roots()

	if !e.useParallel {
		for _, root := range roots {
			if err := newTreeWriter(e.store, runID, d.Forest).write(ctx, root); err != nil {
				return fmt.Errorf("write %s: %w", d.Forest.Path(root), err)
			}
		}
		for _, dg := range diags {
			if _, err := e.store.InsertDiagnostic(diagnosticRow(runID, dg)); err != nil {
				return err
			}
		}
		return e.persistPackageRefs(runID, d)
	}

	// ---- Phase A: parallel tree writes ----
	batches := make([]*store.BatchedStore, len(roots))
	workers := e.settings.Parallel
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, root := range roots {
		g.Go(func() error {
			batch := store.NewBatchedStore()
			if err := newTreeWriter(batch, runID, d.Forest).write(gctx, root); err != nil {
				return fmt.Errorf("write %s: %w", d.Forest.Path(root), err)
			}
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// ---- Phase B: serial commit ----
	for i, batch := range batches {
		if err := e.store.CommitBatch(batch); err != nil {
			return fmt.Errorf("commit %s: %w", d.Forest.Path(roots[i]), err)
		}
		e.logger.Debug("committed top",
			zap.String("top", d.Forest.Path(roots[i])),
			zap.Int("rows", batch.Len()))
	}

	// ---- Phase C: diagnostics ----
	batch := store.NewBatchedStore()
	for _, dg := range diags {
		if _, err := batch.InsertDiagnostic(diagnosticRow(runID, dg)); err != nil {
			return err
		}
	}
	if err := e.store.CommitBatch(batch); err != nil {
		return fmt.Errorf("commit diagnostics: %w", err)
	}
	return e.persistPackageRefs(runID, d)
}

func (e *Engine) persistPackageRefs(runID int64, d *design.Design) error {
	for _, pr := range d.Packages {
		for _, ref := range pr.Refs {
			row := &store.PackageReference{
				RunID:       runID,
				Package:     pr.Package.Name,
				Name:        ref.Name,
				FilePath:    ref.Loc.File,
				Line:        int(ref.Loc.Line),
				Col:         int(ref.Loc.Col),
				AsParameter: ref.AsParameter,
			}
			if t := ref.Target; t != nil {
				row.TargetKind = t.Kind.String()
				row.TargetName = t.Name
				row.TargetScope = t.Scope
			}
			if _, err := e.store.InsertPackageReference(row); err != nil {
				return fmt.Errorf("package %s: %w", pr.Package.Name, err)
			}
		}
	}
	return nil
}

// treeWriter writes one top's subtree. IDs returned by the DataStore are
// real for a Store and fake for a BatchedStore; the writer never needs to
// know which.
type treeWriter struct {
	ds     store.DataStore
	runID  int64
	forest *design.Forest

	instIDs map[design.InstanceID]int64
	netIDs  map[*design.Net]int64
	varIDs  map[*design.Variable]int64
	refIDs  map[*design.Reference]int64
}

func newTreeWriter(ds store.DataStore, runID int64, forest *design.Forest) *treeWriter {
	return &treeWriter{
		ds:      ds,
		runID:   runID,
		forest:  forest,
		instIDs: make(map[design.InstanceID]int64),
		netIDs:  make(map[*design.Net]int64),
		varIDs:  make(map[*design.Variable]int64),
		refIDs:  make(map[*design.Reference]int64),
	}
}

// write stores the subtree at root in three passes so every foreign key
// exists before it is used: instances with their declarations, then
// references (which may target nets anywhere in the subtree), then ports
// and their high-conn links.
func (w *treeWriter) write(ctx context.Context, root design.InstanceID) error {
	order := w.preorder(root)
	for _, inst := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.writeInstance(inst); err != nil {
			return err
		}
	}
	for _, inst := range order {
		if err := w.writeReferences(inst); err != nil {
			return err
		}
	}
	for _, inst := range order {
		if err := w.writePorts(inst); err != nil {
			return err
		}
	}
	return nil
}

func (w *treeWriter) preorder(root design.InstanceID) []*design.Instance {
	var out []*design.Instance
	stack := []design.InstanceID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		inst := w.forest.Get(id)
		if inst == nil {
			continue
		}
		out = append(out, inst)
		for i := len(inst.Children) - 1; i >= 0; i-- {
			stack = append(stack, inst.Children[i])
		}
	}
	return out
}

// ordinal is the position of inst among its siblings.
func (w *treeWriter) ordinal(inst *design.Instance) int {
	siblings := w.forest.Roots()
	if p := w.forest.Get(inst.Parent); p != nil {
		siblings = p.Children
	}
	for i, id := range siblings {
		if id == inst.ID {
			return i
		}
	}
	return 0
}

func (w *treeWriter) writeInstance(inst *design.Instance) error {
	row := &store.Instance{
		RunID:    w.runID,
		Name:     inst.Name,
		Path:     w.forest.Path(inst.ID),
		DefName:  inst.DefName,
		Kind:     inst.Kind.String(),
		Depth:    w.forest.Depth(inst.ID),
		Ordinal:  w.ordinal(inst),
		FilePath: inst.Loc.File,
		Line:     int(inst.Loc.Line),
		Col:      int(inst.Loc.Col),
		Config:   inst.Config,
	}
	if parentID, ok := w.instIDs[inst.Parent]; ok {
		row.ParentID = &parentID
	}
	if inst.BoundFrom != nil {
		row.BoundFrom = inst.BoundFrom.String()
	}
	id, err := w.ds.InsertInstance(row)
	if err != nil {
		return fmt.Errorf("instance %s: %w", row.Path, err)
	}
	w.instIDs[inst.ID] = id

	for _, p := range inst.Params() {
		prow := &store.Parameter{
			InstanceID: id,
			Name:       p.Name,
			Source:     p.Source.String(),
			Expr:       p.Expr,
			Evaluated:  p.Evaluated,
			IsType:     p.IsType,
			Overridden: inst.Overridden[p.Name],
		}
		if p.Evaluated {
			prow.Value = p.Value.String()
		}
		if _, err := w.ds.InsertParameter(prow); err != nil {
			return fmt.Errorf("parameter %s.%s: %w", row.Path, p.Name, err)
		}
	}
	for _, n := range inst.Netlist.Nets {
		nid, err := w.ds.InsertNet(&store.Net{
			InstanceID: id,
			Name:       n.Name,
			NetType:    n.NetType,
			Implicit:   n.Implicit,
			IsArray:    n.Array,
			Line:       int(n.Loc.Line),
			Col:        int(n.Loc.Col),
		})
		if err != nil {
			return fmt.Errorf("net %s.%s: %w", row.Path, n.Name, err)
		}
		w.netIDs[n] = nid
	}
	for _, v := range inst.Netlist.Variables {
		vid, err := w.ds.InsertVariable(&store.Variable{
			InstanceID: id,
			Name:       v.Name,
			Type:       v.Type,
			IsArray:    v.Array,
			Line:       int(v.Loc.Line),
			Col:        int(v.Loc.Col),
		})
		if err != nil {
			return fmt.Errorf("variable %s.%s: %w", row.Path, v.Name, err)
		}
		w.varIDs[v] = vid
	}
	return nil
}

// writeReferences stores inst's references. A target outside this subtree
// (a hierarchical name into another top) keeps its kind, name and scope but
// no row link.
func (w *treeWriter) writeReferences(inst *design.Instance) error {
	instID := w.instIDs[inst.ID]
	for _, ref := range inst.Netlist.Refs {
		row := &store.Reference{
			InstanceID:  instID,
			Name:        ref.Name,
			FilePath:    ref.Loc.File,
			Line:        int(ref.Loc.Line),
			Col:         int(ref.Loc.Col),
			AsParameter: ref.AsParameter,
		}
		if t := ref.Target; t != nil {
			row.TargetKind = t.Kind.String()
			row.TargetName = t.Name
			row.TargetScope = t.Scope
			if id, ok := w.netIDs[t.Net]; ok && t.Net != nil {
				row.TargetNetID = &id
			}
			if id, ok := w.varIDs[t.Variable]; ok && t.Variable != nil {
				row.TargetVariableID = &id
			}
		}
		id, err := w.ds.InsertReference(row)
		if err != nil {
			return fmt.Errorf("reference %s: %w", ref.Name, err)
		}
		w.refIDs[ref] = id
	}
	return nil
}

func (w *treeWriter) writePorts(inst *design.Instance) error {
	instID := w.instIDs[inst.ID]
	for _, p := range inst.Netlist.Ports {
		row := &store.Port{
			InstanceID:  instID,
			Name:        p.Name,
			Direction:   p.Direction,
			Ordinal:     p.Index,
			HighExpr:    p.HighExpr,
			Unconnected: p.Unconnected,
		}
		if id, ok := w.netIDs[p.LowConn]; ok && p.LowConn != nil {
			row.LowNetID = &id
		}
		portID, err := w.ds.InsertPort(row)
		if err != nil {
			return fmt.Errorf("port %s: %w", p.Name, err)
		}
		for _, ref := range p.HighConn {
			refID, ok := w.refIDs[ref]
			if !ok {
				continue
			}
			if _, err := w.ds.InsertPortConnection(&store.PortConnection{PortID: portID, ReferenceID: refID}); err != nil {
				return fmt.Errorf("port connection %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

func diagnosticRow(runID int64, d diag.Diagnostic) *store.Diagnostic {
	row := &store.Diagnostic{
		RunID:    runID,
		Kind:     string(d.Kind),
		Category: d.Kind.Category().String(),
		Severity: d.Severity.String(),
		Message:  d.Message,
		FilePath: d.Location.File,
		Line:     int(d.Location.Line),
		Col:      int(d.Location.Col),
	}
	for _, s := range d.Secondary {
		row.Secondary = append(row.Secondary, s.String())
	}
	return row
}
