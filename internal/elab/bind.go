package elab

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/hdlconfig"
	"github.com/jward/arbor/internal/syntax"
)

// Bind is a bind statement waiting for the bind pass. Target is a
// definition name (every instance of it) or a dotted instance path.
type Bind struct {
	Target string
	File   *syntax.FileContent
	Node   syntax.NodeID
	Loc    diag.Location
}

type bindKey struct {
	file *syntax.FileContent
	node syntax.NodeID
}

// deferBind records a bind statement once, however many instances carry it.
func (w *worker) deferBind(fc *syntax.FileContent, node syntax.NodeID) {
	key := bindKey{fc, node}
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.binds = append(w.binds, Bind{Target: fc.Name(node), File: fc, Node: node, Loc: fc.Location(node)})
}

// applyBinds instantiates every bind statement under its targets. Bound
// subtrees may carry further binds; they are applied in turn.
func (w *worker) applyBinds(initial []Bind) error {
	var queue []Bind
	for _, bd := range initial {
		key := bindKey{bd.File, bd.Node}
		if w.seen[key] {
			continue
		}
		w.seen[key] = true
		queue = append(queue, bd)
	}
	for i := 0; i < len(queue); i++ {
		bd := queue[i]
		if err := w.applyBind(bd); err != nil {
			return err
		}
		queue = append(queue, w.binds...)
		w.binds = nil
	}
	return nil
}

func (w *worker) applyBind(bd Bind) error {
	node := bd.File.FirstChild(bd.Node, syntax.KindInstantiation)
	targets := w.bindTargets(bd.Target)
	if node == syntax.InvalidNode || len(targets) == 0 {
		w.rep.Report(diag.New(diag.BindTarget, bd.Loc,
			fmt.Sprintf("bind target %s matches no instance", bd.Target)))
		return nil
	}
	for _, t := range targets {
		loc := bd.Loc
		f := frame{
			inst:      t.ID,
			fc:        bd.File,
			body:      bd.Node,
			scope:     t.Scope,
			chain:     w.chainOf(t),
			depth:     w.forest.Depth(t.ID),
			cfg:       w.configFor(t),
			boundFrom: &loc,
		}
		var refs []*design.Reference
		frames, err := w.instantiate(f, node, &refs)
		if err != nil {
			return err
		}
		// Port actuals of a bound instance are names of the target scope.
		w.bindLocal(t, refs)
		t.Netlist.Refs = append(t.Netlist.Refs, refs...)
		for i := len(frames) - 1; i >= 0; i-- {
			w.stack = append(w.stack, frames[i])
		}
		if err := w.run(); err != nil {
			return err
		}
		w.logger.Debug("bind applied",
			zap.String("target", w.forest.Path(t.ID)),
			zap.String("definition", bd.File.Name(node)))
	}
	return nil
}

// bindTargets returns the instances a bind statement attaches under.
func (w *worker) bindTargets(target string) []*design.Instance {
	if splitDotted(target) {
		if inst := w.forest.Lookup(target); inst != nil && inst.Def != nil && inst.IsScopeLike() {
			return []*design.Instance{inst}
		}
		return nil
	}
	var out []*design.Instance
	w.forest.Walk(func(inst *design.Instance) bool {
		if inst.Def != nil && inst.IsScopeLike() && inst.DefName == target {
			out = append(out, inst)
		}
		return true
	})
	return out
}

// chainOf rebuilds the recursion chain of inst: its definition and those of
// its ancestors up to the nearest generate scope.
func (w *worker) chainOf(inst *design.Instance) []string {
	var chain []string
	for cur := inst; cur != nil && cur.Kind != design.InstGenScope; cur = w.forest.Get(cur.Parent) {
		chain = append(chain, cur.DefName)
	}
	slices.Reverse(chain)
	return chain
}

func (w *worker) configFor(inst *design.Instance) *hdlconfig.Context {
	if w.configs == nil {
		return nil
	}
	root := inst
	for p := w.forest.Get(root.Parent); p != nil; p = w.forest.Get(p.Parent) {
		root = p
	}
	return w.configs.ContextFor(root.DefName)
}
