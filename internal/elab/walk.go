package elab

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/generate"
	"github.com/jward/arbor/internal/hdlconfig"
	"github.com/jward/arbor/internal/syntax"
)

// frame is one scope waiting on the work stack: an instance (or generate
// scope) whose body items have not been elaborated yet.
type frame struct {
	inst  design.InstanceID
	fc    *syntax.FileContent
	body  syntax.NodeID
	scope *eval.Bindings
	// chain holds the definitions on the ancestor path since the nearest
	// generate scope whose selection depends on a parameter.
	chain []string
	depth int
	cfg   *hdlconfig.Context
	// boundFrom is set on frames a bind statement instantiates into.
	boundFrom *diag.Location
}

// worker elaborates into one forest with one reporter. It is not safe for
// concurrent use; parallel builds use one worker per top.
type worker struct {
	*Builder
	ctx    context.Context
	forest *design.Forest
	rep    diag.Reporter
	stack  []frame
	binds  []Bind
	seen   map[bindKey]bool
}

func (b *Builder) newWorker(ctx context.Context, forest *design.Forest, rep diag.Reporter) *worker {
	if rep == nil {
		rep = diag.Discard
	}
	return &worker{
		Builder: b,
		ctx:     ctx,
		forest:  forest,
		rep:     rep,
		seen:    make(map[bindKey]bool),
	}
}

// buildTop creates the root instance for top and elaborates its subtree.
func (w *worker) buildTop(top string) error {
	def := w.table.Lookup(top)
	var cfg *hdlconfig.Context
	if w.configs != nil {
		cfg = w.configs.ContextFor(top)
	}
	if def == nil || !def.Kind.Instantiable() {
		w.rep.Report(diag.New(diag.UndefinedModule, diag.Location{},
			fmt.Sprintf("top-level definition %s not found", top)))
		w.forest.Add(design.NoInstance, &design.Instance{Name: top, DefName: top, Kind: design.InstUndefined})
		return nil
	}

	src := def.Primary()
	set, err := w.binder.BindTo(w.ctx, paramsRequest(def, nil, nil, nil, top, def.Location()), w.rep)
	if err != nil {
		return err
	}
	inst := &design.Instance{
		Name:       top,
		DefName:    def.Name,
		Def:        def,
		Kind:       design.InstanceKindFor(def),
		Overridden: set.Overridden,
		Scope:      set.Bindings,
		File:       src.File,
		Node:       src.Node,
		Body:       src,
		Loc:        def.Location(),
		Netlist:    &design.Netlist{ParamAssigns: set.Overrides},
	}
	id := w.forest.Add(design.NoInstance, inst)
	w.declarePorts(inst)
	if def.Kind == design.DefPrimitive {
		return nil
	}
	w.stack = append(w.stack, frame{
		inst:  id,
		fc:    src.File,
		body:  src.Node,
		scope: set.Bindings,
		chain: []string{def.Name},
		cfg:   cfg,
	})
	if err := w.run(); err != nil {
		return err
	}
	w.logger.Debug("top elaborated",
		zap.String("top", top),
		zap.Int("instances", w.forest.Len()))
	return nil
}

// run drains the work stack depth-first. Frames produced by one scope are
// pushed in reverse so siblings are elaborated in source order.
func (w *worker) run() error {
	for len(w.stack) > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		f := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		next, err := w.elaborate(f)
		if err != nil {
			return err
		}
		for i := len(next) - 1; i >= 0; i-- {
			w.stack = append(w.stack, next[i])
		}
	}
	return nil
}

// items returns the body items of node, with generate regions opened in
// place.
func items(fc *syntax.FileContent, body syntax.NodeID) []syntax.NodeID {
	var out []syntax.NodeID
	for _, c := range fc.Children(body) {
		if fc.Kind(c) == syntax.KindGenerate {
			out = append(out, items(fc, c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// elaborate processes the items of one scope and returns the frames of the
// scopes it created.
func (w *worker) elaborate(f frame) ([]frame, error) {
	inst := w.forest.Get(f.inst)
	nl := inst.Netlist
	var (
		refs    []*design.Reference
		next    []frame
		ordinal int
		gates   int
	)
	for _, item := range items(f.fc, f.body) {
		switch kind := f.fc.Kind(item); kind {
		case syntax.KindInstantiation:
			frames, err := w.instantiate(f, item, &refs)
			if err != nil {
				return nil, err
			}
			next = append(next, frames...)
		case syntax.KindGate:
			w.gates(f, item, &gates, &refs)
		case syntax.KindGenerateIf, syntax.KindGenerateFor, syntax.KindGenerateCase, syntax.KindGenerateBlock:
			ordinal++
			frames, err := w.generateScopes(f, item, ordinal)
			if err != nil {
				return nil, err
			}
			next = append(next, frames...)
		case syntax.KindBind:
			w.deferBind(f.fc, item)
		case syntax.KindNet:
			netType := f.fc.Attr(item)
			if netType == "" {
				netType = "wire"
			}
			nl.AddNet(&design.Net{
				Name:    f.fc.Name(item),
				NetType: netType,
				Array:   f.fc.FirstChild(item, syntax.KindRange) != syntax.InvalidNode,
				Loc:     f.fc.Location(item),
			})
			refs = append(refs, collectRefs(f.fc, item)...)
		case syntax.KindVar:
			nl.AddVariable(&design.Variable{
				Name:  f.fc.Name(item),
				Type:  f.fc.Attr(item),
				Array: f.fc.FirstChild(item, syntax.KindRange) != syntax.InvalidNode,
				Loc:   f.fc.Location(item),
			})
			refs = append(refs, collectRefs(f.fc, item)...)
		case syntax.KindParam, syntax.KindLocalParam:
			if inst.Kind == design.InstGenScope {
				if err := w.scopeParam(f, inst, item); err != nil {
					return nil, err
				}
			}
		case syntax.KindContAssign:
			nl.ContAssigns = append(nl.ContAssigns, &design.ContAssign{File: f.fc, Node: item, Loc: f.fc.Location(item)})
			refs = append(refs, collectRefs(f.fc, item)...)
		case syntax.KindAlways, syntax.KindInitial, syntax.KindFinal:
			nl.Processes = append(nl.Processes, &design.Process{Kind: kind.String(), File: f.fc, Node: item, Loc: f.fc.Location(item)})
			refs = append(refs, collectRefs(f.fc, item)...)
		case syntax.KindFunction, syntax.KindTask:
			refs = append(refs, collectRefs(f.fc, item)...)
		}
	}
	w.bindLocal(inst, refs)
	nl.Refs = append(nl.Refs, refs...)
	return next, nil
}

// generateScopes expands one generate construct into generate-scope
// instances under f's instance.
func (w *worker) generateScopes(f frame, node syntax.NodeID, ordinal int) ([]frame, error) {
	scopes, err := w.expander.ExpandTo(w.ctx, f.fc, node, f.scope, ordinal, w.rep)
	if err != nil {
		return nil, err
	}
	parent := w.forest.Get(f.inst)
	var out []frame
	for _, s := range scopes {
		if f.depth+1 > w.maxDepth {
			w.rep.Report(diag.New(diag.DepthLimit, s.Loc,
				fmt.Sprintf("%s.%s exceeds the maximum hierarchy depth %d", w.forest.Path(f.inst), s.Name, w.maxDepth)))
			w.forest.Add(f.inst, &design.Instance{Name: s.Name, Kind: design.InstUndefined, File: f.fc, Node: node, Loc: s.Loc})
			continue
		}
		inst := &design.Instance{
			Name:  s.Name,
			Def:   parent.Def,
			Kind:  design.InstGenScope,
			Scope: s.Bindings,
			File:  f.fc,
			Node:  node,
			Body:  design.Source{File: s.File, Node: s.Body},
			Loc:   s.Loc,
		}
		if s.Kind == generate.KindFor {
			inst.Netlist = &design.Netlist{ParamAssigns: []design.ParamOverride{{
				Name:      s.Genvar,
				Value:     eval.Int(s.Index),
				Expr:      fmt.Sprint(s.Index),
				Evaluated: true,
				Loc:       s.Loc,
			}}}
		}
		id := w.forest.Add(f.inst, inst)
		next := frame{
			inst:  id,
			fc:    s.File,
			body:  s.Body,
			scope: s.Bindings,
			depth: f.depth + 1,
			cfg:   f.cfg,
		}
		// A scope selected without reading parameters cannot end a
		// recursion, so the chain runs through it.
		if s.Constant {
			next.chain = f.chain
		}
		out = append(out, next)
	}
	return out, nil
}

// scopeParam binds a parameter declared inside a generate block in the
// block's own scope.
func (w *worker) scopeParam(f frame, inst *design.Instance, node syntax.NodeID) error {
	po := design.ParamOverride{
		Name:   f.fc.Name(node),
		IsType: f.fc.Attr(node) == "type",
		Loc:    f.fc.Location(node),
	}
	expr := f.fc.FirstChild(node, syntax.KindExpr)
	if expr == syntax.InvalidNode {
		inst.Netlist.ParamAssigns = append(inst.Netlist.ParamAssigns, po)
		return nil
	}
	po.Expr = eval.Text(f.fc, expr)
	if po.IsType {
		po.Value = eval.Type(eval.TypeHandle{Name: po.Expr, File: f.fc, Node: expr})
		po.Evaluated = true
	} else {
		v, err := w.evaluator.Evaluate(w.ctx, f.fc, expr, f.scope)
		if err := cancelled(err); err != nil {
			return err
		}
		if err == nil {
			po.Value, po.Evaluated = v, true
		}
	}
	if po.Evaluated {
		f.scope.Set(po.Name, po.Value)
	}
	inst.Netlist.ParamAssigns = append(inst.Netlist.ParamAssigns, po)
	return nil
}

// refStops are subtrees holding constant expressions; names there denote
// parameters and are bound by the parameter binder.
var refStops = []syntax.Kind{syntax.KindRange, syntax.KindParamAssign, syntax.KindParam, syntax.KindLocalParam}

// collectRefs turns every ref node under item into a Reference.
func collectRefs(fc *syntax.FileContent, item syntax.NodeID) []*design.Reference {
	var out []*design.Reference
	for _, r := range fc.CollectAll(item, []syntax.Kind{syntax.KindRef}, refStops, false) {
		out = append(out, newRef(fc, r, fc.Name(r)))
	}
	return out
}

func newRef(fc *syntax.FileContent, node syntax.NodeID, name string) *design.Reference {
	return &design.Reference{
		Name:   name,
		File:   fc,
		Node:   node,
		Parent: fc.Parent(node),
		Loc:    fc.Location(node),
	}
}

// lexicalScopes are the constructs whose declarations shadow the instance
// scope; references under them wait for the late-binding resolver.
var lexicalScopes = []syntax.Kind{
	syntax.KindFunction, syntax.KindTask, syntax.KindBlock, syntax.KindFork, syntax.KindFor,
}

// bindLocal binds references outside any lexical scope to the nets and
// variables of inst itself. Everything else is left to the resolver.
func (w *worker) bindLocal(inst *design.Instance, refs []*design.Reference) {
	path := w.forest.Path(inst.ID)
	for _, r := range refs {
		if r.Target != nil || hasLexicalScope(r) {
			continue
		}
		if net := inst.Netlist.Net(r.Name); net != nil {
			r.Target = &design.Target{Kind: design.TargetNet, Name: net.Name, Scope: path, Net: net, Loc: net.Loc}
			continue
		}
		if v := inst.Netlist.Variable(r.Name); v != nil {
			r.Target = &design.Target{Kind: design.TargetVariable, Name: v.Name, Scope: path, Variable: v, Loc: v.Loc}
		}
	}
}

func hasLexicalScope(r *design.Reference) bool {
	id, _ := r.File.Ancestor(r.Parent, lexicalScopes...)
	return id != syntax.InvalidNode
}

// cancelled returns err when it reports cancellation; evaluation failures
// are not errors for the walk.
func cancelled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
