package elab

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/hdlconfig"
	"github.com/jward/arbor/internal/params"
	"github.com/jward/arbor/internal/syntax"
)

func paramsRequest(def *design.Definition, site, inherited []design.SiteOverride, parent *eval.Bindings, path string, loc diag.Location) params.Request {
	return params.Request{
		Def:         def,
		Site:        site,
		Inherited:   inherited,
		ParentScope: parent,
		Path:        path,
		Loc:         loc,
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// instantiate elaborates every instance of one instantiation statement and
// returns the frames of their bodies. Port-connection references are added
// to refs, the instantiating scope's list.
func (w *worker) instantiate(f frame, node syntax.NodeID, refs *[]*design.Reference) ([]frame, error) {
	defName := f.fc.Name(node)
	site := design.SiteOverrides(f.fc, node)
	parentPath := w.forest.Path(f.inst)

	var out []frame
	for _, in := range f.fc.AllChildren(node, syntax.KindInstance) {
		name := f.fc.Name(in)
		loc := f.fc.Location(in)
		path := joinPath(parentPath, name)

		// One config resolution per instance; array elements share it.
		res := hdlconfig.Resolution{Target: defName, Context: f.cfg}
		if w.configs != nil {
			res = w.configs.Resolve(f.cfg, path, defName, nil)
		}
		def := w.table.Lookup(res.Target)
		conns := w.connections(f, in, def, refs)

		indices, ok := w.arrayIndices(f, in, path)
		if !ok {
			if def != nil {
				continue
			}
			// One placeholder stands for an undefined array with no usable range.
			indices = []string{""}
		}

		var fault diag.Kind
		var msg string
		switch {
		case def == nil:
			fault, msg = diag.UndefinedModule, fmt.Sprintf("%s: definition %s not found", path, res.Target)
		case !def.Kind.Instantiable():
			fault, msg = diag.NotInstantiable, fmt.Sprintf("%s: %s %s cannot be instantiated", path, def.Kind, def.Name)
		case f.depth+1 > w.maxDepth:
			fault, msg = diag.DepthLimit, fmt.Sprintf("%s exceeds the maximum hierarchy depth %d", path, w.maxDepth)
		case slices.Contains(f.chain, def.Name):
			fault, msg = diag.RecursiveInstantiation, fmt.Sprintf("%s: %s instantiates itself without a terminating generate", path, def.Name)
		}
		if fault != "" {
			w.rep.Report(diag.New(fault, loc, msg))
			for _, idx := range indices {
				w.forest.Add(f.inst, &design.Instance{
					Name:      name + idx,
					DefName:   res.Target,
					Kind:      design.InstUndefined,
					File:      f.fc,
					Node:      in,
					Loc:       loc,
					BoundFrom: f.boundFrom,
				})
			}
			continue
		}

		set, err := w.binder.BindTo(w.ctx, paramsRequest(def, site, res.Params, f.scope, path, loc), w.rep)
		if err != nil {
			return nil, err
		}
		plan := w.planConnections(def, conns, path, loc)
		body := def.Primary()
		for _, idx := range indices {
			inst := &design.Instance{
				Name:       name + idx,
				DefName:    def.Name,
				Def:        def,
				Kind:       design.InstanceKindFor(def),
				Overridden: maps.Clone(set.Overridden),
				Scope:      set.Bindings,
				File:       f.fc,
				Node:       in,
				Body:       body,
				Loc:        loc,
				BoundFrom:  f.boundFrom,
				Netlist:    &design.Netlist{ParamAssigns: slices.Clone(set.Overrides)},
			}
			if res.Rule != nil {
				inst.Config = res.Rule.String()
			}
			id := w.forest.Add(f.inst, inst)
			w.declarePorts(inst)
			plan.apply(inst)
			if def.Kind == design.DefPrimitive {
				continue
			}
			out = append(out, frame{
				inst:  id,
				fc:    body.File,
				body:  body.Node,
				scope: set.Bindings,
				chain: append(slices.Clone(f.chain), def.Name),
				depth: f.depth + 1,
				cfg:   res.Context,
			})
		}
		if res.Rule != nil {
			w.logger.Debug("config rule applied",
				zap.String("path", path),
				zap.String("definition", def.Name))
		}
	}
	return out, nil
}

// arrayIndices evaluates the instance's ranges and returns the index
// suffix of every element, or [""] for a scalar instance.
func (w *worker) arrayIndices(f frame, in syntax.NodeID, path string) ([]string, bool) {
	ranges := f.fc.AllChildren(in, syntax.KindRange)
	if len(ranges) == 0 {
		return []string{""}, true
	}
	suffixes := []string{""}
	for _, r := range ranges {
		idx, ok := w.rangeIndices(f, r, path)
		if !ok {
			return nil, false
		}
		if len(suffixes)*len(idx) > w.loopLimit {
			w.rep.Report(diag.New(diag.InvalidArrayRange, f.fc.Location(r),
				fmt.Sprintf("%s: instance array exceeds %d elements", path, w.loopLimit)))
			return nil, false
		}
		next := make([]string, 0, len(suffixes)*len(idx))
		for _, s := range suffixes {
			for _, i := range idx {
				next = append(next, fmt.Sprintf("%s[%d]", s, i))
			}
		}
		suffixes = next
	}
	return suffixes, true
}

// rangeIndices enumerates one dimension. [N] means [0:N-1].
func (w *worker) rangeIndices(f frame, r syntax.NodeID, path string) ([]int64, bool) {
	bounds := f.fc.AllChildren(r, syntax.KindExpr, syntax.KindRef)
	var vals []int64
	for _, b := range bounds {
		v, err := w.evaluator.Evaluate(w.ctx, f.fc, b, f.scope)
		n, isInt := v.AsInt()
		if err != nil || !isInt {
			w.rep.Report(diag.New(diag.InvalidArrayRange, f.fc.Location(r),
				fmt.Sprintf("%s: array bound %q cannot be evaluated", path, eval.Text(f.fc, b))))
			return nil, false
		}
		vals = append(vals, n)
	}
	var left, right int64
	switch len(vals) {
	case 1:
		if vals[0] <= 0 {
			w.rep.Report(diag.New(diag.InvalidArrayRange, f.fc.Location(r),
				fmt.Sprintf("%s: array size %d is not positive", path, vals[0])))
			return nil, false
		}
		left, right = 0, vals[0]-1
	case 2:
		left, right = vals[0], vals[1]
	default:
		w.rep.Report(diag.New(diag.InvalidArrayRange, f.fc.Location(r),
			fmt.Sprintf("%s: malformed array range", path)))
		return nil, false
	}
	if size := abs(right-left) + 1; size > int64(w.loopLimit) {
		w.rep.Report(diag.New(diag.InvalidArrayRange, f.fc.Location(r),
			fmt.Sprintf("%s: instance array exceeds %d elements", path, w.loopLimit)))
		return nil, false
	}

	from, to := left, right
	if w.arrayOrder == ArrayAscending && from > to {
		from, to = to, from
	}
	step := int64(1)
	if from > to {
		step = -1
	}
	var out []int64
	for i := from; ; i += step {
		out = append(out, i)
		if i == to {
			break
		}
	}
	return out, true
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// conn is one port connection written at an instantiation.
type conn struct {
	port string // "" for positional
	text string
	refs []*design.Reference
	// empty marks .p() and missing positional actuals.
	empty bool
	loc   diag.Location
}

// connections reads the port_conn children of an instance. Implicit .p
// connections become a reference to p; .* expands to every port of def not
// connected by name.
func (w *worker) connections(f frame, in syntax.NodeID, def *design.Definition, refs *[]*design.Reference) []conn {
	pcs := f.fc.AllChildren(in, syntax.KindPortConn)
	named := make(map[string]bool)
	for _, pc := range pcs {
		named[f.fc.Name(pc)] = true
	}
	var out []conn
	for _, pc := range pcs {
		name := f.fc.Name(pc)
		loc := f.fc.Location(pc)
		switch {
		case name == "*":
			if def == nil {
				continue
			}
			for _, p := range def.Ports {
				if named[p.Name] {
					continue
				}
				r := newRef(f.fc, pc, p.Name)
				*refs = append(*refs, r)
				out = append(out, conn{port: p.Name, text: p.Name, refs: []*design.Reference{r}, loc: loc})
			}
		case f.fc.Attr(pc) == "implicit":
			r := newRef(f.fc, pc, name)
			*refs = append(*refs, r)
			out = append(out, conn{port: name, text: name, refs: []*design.Reference{r}, loc: loc})
		default:
			c := conn{port: name, loc: loc}
			expr := f.fc.FirstChild(pc, syntax.KindExpr, syntax.KindRef)
			if expr == syntax.InvalidNode {
				c.empty = true
			} else {
				c.text = eval.Text(f.fc, expr)
				c.refs = collectRefs(f.fc, pc)
				*refs = append(*refs, c.refs...)
			}
			out = append(out, c)
		}
	}
	return out
}

// connPlan maps port names to connections, matched once per instance and
// applied to every array element.
type connPlan struct {
	byPort map[string]conn
}

func (w *worker) planConnections(def *design.Definition, conns []conn, path string, loc diag.Location) connPlan {
	plan := connPlan{byPort: make(map[string]conn)}
	pos := 0
	for _, c := range conns {
		port := c.port
		if port == "" {
			if pos >= len(def.Ports) {
				w.rep.Report(diag.New(diag.TooManyConnections, c.loc,
					fmt.Sprintf("%s: %s has %d ports, connection %d has no port", path, def.Name, len(def.Ports), pos+1)))
				pos++
				continue
			}
			port = def.Ports[pos].Name
			pos++
		} else if p, _ := def.Port(port); p == nil {
			w.rep.Report(diag.New(diag.UnknownPort, c.loc,
				fmt.Sprintf("%s: %s has no port %s", path, def.Name, port)))
			continue
		}
		if _, dup := plan.byPort[port]; dup {
			w.logger.Debug("port connected twice", zap.String("path", path), zap.String("port", port))
			continue
		}
		plan.byPort[port] = c
	}
	return plan
}

func (p connPlan) apply(inst *design.Instance) {
	for _, port := range inst.Netlist.Ports {
		c, ok := p.byPort[port.Name]
		if !ok || c.empty {
			port.Unconnected = true
			continue
		}
		port.HighConn = c.refs
		port.HighExpr = c.text
	}
}

// declarePorts creates inst's ports with their low-conn nets. Ports backed
// by a variable declaration have no net.
func (w *worker) declarePorts(inst *design.Instance) {
	def := inst.Def
	if def == nil {
		return
	}
	var dirs []string
	if def.Kind == design.DefPrimitive {
		dirs = Directions(def.Name, len(def.Ports))
	}
	for i, pd := range def.Ports {
		port := &design.Port{Name: pd.Name, Direction: pd.Direction, Index: i, Loc: pd.Location()}
		if dirs != nil {
			port.Direction = dirs[i]
		}
		sig := def.Signal(pd.Name)
		switch {
		case sig != nil && sig.Kind == design.SignalVar:
		case sig != nil:
			port.LowConn = inst.Netlist.AddNet(&design.Net{Name: pd.Name, NetType: sig.Type, Array: sig.Array, Loc: sig.Location()})
		default:
			port.LowConn = inst.Netlist.AddNet(&design.Net{Name: pd.Name, NetType: netTypeOf(def), Loc: pd.Location()})
		}
		inst.Netlist.Ports = append(inst.Netlist.Ports, port)
	}
}

// netTypeOf is the type of undeclared port nets.
func netTypeOf(def *design.Definition) string {
	if def.ImplicitNetsAllowed() {
		return def.DefaultNetType
	}
	return "wire"
}

// splitDotted reports whether a bind target names an instance path.
func splitDotted(target string) bool {
	return strings.Contains(target, ".")
}
