package elab

import (
	"strconv"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// Terminal directions.
const (
	DirInput  = "input"
	DirOutput = "output"
	DirInout  = "inout"
)

// Directions returns the terminal directions of a primitive of kind with n
// terminals. Kinds not listed here, user-defined primitives included, have
// one output followed by inputs.
func Directions(kind string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = DirInput
	}
	if n == 0 {
		return out
	}
	switch kind {
	case "buf", "not":
		for i := 0; i < n-1; i++ {
			out[i] = DirOutput
		}
	case "tranif0", "tranif1", "rtranif0", "rtranif1":
		for i := 0; i < n-1; i++ {
			out[i] = DirInout
		}
	case "tran", "rtran":
		for i := range out {
			out[i] = DirInout
		}
	case "pullup", "pulldown":
		for i := range out {
			out[i] = DirOutput
		}
	default:
		out[0] = DirOutput
	}
	return out
}

// gates elaborates the instances of one builtin gate or switch statement as
// leaf primitive instances. Unnamed instances are numbered per scope through
// unnamed.
func (w *worker) gates(f frame, node syntax.NodeID, unnamed *int, refs *[]*design.Reference) {
	kind := f.fc.Name(node)
	parentPath := w.forest.Path(f.inst)
	instances := f.fc.AllChildren(node, syntax.KindInstance)
	if len(instances) == 0 {
		// A single unnamed gate may carry its terminals directly.
		instances = []syntax.NodeID{node}
	}
	for _, in := range instances {
		name := ""
		if in != node {
			name = f.fc.Name(in)
		}
		if name == "" {
			*unnamed++
			name = kind + "$" + strconv.Itoa(*unnamed)
		}
		path := joinPath(parentPath, name)
		indices, ok := w.arrayIndices(f, in, path)
		if !ok {
			continue
		}

		var terms []conn
		for _, pc := range f.fc.AllChildren(in, syntax.KindPortConn) {
			c := conn{loc: f.fc.Location(pc)}
			expr := f.fc.FirstChild(pc, syntax.KindExpr, syntax.KindRef)
			if expr == syntax.InvalidNode {
				c.empty = true
			} else {
				c.text = eval.Text(f.fc, expr)
				c.refs = collectRefs(f.fc, pc)
				*refs = append(*refs, c.refs...)
			}
			terms = append(terms, c)
		}
		dirs := Directions(kind, len(terms))

		for _, idx := range indices {
			inst := &design.Instance{
				Name:      name + idx,
				DefName:   kind,
				Kind:      design.InstPrimitive,
				File:      f.fc,
				Node:      in,
				Loc:       f.fc.Location(in),
				BoundFrom: f.boundFrom,
				Netlist:   &design.Netlist{},
			}
			for i, t := range terms {
				inst.Netlist.Ports = append(inst.Netlist.Ports, &design.Port{
					Name:        strconv.Itoa(i),
					Direction:   dirs[i],
					Index:       i,
					HighConn:    t.refs,
					HighExpr:    t.text,
					Unconnected: t.empty,
					Loc:         t.loc,
				})
			}
			w.forest.Add(f.inst, inst)
		}
	}
}
