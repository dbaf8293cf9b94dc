package design

import (
	"fmt"
	"strings"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// InstanceID is a stable index into a Forest.
type InstanceID int32

// NoInstance is the parent of top-level roots.
const NoInstance InstanceID = -1

// InstanceKind tags an Instance.
type InstanceKind uint8

const (
	InstModule InstanceKind = iota
	InstInterface
	InstProgram
	InstGenScope
	InstPrimitive
	InstUndefined
)

func (k InstanceKind) String() string {
	switch k {
	case InstModule:
		return "module"
	case InstInterface:
		return "interface"
	case InstProgram:
		return "program"
	case InstGenScope:
		return "gen_scope"
	case InstPrimitive:
		return "primitive"
	case InstUndefined:
		return "undefined"
	}
	return fmt.Sprintf("instkind(%d)", uint8(k))
}

// InstanceKindFor maps a definition to the kind of its instances.
func InstanceKindFor(def *Definition) InstanceKind {
	if def == nil {
		return InstUndefined
	}
	switch def.Kind {
	case DefModule:
		return InstModule
	case DefInterface:
		return InstInterface
	case DefProgram:
		return InstProgram
	case DefPrimitive:
		return InstPrimitive
	}
	return InstUndefined
}

// OverrideSource says where a parameter's value came from.
type OverrideSource uint8

const (
	SourceDefault OverrideSource = iota
	SourceExplicit
	SourceConfig
)

func (s OverrideSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceExplicit:
		return "explicit"
	case SourceConfig:
		return "config"
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// ParamOverride is the effective binding of one parameter at one instance.
// When Evaluated is false Value is unknown and Expr holds the expression
// text that could not be reduced.
type ParamOverride struct {
	Name      string
	Source    OverrideSource
	Value     eval.Value
	Expr      string
	Evaluated bool
	IsType    bool
	Loc       diag.Location
}

// Instance is one node of the elaborated hierarchy.
type Instance struct {
	ID       InstanceID
	Name     string
	DefName  string
	Def      *Definition
	Kind     InstanceKind
	Parent   InstanceID
	Children []InstanceID

	Netlist *Netlist
	// Overridden holds parameter names set explicitly or by a config rule
	// at this site.
	Overridden map[string]bool
	// Scope holds the parameter and genvar values visible in the body.
	Scope *eval.Bindings

	// File and Node locate the instantiation; for roots, the definition.
	File *syntax.FileContent
	Node syntax.NodeID
	// Body is the node whose children are elaborated into this instance.
	Body Source
	Loc  diag.Location

	// BoundFrom is the location of the bind statement that created this
	// instance, if any.
	BoundFrom *diag.Location
	// Config names the config rule that retargeted this instance.
	Config string
}

// Params returns the instance's effective parameter bindings.
func (i *Instance) Params() []ParamOverride {
	if i.Netlist == nil {
		return nil
	}
	return i.Netlist.ParamAssigns
}

// Param returns the effective binding of name.
func (i *Instance) Param(name string) (ParamOverride, bool) {
	for _, p := range i.Params() {
		if p.Name == name {
			return p, true
		}
	}
	return ParamOverride{}, false
}

// IsScopeLike reports whether the instance owns declarations of its own
// definition rather than being a generate scope inside one.
func (i *Instance) IsScopeLike() bool {
	switch i.Kind {
	case InstModule, InstInterface, InstProgram:
		return true
	}
	return false
}

// Forest is the arena holding every elaborated instance. Parent, child and
// definition relations are indices, so the forest can be merged, persisted
// or compared without pointer chasing.
type Forest struct {
	insts []*Instance
	roots []InstanceID
}

// NewForest returns an empty forest.
func NewForest() *Forest {
	return &Forest{}
}

// Add stores inst under parent (NoInstance for a root) and returns its id.
func (f *Forest) Add(parent InstanceID, inst *Instance) InstanceID {
	id := InstanceID(len(f.insts))
	inst.ID = id
	inst.Parent = parent
	if inst.Netlist == nil {
		inst.Netlist = &Netlist{}
	}
	if inst.Overridden == nil {
		inst.Overridden = make(map[string]bool)
	}
	f.insts = append(f.insts, inst)
	if parent == NoInstance {
		f.roots = append(f.roots, id)
	} else if p := f.Get(parent); p != nil {
		p.Children = append(p.Children, id)
	}
	return id
}

// Get returns the instance at id, or nil.
func (f *Forest) Get(id InstanceID) *Instance {
	if id < 0 || int(id) >= len(f.insts) {
		return nil
	}
	return f.insts[id]
}

// Len returns the number of instances.
func (f *Forest) Len() int { return len(f.insts) }

// Roots returns the top-level instance ids in declaration order.
func (f *Forest) Roots() []InstanceID {
	return append([]InstanceID(nil), f.roots...)
}

// Instances returns every instance in arena order.
func (f *Forest) Instances() []*Instance {
	return append([]*Instance(nil), f.insts...)
}

// Path returns the dot-separated hierarchical name of id.
func (f *Forest) Path(id InstanceID) string {
	var parts []string
	for cur := f.Get(id); cur != nil; cur = f.Get(cur.Parent) {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Depth returns 0 for roots, 1 for their children and so on.
func (f *Forest) Depth(id InstanceID) int {
	d := -1
	for cur := f.Get(id); cur != nil; cur = f.Get(cur.Parent) {
		d++
	}
	return d
}

// ChildByName returns the child of id named name.
func (f *Forest) ChildByName(id InstanceID, name string) *Instance {
	p := f.Get(id)
	if p == nil {
		return nil
	}
	for _, c := range p.Children {
		if ch := f.Get(c); ch != nil && ch.Name == name {
			return ch
		}
	}
	return nil
}

// Lookup finds an instance by its full path.
func (f *Forest) Lookup(path string) *Instance {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return nil
	}
	var cur *Instance
	for _, r := range f.roots {
		if inst := f.Get(r); inst.Name == segs[0] {
			cur = inst
			break
		}
	}
	for _, seg := range segs[1:] {
		if cur == nil {
			return nil
		}
		cur = f.ChildByName(cur.ID, seg)
	}
	return cur
}

// Walk visits every instance in pre-order, roots in declaration order and
// children in elaboration order. Returning false skips the subtree.
func (f *Forest) Walk(fn func(*Instance) bool) {
	stack := make([]InstanceID, 0, len(f.roots))
	for i := len(f.roots) - 1; i >= 0; i-- {
		stack = append(stack, f.roots[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		inst := f.Get(id)
		if !fn(inst) {
			continue
		}
		for i := len(inst.Children) - 1; i >= 0; i-- {
			stack = append(stack, inst.Children[i])
		}
	}
}

// EnclosingScope returns the nearest module, interface or program instance
// at or above id.
func (f *Forest) EnclosingScope(id InstanceID) *Instance {
	for cur := f.Get(id); cur != nil; cur = f.Get(cur.Parent) {
		if cur.IsScopeLike() || cur.Kind == InstUndefined {
			return cur
		}
	}
	return nil
}

// Graft moves every instance of other into f, renumbering ids. other must
// not be used afterwards.
func (f *Forest) Graft(other *Forest) {
	offset := InstanceID(len(f.insts))
	for _, inst := range other.insts {
		inst.ID += offset
		if inst.Parent != NoInstance {
			inst.Parent += offset
		}
		for i := range inst.Children {
			inst.Children[i] += offset
		}
		f.insts = append(f.insts, inst)
	}
	for _, r := range other.roots {
		f.roots = append(f.roots, r+offset)
	}
	other.insts, other.roots = nil, nil
}

// SplitPath splits a hierarchical path on dots outside brackets.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, r := range path {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				out = append(out, path[start:i])
				start = i + 1
			}
		}
	}
	return append(out, path[start:])
}

// Design is the elaboration handoff: the definition table and the forest
// whose roots are the top-level instances.
type Design struct {
	Table  *Table
	Forest *Forest
	// Packages holds the references made inside package functions and
	// tasks, filled by the resolver.
	Packages []*PackageRefs
}

// PackageRefs are the references inside one package's subroutines.
type PackageRefs struct {
	Package *Definition
	Refs    []*Reference
}

// Tops returns the top-level instances.
func (d *Design) Tops() []*Instance {
	var out []*Instance
	for _, id := range d.Forest.Roots() {
		out = append(out, d.Forest.Get(id))
	}
	return out
}
