package design

import (
	"fmt"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// Net is an elaborated net.
type Net struct {
	Name     string
	NetType  string
	Implicit bool
	Array    bool
	Loc      diag.Location
}

// Variable is an elaborated variable.
type Variable struct {
	Name  string
	Type  string
	Array bool
	Loc   diag.Location
}

// Port is a port of an instance. HighConn is the actual expression connected
// at the instantiation site, LowConn the net inside the instance.
type Port struct {
	Name        string
	Direction   string
	Index       int
	HighConn    []*Reference
	HighExpr    string
	LowConn     *Net
	Unconnected bool
	Loc         diag.Location
}

// ContAssign is a continuous assignment.
type ContAssign struct {
	File *syntax.FileContent
	Node syntax.NodeID
	Loc  diag.Location
}

// Process is an always, initial or final construct.
type Process struct {
	Kind string
	File *syntax.FileContent
	Node syntax.NodeID
	Loc  diag.Location
}

// Netlist is the per-instance collection of elaborated objects.
type Netlist struct {
	Ports        []*Port
	Nets         []*Net
	Variables    []*Variable
	ContAssigns  []*ContAssign
	Processes    []*Process
	ParamAssigns []ParamOverride
	Refs         []*Reference
}

// Net returns the named net, preferring scalar nets over arrayed ones.
func (n *Netlist) Net(name string) *Net {
	var arrayed *Net
	for _, net := range n.Nets {
		if net.Name != name {
			continue
		}
		if !net.Array {
			return net
		}
		if arrayed == nil {
			arrayed = net
		}
	}
	return arrayed
}

// Variable returns the named variable.
func (n *Netlist) Variable(name string) *Variable {
	for _, v := range n.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Port returns the named port.
func (n *Netlist) Port(name string) *Port {
	for _, p := range n.Ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// AddNet appends a net unless one with the same name exists, and returns
// the net stored under that name.
func (n *Netlist) AddNet(net *Net) *Net {
	for _, existing := range n.Nets {
		if existing.Name == net.Name && existing.Array == net.Array {
			return existing
		}
	}
	n.Nets = append(n.Nets, net)
	return net
}

// AddVariable appends v unless a variable with the same name exists.
func (n *Netlist) AddVariable(v *Variable) *Variable {
	if existing := n.Variable(v.Name); existing != nil {
		return existing
	}
	n.Variables = append(n.Variables, v)
	return v
}

// Unresolved returns the references with no binding yet.
func (n *Netlist) Unresolved() []*Reference {
	var out []*Reference
	for _, r := range n.Refs {
		if !r.Resolved() {
			out = append(out, r)
		}
	}
	return out
}

// TargetKind tags what a reference resolved to.
type TargetKind uint8

const (
	TargetNet TargetKind = iota
	TargetVariable
	TargetReturn
	TargetIODecl
	TargetLocalVar
	TargetLocalParam
	TargetLoopVar
	TargetAssignLHS
	TargetTypespec
	TargetEnumConst
	TargetPackageItem
	TargetImportedItem
	TargetImplicitNet
	TargetSubroutine
)

var targetKindNames = [...]string{
	TargetNet:          "net",
	TargetVariable:     "variable",
	TargetReturn:       "return",
	TargetIODecl:       "io_decl",
	TargetLocalVar:     "local_var",
	TargetLocalParam:   "local_param",
	TargetLoopVar:      "loop_var",
	TargetAssignLHS:    "assign_lhs",
	TargetTypespec:     "typespec",
	TargetEnumConst:    "enum_const",
	TargetPackageItem:  "package_item",
	TargetImportedItem: "imported_item",
	TargetImplicitNet:  "implicit_net",
	TargetSubroutine:   "subroutine",
}

func (k TargetKind) String() string {
	if int(k) < len(targetKindNames) {
		return targetKindNames[k]
	}
	return fmt.Sprintf("target(%d)", uint8(k))
}

// Target is what a reference is bound to.
type Target struct {
	Kind TargetKind
	Name string
	// Scope names where the target was found: an instance path, a
	// function, block or package name.
	Scope    string
	Net      *Net
	Variable *Variable
	Loc      diag.Location
}

// Reference is a name in an expression or statement position. References
// the builder cannot bind immediately are completed by the late-binding
// resolver, which only ever fills Target or AsParameter.
type Reference struct {
	Name string
	File *syntax.FileContent
	Node syntax.NodeID
	// Parent is the lexical parent node the resolver walks outward from.
	Parent syntax.NodeID
	Loc    diag.Location

	Target *Target
	// AsParameter marks a name that denotes a parameter; parameters are
	// bound by the parameter binder, not here.
	AsParameter bool
}

// Bound reports whether a target was found.
func (r *Reference) Bound() bool { return r.Target != nil }

// Resolved reports whether the reference needs no further binding.
func (r *Reference) Resolved() bool { return r.Target != nil || r.AsParameter }
