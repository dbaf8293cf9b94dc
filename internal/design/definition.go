package design

import (
	"fmt"
	"strings"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// DefKind tags a Definition.
type DefKind uint8

const (
	DefModule DefKind = iota
	DefInterface
	DefProgram
	DefPackage
	DefClass
	DefPrimitive
	DefConfig
)

func (k DefKind) String() string {
	switch k {
	case DefModule:
		return "module"
	case DefInterface:
		return "interface"
	case DefProgram:
		return "program"
	case DefPackage:
		return "package"
	case DefClass:
		return "class"
	case DefPrimitive:
		return "primitive"
	case DefConfig:
		return "config"
	}
	return fmt.Sprintf("defkind(%d)", uint8(k))
}

// Instantiable reports whether a unit of kind k may appear in an
// instantiation.
func (k DefKind) Instantiable() bool {
	switch k {
	case DefModule, DefInterface, DefProgram, DefPrimitive:
		return true
	}
	return false
}

// Reopenable reports whether partial declarations of kind k merge.
func (k DefKind) Reopenable() bool {
	return k == DefPackage || k == DefClass
}

func defKindOf(k syntax.Kind) (DefKind, bool) {
	switch k {
	case syntax.KindModule:
		return DefModule, true
	case syntax.KindInterface:
		return DefInterface, true
	case syntax.KindProgram:
		return DefProgram, true
	case syntax.KindPackage:
		return DefPackage, true
	case syntax.KindClass:
		return DefClass, true
	case syntax.KindPrimitive:
		return DefPrimitive, true
	case syntax.KindConfig:
		return DefConfig, true
	}
	return 0, false
}

// Source is one syntax node a Definition was assembled from.
type Source struct {
	File *syntax.FileContent
	Node syntax.NodeID
}

// Location of the source node.
func (s Source) Location() diag.Location {
	if s.File == nil {
		return diag.Location{}
	}
	return s.File.Location(s.Node)
}

// Param is a parameter declaration.
type Param struct {
	Name  string
	Local bool
	// IsType marks a type parameter; Default then names a typespec.
	IsType  bool
	Default syntax.NodeID
	Source
}

// PortDecl is a port declaration.
type PortDecl struct {
	Name      string
	Direction string
	Source
}

// SignalKind separates nets from variables.
type SignalKind uint8

const (
	SignalNet SignalKind = iota
	SignalVar
)

// Signal is a net or variable declared in a definition body.
type Signal struct {
	Name  string
	Kind  SignalKind
	Type  string
	Array bool
	Source
}

// Typedef is a named type. Enum typedefs list their constants; alias
// typedefs name the type they rename.
type Typedef struct {
	Name       string
	Alias      string
	EnumConsts []string
	Source
}

// HasEnumConst reports whether c is one of the typedef's constants.
func (t *Typedef) HasEnumConst(c string) bool {
	for _, e := range t.EnumConsts {
		if e == c {
			return true
		}
	}
	return false
}

// Subroutine is a function or task declaration.
type Subroutine struct {
	Name string
	Task bool
	Source
}

// Import is a package import; Item is "*" for a wildcard import.
type Import struct {
	Package string
	Item    string
}

// ParseImport splits "pkg::item".
func ParseImport(s string) (Import, bool) {
	pkg, item, ok := strings.Cut(s, "::")
	if !ok || pkg == "" || item == "" {
		return Import{}, false
	}
	return Import{Package: pkg, Item: item}, true
}

// Definition is one named design unit. It is immutable once the Table is
// built.
type Definition struct {
	Name string
	Kind DefKind

	Params    []*Param
	Ports     []*PortDecl
	Signals   []*Signal
	Typedefs  map[string]*Typedef
	Functions map[string]*Subroutine
	Tasks     map[string]*Subroutine
	Imports   []Import

	// DefaultNetType is the net type of implicit nets, or "" / "none" when
	// implicit nets are illegal.
	DefaultNetType string

	Sources []Source
}

func newDefinition(name string, kind DefKind) *Definition {
	return &Definition{
		Name:      name,
		Kind:      kind,
		Typedefs:  make(map[string]*Typedef),
		Functions: make(map[string]*Subroutine),
		Tasks:     make(map[string]*Subroutine),
	}
}

// Primary returns the first source the definition came from.
func (d *Definition) Primary() Source {
	if len(d.Sources) == 0 {
		return Source{}
	}
	return d.Sources[0]
}

// Location of the primary source.
func (d *Definition) Location() diag.Location {
	return d.Primary().Location()
}

// Param returns the named parameter declaration.
func (d *Definition) Param(name string) *Param {
	for _, p := range d.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Port returns the named port and its position.
func (d *Definition) Port(name string) (*PortDecl, int) {
	for i, p := range d.Ports {
		if p.Name == name {
			return p, i
		}
	}
	return nil, -1
}

// Signal returns the named net or variable.
func (d *Definition) Signal(name string) *Signal {
	for _, s := range d.Signals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ImplicitNetsAllowed reports whether undeclared names become nets.
func (d *Definition) ImplicitNetsAllowed() bool {
	return d.DefaultNetType != "" && d.DefaultNetType != "none"
}

// ItemKind tags a named item of a definition's scope.
type ItemKind uint8

const (
	ItemVariable ItemKind = iota
	ItemNet
	ItemParameter
	ItemTypedef
	ItemEnumConst
	ItemFunction
	ItemTask
)

func (k ItemKind) String() string {
	return [...]string{"variable", "net", "parameter", "typedef", "enum_const", "function", "task"}[k]
}

// Item is a named declaration found in a definition's scope.
type Item struct {
	Kind  ItemKind
	Name  string
	Scope string
	Loc   diag.Location
}

// Item finds a declaration visible at the definition's own scope, as a
// package lookup sees it. Variables may be declared in qualified
// "scope::name" form.
func (d *Definition) Item(name string) (Item, bool) {
	qualified := d.Name + "::" + name
	for _, s := range d.Signals {
		if s.Name == name || s.Name == qualified {
			k := ItemVariable
			if s.Kind == SignalNet {
				k = ItemNet
			}
			return Item{Kind: k, Name: name, Scope: d.Name, Loc: s.Location()}, true
		}
	}
	if p := d.Param(name); p != nil {
		return Item{Kind: ItemParameter, Name: name, Scope: d.Name, Loc: p.Location()}, true
	}
	if td, ok := d.Typedefs[name]; ok {
		return Item{Kind: ItemTypedef, Name: name, Scope: d.Name, Loc: td.Location()}, true
	}
	for _, td := range d.typedefsInOrder() {
		if td.HasEnumConst(name) {
			return Item{Kind: ItemEnumConst, Name: name, Scope: d.Name, Loc: td.Location()}, true
		}
	}
	if f, ok := d.Functions[name]; ok {
		return Item{Kind: ItemFunction, Name: name, Scope: d.Name, Loc: f.Location()}, true
	}
	if tk, ok := d.Tasks[name]; ok {
		return Item{Kind: ItemTask, Name: name, Scope: d.Name, Loc: tk.Location()}, true
	}
	return Item{}, false
}

// typedefsInOrder returns typedefs sorted by source position so enum
// constant lookups are deterministic.
func (d *Definition) typedefsInOrder() []*Typedef {
	out := make([]*Typedef, 0, len(d.Typedefs))
	for _, td := range d.Typedefs {
		out = append(out, td)
	}
	sortTypedefs(out)
	return out
}
