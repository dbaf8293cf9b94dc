package design

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// ErrNoDefinitions is returned when the design set holds no design units.
// It is the only condition that aborts elaboration as a whole.
var ErrNoDefinitions = errors.New("design: no definitions in design set")

// Table is the registry of definitions by name. It is built once before
// elaboration and read-only afterwards, so concurrent readers need no
// locking.
type Table struct {
	defs     map[string]*Definition
	order    []string
	files    []*syntax.FileContent
	typedefs map[*syntax.FileContent][]*Typedef
}

// TableOption configures BuildTable.
type TableOption func(*tableBuilder)

// WithReporter sets where table diagnostics go.
func WithReporter(r diag.Reporter) TableOption {
	return func(b *tableBuilder) { b.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) TableOption {
	return func(b *tableBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDefaultNetType sets the default net type of units that carry no
// default_nettype directive of their own or from their file.
func WithDefaultNetType(netType string) TableOption {
	return func(b *tableBuilder) { b.defaultNetType = netType }
}

type tableBuilder struct {
	reporter       diag.Reporter
	logger         *zap.Logger
	defaultNetType string
	table          *Table
}

// BuildTable registers every design unit of files in a single pass.
// Packages and classes declared more than once are merged; any other name
// collision is reported as multiply defined and the first declaration kept.
func BuildTable(files []*syntax.FileContent, opts ...TableOption) (*Table, error) {
	b := &tableBuilder{
		reporter: diag.Discard,
		logger:   zap.NewNop(),
		table: &Table{
			defs:     make(map[string]*Definition),
			files:    files,
			typedefs: make(map[*syntax.FileContent][]*Typedef),
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, fc := range files {
		b.addFile(fc)
	}
	if len(b.table.order) == 0 {
		return nil, ErrNoDefinitions
	}
	b.logger.Debug("definition table built",
		zap.Int("files", len(files)),
		zap.Int("definitions", len(b.table.order)))
	return b.table, nil
}

func (b *tableBuilder) addFile(fc *syntax.FileContent) {
	netType := b.defaultNetType
	for _, n := range fc.Children(fc.Root()) {
		switch kind := fc.Kind(n); {
		case kind == syntax.KindDefaultNetType:
			// Compilation-unit directive: applies to every following unit.
			netType = fc.Attr(n)
		case kind == syntax.KindTypedef:
			b.table.typedefs[fc] = append(b.table.typedefs[fc], collectTypedef(fc, n))
		case kind.IsDesignUnit():
			b.addUnit(fc, n, netType)
		}
	}
}

func (b *tableBuilder) addUnit(fc *syntax.FileContent, node syntax.NodeID, netType string) {
	kind, _ := defKindOf(fc.Kind(node))
	name := fc.Name(node)
	def := newDefinition(name, kind)
	def.DefaultNetType = netType
	def.Sources = []Source{{File: fc, Node: node}}
	collectBody(def, fc, node)

	existing, ok := b.table.defs[name]
	if !ok {
		b.table.defs[name] = def
		b.table.order = append(b.table.order, name)
		b.addTypedefs(fc, def)
		return
	}
	if existing.Kind == kind && kind.Reopenable() {
		mergeInto(existing, def)
		b.addTypedefs(fc, def)
		b.logger.Debug("merged partial declaration",
			zap.String("name", name),
			zap.String("kind", kind.String()),
			zap.String("file", fc.Path()))
		return
	}
	b.reporter.Report(diag.New(diag.MultiplyDefined, fc.Location(node),
		fmt.Sprintf("%s %s multiply defined (previously declared as %s)", kind, name, existing.Kind),
		existing.Location()))
}

func (b *tableBuilder) addTypedefs(fc *syntax.FileContent, def *Definition) {
	for _, td := range def.Typedefs {
		b.table.typedefs[fc] = append(b.table.typedefs[fc], td)
	}
}

// collectBody records the declarations directly inside a unit. Declarations
// nested in generate blocks belong to generate scopes and are collected by
// the instance builder instead.
func collectBody(def *Definition, fc *syntax.FileContent, node syntax.NodeID) {
	for _, c := range fc.Children(node) {
		src := Source{File: fc, Node: c}
		switch fc.Kind(c) {
		case syntax.KindParam, syntax.KindLocalParam:
			def.Params = append(def.Params, &Param{
				Name:    fc.Name(c),
				Local:   fc.Kind(c) == syntax.KindLocalParam,
				IsType:  fc.Attr(c) == "type",
				Default: fc.FirstChild(c, syntax.KindExpr),
				Source:  src,
			})
		case syntax.KindPort:
			dir := fc.Attr(c)
			if dir == "" {
				dir = "inout"
			}
			def.Ports = append(def.Ports, &PortDecl{Name: fc.Name(c), Direction: dir, Source: src})
		case syntax.KindNet:
			typ := fc.Attr(c)
			if typ == "" {
				typ = "wire"
			}
			def.Signals = append(def.Signals, &Signal{
				Name:   fc.Name(c),
				Kind:   SignalNet,
				Type:   typ,
				Array:  fc.FirstChild(c, syntax.KindRange) != syntax.InvalidNode,
				Source: src,
			})
		case syntax.KindVar:
			def.Signals = append(def.Signals, &Signal{
				Name:   fc.Name(c),
				Kind:   SignalVar,
				Type:   fc.Attr(c),
				Array:  fc.FirstChild(c, syntax.KindRange) != syntax.InvalidNode,
				Source: src,
			})
		case syntax.KindTypedef:
			td := collectTypedef(fc, c)
			def.Typedefs[td.Name] = td
		case syntax.KindFunction:
			def.Functions[fc.Name(c)] = &Subroutine{Name: fc.Name(c), Source: src}
		case syntax.KindTask:
			def.Tasks[fc.Name(c)] = &Subroutine{Name: fc.Name(c), Task: true, Source: src}
		case syntax.KindImport:
			if imp, ok := ParseImport(fc.Name(c)); ok {
				def.Imports = append(def.Imports, imp)
			}
		case syntax.KindDefaultNetType:
			def.DefaultNetType = fc.Attr(c)
		}
	}
}

func collectTypedef(fc *syntax.FileContent, node syntax.NodeID) *Typedef {
	td := &Typedef{Name: fc.Name(node), Alias: fc.Attr(node), Source: Source{File: fc, Node: node}}
	for _, c := range fc.AllChildren(node, syntax.KindEnumConst) {
		td.EnumConsts = append(td.EnumConsts, fc.Name(c))
	}
	return td
}

func mergeInto(dst, src *Definition) {
	dst.Params = append(dst.Params, src.Params...)
	dst.Ports = append(dst.Ports, src.Ports...)
	dst.Signals = append(dst.Signals, src.Signals...)
	for k, v := range src.Typedefs {
		if _, ok := dst.Typedefs[k]; !ok {
			dst.Typedefs[k] = v
		}
	}
	for k, v := range src.Functions {
		if _, ok := dst.Functions[k]; !ok {
			dst.Functions[k] = v
		}
	}
	for k, v := range src.Tasks {
		if _, ok := dst.Tasks[k]; !ok {
			dst.Tasks[k] = v
		}
	}
	dst.Imports = append(dst.Imports, src.Imports...)
	dst.Sources = append(dst.Sources, src.Sources...)
}

// Lookup returns the definition named name, or nil.
func (t *Table) Lookup(name string) *Definition {
	return t.defs[name]
}

// Names returns definition names in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Definitions returns definitions in declaration order.
func (t *Table) Definitions() []*Definition {
	out := make([]*Definition, len(t.order))
	for i, name := range t.order {
		out[i] = t.defs[name]
	}
	return out
}

// Files returns the node stores the table was built from.
func (t *Table) Files() []*syntax.FileContent {
	return t.files
}

// PackageItem resolves pkg::name by direct package lookup.
func (t *Table) PackageItem(pkg, name string) (Item, bool) {
	def := t.defs[pkg]
	if def == nil || def.Kind != DefPackage {
		return Item{}, false
	}
	return def.Item(name)
}

// FileTypedefs returns every typedef declared in fc, at file level or inside
// any of its units, ordered by position.
func (t *Table) FileTypedefs(fc *syntax.FileContent) []*Typedef {
	out := append([]*Typedef(nil), t.typedefs[fc]...)
	sortTypedefs(out)
	return out
}

func sortTypedefs(tds []*Typedef) {
	sort.SliceStable(tds, func(i, j int) bool {
		a, b := tds[i].Source, tds[j].Source
		if a.File != b.File {
			return a.File.Path() < b.File.Path()
		}
		return a.Node < b.Node
	})
}
