package syntax

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/diag"
)

// NodeID indexes a node inside one FileContent. Zero is the sentinel node.
type NodeID uint32

// InvalidNode is the sentinel returned for absent or out-of-range nodes.
const InvalidNode NodeID = 0

// Node is one syntax tree node as stored in a FileContent.
type Node struct {
	Kind    Kind
	Name    SymbolID
	Attr    SymbolID
	Parent  NodeID
	Child   NodeID
	Sibling NodeID
	File    SymbolID
	Line    uint32
	Col     uint32
	EndLine uint32
	EndCol  uint32
}

// FileContent is the read-only node store for one design file. Nodes are
// addressed by index; node 0 is a sentinel and the source_text root is node 1.
type FileContent struct {
	path     string
	file     SymbolID
	symbols  *SymbolTable
	nodes    []Node
	tails    []NodeID
	reporter diag.Reporter
	logger   *zap.Logger
}

// Option configures a FileContent.
type Option func(*FileContent)

// WithReporter sets where out-of-range node accesses are reported.
func WithReporter(r diag.Reporter) Option {
	return func(fc *FileContent) { fc.reporter = r }
}

// WithLogger sets the logger used for internal errors.
func WithLogger(l *zap.Logger) Option {
	return func(fc *FileContent) {
		if l != nil {
			fc.logger = l
		}
	}
}

// NewFileContent returns an empty store holding the sentinel and a
// source_text root.
func NewFileContent(path string, symbols *SymbolTable, opts ...Option) *FileContent {
	if symbols == nil {
		symbols = NewSymbolTable()
	}
	fc := &FileContent{
		path:     path,
		file:     symbols.Register(path),
		symbols:  symbols,
		nodes:    make([]Node, 1, 64),
		tails:    make([]NodeID, 1, 64),
		reporter: diag.Discard,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fc)
	}
	fc.nodes[0].File = fc.file
	fc.Add(InvalidNode, KindSourceText, "", "", 0, 0)
	return fc
}

// SetReporter replaces the reporter used for internal errors.
func (fc *FileContent) SetReporter(r diag.Reporter) {
	if r == nil {
		r = diag.Discard
	}
	fc.reporter = r
}

// Path returns the file path the nodes came from.
func (fc *FileContent) Path() string { return fc.path }

// Symbols returns the shared symbol table.
func (fc *FileContent) Symbols() *SymbolTable { return fc.symbols }

// Root returns the source_text node.
func (fc *FileContent) Root() NodeID { return 1 }

// Len returns the number of nodes including the sentinel.
func (fc *FileContent) Len() int { return len(fc.nodes) }

// Add appends a node as the last child of parent and returns its id.
// A parent of InvalidNode creates a detached node; only the root is created
// that way.
func (fc *FileContent) Add(parent NodeID, kind Kind, name, attr string, line, col uint32) NodeID {
	if parent != InvalidNode && !fc.check(parent) {
		return InvalidNode
	}
	id := NodeID(len(fc.nodes))
	fc.nodes = append(fc.nodes, Node{
		Kind:   kind,
		Name:   fc.symbols.Register(name),
		Attr:   fc.symbols.Register(attr),
		Parent: parent,
		File:   fc.file,
		Line:   line,
		Col:    col,
	})
	fc.tails = append(fc.tails, InvalidNode)
	if parent != InvalidNode {
		if tail := fc.tails[parent]; tail != InvalidNode {
			fc.nodes[tail].Sibling = id
		} else {
			fc.nodes[parent].Child = id
		}
		fc.tails[parent] = id
	}
	return id
}

// SetEnd records the end position of id.
func (fc *FileContent) SetEnd(id NodeID, line, col uint32) {
	if !fc.check(id) || id == InvalidNode {
		return
	}
	fc.nodes[id].EndLine = line
	fc.nodes[id].EndCol = col
}

// check reports whether id is addressable. Out-of-range ids are reported as
// internal errors and callers fall back to the sentinel.
func (fc *FileContent) check(id NodeID) bool {
	if int(id) < len(fc.nodes) {
		return true
	}
	fc.logger.Warn("node index out of range",
		zap.String("file", fc.path),
		zap.Uint32("node", uint32(id)),
		zap.Int("size", len(fc.nodes)))
	fc.reporter.Report(diag.New(diag.NodeOutOfRange, diag.Location{File: fc.path},
		fmt.Sprintf("internal error: node index %d out of range (%d nodes)", id, len(fc.nodes))))
	return false
}

// Node returns the node at id, or the sentinel.
func (fc *FileContent) Node(id NodeID) Node {
	if !fc.check(id) {
		return fc.nodes[InvalidNode]
	}
	return fc.nodes[id]
}

// Kind returns the kind of id.
func (fc *FileContent) Kind(id NodeID) Kind { return fc.Node(id).Kind }

// Name returns the name of id.
func (fc *FileContent) Name(id NodeID) string { return fc.symbols.Name(fc.Node(id).Name) }

// Attr returns the attribute string of id.
func (fc *FileContent) Attr(id NodeID) string { return fc.symbols.Name(fc.Node(id).Attr) }

// Parent returns the parent of id.
func (fc *FileContent) Parent(id NodeID) NodeID { return fc.Node(id).Parent }

// Child returns the first child of id.
func (fc *FileContent) Child(id NodeID) NodeID { return fc.Node(id).Child }

// Sibling returns the next sibling of id.
func (fc *FileContent) Sibling(id NodeID) NodeID { return fc.Node(id).Sibling }

// Location returns the source range of id.
func (fc *FileContent) Location(id NodeID) diag.Location {
	n := fc.Node(id)
	return diag.Location{
		File:    fc.path,
		Line:    n.Line,
		Col:     n.Col,
		EndLine: n.EndLine,
		EndCol:  n.EndCol,
	}
}

// Children returns the direct children of id in order.
func (fc *FileContent) Children(id NodeID) []NodeID {
	var out []NodeID
	for c := fc.Child(id); c != InvalidNode; c = fc.Sibling(c) {
		out = append(out, c)
	}
	return out
}

// FirstChild returns id itself if it has one of kinds, else its first direct
// child with one of kinds, else InvalidNode.
func (fc *FileContent) FirstChild(id NodeID, kinds ...Kind) NodeID {
	if id == InvalidNode || !fc.check(id) {
		return InvalidNode
	}
	if fc.nodes[id].Kind.in(kinds) {
		return id
	}
	for c := fc.nodes[id].Child; c != InvalidNode; c = fc.nodes[c].Sibling {
		if fc.nodes[c].Kind.in(kinds) {
			return c
		}
	}
	return InvalidNode
}

// AllChildren returns the direct children of id having one of kinds.
func (fc *FileContent) AllChildren(id NodeID, kinds ...Kind) []NodeID {
	if id == InvalidNode || !fc.check(id) {
		return nil
	}
	var out []NodeID
	for c := fc.nodes[id].Child; c != InvalidNode; c = fc.nodes[c].Sibling {
		if fc.nodes[c].Kind.in(kinds) {
			out = append(out, c)
		}
	}
	return out
}

// Ancestor walks from id (inclusive) toward the root and returns the first
// node having one of kinds, with its kind.
func (fc *FileContent) Ancestor(id NodeID, kinds ...Kind) (NodeID, Kind) {
	if !fc.check(id) {
		return InvalidNode, KindSentinel
	}
	for cur := id; cur != InvalidNode; cur = fc.nodes[cur].Parent {
		if k := fc.nodes[cur].Kind; k.in(kinds) {
			return cur, k
		}
	}
	return InvalidNode, KindSentinel
}

// Collect returns the first node of kind found by a depth-first pre-order
// walk of id's subtree (id included). Subtrees rooted at a stop kind are not
// entered.
func (fc *FileContent) Collect(id NodeID, kind Kind, stops ...Kind) NodeID {
	if id == InvalidNode || !fc.check(id) {
		return InvalidNode
	}
	if fc.nodes[id].Kind == kind {
		return id
	}
	found := fc.CollectAll(id, []Kind{kind}, stops, true)
	if len(found) == 0 {
		return InvalidNode
	}
	return found[0]
}

// CollectAll walks id's descendants depth-first in pre-order and returns
// every node having one of kinds. Matching nodes are still descended into;
// stop kinds are reported if they match but never entered. With first set the
// walk ends at the first match.
func (fc *FileContent) CollectAll(id NodeID, kinds, stops []Kind, first bool) []NodeID {
	if id == InvalidNode || !fc.check(id) {
		return nil
	}
	var out []NodeID
	stack := make([]NodeID, 0, 16)
	if c := fc.nodes[id].Child; c != InvalidNode {
		stack = append(stack, c)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := fc.nodes[cur]
		if n.Kind.in(kinds) {
			out = append(out, cur)
			if first {
				return out
			}
		}
		if n.Sibling != InvalidNode {
			stack = append(stack, n.Sibling)
		}
		if n.Child != InvalidNode && !n.Kind.in(stops) {
			stack = append(stack, n.Child)
		}
	}
	return out
}

// Units returns the design-unit nodes directly under the root, in order.
func (fc *FileContent) Units() []NodeID {
	var out []NodeID
	for _, c := range fc.Children(fc.Root()) {
		if fc.nodes[c].Kind.IsDesignUnit() {
			out = append(out, c)
		}
	}
	return out
}
