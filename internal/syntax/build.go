package syntax

// N builds a SourceNode. It is the shorthand used to assemble designs in
// code, mostly from tests.
func N(kind Kind, name string, children ...SourceNode) SourceNode {
	return SourceNode{Kind: kind.String(), Name: name, Children: children}
}

// E builds an expression node holding text, with a ref child per identifier.
func E(text string, refs ...string) SourceNode {
	n := SourceNode{Kind: KindExpr.String(), Name: text}
	for _, r := range refs {
		n.Children = append(n.Children, SourceNode{Kind: KindRef.String(), Name: r})
	}
	return n
}

// WithAttr returns a copy of n with its attribute set.
func (n SourceNode) WithAttr(attr string) SourceNode {
	n.Attr = attr
	return n
}

// At returns a copy of n positioned at line and col.
func (n SourceNode) At(line, col uint32) SourceNode {
	n.Line, n.Col = line, col
	return n
}

// File wraps nodes into a SourceFile named path.
func File(path string, nodes ...SourceNode) *SourceFile {
	return &SourceFile{File: path, Nodes: nodes}
}
