package design

import (
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// SiteOverride is one parameter assignment written at an instantiation
// (#(...)) or in a config use clause. Name is empty for positional
// assignments.
type SiteOverride struct {
	Name     string
	Position int
	File     *syntax.FileContent
	// Node is the value expression; InvalidNode for an empty assignment.
	Node syntax.NodeID
	Loc  diag.Location
}

// SiteOverrides collects the param_assign children of node in order.
func SiteOverrides(fc *syntax.FileContent, node syntax.NodeID) []SiteOverride {
	var out []SiteOverride
	for i, pa := range fc.AllChildren(node, syntax.KindParamAssign) {
		out = append(out, SiteOverride{
			Name:     fc.Name(pa),
			Position: i,
			File:     fc,
			Node:     fc.FirstChild(pa, syntax.KindExpr, syntax.KindRef),
			Loc:      fc.Location(pa),
		})
	}
	return out
}
