package main

import (
	"time"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIRun summarizes one elaboration run.
type CLIRun struct {
	ID          int64     `json:"id"`
	DesignHash  string    `json:"design_hash"`
	Evaluator   string    `json:"evaluator"`
	Tops        []string  `json:"tops"`
	StartedAt   time.Time `json:"started_at"`
	Instances   int       `json:"instances"`
	Diagnostics int       `json:"diagnostics"`
	Errors      int       `json:"errors"`
	Bound       int       `json:"bound,omitempty"`
	Implicit    int       `json:"implicit,omitempty"`
	Unresolved  int       `json:"unresolved,omitempty"`
	Cached      bool      `json:"cached"`
	Database    string    `json:"database,omitempty"`
}

// CLIFile is one design file of a run.
type CLIFile struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Hash      string `json:"hash"`
	NodeCount int    `json:"node_count"`
}

// CLIInstance is a JSON-friendly instance.
type CLIInstance struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	DefName   string `json:"def_name,omitempty"`
	Kind      string `json:"kind"`
	Depth     int    `json:"depth"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line"`
	Col       int    `json:"col"`
	Config    string `json:"config,omitempty"`
	BoundFrom string `json:"bound_from,omitempty"`
}

// CLIHierarchyNode is an instance with its children.
type CLIHierarchyNode struct {
	CLIInstance
	Children []CLIHierarchyNode `json:"children,omitempty"`
}

// CLIParameter is one parameter value of an instance.
type CLIParameter struct {
	Name       string `json:"name"`
	Value      string `json:"value,omitempty"`
	Expr       string `json:"expr,omitempty"`
	Source     string `json:"source"`
	Evaluated  bool   `json:"evaluated"`
	IsType     bool   `json:"is_type,omitempty"`
	Overridden bool   `json:"overridden"`
}

// CLIPort is one port of an instance.
type CLIPort struct {
	Name        string `json:"name"`
	Direction   string `json:"direction"`
	HighExpr    string `json:"high_expr,omitempty"`
	Unconnected bool   `json:"unconnected,omitempty"`
}

// CLIConnection is a port attached to a net.
type CLIConnection struct {
	Instance  string `json:"instance"`
	Port      string `json:"port"`
	Direction string `json:"direction"`
	HighExpr  string `json:"high_expr"`
}

// CLINet is a net with its connectivity.
type CLINet struct {
	Name        string          `json:"name"`
	NetType     string          `json:"net_type"`
	Implicit    bool            `json:"implicit,omitempty"`
	Array       bool            `json:"array,omitempty"`
	Port        string          `json:"port,omitempty"`
	Connections []CLIConnection `json:"connections"`
	References  int             `json:"references"`
}

// CLIInstanceDetail is the full view of one instance.
type CLIInstanceDetail struct {
	CLIInstance
	Parameters []CLIParameter `json:"parameters"`
	Ports      []CLIPort      `json:"ports"`
	Nets       []string       `json:"nets"`
	Variables  []string       `json:"variables"`
	Children   []string       `json:"children"`
	Unresolved int            `json:"unresolved"`
}

// CLIReference is an unresolved name use.
type CLIReference struct {
	Name     string `json:"name"`
	Instance string `json:"instance"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

// CLIDiagnostic is one persisted diagnostic.
type CLIDiagnostic struct {
	Kind      string   `json:"kind"`
	Category  string   `json:"category"`
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	File      string   `json:"file,omitempty"`
	Line      int      `json:"line"`
	Col       int      `json:"col"`
	Secondary []string `json:"secondary,omitempty"`
}

// CLIKindCount is the number of diagnostics of one kind.
type CLIKindCount struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// CLIEdge is a definition-level instantiation edge.
type CLIEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Count  int    `json:"count"`
}

// --- conversions ---

func runToCLI(r *store.Run) CLIRun {
	return CLIRun{
		ID:          r.ID,
		DesignHash:  r.DesignHash,
		Evaluator:   r.Evaluator,
		Tops:        r.Tops,
		StartedAt:   r.StartedAt,
		Instances:   r.InstanceCount,
		Diagnostics: r.DiagnosticCount,
	}
}

func instanceToCLI(i *store.Instance) CLIInstance {
	return CLIInstance{
		ID:        i.ID,
		Path:      i.Path,
		Name:      i.Name,
		DefName:   i.DefName,
		Kind:      i.Kind,
		Depth:     i.Depth,
		File:      i.FilePath,
		Line:      i.Line,
		Col:       i.Col,
		Config:    i.Config,
		BoundFrom: i.BoundFrom,
	}
}

func instancesToCLI(in []*store.Instance) []CLIInstance {
	out := make([]CLIInstance, 0, len(in))
	for _, i := range in {
		out = append(out, instanceToCLI(i))
	}
	return out
}

func hierarchyToCLI(n *arbor.HierarchyNode) CLIHierarchyNode {
	out := CLIHierarchyNode{CLIInstance: instanceToCLI(&n.Instance)}
	for _, c := range n.Children {
		out.Children = append(out.Children, hierarchyToCLI(c))
	}
	return out
}

func paramsToCLI(in []*store.Parameter) []CLIParameter {
	out := make([]CLIParameter, 0, len(in))
	for _, p := range in {
		out = append(out, CLIParameter{
			Name:       p.Name,
			Value:      p.Value,
			Expr:       p.Expr,
			Source:     p.Source,
			Evaluated:  p.Evaluated,
			IsType:     p.IsType,
			Overridden: p.Overridden,
		})
	}
	return out
}

func detailToCLI(d *arbor.InstanceDetail) CLIInstanceDetail {
	out := CLIInstanceDetail{
		CLIInstance: instanceToCLI(&d.Instance),
		Parameters:  paramsToCLI(d.Parameters),
		Ports:       make([]CLIPort, 0, len(d.Ports)),
		Nets:        make([]string, 0, len(d.Nets)),
		Variables:   make([]string, 0, len(d.Variables)),
		Children:    make([]string, 0, len(d.Children)),
		Unresolved:  d.Unresolved,
	}
	for _, p := range d.Ports {
		out.Ports = append(out.Ports, CLIPort{
			Name:        p.Name,
			Direction:   p.Direction,
			HighExpr:    p.HighExpr,
			Unconnected: p.Unconnected,
		})
	}
	for _, n := range d.Nets {
		out.Nets = append(out.Nets, n.Name)
	}
	for _, v := range d.Variables {
		out.Variables = append(out.Variables, v.Name)
	}
	for _, c := range d.Children {
		out.Children = append(out.Children, c.Name)
	}
	return out
}

func netsToCLI(in []*arbor.NetDetail) []CLINet {
	out := make([]CLINet, 0, len(in))
	for _, n := range in {
		cn := CLINet{
			Name:        n.Name,
			NetType:     n.NetType,
			Implicit:    n.Implicit,
			Array:       n.IsArray,
			Connections: make([]CLIConnection, 0, len(n.Connections)),
			References:  n.References,
		}
		if n.Port != nil {
			cn.Port = n.Port.Name
		}
		for _, c := range n.Connections {
			cn.Connections = append(cn.Connections, CLIConnection{
				Instance:  c.InstancePath,
				Port:      c.Port,
				Direction: c.Direction,
				HighExpr:  c.HighExpr,
			})
		}
		out = append(out, cn)
	}
	return out
}

func diagnosticsToCLI(in []*store.Diagnostic) []CLIDiagnostic {
	out := make([]CLIDiagnostic, 0, len(in))
	for _, d := range in {
		out = append(out, CLIDiagnostic{
			Kind:      d.Kind,
			Category:  d.Category,
			Severity:  d.Severity,
			Message:   d.Message,
			File:      d.FilePath,
			Line:      d.Line,
			Col:       d.Col,
			Secondary: d.Secondary,
		})
	}
	return out
}
