package store

import "time"

// Run is one persisted elaboration. Queries read the latest run.
type Run struct {
	ID              int64
	DesignHash      string
	Evaluator       string
	Tops            []string
	StartedAt       time.Time
	InstanceCount   int
	DiagnosticCount int
}

type File struct {
	ID        int64
	RunID     int64
	Path      string
	Format    string
	Hash      string
	NodeCount int
}

// Tree domain types

type Instance struct {
	ID       int64
	RunID    int64
	ParentID *int64
	Name     string
	Path     string
	DefName  string
	Kind     string
	Depth    int
	Ordinal  int
	FilePath string
	Line     int
	Col      int
	Config   string
	// BoundFrom is the location of the bind statement that created the
	// instance, empty otherwise.
	BoundFrom string
}

type Parameter struct {
	ID         int64
	InstanceID int64
	Name       string
	Source     string
	Value      string
	Expr       string
	Evaluated  bool
	IsType     bool
	Overridden bool
}

type Net struct {
	ID         int64
	InstanceID int64
	Name       string
	NetType    string
	Implicit   bool
	IsArray    bool
	Line       int
	Col        int
}

type Variable struct {
	ID         int64
	InstanceID int64
	Name       string
	Type       string
	IsArray    bool
	Line       int
	Col        int
}

type Port struct {
	ID          int64
	InstanceID  int64
	Name        string
	Direction   string
	Ordinal     int
	HighExpr    string
	LowNetID    *int64
	Unconnected bool
}

// Reference is a name use inside an instance and what it resolved to.
// TargetKind is empty for unresolved references.
type Reference struct {
	ID               int64
	InstanceID       int64
	Name             string
	FilePath         string
	Line             int
	Col              int
	TargetKind       string
	TargetName       string
	TargetScope      string
	TargetNetID      *int64
	TargetVariableID *int64
	AsParameter      bool
}

// PackageReference is a name use inside a package function or task.
// Package items have no rows of their own, so targets are kept by kind,
// name and scope only.
type PackageReference struct {
	ID          int64
	RunID       int64
	Package     string
	Name        string
	FilePath    string
	Line        int
	Col         int
	TargetKind  string
	TargetName  string
	TargetScope string
	AsParameter bool
}

// PortConnection links a port to one reference of its high-conn expression.
type PortConnection struct {
	ID          int64
	PortID      int64
	ReferenceID int64
}

type Diagnostic struct {
	ID       int64
	RunID    int64
	Kind     string
	Category string
	Severity string
	Message  string
	FilePath string
	Line     int
	Col      int
	// Secondary holds the related locations as "file:line:col" strings.
	Secondary []string
}

// Query result types

// Connection is one port attached to a net through its high-conn
// expression.
type Connection struct {
	InstancePath string
	Port         string
	Direction    string
	HighExpr     string
}
