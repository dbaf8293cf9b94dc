// Package diag holds the diagnostic taxonomy and the append-only sink every
// elaboration phase reports into.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Severity of a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// Category groups diagnostic kinds by the phase of elaboration that failed.
type Category uint8

const (
	CategoryDefinition Category = iota
	CategoryBinding
	CategoryNameResolution
	CategoryStructural
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryDefinition:
		return "definition"
	case CategoryBinding:
		return "binding"
	case CategoryNameResolution:
		return "name-resolution"
	case CategoryStructural:
		return "structural"
	case CategoryInternal:
		return "internal"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Kind identifies a specific diagnostic.
type Kind string

const (
	UndefinedModule    Kind = "undefined-module"
	MultiplyDefined    Kind = "multiply-defined"
	ConfigCycle        Kind = "config-cycle"
	UnknownConfig      Kind = "unknown-config"
	NotInstantiable    Kind = "not-instantiable"
	DuplicateOverride  Kind = "duplicate-parameter-override"
	UnknownParameter   Kind = "unknown-parameter"
	LocalParamOverride Kind = "localparam-override"
	UnknownPort        Kind = "unknown-port"
	TooManyConnections Kind = "too-many-connections"
	BindTarget         Kind = "bind-target"

	IllegalImplicitNet    Kind = "illegal-implicit-net"
	UnresolvedPackageItem Kind = "unresolved-package-item"

	RecursiveInstantiation Kind = "recursive-instantiation"
	DepthLimit             Kind = "depth-limit"
	GenerateLoopLimit      Kind = "generate-loop-limit"
	GenerateCondition      Kind = "generate-condition"
	InvalidArrayRange      Kind = "invalid-array-range"

	NodeOutOfRange Kind = "node-out-of-range"
)

type kindInfo struct {
	category Category
	severity Severity
}

var kinds = map[Kind]kindInfo{
	UndefinedModule:        {CategoryDefinition, SeverityError},
	MultiplyDefined:        {CategoryDefinition, SeverityError},
	ConfigCycle:            {CategoryDefinition, SeverityError},
	UnknownConfig:          {CategoryDefinition, SeverityError},
	NotInstantiable:        {CategoryDefinition, SeverityError},
	DuplicateOverride:      {CategoryBinding, SeverityError},
	UnknownParameter:       {CategoryBinding, SeverityError},
	LocalParamOverride:     {CategoryBinding, SeverityWarning},
	UnknownPort:            {CategoryBinding, SeverityError},
	TooManyConnections:     {CategoryBinding, SeverityError},
	BindTarget:             {CategoryBinding, SeverityError},
	IllegalImplicitNet:     {CategoryNameResolution, SeverityError},
	UnresolvedPackageItem:  {CategoryNameResolution, SeverityError},
	RecursiveInstantiation: {CategoryStructural, SeverityError},
	DepthLimit:             {CategoryStructural, SeverityError},
	GenerateLoopLimit:      {CategoryStructural, SeverityError},
	GenerateCondition:      {CategoryStructural, SeverityWarning},
	InvalidArrayRange:      {CategoryStructural, SeverityError},
	NodeOutOfRange:         {CategoryInternal, SeverityError},
}

// Category returns the taxonomy bucket of k. Unknown kinds are internal.
func (k Kind) Category() Category {
	if info, ok := kinds[k]; ok {
		return info.category
	}
	return CategoryInternal
}

// DefaultSeverity returns the severity a kind is reported with.
func (k Kind) DefaultSeverity() Severity {
	if info, ok := kinds[k]; ok {
		return info.severity
	}
	return SeverityError
}

// Kinds returns every known kind sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Location is a source position range. Lines and columns are 1-based; zero
// means unknown.
type Location struct {
	File    string `json:"file"`
	Line    uint32 `json:"line"`
	Col     uint32 `json:"col"`
	EndLine uint32 `json:"end_line,omitempty"`
	EndCol  uint32 `json:"end_col,omitempty"`
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Kind      Kind       `json:"kind"`
	Severity  Severity   `json:"-"`
	Message   string     `json:"message"`
	Location  Location   `json:"location"`
	Secondary []Location `json:"secondary,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s: %s [%s]", d.Location, d.Severity, d.Message, d.Kind)
	for _, s := range d.Secondary {
		fmt.Fprintf(&b, "\n\tsee %s", s)
	}
	return b.String()
}

// Reporter receives diagnostics. *Sink implements it.
type Reporter interface {
	Report(d Diagnostic)
}

// Sink accumulates diagnostics. Safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Report appends d.
func (s *Sink) Report(d Diagnostic) {
	s.mu.Lock()
	s.diags = append(s.diags, d)
	s.mu.Unlock()
}

// Reportf builds and appends a diagnostic of kind k at loc.
func (s *Sink) Reportf(k Kind, loc Location, format string, args ...any) {
	s.Report(New(k, loc, fmt.Sprintf(format, args...)))
}

// Merge appends every diagnostic of other, in order.
func (s *Sink) Merge(other *Sink) {
	if other == nil || other == s {
		return
	}
	items := other.All()
	s.mu.Lock()
	s.diags = append(s.diags, items...)
	s.mu.Unlock()
}

// All returns a copy of the accumulated diagnostics in report order.
func (s *Sink) All() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.diags))
	copy(out, s.diags)
	return out
}

// Len returns the number of diagnostics.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.diags)
}

// Count returns how many diagnostics of kind k were reported.
func (s *Sink) Count(k Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.diags {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of error-severity diagnostics.
func (s *Sink) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// New builds a diagnostic with the kind's default severity.
func New(k Kind, loc Location, msg string, secondary ...Location) Diagnostic {
	return Diagnostic{
		Kind:      k,
		Severity:  k.DefaultSeverity(),
		Message:   msg,
		Location:  loc,
		Secondary: secondary,
	}
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}
