package syntax

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a design file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the design file format from a path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported design file extension %q", filepath.Ext(path))
}

// SourceFile is the nested on-disk form of one parsed HDL file.
type SourceFile struct {
	File  string       `json:"file" yaml:"file"`
	Nodes []SourceNode `json:"nodes" yaml:"nodes"`
}

// SourceNode is one node of a nested design file.
type SourceNode struct {
	Kind     string       `json:"kind" yaml:"kind"`
	Name     string       `json:"name,omitempty" yaml:"name,omitempty"`
	Attr     string       `json:"attr,omitempty" yaml:"attr,omitempty"`
	Line     uint32       `json:"line,omitempty" yaml:"line,omitempty"`
	Col      uint32       `json:"col,omitempty" yaml:"col,omitempty"`
	EndLine  uint32       `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	EndCol   uint32       `json:"end_col,omitempty" yaml:"end_col,omitempty"`
	Children []SourceNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Decode reads a nested design file.
func Decode(r io.Reader, format Format) (*SourceFile, error) {
	var sf SourceFile
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sf); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&sf); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &sf, nil
}

// ReadFile reads and decodes the design file at path. The raw bytes are
// returned alongside so callers can hash or validate them.
func ReadFile(path string) (*SourceFile, []byte, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	sf, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if sf.File == "" {
		sf.File = path
	}
	return sf, data, nil
}

// Flatten builds the indexed node store for sf. Nodes without a position
// inherit their parent's line and column.
func Flatten(sf *SourceFile, symbols *SymbolTable, opts ...Option) (*FileContent, error) {
	fc := NewFileContent(sf.File, symbols, opts...)

	type item struct {
		parent NodeID
		node   *SourceNode
	}
	// Depth-first with an explicit stack; children are pushed in reverse so
	// they are appended in source order.
	var stack []item
	for i := len(sf.Nodes) - 1; i >= 0; i-- {
		stack = append(stack, item{fc.Root(), &sf.Nodes[i]})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kind, ok := ParseKind(it.node.Kind)
		if !ok {
			return nil, fmt.Errorf("%s:%d: unknown node kind %q", sf.File, it.node.Line, it.node.Kind)
		}
		line, col := it.node.Line, it.node.Col
		if line == 0 {
			p := fc.nodes[it.parent]
			line, col = p.Line, p.Col
		}
		id := fc.Add(it.parent, kind, it.node.Name, it.node.Attr, line, col)
		fc.SetEnd(id, it.node.EndLine, it.node.EndCol)
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{id, &it.node.Children[i]})
		}
	}
	return fc, nil
}
