package eval

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jward/arbor/internal/syntax"
)

// ValueKind tags a Value.
type ValueKind uint8

const (
	KindUnknown ValueKind = iota
	KindInt
	KindBool
	KindString
	KindType
)

// TypeHandle refers to the typespec bound to a type parameter.
type TypeHandle struct {
	Name string
	File *syntax.FileContent
	Node syntax.NodeID
}

// Value is the result of evaluating a constant expression.
type Value struct {
	Kind ValueKind
	Int  int64
	Bool bool
	Str  string
	Type TypeHandle
}

// Int returns an integer value.
func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// String returns a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Type returns a typespec value.
func Type(h TypeHandle) Value { return Value{Kind: KindType, Type: h} }

// Known reports whether v holds a value.
func (v Value) Known() bool { return v.Kind != KindUnknown }

// Truth interprets v as a condition. Integers are true when non-zero.
func (v Value) Truth() (bool, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int != 0, true
	case KindBool:
		return v.Bool, true
	case KindString:
		return v.Str != "", true
	}
	return false, false
}

// AsInt returns v as an integer. Booleans map to 0 and 1.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Equal compares two values the way a case item is matched against its
// subject: integers and booleans compare numerically.
func (v Value) Equal(o Value) bool {
	if a, ok := v.AsInt(); ok {
		b, ok := o.AsInt()
		return ok && a == b
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindType:
		return v.Type.Name == o.Type.Name
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case KindString:
		return strconv.Quote(v.Str)
	case KindType:
		return v.Type.Name
	}
	return "<unknown>"
}

// Bindings is a chain of name to value scopes. Lookups walk outward; inner
// names shadow outer ones.
type Bindings struct {
	parent *Bindings
	vals   map[string]Value
}

// NewBindings returns an empty scope nested in parent, which may be nil.
func NewBindings(parent *Bindings) *Bindings {
	return &Bindings{parent: parent, vals: make(map[string]Value)}
}

// Parent returns the enclosing scope.
func (b *Bindings) Parent() *Bindings {
	if b == nil {
		return nil
	}
	return b.parent
}

// Set binds name in this scope.
func (b *Bindings) Set(name string, v Value) {
	b.vals[name] = v
}

// Lookup finds name in this scope or an enclosing one.
func (b *Bindings) Lookup(name string) (Value, bool) {
	for s := b; s != nil; s = s.parent {
		if v, ok := s.vals[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// Local reports whether name is bound in this scope itself.
func (b *Bindings) Local(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b.vals[name]
	return ok
}

// All flattens the chain into one map.
func (b *Bindings) All() map[string]Value {
	var chain []*Bindings
	for s := b; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	out := make(map[string]Value)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vals {
			out[k] = v
		}
	}
	return out
}

// Names returns the names visible from b, sorted.
func (b *Bindings) Names() []string {
	all := b.All()
	out := make([]string, 0, len(all))
	for k := range all {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Bindings) String() string {
	return fmt.Sprint(b.All())
}
