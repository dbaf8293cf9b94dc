// Package eval defines the constant-expression evaluator the elaborator
// consumes, and ships the default implementation built on HCL expressions.
//
// Expression text is taken verbatim from expr nodes. HDL-specific literal
// forms are rewritten by Normalize before parsing:
//
//	8'hFF     -> 255
//	'd10      -> 10
//	1_000     -> 1000
//	$clog2(N) -> clog2(N)
//	a === b   -> a == b
//	WIDTH-1   -> WIDTH - 1
//
// The HCL evaluator goes further and translates the expression with ToHCL,
// mapping integer division, shifts and bitwise operators to functions.
package eval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jward/arbor/internal/syntax"
)

// ErrUnresolved reports that an expression could not be reduced to a value.
var ErrUnresolved = errors.New("expression cannot be evaluated")

// Evaluator computes constant expressions for generate conditions, loop
// bounds, array ranges and parameter values.
type Evaluator interface {
	Evaluate(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *Bindings) (Value, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *Bindings) (Value, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *Bindings) (Value, error) {
	return f(ctx, fc, node, scope)
}

// Chain tries each evaluator in order and returns the first resolved value.
func Chain(evaluators ...Evaluator) Evaluator {
	return Func(func(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *Bindings) (Value, error) {
		var last error = ErrUnresolved
		for _, e := range evaluators {
			v, err := e.Evaluate(ctx, fc, node, scope)
			if err == nil {
				return v, nil
			}
			last = err
			if ctx.Err() != nil {
				return Value{}, ctx.Err()
			}
		}
		return Value{}, last
	})
}

// Unresolved wraps detail as an ErrUnresolved error.
func Unresolved(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnresolved, fmt.Sprintf(format, args...))
}

// Text returns the source text of an expression node. A ref node yields its
// identifier.
func Text(fc *syntax.FileContent, node syntax.NodeID) string {
	switch fc.Kind(node) {
	case syntax.KindExpr, syntax.KindRef:
		return strings.TrimSpace(fc.Name(node))
	}
	if e := fc.FirstChild(node, syntax.KindExpr); e != syntax.InvalidNode {
		return strings.TrimSpace(fc.Name(e))
	}
	return ""
}

var (
	basedLiteral  = regexp.MustCompile(`(\d[\d_]*)?\s*'[sS]?([bBoOdDhH])\s*([0-9a-fA-F_]+)\b`)
	unbasedBit    = regexp.MustCompile(`'([01])\b`)
	decimalDigits = regexp.MustCompile(`\b\d[\d_]*\b`)
	systemCall    = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
)

// Normalize rewrites HDL literal and operator spellings into plain
// expression syntax with binary operators spaced out. Text that does not
// tokenize is returned with only its literals rewritten.
func Normalize(text string) string {
	s := rewriteLiterals(text)
	toks, err := lex(s)
	if err != nil {
		return s
	}
	return format(toks)
}

func rewriteLiterals(text string) string {
	s := basedLiteral.ReplaceAllStringFunc(text, func(m string) string {
		parts := basedLiteral.FindStringSubmatch(m)
		base := 10
		switch strings.ToLower(parts[2]) {
		case "b":
			base = 2
		case "o":
			base = 8
		case "h":
			base = 16
		}
		digits := strings.ReplaceAll(parts[3], "_", "")
		n, err := strconv.ParseInt(digits, base, 64)
		if err != nil {
			return m
		}
		return strconv.FormatInt(n, 10)
	})
	s = unbasedBit.ReplaceAllString(s, "$1")
	s = decimalDigits.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, "_", "")
	})
	s = systemCall.ReplaceAllString(s, "$1(")
	s = strings.ReplaceAll(s, "===", "==")
	s = strings.ReplaceAll(s, "!==", "!=")
	return s
}

// DefaultLoopLimit bounds generate-for iterations when no limit is configured.
const DefaultLoopLimit = 1 << 16

// LoopGuard bounds the number of iterations of one generate loop.
type LoopGuard struct {
	limit int
	n     int
}

// NewLoopGuard returns a guard allowing limit iterations; limit <= 0 means
// DefaultLoopLimit.
func NewLoopGuard(limit int) *LoopGuard {
	if limit <= 0 {
		limit = DefaultLoopLimit
	}
	return &LoopGuard{limit: limit}
}

// Next records one iteration and reports whether it is allowed.
func (g *LoopGuard) Next() bool {
	if g.n >= g.limit {
		return false
	}
	g.n++
	return true
}

// Limit returns the configured bound.
func (g *LoopGuard) Limit() int { return g.limit }
