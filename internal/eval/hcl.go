package eval

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/jward/arbor/internal/syntax"
)

// HCL evaluates expressions with the HCL expression language. Parameters and
// genvars in scope become cty variables.
type HCL struct {
	funcs map[string]function.Function
}

// NewHCL returns the default evaluator.
func NewHCL() *HCL {
	return &HCL{funcs: map[string]function.Function{
		"clog2": clog2Func,
		"max":   stdlib.MaxFunc,
		"min":   stdlib.MinFunc,
		"abs":   stdlib.AbsoluteFunc,
		"floor": stdlib.FloorFunc,
		"ceil":  stdlib.CeilFunc,
		"pow":   stdlib.PowFunc,
		"ipow":  ipowFunc,
		"div":   divFunc,
		"rem":   remFunc,
		"shl":   shlFunc,
		"shr":   shrFunc,
		"band":  intBinary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).And(a, b), nil }),
		"bor":   intBinary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Or(a, b), nil }),
		"bxor":  intBinary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Xor(a, b), nil }),
		"bnot":  bnotFunc,
		"truth": truthFunc,
	}}
}

// Evaluate implements Evaluator.
func (h *HCL) Evaluate(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *Bindings) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	text := Text(fc, node)
	if text == "" {
		return Value{}, Unresolved("empty expression")
	}
	loc := fc.Location(node)
	line := int(loc.Line)
	if line == 0 {
		line = 1
	}
	src, err := ToHCL(text)
	if err != nil {
		return Value{}, Unresolved("parse %q: %v", text, err)
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), loc.File, hcl.Pos{Line: line, Column: int(loc.Col) + 1, Byte: 0})
	if diags.HasErrors() {
		return Value{}, Unresolved("parse %q: %s", text, diags.Error())
	}

	vars := make(map[string]cty.Value)
	for name, v := range scope.All() {
		if cv, ok := toCty(v); ok {
			vars[name] = cv
		}
	}
	out, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: h.funcs})
	if diags.HasErrors() {
		return Value{}, Unresolved("evaluate %q: %s", text, diags.Error())
	}
	v, ok := fromCty(out)
	if !ok {
		return Value{}, Unresolved("%q has no constant value", text)
	}
	return v, nil
}

func toCty(v Value) (cty.Value, bool) {
	switch v.Kind {
	case KindInt:
		return cty.NumberIntVal(v.Int), true
	case KindBool:
		return cty.BoolVal(v.Bool), true
	case KindString:
		return cty.StringVal(v.Str), true
	}
	return cty.NilVal, false
}

func fromCty(v cty.Value) (Value, bool) {
	if v.IsNull() || !v.IsKnown() {
		return Value{}, false
	}
	switch v.Type() {
	case cty.Number:
		// Fractions truncate toward zero like HDL integer division.
		i, _ := v.AsBigFloat().Int64()
		return Int(i), true
	case cty.Bool:
		return Bool(v.True()), true
	case cty.String:
		return String(v.AsString()), true
	}
	return Value{}, false
}

// clog2Func is the ceiling of log2, with clog2(0) == clog2(1) == 0.
var clog2Func = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "n", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		n, _ := args[0].AsBigFloat().Int64()
		return cty.NumberIntVal(clog2(n)), nil
	},
})

func clog2(n int64) int64 {
	var r int64
	for v := big.NewInt(1); v.Cmp(big.NewInt(n)) < 0; v.Lsh(v, 1) {
		r++
	}
	return r
}

// maxShift bounds shift amounts so a stray operand cannot allocate an
// enormous integer.
const maxShift = 1 << 12

func toBigInt(v cty.Value) *big.Int {
	i, _ := v.AsBigFloat().Int(nil)
	return i
}

func fromBigInt(i *big.Int) cty.Value {
	return cty.NumberVal(new(big.Float).SetInt(i))
}

// intBinary builds a two-operand function over integers. Fractional
// operands truncate toward zero first.
func intBinary(op func(a, b *big.Int) (*big.Int, error)) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "a", Type: cty.Number},
			{Name: "b", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			r, err := op(toBigInt(args[0]), toBigInt(args[1]))
			if err != nil {
				return cty.NilVal, err
			}
			return fromBigInt(r), nil
		},
	})
}

var errDivideByZero = errors.New("division by zero")

// divFunc is HDL integer division, truncating toward zero.
var divFunc = intBinary(func(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, errDivideByZero
	}
	return new(big.Int).Quo(a, b), nil
})

// remFunc takes the sign of the dividend.
var remFunc = intBinary(func(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, errDivideByZero
	}
	return new(big.Int).Rem(a, b), nil
})

// ipowFunc is integer exponentiation; negative exponents give 0 except for
// bases 1 and -1.
var ipowFunc = intBinary(func(a, b *big.Int) (*big.Int, error) {
	if b.Sign() < 0 {
		switch {
		case a.CmpAbs(big.NewInt(1)) == 0:
			if a.Sign() < 0 && b.Bit(0) == 1 {
				return big.NewInt(-1), nil
			}
			return big.NewInt(1), nil
		case a.Sign() == 0:
			return nil, errDivideByZero
		}
		return new(big.Int), nil
	}
	if b.BitLen() > 32 {
		return nil, fmt.Errorf("exponent %s too large", b)
	}
	return new(big.Int).Exp(a, b, nil), nil
})

func shiftAmount(b *big.Int) (uint, error) {
	if b.Sign() < 0 || !b.IsInt64() || b.Int64() > maxShift {
		return 0, fmt.Errorf("shift amount %s out of range", b)
	}
	return uint(b.Int64()), nil
}

var shlFunc = intBinary(func(a, b *big.Int) (*big.Int, error) {
	n, err := shiftAmount(b)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Lsh(a, n), nil
})

var shrFunc = intBinary(func(a, b *big.Int) (*big.Int, error) {
	n, err := shiftAmount(b)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Rsh(a, n), nil
})

// bnotFunc complements over an unbounded two's complement width, so ~0 is -1.
var bnotFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "a", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return fromBigInt(new(big.Int).Not(toBigInt(args[0]))), nil
	},
})

// truthFunc gives numbers and booleans their HDL truth value.
var truthFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "v", Type: cty.DynamicPseudoType},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		v := args[0]
		switch v.Type() {
		case cty.Bool:
			return v, nil
		case cty.Number:
			return cty.BoolVal(v.AsBigFloat().Sign() != 0), nil
		}
		return cty.NilVal, fmt.Errorf("%s has no truth value", v.Type().FriendlyName())
	},
})
