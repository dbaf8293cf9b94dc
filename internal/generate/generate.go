// Package generate expands generate-if, generate-for and generate-case
// constructs into the scopes the instance builder elaborates.
package generate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/eval"
	"github.com/jward/arbor/internal/syntax"
)

// Kind tags the construct a Scope came from.
type Kind uint8

const (
	KindBlock Kind = iota
	KindIf
	KindFor
	KindCase
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindIf:
		return "if"
	case KindFor:
		return "for"
	case KindCase:
		return "case"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Scope is one generate scope produced by a construct.
type Scope struct {
	Name string
	Kind Kind
	File *syntax.FileContent
	// Body is the generate_block whose items belong to the scope.
	Body syntax.NodeID
	// Bindings is the scope's value environment; for loops it binds the
	// genvar to the iteration's value.
	Bindings *eval.Bindings
	Genvar   string
	Index    int64
	Loc      diag.Location
	// Constant is set when the expressions selecting the scope read no
	// parameters; a loop's may read its own genvar.
	Constant bool
}

// Expander evaluates generate constructs.
type Expander struct {
	evaluator eval.Evaluator
	loopLimit int
	reporter  diag.Reporter
	logger    *zap.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithLoopLimit bounds the iterations of one generate-for.
func WithLoopLimit(n int) Option {
	return func(e *Expander) { e.loopLimit = n }
}

// WithReporter sets the default diagnostic reporter.
func WithReporter(r diag.Reporter) Option {
	return func(e *Expander) { e.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Expander) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExpander returns an Expander evaluating with ev.
func NewExpander(ev eval.Evaluator, opts ...Option) *Expander {
	e := &Expander{
		evaluator: ev,
		loopLimit: eval.DefaultLoopLimit,
		reporter:  diag.Discard,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand produces the scopes of the construct at node. ordinal is the
// 1-based position of the construct among the generate constructs of its
// parent scope and names unlabeled blocks genblk<ordinal>.
func (e *Expander) Expand(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings, ordinal int) ([]Scope, error) {
	return e.ExpandTo(ctx, fc, node, scope, ordinal, e.reporter)
}

// ExpandTo is Expand with an explicit reporter.
func (e *Expander) ExpandTo(ctx context.Context, fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings, ordinal int, rep diag.Reporter) ([]Scope, error) {
	if rep == nil {
		rep = diag.Discard
	}
	x := expansion{Expander: e, ctx: ctx, fc: fc, scope: scope, ordinal: ordinal, rep: rep}
	switch fc.Kind(node) {
	case syntax.KindGenerateIf:
		return x.ifScopes(node)
	case syntax.KindGenerateFor:
		return x.forScopes(node)
	case syntax.KindGenerateCase:
		return x.caseScopes(node)
	case syntax.KindGenerateBlock:
		return []Scope{x.block(node, KindBlock, eval.NewBindings(scope), true)}, nil
	}
	return nil, nil
}

// expansion carries the state of one Expand call.
type expansion struct {
	*Expander
	ctx     context.Context
	fc      *syntax.FileContent
	scope   *eval.Bindings
	ordinal int
	rep     diag.Reporter
}

func (x *expansion) label(block syntax.NodeID) string {
	if name := x.fc.Name(block); name != "" {
		return name
	}
	return "genblk" + strconv.Itoa(x.ordinal)
}

func (x *expansion) block(block syntax.NodeID, kind Kind, b *eval.Bindings, constant bool) Scope {
	return Scope{
		Name:     x.label(block),
		Kind:     kind,
		File:     x.fc,
		Body:     block,
		Bindings: b,
		Loc:      x.fc.Location(block),
		Constant: constant,
	}
}

// constant reports whether the expression at node reads no names other
// than allowed.
func (x *expansion) constant(fc *syntax.FileContent, node syntax.NodeID, allowed ...string) bool {
	names, err := eval.FreeNames(eval.Text(fc, node))
	if err != nil {
		return false
	}
	for _, n := range names {
		if !slices.Contains(allowed, n) {
			return false
		}
	}
	return true
}

// evaluate returns the value of node, or ok=false when it cannot be
// evaluated. Only cancellation is an error.
func (x *expansion) evaluate(node syntax.NodeID, scope *eval.Bindings) (eval.Value, bool, error) {
	return x.evaluateIn(x.fc, node, scope)
}

func (x *expansion) evaluateIn(fc *syntax.FileContent, node syntax.NodeID, scope *eval.Bindings) (eval.Value, bool, error) {
	v, err := x.evaluator.Evaluate(x.ctx, fc, node, scope)
	if err == nil {
		return v, true, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return eval.Value{}, false, err
	}
	x.logger.Debug("generate expression unresolved",
		zap.String("expr", eval.Text(fc, node)),
		zap.Error(err))
	return eval.Value{}, false, nil
}

func (x *expansion) unresolved(node syntax.NodeID, what string) {
	x.rep.Report(diag.New(diag.GenerateCondition, x.fc.Location(node),
		fmt.Sprintf("%s %q cannot be evaluated; construct skipped", what, eval.Text(x.fc, node))))
}

// ifScopes evaluates the condition and descends into the taken branch only.
// An else branch that is itself a generate-if continues the chain under the
// same ordinal.
func (x *expansion) ifScopes(node syntax.NodeID) ([]Scope, error) {
	constant := true
	for node != syntax.InvalidNode {
		cond := x.fc.FirstChild(node, syntax.KindExpr)
		constant = constant && x.constant(x.fc, cond)
		v, ok, err := x.evaluate(cond, x.scope)
		if err != nil {
			return nil, err
		}
		truth, known := v.Truth()
		if !ok || !known {
			x.unresolved(cond, "generate-if condition")
			return nil, nil
		}
		branches := x.fc.AllChildren(node, syntax.KindGenerateBlock, syntax.KindGenerateIf)
		var taken syntax.NodeID
		switch {
		case truth && len(branches) > 0:
			taken = branches[0]
		case !truth && len(branches) > 1:
			taken = branches[1]
		default:
			return nil, nil
		}
		if x.fc.Kind(taken) == syntax.KindGenerateBlock {
			return []Scope{x.block(taken, KindIf, eval.NewBindings(x.scope), constant)}, nil
		}
		node = taken
	}
	return nil, nil
}

// caseScopes evaluates the subject once and descends into the first
// matching item, else the default item.
func (x *expansion) caseScopes(node syntax.NodeID) ([]Scope, error) {
	subject := x.fc.FirstChild(node, syntax.KindExpr)
	sv, ok, err := x.evaluate(subject, x.scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		x.unresolved(subject, "generate-case expression")
		return nil, nil
	}
	constant := x.constant(x.fc, subject)
	var fallback syntax.NodeID
	for _, item := range x.fc.AllChildren(node, syntax.KindCaseItem) {
		if x.fc.Attr(item) == "default" {
			if fallback == syntax.InvalidNode {
				fallback = item
			}
			continue
		}
		for _, valNode := range x.fc.AllChildren(item, syntax.KindExpr) {
			constant = constant && x.constant(x.fc, valNode)
			v, ok, err := x.evaluate(valNode, x.scope)
			if err != nil {
				return nil, err
			}
			if ok && v.Equal(sv) {
				return x.caseItem(item, constant), nil
			}
		}
	}
	if fallback != syntax.InvalidNode {
		return x.caseItem(fallback, constant), nil
	}
	return nil, nil
}

func (x *expansion) caseItem(item syntax.NodeID, constant bool) []Scope {
	block := x.fc.FirstChild(item, syntax.KindGenerateBlock)
	if block == syntax.InvalidNode {
		return nil
	}
	return []Scope{x.block(block, KindCase, eval.NewBindings(x.scope), constant)}
}

// forScopes iterates the loop, producing label[i] per iteration with the
// genvar bound to i.
func (x *expansion) forScopes(node syntax.NodeID) ([]Scope, error) {
	genvar := x.fc.Name(node)
	exprs := x.fc.AllChildren(node, syntax.KindExpr)
	block := x.fc.FirstChild(node, syntax.KindGenerateBlock)
	if len(exprs) < 3 || block == syntax.InvalidNode {
		x.rep.Report(diag.New(diag.GenerateCondition, x.fc.Location(node),
			fmt.Sprintf("generate-for over %s is incomplete; construct skipped", genvar)))
		return nil, nil
	}
	initNode, condNode, stepNode := exprs[0], exprs[1], exprs[2]

	v, ok, err := x.evaluate(initNode, x.scope)
	if err != nil {
		return nil, err
	}
	cur, isInt := v.AsInt()
	if !ok || !isInt {
		x.unresolved(initNode, "generate-for initializer")
		return nil, nil
	}

	step := parseStep(eval.Text(x.fc, stepNode), genvar)
	stepFC, stepExpr := x.stepExpr(step, stepNode)
	constant := x.constant(x.fc, initNode) && x.constant(x.fc, condNode, genvar) && x.constant(stepFC, stepExpr, genvar)
	guard := eval.NewLoopGuard(x.loopLimit)
	label := x.label(block)
	var out []Scope
	for {
		if err := x.ctx.Err(); err != nil {
			return nil, err
		}
		iter := eval.NewBindings(x.scope)
		iter.Set(genvar, eval.Int(cur))

		cv, ok, err := x.evaluate(condNode, iter)
		if err != nil {
			return nil, err
		}
		truth, known := cv.Truth()
		if !ok || !known {
			x.unresolved(condNode, "generate-for condition")
			return out, nil
		}
		if !truth {
			return out, nil
		}
		if !guard.Next() {
			x.rep.Report(diag.New(diag.GenerateLoopLimit, x.fc.Location(node),
				fmt.Sprintf("generate-for over %s exceeded %d iterations", genvar, guard.Limit())))
			return out, nil
		}
		out = append(out, Scope{
			Name:     fmt.Sprintf("%s[%d]", label, cur),
			Kind:     KindFor,
			File:     x.fc,
			Body:     block,
			Bindings: iter,
			Genvar:   genvar,
			Index:    cur,
			Loc:      x.fc.Location(block),
			Constant: constant,
		})

		next, ok := step.apply(cur)
		if !ok {
			nv, ok, err := x.evaluateIn(stepFC, stepExpr, iter)
			if err != nil {
				return nil, err
			}
			n, isInt := nv.AsInt()
			if !ok || !isInt {
				x.unresolved(stepNode, "generate-for step")
				return out, nil
			}
			next = n
		}
		cur = next
	}
}

// stepExpr returns the expression computing the next genvar value. For an
// assignment step that is the right-hand side, placed at the step's location.
func (x *expansion) stepExpr(st step, stepNode syntax.NodeID) (*syntax.FileContent, syntax.NodeID) {
	if st.rhs == "" {
		return x.fc, stepNode
	}
	loc := x.fc.Location(stepNode)
	fc, err := syntax.Flatten(syntax.File(loc.File, syntax.E(st.rhs).At(loc.Line, loc.Col)), nil)
	if err != nil {
		return x.fc, stepNode
	}
	return fc, fc.Collect(fc.Root(), syntax.KindExpr)
}

// step is an increment form recognized without the evaluator: i++, i--,
// i += k and i -= k with a literal k. Other assignments to the genvar keep
// their value expression in rhs; compound ones are expanded, so
// i *= 2 becomes i * (2).
type step struct {
	delta int64
	ok    bool
	rhs   string
}

func (s step) apply(cur int64) (int64, bool) {
	if !s.ok {
		return 0, false
	}
	return cur + s.delta, true
}

var assignOps = []string{"<<=", ">>=", "+=", "-=", "*=", "/=", "%=", "="}

func parseStep(text, genvar string) step {
	s := strings.ReplaceAll(text, " ", "")
	switch s {
	case genvar + "++", "++" + genvar:
		return step{delta: 1, ok: true}
	case genvar + "--", "--" + genvar:
		return step{delta: -1, ok: true}
	}
	for _, op := range []string{"+=", "-="} {
		rest, found := strings.CutPrefix(s, genvar+op)
		if !found {
			continue
		}
		k, err := strconv.ParseInt(rest, 0, 64)
		if err != nil {
			break
		}
		if op == "-=" {
			k = -k
		}
		return step{delta: k, ok: true}
	}

	rest, found := strings.CutPrefix(strings.TrimSpace(text), genvar)
	if !found {
		return step{}
	}
	rest = strings.TrimSpace(rest)
	for _, op := range assignOps {
		rhs, found := strings.CutPrefix(rest, op)
		if !found || strings.HasPrefix(rhs, "=") {
			continue
		}
		rhs = strings.TrimSpace(rhs)
		if rhs == "" {
			return step{}
		}
		if op == "=" {
			return step{rhs: rhs}
		}
		return step{rhs: genvar + " " + strings.TrimSuffix(op, "=") + " (" + rhs + ")"}
	}
	return step{}
}
