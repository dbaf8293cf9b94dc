package eval

import (
	"fmt"
	"slices"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Longest first.
var operators = []string{
	"<<<", ">>>", "===", "!==",
	"**", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||", "~^", "^~", "~&", "~|",
	"+", "-", "*", "/", "%", "<", ">", "!", "~", "&", "|", "^",
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lex splits literal-rewritten expression text into tokens. HDL constructs
// with no constant value here (selects, concatenation, package scope)
// are errors.
func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c) || (c == '$' && i+1 < len(s) && isIdentStart(s[i+1])):
			start := i
			if c == '$' {
				i++
			}
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			if strings.HasPrefix(s[i:], "::") {
				return nil, fmt.Errorf("package-scoped name %s:: at offset %d", s[start:i], start)
			}
			toks = append(toks, token{kind: tokIdent, text: strings.TrimPrefix(s[start:i], "$"), pos: start})
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			start := i
			for i < len(s) && (isDigit(s[i]) || s[i] == '_' || s[i] == '.') {
				i++
			}
			if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
				j := i + 1
				if j < len(s) && (s[j] == '+' || s[j] == '-') {
					j++
				}
				if j < len(s) && isDigit(s[j]) {
					i = j
					for i < len(s) && isDigit(s[i]) {
						i++
					}
				}
			}
			if i < len(s) && isIdentPart(s[i]) {
				return nil, fmt.Errorf("malformed number at offset %d", start)
			}
			toks = append(toks, token{kind: tokNumber, text: strings.ReplaceAll(s[start:i], "_", ""), pos: start})
		case c == '"':
			start := i
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			i++
			toks = append(toks, token{kind: tokString, text: s[start:i], pos: start})
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '?':
			toks = append(toks, token{kind: tokQuestion, text: "?", pos: i})
			i++
		case c == ':':
			if strings.HasPrefix(s[i:], "::") {
				return nil, fmt.Errorf("unexpected :: at offset %d", i)
			}
			toks = append(toks, token{kind: tokColon, text: ":", pos: i})
			i++
		default:
			op := ""
			for _, o := range operators {
				if strings.HasPrefix(s[i:], o) {
					op = o
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

// format joins tokens back into text with binary operators spaced out, so
// WIDTH-1 reads WIDTH - 1 to every downstream parser.
func format(toks []token) string {
	var b strings.Builder
	prev := tokEOF
	for _, t := range toks {
		switch t.kind {
		case tokEOF:
		case tokOp:
			text := t.text
			switch text {
			case "===":
				text = "=="
			case "!==":
				text = "!="
			}
			if unaryPosition(prev) {
				b.WriteString(text)
			} else {
				b.WriteString(" " + text + " ")
			}
		case tokComma:
			b.WriteString(", ")
		case tokQuestion:
			b.WriteString(" ? ")
		case tokColon:
			b.WriteString(" : ")
		case tokIdent, tokNumber, tokString:
			if prev == tokIdent || prev == tokNumber || prev == tokString || prev == tokRParen {
				b.WriteByte(' ')
			}
			b.WriteString(t.text)
		default:
			b.WriteString(t.text)
		}
		prev = t.kind
	}
	return b.String()
}

// unaryPosition reports whether an operator following prev is a prefix
// operator.
func unaryPosition(prev tokenKind) bool {
	switch prev {
	case tokIdent, tokNumber, tokString, tokRParen:
		return false
	}
	return true
}

// FreeNames returns the identifiers text reads, excluding called function
// names, in order of first use.
func FreeNames(text string) ([]string, error) {
	toks, err := lex(rewriteLiterals(text))
	if err != nil {
		return nil, err
	}
	var out []string
	for i, t := range toks {
		if t.kind != tokIdent || toks[i+1].kind == tokLParen || slices.Contains(out, t.text) {
			continue
		}
		out = append(out, t.text)
	}
	return out, nil
}

// Binding strength of HDL binary operators; all are left-associative.
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4, "~^": 4, "^~": 4,
	"&":  5,
	"==": 6, "!=": 6, "===": 6, "!==": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"<<": 8, ">>": 8, "<<<": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
	"**": 11,
}

// ToHCL translates an HDL constant expression into HCL expression syntax.
// Operators HCL lacks, or whose HCL meaning differs from HDL integer
// arithmetic, become calls to the functions NewHCL registers: / is div,
// << is shl, & is band, and so on. Conditions are wrapped in truth() so
// integers test non-zero.
func ToHCL(text string) (string, error) {
	toks, err := lex(rewriteLiterals(text))
	if err != nil {
		return "", err
	}
	p := &hclParser{toks: toks}
	out, err := p.ternary()
	if err != nil {
		return "", err
	}
	if t := p.peek(); t.kind != tokEOF {
		return "", fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return out, nil
}

type hclParser struct {
	toks []token
	pos  int
}

func (p *hclParser) peek() token { return p.toks[p.pos] }

func (p *hclParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *hclParser) expect(kind tokenKind, what string) error {
	if t := p.next(); t.kind != kind {
		if t.kind == tokEOF {
			return fmt.Errorf("expected %s at end of expression", what)
		}
		return fmt.Errorf("expected %s at offset %d, got %q", what, t.pos, t.text)
	}
	return nil
}

func (p *hclParser) ternary() (string, error) {
	cond, err := p.binary(1)
	if err != nil {
		return "", err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.next()
	a, err := p.ternary()
	if err != nil {
		return "", err
	}
	if err := p.expect(tokColon, ":"); err != nil {
		return "", err
	}
	b, err := p.ternary()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(truth(%s) ? %s : %s)", cond, a, b), nil
}

func (p *hclParser) binary(minPrec int) (string, error) {
	lhs, err := p.unary()
	if err != nil {
		return "", err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrec[t.text]
		if t.kind != tokOp || !ok || prec < minPrec {
			return lhs, nil
		}
		p.next()
		rhs, err := p.binary(prec + 1)
		if err != nil {
			return "", err
		}
		lhs = hclBinary(t.text, lhs, rhs)
	}
}

func hclBinary(op, l, r string) string {
	switch op {
	case "/":
		return "div(" + l + ", " + r + ")"
	case "%":
		return "rem(" + l + ", " + r + ")"
	case "**":
		return "ipow(" + l + ", " + r + ")"
	case "<<", "<<<":
		return "shl(" + l + ", " + r + ")"
	case ">>", ">>>":
		return "shr(" + l + ", " + r + ")"
	case "&":
		return "band(" + l + ", " + r + ")"
	case "|":
		return "bor(" + l + ", " + r + ")"
	case "^":
		return "bxor(" + l + ", " + r + ")"
	case "~^", "^~":
		return "bnot(bxor(" + l + ", " + r + "))"
	case "===":
		op = "=="
	case "!==":
		op = "!="
	case "&&", "||":
		return "(truth(" + l + ") " + op + " truth(" + r + "))"
	}
	return "(" + l + " " + op + " " + r + ")"
}

func (p *hclParser) unary() (string, error) {
	t := p.peek()
	if t.kind != tokOp {
		return p.primary()
	}
	switch t.text {
	case "+", "-", "!", "~":
	default:
		return "", fmt.Errorf("unsupported prefix operator %q at offset %d", t.text, t.pos)
	}
	p.next()
	x, err := p.unary()
	if err != nil {
		return "", err
	}
	switch t.text {
	case "-":
		return "(-" + x + ")", nil
	case "!":
		return "(!truth(" + x + "))", nil
	case "~":
		return "bnot(" + x + ")", nil
	}
	return x, nil
}

func (p *hclParser) primary() (string, error) {
	t := p.next()
	switch t.kind {
	case tokNumber, tokString:
		return t.text, nil
	case tokIdent:
		if p.peek().kind != tokLParen {
			return t.text, nil
		}
		p.next()
		var args []string
		if p.peek().kind != tokRParen {
			for {
				a, err := p.ternary()
				if err != nil {
					return "", err
				}
				args = append(args, a)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return "", err
		}
		return t.text + "(" + strings.Join(args, ", ") + ")", nil
	case tokLParen:
		inner, err := p.ternary()
		if err != nil {
			return "", err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	case tokEOF:
		return "", fmt.Errorf("expected operand at end of expression")
	}
	return "", fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}
