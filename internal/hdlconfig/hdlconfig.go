// Package hdlconfig resolves config declarations: rules that retarget which
// definition an instantiation binds to, by hierarchical instance path or by
// cell name.
package hdlconfig

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/arbor/internal/design"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/internal/syntax"
)

// RuleKind separates instance rules from cell rules.
type RuleKind uint8

const (
	RuleInstance RuleKind = iota
	RuleCell
)

func (k RuleKind) String() string {
	if k == RuleInstance {
		return "instance"
	}
	return "cell"
}

// Rule is one instance or cell clause of a config.
type Rule struct {
	Config string
	Kind   RuleKind
	// Pattern is a dotted instance path (instance rules, '*' matches one
	// segment) or a cell name (cell rules).
	Pattern string
	Lib     string
	Target  string
	// UseConfig is set when the clause hands the subtree to another config.
	UseConfig string
	Params    []design.SiteOverride
	Loc       diag.Location
}

func (r *Rule) String() string {
	use := r.Target
	if r.UseConfig != "" {
		use = r.UseConfig + ":config"
	}
	return fmt.Sprintf("%s: %s %s use %s", r.Config, r.Kind, r.Pattern, use)
}

// Config is one config declaration.
type Config struct {
	Name    string
	Designs []string
	Rules   []*Rule
	Loc     diag.Location
}

// Top returns the first design cell, which rooted subtrees bind to.
func (c *Config) Top() string {
	if len(c.Designs) == 0 {
		return ""
	}
	return c.Designs[0]
}

// Context is the chain of configs governing a subtree, innermost first. It
// is immutable and shared between sibling subtrees.
type Context struct {
	config *Config
	root   string
	parent *Context
}

func (c *Context) push(cfg *Config, root string) *Context {
	return &Context{config: cfg, root: root, parent: c}
}

// Configs returns the config names in the chain, innermost first.
func (c *Context) Configs() []string {
	var out []string
	for s := c; s != nil; s = s.parent {
		out = append(out, s.config.Name)
	}
	return out
}

// Resolution is the outcome of resolving one instantiation.
type Resolution struct {
	Target string
	// Rule is the first rule applied, nil when the syntactic name stands.
	Rule *Rule
	// Params are config-inherited parameter assignments.
	Params []design.SiteOverride
	// Context governs the instance's subtree.
	Context *Context
}

// Resolver answers which definition an instance path binds to. It is
// built once and read-only afterwards.
type Resolver struct {
	configs  map[string]*Config
	order    []string
	active   []*Config
	reporter diag.Reporter
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReporter sets where config diagnostics go.
func WithReporter(r diag.Reporter) Option {
	return func(res *Resolver) { res.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(res *Resolver) {
		if l != nil {
			res.logger = l
		}
	}
}

// Build collects every config of files. Configs named by another config's
// use clause only apply through that clause; the rest apply to their
// design cells. A non-empty selected list restricts the directly applied
// configs to those names.
func Build(files []*syntax.FileContent, selected []string, opts ...Option) *Resolver {
	r := &Resolver{
		configs:  make(map[string]*Config),
		reporter: diag.Discard,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, fc := range files {
		for _, u := range fc.Units() {
			if fc.Kind(u) != syntax.KindConfig {
				continue
			}
			cfg := collectConfig(fc, u)
			if _, dup := r.configs[cfg.Name]; dup {
				continue
			}
			r.configs[cfg.Name] = cfg
			r.order = append(r.order, cfg.Name)
		}
	}

	nested := make(map[string]bool)
	for _, name := range r.order {
		for _, rule := range r.configs[name].Rules {
			if rule.UseConfig != "" {
				nested[rule.UseConfig] = true
			}
		}
	}
	want := make(map[string]bool)
	for _, s := range selected {
		want[s] = true
	}
	for _, name := range r.order {
		cfg := r.configs[name]
		if len(cfg.Designs) == 0 {
			continue
		}
		if len(want) > 0 {
			if want[name] {
				r.active = append(r.active, cfg)
			}
			continue
		}
		if !nested[name] {
			r.active = append(r.active, cfg)
		}
	}
	for s := range want {
		if _, ok := r.configs[s]; !ok {
			r.reporter.Report(diag.New(diag.UnknownConfig, diag.Location{}, fmt.Sprintf("config %s is not declared", s)))
		}
	}
	r.logger.Debug("configs collected",
		zap.Int("configs", len(r.order)),
		zap.Int("active", len(r.active)))
	return r
}

func collectConfig(fc *syntax.FileContent, node syntax.NodeID) *Config {
	cfg := &Config{Name: fc.Name(node), Loc: fc.Location(node)}
	for _, c := range fc.Children(node) {
		switch fc.Kind(c) {
		case syntax.KindConfigDesign:
			_, cell := splitLib(fc.Name(c))
			cfg.Designs = append(cfg.Designs, cell)
		case syntax.KindInstanceRule, syntax.KindCellRule:
			rule := &Rule{Config: cfg.Name, Kind: RuleInstance, Pattern: fc.Name(c), Loc: fc.Location(c)}
			if fc.Kind(c) == syntax.KindCellRule {
				rule.Kind = RuleCell
				_, rule.Pattern = splitLib(rule.Pattern)
			}
			use := fc.FirstChild(c, syntax.KindUse)
			if use == syntax.InvalidNode {
				continue
			}
			lib, cell := splitLib(fc.Name(use))
			if fc.Attr(use) == "config" {
				rule.UseConfig = cell
			} else {
				rule.Lib, rule.Target = lib, cell
			}
			rule.Params = design.SiteOverrides(fc, use)
			cfg.Rules = append(cfg.Rules, rule)
		}
	}
	return cfg
}

func splitLib(s string) (lib, cell string) {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// Config returns the named config.
func (r *Resolver) Config(name string) *Config {
	return r.configs[name]
}

// Tops returns the design cells of directly applied configs; they are
// top-level candidates.
func (r *Resolver) Tops() []string {
	var out []string
	for _, cfg := range r.active {
		out = append(out, cfg.Designs...)
	}
	return out
}

// Referenced returns the definition names config rules bind to, including
// the design cells of configs reached through use clauses. They are not
// top-level candidates.
func (r *Resolver) Referenced() []string {
	var out []string
	for _, name := range r.order {
		for _, rule := range r.configs[name].Rules {
			switch {
			case rule.Target != "":
				out = append(out, rule.Target)
			case rule.UseConfig != "":
				if nested := r.configs[rule.UseConfig]; nested != nil {
					out = append(out, nested.Designs...)
				}
			}
		}
	}
	return out
}

// ContextFor returns the config chain governing the top instance top.
func (r *Resolver) ContextFor(top string) *Context {
	var ctx *Context
	for _, cfg := range r.active {
		for _, d := range cfg.Designs {
			if d == top {
				ctx = ctx.push(cfg, top)
			}
		}
	}
	return ctx
}

// Visited tracks the rules applied along one resolution chain.
type Visited map[*Rule]bool

// Resolve maps an instance path and its syntactic definition name to the
// definition it binds to. Rules handing the instance to another config are
// followed depth-first; visited guards against cycles, and a cycle falls
// back to the syntactic name. A nil visited set starts a fresh chain.
func (r *Resolver) Resolve(ctx *Context, path, name string, visited Visited) Resolution {
	if visited == nil {
		visited = make(Visited)
	}
	res, ok := r.resolve(ctx, path, name, visited)
	if !ok {
		return Resolution{Target: name, Context: ctx}
	}
	return res
}

func (r *Resolver) resolve(ctx *Context, path, name string, visited Visited) (Resolution, bool) {
	res := Resolution{Target: name, Context: ctx}
	rule := r.match(ctx, path, name)
	if rule == nil {
		return res, true
	}
	if visited[rule] {
		r.reporter.Report(diag.New(diag.ConfigCycle, rule.Loc,
			fmt.Sprintf("config rule %q applied recursively for %s", rule.String(), path)))
		return Resolution{}, false
	}
	visited[rule] = true
	r.logger.Debug("config rule applied",
		zap.String("path", path),
		zap.String("rule", rule.String()))

	if rule.UseConfig == "" {
		res.Target = rule.Target
		res.Rule = rule
		res.Params = rule.Params
		return res, true
	}

	nested := r.configs[rule.UseConfig]
	if nested == nil || nested.Top() == "" {
		r.reporter.Report(diag.New(diag.UnknownConfig, rule.Loc,
			fmt.Sprintf("config %s used by %s is not declared or has no design", rule.UseConfig, rule.Config)))
		return res, true
	}
	inner, ok := r.resolve(ctx.push(nested, path), path, nested.Top(), visited)
	if !ok {
		return Resolution{}, false
	}
	inner.Rule = rule
	inner.Params = mergeParams(rule.Params, inner.Params)
	return inner, true
}

// match applies the innermost config governing path: its most specific
// instance rule, else its cell rule for name.
func (r *Resolver) match(ctx *Context, path, name string) *Rule {
	s := ctx
	for s != nil && !under(s.root, path) {
		s = s.parent
	}
	if s == nil {
		return nil
	}
	segs := design.SplitPath(path)
	var best *Rule
	bestScore := -1
	for _, rule := range s.config.Rules {
		if rule.Kind != RuleInstance {
			continue
		}
		score, ok := matchPath(reroot(rule.Pattern, s.root), segs)
		if ok && score > bestScore {
			best, bestScore = rule, score
		}
	}
	if best != nil {
		return best
	}
	for _, rule := range s.config.Rules {
		if rule.Kind == RuleCell && rule.Pattern == name {
			return rule
		}
	}
	return nil
}

// reroot replaces the first segment of pattern (the config's design cell)
// with root, the path the config governs.
func reroot(pattern, root string) []string {
	segs := design.SplitPath(pattern)
	if len(segs) == 0 {
		return nil
	}
	return append(design.SplitPath(root), segs[1:]...)
}

func matchPath(pattern, path []string) (int, bool) {
	if len(pattern) != len(path) {
		return 0, false
	}
	score := 0
	for i, p := range pattern {
		switch {
		case p == "*":
		case p == path[i]:
			score++
		default:
			return 0, false
		}
	}
	return score, true
}

func under(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+".")
}

func mergeParams(outer, inner []design.SiteOverride) []design.SiteOverride {
	if len(inner) == 0 {
		return outer
	}
	seen := make(map[string]bool)
	var out []design.SiteOverride
	for _, list := range [][]design.SiteOverride{outer, inner} {
		for _, p := range list {
			if p.Name != "" && seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	return out
}
