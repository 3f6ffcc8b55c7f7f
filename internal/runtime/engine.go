package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dualmap"
)

// maxChain bounds nested prequel chaining within one turn.
const maxChain = 16

// Host receives the activation and conclusion signals of an engine.
// The Orchestrator is the production Host.
type Host interface {
	Activate(e *Engine)
	Conclude(ctx context.Context)
}

// selfHost resets the engine on conclusion. Used until an engine is registered.
type selfHost struct{ e *Engine }

func (selfHost) Activate(*Engine)           {}
func (h selfHost) Conclude(context.Context) { h.e.Reset() }

// Engine is the slot-filling state machine of one domain.
// It is not safe for concurrent use.
type Engine struct {
	grammar   *domain.Grammar
	resolver  domain.Resolver
	logger    *slog.Logger
	rnd       domain.Rand
	hooks     domain.LifecycleHooks
	strict    bool
	promptKey string
	baseline  string
	host      Host

	current *domain.Rule
	query   string
	pending []domain.Group
	results *dualmap.Map[string, domain.Group, string]
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResolver sets the post-processing hook run once every mandatory group is filled.
func WithResolver(r domain.Resolver) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRand sets the source used to pick prompts and messages.
func WithRand(r domain.Rand) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.rnd = r
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithStrictMessages disables the NoKey and token-list fallbacks of message selection.
func WithStrictMessages(strict bool) EngineOption {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithPromptKey selects which keyed prompts and preambles are used.
func WithPromptKey(key string) EngineOption {
	return func(e *Engine) {
		e.promptKey = key
	}
}

// WithBaseline sets the rule the engine returns to on reset. Without it the
// engine goes idle.
func WithBaseline(rule string) EngineOption {
	return func(e *Engine) {
		e.baseline = rule
	}
}

// NewEngine creates the engine of one domain.
func NewEngine(g *domain.Grammar, opts ...EngineOption) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grammar", domain.ErrMalformedGrammar)
	}
	e := &Engine{
		grammar:  g,
		resolver: domain.DefaultResolver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		rnd:      domain.DefaultRand,
		results:  dualmap.New[string, domain.Group, string](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.baseline != "" && !g.HasRule(e.baseline) {
		return nil, &domain.GrammarError{Grammar: g.Name(), Reason: fmt.Sprintf("baseline rule %q is not declared", e.baseline)}
	}
	e.logger = e.logger.With("domain", g.Name())
	e.host = selfHost{e}
	e.Reset()
	return e, nil
}

// Name returns the domain name.
func (e *Engine) Name() string { return e.grammar.Name() }

// Grammar returns the engine's grammar.
func (e *Engine) Grammar() *domain.Grammar { return e.grammar }

// CurrentRule returns the rule being resolved, or nil when idle.
func (e *Engine) CurrentRule() *domain.Rule { return e.current }

// Query returns the last input fed to the engine.
func (e *Engine) Query() string { return e.query }

// SetQuery records the input the next Answer resolves.
func (e *Engine) SetQuery(q string) { e.query = q }

// Pending returns the queued groups, head first.
func (e *Engine) Pending() []domain.Group { return slices.Clone(e.pending) }

// Results returns every captured value in capture order.
func (e *Engine) Results() []domain.Result {
	var out []domain.Result
	for entry := range e.results.All() {
		out = append(out, domain.Result{Rule: entry.Key1, Group: entry.Key2, Value: entry.Value})
	}
	return out
}

func (e *Engine) attach(h Host) {
	if h == nil {
		h = selfHost{e}
	}
	e.host = h
}

// Claim looks for the first browsable rule matching the whole query. On a
// hit the engine becomes active with that rule as its current rule.
func (e *Engine) Claim(ctx context.Context, query string) bool {
	r, ok := e.grammar.FindByQuery(query)
	if !ok {
		return false
	}
	e.query = query
	e.current = r
	e.host.Activate(e)
	e.logger.Debug("query claimed", "rule", r.Name(), "query", query)
	if e.hooks.OnClaim != nil {
		e.hooks.OnClaim(ctx, &domain.ClaimEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventClaim, Domain: e.Name()},
			Rule:      r.Name(),
			Query:     query,
		})
	}
	return true
}

// Answer resolves one turn against the current rule using the last query.
func (e *Engine) Answer(ctx context.Context) (domain.Response, error) {
	rule := e.current
	if rule == nil {
		return domain.Response{}, fmt.Errorf("%w in domain %q", domain.ErrNoActiveRule, e.Name())
	}

	var carry string
	m, ok := rule.Match(e.query)
	if !ok {
		e.enqueue(rule.RootGroup())
		carry = e.preamble(rule)
		e.logger.Debug("query not understood by rule", "rule", rule.Name(), "query", e.query)
	} else {
		e.dequeue(rule.RootGroup())
		for _, g := range rule.Groups() {
			if e.results.Has(rule.Name(), g) {
				continue
			}
			value := strings.TrimSpace(m.Value(g.Name))
			if value == "" {
				if g.Mandatory() {
					e.enqueue(g)
				}
				continue
			}
			e.results.Put(rule.Name(), g, value)
			e.dequeue(g)
		}
	}

	if len(e.pending) == 0 {
		return e.resolve(ctx)
	}

	next, err := e.grammar.Rule(e.pending[0].Name)
	if err != nil {
		return domain.Response{}, err
	}
	return e.runRule(ctx, next, carry, 0)
}

// RunRule runs the named rule of this domain.
func (e *Engine) RunRule(ctx context.Context, name string) (domain.Response, error) {
	return e.runRuleNamed(ctx, name, "", 0)
}

func (e *Engine) runRuleNamed(ctx context.Context, name, carry string, depth int) (domain.Response, error) {
	r, err := e.grammar.Rule(name)
	if err != nil {
		return domain.Response{}, err
	}
	return e.runRule(ctx, r, carry, depth)
}

func (e *Engine) runRule(ctx context.Context, r *domain.Rule, carry string, depth int) (domain.Response, error) {
	if depth > maxChain {
		return domain.Response{}, fmt.Errorf("rule %q: message chain deeper than %d", r.Name(), maxChain)
	}
	e.host.Activate(e)

	if r.HasPrompt() {
		prompt, err := r.Prompt(e.promptKey, e.rnd)
		if err != nil {
			return domain.Response{}, fmt.Errorf("prompt of rule %q: %w", r.Name(), err)
		}
		e.current = r
		resp := domain.Prompt(domain.JoinText(carry, prompt)).From(e.Name(), r.Name()).WithPreamble(carry)
		e.emitRule(ctx, resp)
		return resp, nil
	}

	v, err := r.Message(domain.NoKey, nil, e.strict, e.rnd)
	if err != nil {
		return domain.Response{}, err
	}
	if v.IsPrequel() {
		return e.runRuleNamed(ctx, v.Next, domain.JoinText(carry, e.fill(v.Preamble, v.Placeholders)), depth+1)
	}

	resp := domain.Speak(domain.JoinText(carry, e.fill(v.Text, v.Placeholders))).From(e.Name(), r.Name())
	e.emitRule(ctx, resp)
	e.host.Conclude(ctx)
	return resp, nil
}

func (e *Engine) resolve(ctx context.Context) (domain.Response, error) {
	rule := e.current
	resp, done, err := e.resolver.Resolve(ctx, &turn{e: e})
	if err != nil {
		return domain.Response{}, err
	}
	if resp.Domain == "" {
		resp = resp.From(e.Name(), rule.Name())
	}
	e.logger.Debug("turn resolved", "rule", rule.Name(), "ending", resp.Ending, "done", done)
	if done {
		e.host.Conclude(ctx)
	}
	return resp, nil
}

// compositeKey builds the message lookup key from the current rule's results,
// in declared group order.
func (e *Engine) compositeKey() (domain.GroupKey, []string) {
	var (
		groups []domain.Group
		tokens []string
	)
	for _, g := range e.current.Groups() {
		v, ok := e.results.Get(e.current.Name(), g)
		if !ok {
			continue
		}
		groups = append(groups, g)
		if g.Substitute {
			tokens = append(tokens, g.Name)
		} else {
			tokens = append(tokens, v)
		}
	}
	if len(groups) == 0 {
		return domain.NoKey, nil
	}
	return domain.NewGroupKey(groups...), tokens
}

// result finds the value captured for a group name, preferring the current rule.
func (e *Engine) result(name string) (string, bool) {
	if e.current != nil {
		if b, ok := e.results.ByKey1(e.current.Name()); ok {
			for g, v := range b.All() {
				if g.Name == name {
					return v, true
				}
			}
		}
	}
	for entry := range e.results.All() {
		if entry.Key2.Name == name {
			return entry.Value, true
		}
	}
	return "", false
}

func (e *Engine) fill(text string, names []string) string {
	for _, name := range names {
		v, ok := e.result(name)
		if !ok {
			e.logger.Warn("placeholder without a captured value", "placeholder", name)
		}
		text = strings.ReplaceAll(text, "#"+name+"#", v)
	}
	return text
}

func (e *Engine) preamble(r *domain.Rule) string {
	if !r.HasPreamble() {
		return ""
	}
	p, err := r.Preamble(e.promptKey, e.rnd)
	if err != nil {
		return ""
	}
	return p
}

func (e *Engine) enqueue(g domain.Group) {
	if !slices.Contains(e.pending, g) {
		e.pending = append(e.pending, g)
	}
}

func (e *Engine) dequeue(g domain.Group) {
	if i := slices.Index(e.pending, g); i >= 0 {
		e.pending = slices.Delete(e.pending, i, i+1)
	}
}

func (e *Engine) emitRule(ctx context.Context, resp domain.Response) {
	e.logger.Debug("rule run", "rule", resp.Rule, "ending", resp.Ending)
	if e.hooks.OnRuleRun != nil {
		e.hooks.OnRuleRun(ctx, &domain.RuleEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRuleRun, Domain: e.Name()},
			Rule:      resp.Rule,
			Ending:    resp.Ending,
		})
	}
}

// Reset clears the pending queue, the collected results and the query, and
// returns to the baseline rule.
func (e *Engine) Reset() {
	e.pending = nil
	e.results.Clear()
	e.query = ""
	e.current = nil
	if e.baseline != "" {
		e.current, _ = e.grammar.Rule(e.baseline)
	}
}

// State captures the conversation state for persistence.
func (e *Engine) State() domain.EngineState {
	s := domain.EngineState{
		Domain:  e.Name(),
		Query:   e.query,
		Pending: e.Pending(),
		Results: e.Results(),
	}
	if e.current != nil {
		s.CurrentRule = e.current.Name()
	}
	return s
}

// Restore replaces the conversation state with s.
func (e *Engine) Restore(s domain.EngineState) error {
	var current *domain.Rule
	if s.CurrentRule != "" {
		r, err := e.grammar.Rule(s.CurrentRule)
		if err != nil {
			return err
		}
		current = r
	}
	for _, r := range s.Results {
		if !e.grammar.HasRule(r.Rule) {
			return &domain.RuleNotFoundError{Domain: e.Name(), Rule: r.Rule}
		}
	}

	e.Reset()
	if current != nil {
		e.current = current
	}
	e.query = s.Query
	e.pending = slices.Clone(s.Pending)
	for _, r := range s.Results {
		e.results.Put(r.Rule, r.Group, r.Value)
	}
	return nil
}
