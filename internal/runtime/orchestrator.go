package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"golang.org/x/text/unicode/norm"
)

// Orchestrator routes queries to domain engines and owns the
// "conversation in progress" flag. It is not safe for concurrent use.
type Orchestrator struct {
	engines []*Engine
	common  *Engine
	active  *Engine
	running bool
	// muted suppresses reset hooks while a system sequence runs.
	muted bool

	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	apology string
}

var _ Host = (*Orchestrator)(nil)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the structured logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOrchestratorHooks registers turn and reset hooks.
func WithOrchestratorHooks(hooks domain.LifecycleHooks) OrchestratorOption {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithApology overrides the text spoken when a turn fails.
func WithApology(text string) OrchestratorOption {
	return func(o *Orchestrator) {
		if text != "" {
			o.apology = text
		}
	}
}

// NewOrchestrator creates an orchestrator around the common engine, which is
// registered first and can never be removed.
func NewOrchestrator(common *Engine, opts ...OrchestratorOption) (*Orchestrator, error) {
	if common == nil {
		return nil, fmt.Errorf("%w: common engine is required", domain.ErrMalformedGrammar)
	}
	for _, name := range domain.CommonRules {
		if !common.grammar.HasRule(name) {
			return nil, &domain.GrammarError{Grammar: common.Name(),
				Reason: fmt.Sprintf("common grammar must declare rule %q", name)}
		}
	}
	if common.baseline == "" {
		common.baseline = domain.RuleNotUnderstood
	}
	o := &Orchestrator{
		common:  common,
		active:  common,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		apology: domain.DefaultApology,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.Register(common); err != nil {
		return nil, err
	}
	return o, nil
}

// Clean removes characters that break matching and normalises the input.
func Clean(query string) string {
	query = strings.Map(func(r rune) rune {
		if r == '!' || r == '?' {
			return -1
		}
		return r
	}, query)
	return strings.Join(strings.Fields(norm.NFC.String(query)), " ")
}

// Activate makes e the active engine.
func (o *Orchestrator) Activate(e *Engine) { o.active = e }

// Conclude ends the conversation.
func (o *Orchestrator) Conclude(ctx context.Context) { o.Reset(ctx) }

// InConversation reports whether an engine has claimed the conversation.
func (o *Orchestrator) InConversation() bool { return o.running }

// Active returns the engine currently answering.
func (o *Orchestrator) Active() *Engine { return o.active }

// Common returns the common engine.
func (o *Orchestrator) Common() *Engine { return o.common }

// Engines returns the registered engines in registration order.
func (o *Orchestrator) Engines() []*Engine { return slices.Clone(o.engines) }

// Engine returns the engine registered under name.
func (o *Orchestrator) Engine(name string) (*Engine, bool) {
	i := o.index(name)
	if i < 0 {
		return nil, false
	}
	return o.engines[i], true
}

func (o *Orchestrator) index(name string) int {
	return slices.IndexFunc(o.engines, func(e *Engine) bool { return e.Name() == name })
}

// Register adds an engine. Re-registering a name replaces the engine in place,
// keeping its position in the claim order.
func (o *Orchestrator) Register(e *Engine) error {
	if e == nil {
		return fmt.Errorf("%w: nil engine", domain.ErrUnknownDomain)
	}
	if e.Name() == o.common.Name() && e != o.common {
		return fmt.Errorf("%w: %q", domain.ErrCommonDomain, e.Name())
	}
	e.attach(o)
	e.Reset()
	if i := o.index(e.Name()); i >= 0 {
		if o.active == o.engines[i] {
			o.active = e
		}
		o.engines[i] = e
	} else {
		o.engines = append(o.engines, e)
	}
	o.logger.Debug("domain registered", "domain", e.Name())
	return nil
}

// Unregister removes the named engine.
func (o *Orchestrator) Unregister(ctx context.Context, name string) (*Engine, error) {
	if name == o.common.Name() {
		return nil, fmt.Errorf("%w: %q", domain.ErrCommonDomain, name)
	}
	i := o.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, name)
	}
	e := o.engines[i]
	if o.active == e {
		o.Reset(ctx)
	}
	o.engines = slices.Delete(o.engines, i, i+1)
	e.attach(nil)
	o.logger.Debug("domain unregistered", "domain", name)
	return e, nil
}

// Answer routes one user input and returns the response of the engine that
// handled it. When the turn fails, the returned response is the apology and
// the conversation has been reset.
func (o *Orchestrator) Answer(ctx context.Context, query string) (domain.Response, error) {
	start := time.Now()
	q := Clean(query)

	resp, understood, err := o.answer(ctx, q)
	if err != nil {
		resp, err = o.recover(ctx, "answer", err)
	}
	o.emitTurn(ctx, q, resp, understood, err, start)
	return resp, err
}

func (o *Orchestrator) answer(ctx context.Context, q string) (domain.Response, bool, error) {
	if o.running {
		if o.isQuit(q) {
			resp, err := o.Quit(ctx)
			return resp, true, err
		}
		o.active.SetQuery(q)
		resp, err := o.active.Answer(ctx)
		return resp, true, err
	}

	for _, e := range o.engines {
		if e.Claim(ctx, q) {
			o.running = true
			resp, err := o.active.Answer(ctx)
			return resp, true, err
		}
	}

	if o.isQuit(q) {
		resp, err := o.Quit(ctx)
		return resp, true, err
	}

	o.logger.Debug("query not understood", "query", q)
	o.active = o.common
	o.common.SetQuery(q)
	resp, err := o.common.Answer(ctx)
	return resp, false, err
}

func (o *Orchestrator) isQuit(q string) bool {
	r, err := o.common.grammar.Rule(domain.RuleQuit)
	return err == nil && r.Matches(q)
}

// RunRule runs a rule by name. When idle, the first engine declaring the rule
// takes the conversation; otherwise the active engine runs it.
func (o *Orchestrator) RunRule(ctx context.Context, name string) (domain.Response, error) {
	if !o.running {
		for _, e := range o.engines {
			if e.grammar.HasRule(name) {
				o.active = e
				o.running = true
				break
			}
		}
	}
	resp, err := o.active.RunRule(ctx, name)
	if err != nil {
		return o.recover(ctx, "run rule", err)
	}
	return resp, nil
}

// Reset ends any conversation and returns to the common engine.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.abandon()
	o.emitReset(ctx)
}

// abandon resets the engine in conversation, then returns to common.
func (o *Orchestrator) abandon() {
	o.running = false
	o.active.Reset()
	o.active = o.common
}

func (o *Orchestrator) emitReset(ctx context.Context) {
	if o.muted || o.hooks.OnReset == nil {
		return
	}
	o.hooks.OnReset(ctx, &domain.ResetEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventReset, Domain: o.common.Name()},
	})
}

// StartingPrompt speaks the opening prompt of the common domain.
func (o *Orchestrator) StartingPrompt(ctx context.Context) (domain.Response, error) {
	return o.system(ctx, domain.RuleCommonPrompt)
}

// LeaveGreeting speaks the closing greeting of the common domain.
func (o *Orchestrator) LeaveGreeting(ctx context.Context) (domain.Response, error) {
	return o.system(ctx, domain.RuleLeaveGreeting)
}

// NotUnderstood abandons any conversation and speaks the fallback message.
func (o *Orchestrator) NotUnderstood(ctx context.Context) (domain.Response, error) {
	return o.system(ctx, domain.RuleNotUnderstood)
}

// Quit abandons any conversation and runs the quit rule.
func (o *Orchestrator) Quit(ctx context.Context) (domain.Response, error) {
	resp, err := o.system(ctx, domain.RuleQuit)
	resp.Quit = err == nil
	return resp, err
}

// system runs a rule of the common domain. Whatever was in conversation is
// abandoned first, and the sequence ends with one reset.
func (o *Orchestrator) system(ctx context.Context, rule string) (domain.Response, error) {
	o.abandon()
	o.muted = true
	resp, err := o.common.RunRule(ctx, rule)
	o.muted = false
	o.abandon()
	o.common.Reset()
	if err != nil {
		return o.recover(ctx, rule, err)
	}
	o.emitReset(ctx)
	return resp, nil
}

func (o *Orchestrator) recover(ctx context.Context, op string, err error) (domain.Response, error) {
	level := slog.LevelError
	if errors.Is(err, domain.ErrRuleNotFound) {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "turn failed", "op", op, "domain", o.active.Name(), "error", err)
	o.Reset(ctx)
	return domain.Speak(o.apology).From(o.common.Name(), ""), err
}

func (o *Orchestrator) emitTurn(ctx context.Context, q string, resp domain.Response, understood bool, err error, start time.Time) {
	if o.hooks.OnTurn == nil {
		return
	}
	d := resp.Domain
	if d == "" {
		d = o.common.Name()
	}
	o.hooks.OnTurn(ctx, &domain.TurnEvent{
		EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventTurn, Domain: d},
		Query:      q,
		Response:   resp,
		Duration:   time.Since(start),
		Understood: understood && err == nil,
		Err:        err,
	})
}

// Snapshot captures the whole conversation state.
func (o *Orchestrator) Snapshot() *domain.Snapshot {
	s := &domain.Snapshot{
		InConversation: o.running,
		Active:         o.active.Name(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, e := range o.engines {
		s.Engines = append(s.Engines, e.State())
	}
	return s
}

// Restore replaces the conversation state with a snapshot. Engines missing
// from the snapshot are reset; unknown domains are an error.
func (o *Orchestrator) Restore(s *domain.Snapshot) error {
	if s == nil {
		return nil
	}
	for _, st := range s.Engines {
		if o.index(st.Domain) < 0 {
			return fmt.Errorf("restore: %w: %q", domain.ErrUnknownDomain, st.Domain)
		}
	}
	active := o.common
	if s.Active != "" {
		e, ok := o.Engine(s.Active)
		if !ok {
			return fmt.Errorf("restore: %w: %q", domain.ErrUnknownDomain, s.Active)
		}
		active = e
	}

	for _, e := range o.engines {
		st, ok := s.Engine(e.Name())
		if !ok {
			e.Reset()
			continue
		}
		if err := e.Restore(st); err != nil {
			return fmt.Errorf("restore %q: %w", e.Name(), err)
		}
	}
	o.active = active
	o.running = s.InConversation
	return nil
}
