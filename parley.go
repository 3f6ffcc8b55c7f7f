package parley

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/skills"
)

// Machine is the high-level entry point of the library: an answering
// machine routing user input across registered domains.
// It is safe for concurrent use; calls are serialised.
type Machine struct {
	mu   sync.Mutex
	orch *runtime.Orchestrator

	loader    ports.GrammarLoader
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	rnd       domain.Rand
	strict    bool
	promptKey string
	apology   string
	common    *domain.Grammar
}

// Option defines a functional option for configuring the Machine.
type Option func(*Machine)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = hooks
	}
}

// WithRand sets the source used to pick among alternative texts.
func WithRand(r domain.Rand) Option {
	return func(m *Machine) {
		m.rnd = r
	}
}

// WithStrictMessages disables the no-key and no-token message fallbacks.
func WithStrictMessages(strict bool) Option {
	return func(m *Machine) {
		m.strict = strict
	}
}

// WithPromptKey selects which keyed prompts and preambles are spoken.
func WithPromptKey(key string) Option {
	return func(m *Machine) {
		m.promptKey = key
	}
}

// WithCommonGrammar replaces the bundled common grammar. It must declare the
// rules listed in domain.CommonRules.
func WithCommonGrammar(g *domain.Grammar) Option {
	return func(m *Machine) {
		m.common = g
	}
}

// WithApology overrides the text spoken when a turn fails.
func WithApology(text string) Option {
	return func(m *Machine) {
		m.apology = text
	}
}

// WithLoader sets the grammar source used by Load and LoadAll.
func WithLoader(l ports.GrammarLoader) Option {
	return func(m *Machine) {
		m.loader = l
	}
}

// New creates a Machine with only the common domain registered.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.common == nil {
		g, err := skills.Grammar(skills.Common)
		if err != nil {
			return nil, fmt.Errorf("bundled common grammar: %w", err)
		}
		m.common = g
	}

	common, err := runtime.NewEngine(m.common, m.engineOptions(domain.DefaultResolver)...)
	if err != nil {
		return nil, err
	}
	orch, err := runtime.NewOrchestrator(common,
		runtime.WithOrchestratorLogger(m.logger),
		runtime.WithOrchestratorHooks(m.hooks),
		runtime.WithApology(m.apology),
	)
	if err != nil {
		return nil, err
	}
	m.orch = orch
	return m, nil
}

func (m *Machine) engineOptions(r domain.Resolver) []runtime.EngineOption {
	return []runtime.EngineOption{
		runtime.WithLogger(m.logger),
		runtime.WithRand(m.rnd),
		runtime.WithLifecycleHooks(m.hooks),
		runtime.WithStrictMessages(m.strict),
		runtime.WithPromptKey(m.promptKey),
		runtime.WithResolver(r),
	}
}

// Compile validates a definition against the grammar schema and compiles it.
func Compile(def *grammar.Definition) (*domain.Grammar, error) {
	return compiler.Load(def)
}

// Register adds a domain. A nil resolver selects domain.DefaultResolver.
// Registering an existing name replaces that domain in place.
func (m *Machine) Register(g *domain.Grammar, r domain.Resolver) error {
	if g == nil {
		return fmt.Errorf("%w: nil grammar", domain.ErrMalformedGrammar)
	}
	e, err := runtime.NewEngine(g, m.engineOptions(r)...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.Register(e)
}

// Load reads a grammar from the configured loader, compiles and registers it.
func (m *Machine) Load(ctx context.Context, name string, r domain.Resolver) error {
	if m.loader == nil {
		return fmt.Errorf("%w: no grammar loader configured", domain.ErrGrammarNotFound)
	}
	data, err := m.loader.GetGrammar(name)
	if err != nil {
		return err
	}
	def, err := grammar.Parse(data)
	if err != nil {
		return fmt.Errorf("grammar %s: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}
	g, err := compiler.Load(def)
	if err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "grammar loaded", "domain", g.Name(), "rules", len(g.Rules()))
	return m.Register(g, r)
}

// LoadAll registers every grammar of the loader in the order it lists them.
// Resolvers are looked up by grammar name. A grammar named like the common
// domain is skipped.
func (m *Machine) LoadAll(ctx context.Context, resolvers map[string]domain.Resolver) error {
	if m.loader == nil {
		return fmt.Errorf("%w: no grammar loader configured", domain.ErrGrammarNotFound)
	}
	names, err := m.loader.ListGrammars()
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == m.common.Name() {
			m.logger.DebugContext(ctx, "skipping common grammar from loader", "domain", name)
			continue
		}
		if err := m.Load(ctx, name, resolvers[name]); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a domain. The common domain cannot be removed.
func (m *Machine) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.orch.Unregister(ctx, name)
	return err
}

// Answer routes one user input. When interpretation fails the response is
// the apology, the error is returned alongside it and the conversation is reset.
func (m *Machine) Answer(ctx context.Context, query string) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.Answer(ctx, query)
}

// RunRule runs a rule by name, as if the user had asked for it.
func (m *Machine) RunRule(ctx context.Context, rule string) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.RunRule(ctx, rule)
}

// Reset abandons any conversation in progress.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orch.Reset(ctx)
}

// StartingPrompt speaks the opening prompt.
func (m *Machine) StartingPrompt(ctx context.Context) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.StartingPrompt(ctx)
}

// LeaveGreeting speaks the closing greeting.
func (m *Machine) LeaveGreeting(ctx context.Context) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.LeaveGreeting(ctx)
}

// NotUnderstood abandons any conversation and speaks the fallback message.
func (m *Machine) NotUnderstood(ctx context.Context) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.NotUnderstood(ctx)
}

// Quit abandons any conversation and speaks the quit message.
func (m *Machine) Quit(ctx context.Context) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.Quit(ctx)
}

// InConversation reports whether a domain is waiting for more input.
func (m *Machine) InConversation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.InConversation()
}

// Domains lists registered domains in claim order, common first.
func (m *Machine) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	engines := m.orch.Engines()
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name()
	}
	return names
}

// Grammar returns the grammar of a registered domain.
func (m *Machine) Grammar(name string) (*domain.Grammar, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orch.Engine(name)
	if !ok {
		return nil, false
	}
	return e.Grammar(), true
}

// Snapshot captures the conversation state.
func (m *Machine) Snapshot() *domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.Snapshot()
}

// Restore replaces the conversation state. Every domain named by the
// snapshot must be registered.
func (m *Machine) Restore(s *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orch.Restore(s)
}

// Watch returns a channel receiving the names of changed grammars.
// Returns an error if the loader does not support watching.
func (m *Machine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := m.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}

// Loader returns the configured grammar loader, or nil.
func (m *Machine) Loader() ports.GrammarLoader {
	return m.loader
}
