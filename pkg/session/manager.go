package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/google/uuid"
)

// Factory builds a machine with every domain registered.
type Factory func(ctx context.Context) (*parley.Machine, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type pooled struct {
	m   *parley.Machine
	gen uint64
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store      ports.SnapshotStore
	factory    Factory
	transcript ports.TranscriptStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string

	idle chan pooled
	gen  uint64
}

var _ ports.Conversation = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks. Defaults to 30s.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTranscript records every exchange in store.
func WithTranscript(store ports.TranscriptStore) Option {
	return func(m *Manager) {
		m.transcript = store
	}
}

// WithIDGenerator replaces the UUIDv7 session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// WithPoolSize bounds the number of idle machines kept between calls.
func WithPoolSize(n int) Option {
	return func(m *Manager) {
		if n < 0 {
			n = 0
		}
		m.idle = make(chan pooled, n)
	}
}

// NewManager creates a session manager persisting snapshots in store.
func NewManager(store ports.SnapshotStore, factory Factory, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		factory: factory,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
		newID:   newSessionID,
		idle:    make(chan pooled, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// machine takes an idle machine of the current generation or builds one.
func (m *Manager) machine(ctx context.Context) (pooled, error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	for {
		select {
		case p := <-m.idle:
			if p.gen == gen {
				return p, nil
			}
		default:
			pm, err := m.factory(ctx)
			if err != nil {
				return pooled{}, fmt.Errorf("failed to build machine: %w", err)
			}
			return pooled{m: pm, gen: gen}, nil
		}
	}
}

func (m *Manager) recycle(p pooled) {
	select {
	case m.idle <- p:
	default:
	}
}

// Refresh discards pooled machines, so later calls see reloaded grammars.
func (m *Manager) Refresh() {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
	for {
		select {
		case <-m.idle:
		default:
			return
		}
	}
}

// op is one machine operation inside a session.
type op func(ctx context.Context, pm *parley.Machine) (domain.Response, error)

// run loads the session, applies fn and persists the result. When create is
// set a missing session starts fresh instead of failing.
func (m *Manager) run(ctx context.Context, sessionID, query string, create bool, fn op) (domain.Response, error) {
	var resp domain.Response
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		snap, err := m.store.Load(ctx, sessionID)
		if err != nil && (!create || !errors.Is(err, domain.ErrSessionNotFound)) {
			return err
		}

		p, err := m.machine(ctx)
		if err != nil {
			return err
		}
		defer m.recycle(p)

		m.restore(ctx, sessionID, p.m, snap)

		var opErr error
		resp, opErr = fn(ctx, p.m)

		if err := m.store.Save(ctx, sessionID, p.m.Snapshot()); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		m.record(ctx, sessionID, query, resp, opErr)
		return opErr
	})
	return resp, err
}

// restore loads snap into pm. A snapshot naming domains that no longer exist
// restarts the session instead of failing every later call.
func (m *Manager) restore(ctx context.Context, sessionID string, pm *parley.Machine, snap *domain.Snapshot) {
	if snap == nil {
		pm.Reset(ctx)
		return
	}
	if err := pm.Restore(snap); err != nil {
		m.logger.WarnContext(ctx, "session snapshot discarded", "session_id", sessionID, "err", err)
		pm.Reset(ctx)
	}
}

func (m *Manager) record(ctx context.Context, sessionID, query string, resp domain.Response, err error) {
	if m.transcript == nil {
		return
	}
	understood := err == nil && resp.Rule != domain.RuleNotUnderstood
	if err := m.transcript.Append(ctx, domain.NewExchange(sessionID, query, resp, understood)); err != nil {
		m.logger.WarnContext(ctx, "failed to append transcript", "session_id", sessionID, "err", err)
	}
}

// Start creates a session and speaks the starting prompt.
func (m *Manager) Start(ctx context.Context) (string, domain.Response, error) {
	id := m.newID()
	resp, err := m.run(ctx, id, "", true, func(ctx context.Context, pm *parley.Machine) (domain.Response, error) {
		return pm.StartingPrompt(ctx)
	})
	if err != nil {
		return "", resp, err
	}
	m.logger.InfoContext(ctx, "session started", "session_id", id)
	return id, resp, nil
}

// LoadOrStart speaks the starting prompt for a new session ID and reports
// whether the session was created. Existing sessions are left untouched.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string) (domain.Response, bool, error) {
	if _, err := m.store.Load(ctx, sessionID); err == nil {
		return domain.Response{}, false, nil
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Response{}, false, fmt.Errorf("failed to check session existence: %w", err)
	}
	resp, err := m.run(ctx, sessionID, "", true, func(ctx context.Context, pm *parley.Machine) (domain.Response, error) {
		return pm.StartingPrompt(ctx)
	})
	return resp, err == nil, err
}

// Answer feeds one user input to a session.
func (m *Manager) Answer(ctx context.Context, sessionID, query string) (domain.Response, error) {
	return m.run(ctx, sessionID, query, false, func(ctx context.Context, pm *parley.Machine) (domain.Response, error) {
		return pm.Answer(ctx, query)
	})
}

// RunRule runs a rule by name inside a session.
func (m *Manager) RunRule(ctx context.Context, sessionID, rule string) (domain.Response, error) {
	return m.run(ctx, sessionID, "", false, func(ctx context.Context, pm *parley.Machine) (domain.Response, error) {
		return pm.RunRule(ctx, rule)
	})
}

// Reset abandons the current conversation of a session.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		snap, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		p, err := m.machine(ctx)
		if err != nil {
			return err
		}
		defer m.recycle(p)

		m.restore(ctx, sessionID, p.m, snap)
		p.m.Reset(ctx)
		return m.store.Save(ctx, sessionID, p.m.Snapshot())
	})
}

// End speaks the leave greeting and deletes the session snapshot. The
// transcript is kept until Forget.
func (m *Manager) End(ctx context.Context, sessionID string) (domain.Response, error) {
	resp, err := m.run(ctx, sessionID, "", false, func(ctx context.Context, pm *parley.Machine) (domain.Response, error) {
		return pm.LeaveGreeting(ctx)
	})
	if err != nil {
		return resp, err
	}
	if err := m.Delete(ctx, sessionID); err != nil {
		return resp, err
	}
	m.logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	return resp, nil
}

// Domains lists the registered domains in claim order.
func (m *Manager) Domains() []string {
	ctx := context.Background()
	p, err := m.machine(ctx)
	if err != nil {
		m.logger.Error("cannot list domains", "err", err)
		return nil
	}
	defer m.recycle(p)
	return p.m.Domains()
}

// Rules lists the rules of a domain, or nil when it is unknown.
func (m *Manager) Rules(name string) []string {
	p, err := m.machine(context.Background())
	if err != nil {
		m.logger.Error("cannot list rules", "err", err)
		return nil
	}
	defer m.recycle(p)
	g, ok := p.m.Grammar(name)
	if !ok {
		return nil
	}
	rules := g.Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return names
}

// Load returns the stored snapshot of a session.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Transcript returns the recorded exchanges of a session. Without a
// transcript store it returns an empty list.
func (m *Manager) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	if m.transcript == nil {
		return nil, nil
	}
	return m.transcript.Transcript(ctx, sessionID)
}

// Forget removes the transcript of a session.
func (m *Manager) Forget(ctx context.Context, sessionID string) error {
	if m.transcript == nil {
		return nil
	}
	return m.transcript.Forget(ctx, sessionID)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}
