package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newManager(t *testing.T, store ports.SnapshotStore, opts ...session.Option) *session.Manager {
	t.Helper()
	factory := session.NewFactory(registry.WithSkills(nil), parley.WithRand(firstRand{}))
	return session.NewManager(store, factory, opts...)
}

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, sessionID, snap)
}

func TestManager_Conversation(t *testing.T) {
	ctx := context.Background()
	transcript := memory.NewTranscript()
	mgr := newManager(t, memory.NewStore(), session.WithTranscript(transcript))

	id, resp, err := mgr.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, "What can I do for you?", resp.Text)

	resp, err = mgr.Answer(ctx, id, "what is 7 times")
	require.NoError(t, err)
	assert.Equal(t, "What is the second number?", resp.Text)

	snap, err := mgr.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.InConversation)
	assert.Equal(t, "arithmetic", snap.Active)

	resp, err = mgr.Answer(ctx, id, "6")
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Text)

	resp, err = mgr.End(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Goodbye.", resp.Text)

	_, err = mgr.Load(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	got, err := mgr.Transcript(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "what is 7 times", got[1].Query)
	assert.Equal(t, "42", got[2].Text)

	require.NoError(t, mgr.Forget(ctx, id))
	got, err = mgr.Transcript(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore(), session.WithPoolSize(1))

	a, _, err := mgr.Start(ctx)
	require.NoError(t, err)
	b, _, err := mgr.Start(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = mgr.Answer(ctx, a, "what is 3 plus")
	require.NoError(t, err)

	resp, err := mgr.Answer(ctx, b, "4")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I did not understand.", resp.Text)

	resp, err = mgr.Answer(ctx, a, "4")
	require.NoError(t, err)
	assert.Equal(t, "7", resp.Text)
}

func TestManager_UnknownSession(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())

	_, err := mgr.Answer(ctx, "nope", "hello")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, mgr.Reset(ctx, "nope"), domain.ErrSessionNotFound)
	_, err = mgr.End(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_LoadOrStart(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())

	resp, created, err := mgr.LoadOrStart(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "What can I do for you?", resp.Text)

	_, err = mgr.Answer(ctx, "device-1", "calculate")
	require.NoError(t, err)

	_, created, err = mgr.LoadOrStart(ctx, "device-1")
	require.NoError(t, err)
	assert.False(t, created)

	snap, err := mgr.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, snap.InConversation, "an existing session is untouched")
}

func TestManager_ResetAndRunRule(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())
	id, _, err := mgr.Start(ctx)
	require.NoError(t, err)

	resp, err := mgr.RunRule(ctx, id, "name")
	require.NoError(t, err)
	assert.Equal(t, "What is your name?", resp.Text)

	require.NoError(t, mgr.Reset(ctx, id))
	snap, err := mgr.Load(ctx, id)
	require.NoError(t, err)
	assert.False(t, snap.InConversation)

	resp, err = mgr.RunRule(ctx, id, "teleport")
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
	assert.Equal(t, domain.DefaultApology, resp.Text)
}

func TestManager_StaleSnapshotRestarts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, "old", &domain.Snapshot{
		InConversation: true,
		Active:         "weather",
		Engines:        []domain.EngineState{{Domain: "weather"}},
	}))
	mgr := newManager(t, store)

	resp, err := mgr.Answer(ctx, "old", "what is 1 plus 1")
	require.NoError(t, err)
	assert.Equal(t, "2", resp.Text)
}

func TestManager_Domains(t *testing.T) {
	mgr := newManager(t, memory.NewStore())
	assert.Equal(t, []string{"common", "arithmetic", "askname", "conversation"}, mgr.Domains())
	assert.Contains(t, mgr.Rules("arithmetic"), "zero_divide")
	assert.Nil(t, mgr.Rules("weather"))

	broken := session.NewManager(memory.NewStore(), func(context.Context) (*parley.Machine, error) {
		return nil, errors.New("boom")
	})
	assert.Nil(t, broken.Domains())
	_, _, err := broken.Start(context.Background())
	assert.Error(t, err)
}

func TestManager_Refresh(t *testing.T) {
	var built atomic.Int32
	inner := session.NewFactory(nil)
	mgr := session.NewManager(memory.NewStore(), func(ctx context.Context) (*parley.Machine, error) {
		built.Add(1)
		return inner(ctx)
	})

	_ = mgr.Domains()
	_ = mgr.Domains()
	assert.Equal(t, int32(1), built.Load(), "machines are pooled")

	mgr.Refresh()
	_ = mgr.Domains()
	assert.Equal(t, int32(2), built.Load())
}

func TestManager_Locking(t *testing.T) {
	ctx := context.Background()
	store := &SlowStore{Store: memory.NewStore()}
	mgr := newManager(t, store)
	id, _, err := mgr.Start(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := mgr.Answer(ctx, id, fmt.Sprintf("what is %d plus 1", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.False(t, store.overlap.Load(), "writes to one session must be serialised")
}

type countingLocker struct {
	locks, unlocks atomic.Int32
	fail           bool
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail {
		return nil, errors.New("redis down")
	}
	l.locks.Add(1)
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	ctx := context.Background()
	locker := &countingLocker{}
	mgr := newManager(t, memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Second))

	id, _, err := mgr.Start(ctx)
	require.NoError(t, err)
	_, err = mgr.Answer(ctx, id, "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(2), locker.locks.Load())
	assert.Equal(t, locker.locks.Load(), locker.unlocks.Load())

	locker.fail = true
	_, err = mgr.Answer(ctx, id, "hello")
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}

func TestManager_IDGenerator(t *testing.T) {
	mgr := newManager(t, memory.NewStore(), session.WithIDGenerator(func() string { return "fixed" }))
	id, _, err := mgr.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	list, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed"}, list)
}
