package mqtt_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/mqtt"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newBridge(t *testing.T, store *memory.Store, opts ...mqtt.Option) *mqtt.Bridge {
	t.Helper()
	factory := session.NewFactory(registry.WithSkills(nil), parley.WithRand(firstRand{}))
	return mqtt.New(nil, session.NewManager(store, factory), opts...)
}

func turns(t *testing.T, out []mqtt.Outgoing, topic string) []mqtt.Turn {
	t.Helper()
	res := make([]mqtt.Turn, len(out))
	for i, o := range out {
		assert.Equal(t, topic, o.Topic)
		require.NoError(t, json.Unmarshal(o.Payload, &res[i]))
	}
	return res
}

func TestBridge_Topics(t *testing.T) {
	b := newBridge(t, memory.NewStore(), mqtt.WithPrefix("/home/kitchen/"))
	assert.Equal(t, "home/kitchen/+/in", b.InTopic())
	assert.Equal(t, "home/kitchen/s1/out", b.OutTopic("s1"))

	tests := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"home/kitchen/s1/in", "s1", true},
		{"home/kitchen/s1/out", "", false},
		{"home/kitchen//in", "", false},
		{"home/kitchen/a/b/in", "", false},
		{"home/garage/s1/in", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := b.SessionID(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestBridge_Conversation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := newBridge(t, store)

	out := turns(t, b.Handle(ctx, "parley/s1/in", []byte(`{"query":"what is 8 divided by"}`)), "parley/s1/out")
	require.Len(t, out, 2, "a new session gets its starting prompt first")
	assert.Equal(t, "What can I do for you?", out[0].Response.Text)
	assert.Equal(t, "What is the second number?", out[1].Response.Text)
	assert.Equal(t, "what is 8 divided by", out[1].Query)

	out = turns(t, b.Handle(ctx, "parley/s1/in", []byte(`"2"`)), "parley/s1/out")
	require.Len(t, out, 1)
	assert.Equal(t, "4", out[0].Response.Text)

	out = turns(t, b.Handle(ctx, "parley/s1/in", []byte("bye")), "parley/s1/out")
	require.Len(t, out, 1)
	assert.True(t, out[0].Response.Quit)

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "quit deletes the session")
}

func TestBridge_IgnoredAndRejected(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t, memory.NewStore(), mqtt.WithInputLimit(8))

	assert.Empty(t, b.Handle(ctx, "other/s1/in", []byte("hello")))
	assert.Empty(t, b.Handle(ctx, "parley/s1/in", []byte("   ")))
	assert.Empty(t, b.Handle(ctx, "parley/s1/in", []byte(`{"query":""}`)))

	out := turns(t, b.Handle(ctx, "parley/s1/in", []byte("what is 2 plus 2")), "parley/s1/out")
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Error, "input exceeds maximum allowed size")
}
