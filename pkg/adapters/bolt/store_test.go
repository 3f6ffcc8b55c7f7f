package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/bolt"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.SnapshotStore   = (*bolt.DB)(nil)
	_ ports.TranscriptStore = (*bolt.Transcript)(nil)
)

func open(t *testing.T) (*bolt.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.db")
	db, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestDB_Contract(t *testing.T) {
	db, _ := open(t)
	ports.RunSnapshotStoreContract(t, db)
}

func TestTranscript_Contract(t *testing.T) {
	db, _ := open(t)
	ports.RunTranscriptStoreContract(t, db.Transcript())
}

func TestDB_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db, path := open(t)
	require.NoError(t, db.Save(ctx, "s1", &domain.Snapshot{Active: "arithmetic", InConversation: true}))
	require.NoError(t, db.Transcript().Append(ctx, domain.NewExchange("s1", "hi", domain.Speak("Hello!"), true)))
	require.NoError(t, db.Close())

	again, err := bolt.Open(path)
	require.NoError(t, err)
	defer again.Close()

	snap, err := again.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "arithmetic", snap.Active)
	assert.True(t, snap.InConversation)

	got, err := again.Transcript().Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, "Hello!", got[0].Text)
}
