package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractSnapshot is a snapshot of a conversation waiting for its second slot.
func contractSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		InConversation: true,
		Active:         "arithmetic",
		Engines: []domain.EngineState{
			{Domain: "common", CurrentRule: "not_understood"},
			{
				Domain:      "arithmetic",
				CurrentRule: "second",
				Query:       "what is 5 plus",
				Pending:     []domain.Group{domain.NewGroup("second", false, false)},
				Results: []domain.Result{
					{Rule: "ComputeExpression", Group: domain.NewGroup("first", false, false), Value: "5"},
					{Rule: "ComputeExpression", Group: domain.NewGroup("operator", false, false), Value: "plus"},
				},
			},
		},
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// RunSnapshotStoreContract verifies that a SnapshotStore implementation
// adheres to the interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot()
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, snap.InConversation, loaded.InConversation)
		assert.Equal(t, snap.Active, loaded.Active)
		assert.Equal(t, snap.Engines, loaded.Engines)
		assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt))
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Engines[1].Results[0].Value = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "5", again.Engines[1].Results[0].Value)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, contractSnapshot()))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, store.Delete(ctx, sessionID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := sessionID+"-1", sessionID+"-2"
		require.NoError(t, store.Save(ctx, id1, contractSnapshot()))
		require.NoError(t, store.Save(ctx, id2, contractSnapshot()))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunTranscriptStoreContract verifies that a TranscriptStore implementation
// adheres to the interface contract.
func RunTranscriptStoreContract(t *testing.T, store TranscriptStore) {
	ctx := context.Background()
	sessionID := "transcript-" + time.Now().Format("20060102150405.000000")

	t.Run("Append and read in order", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, domain.NewExchange(sessionID, "what is 5", domain.Prompt("Which operation?").From("arithmetic", "operator"), true)))
		require.NoError(t, store.Append(ctx, domain.NewExchange(sessionID, "plus 3", domain.Speak("8").From("arithmetic", "second"), true)))

		got, err := store.Transcript(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "what is 5", got[0].Query)
		assert.Equal(t, domain.EndingPrompt, got[0].Ending)
		assert.Equal(t, "8", got[1].Text)
		assert.Equal(t, "second", got[1].Rule)
		assert.Less(t, got[0].Seq, got[1].Seq)
	})

	t.Run("Unknown session is empty", func(t *testing.T) {
		got, err := store.Transcript(ctx, "missing-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Forget", func(t *testing.T) {
		require.NoError(t, store.Forget(ctx, sessionID))
		got, err := store.Transcript(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

// RunGrammarLoaderContract verifies that a GrammarLoader serves exactly the
// expected sources. Sources are compared by their parsed definitions, so
// loaders may re-encode what they store.
func RunGrammarLoaderContract(t *testing.T, loader GrammarLoader, expected map[string]string) {
	t.Helper()

	t.Run("GetGrammar", func(t *testing.T) {
		for name, want := range expected {
			got, err := loader.GetGrammar(name)
			require.NoError(t, err, name)
			gotDef, err := grammar.Parse(got)
			require.NoError(t, err, name)
			wantDef, err := grammar.Parse([]byte(want))
			require.NoError(t, err, name)
			assert.Equal(t, wantDef, gotDef, name)
		}
	})

	t.Run("GetGrammar not found", func(t *testing.T) {
		_, err := loader.GetGrammar("non-existent-grammar")
		assert.ErrorIs(t, err, domain.ErrGrammarNotFound)
	})

	t.Run("ListGrammars", func(t *testing.T) {
		names, err := loader.ListGrammars()
		require.NoError(t, err)
		want := make([]string, 0, len(expected))
		for name := range expected {
			want = append(want, name)
		}
		assert.ElementsMatch(t, want, names)
	})
}
