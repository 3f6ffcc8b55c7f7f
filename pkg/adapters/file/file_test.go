package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.SnapshotStore = (*file.Store)(nil)
	_ ports.GrammarLoader = (*file.Loader)(nil)
	_ ports.Watchable     = (*file.Loader)(nil)
)

const weatherYAML = `name: weather
rules:
  - name: forecast
    regex: "weather in (?P<city>\\w+)"
    messages:
      - groups: [city]
        texts: ["It is sunny in #city#."]
`

const greetJSON = `{"name": "greet", "rules": [{"name": "hi", "regex": "hi", "messages": [{"texts": ["Hi!"]}]}]}`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.NewStore(t.TempDir()))
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	store := file.NewStore(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", ".."} {
		assert.Error(t, store.Save(ctx, id, &domain.Snapshot{}), id)
	}
}

func TestStore_ListMissingDirectory(t *testing.T) {
	store := file.NewStore(filepath.Join(t.TempDir(), "absent"))
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoader_Contract(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"weather.yaml": weatherYAML,
		"greet.json":   greetJSON,
		"README.md":    "not a grammar",
	})

	ports.RunGrammarLoaderContract(t, file.NewLoader(dir), map[string]string{
		"weather": weatherYAML,
		"greet":   greetJSON,
	})
}

func TestLoader_DetectsCollisions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"weather.yaml": weatherYAML,
		"weather.yml":  weatherYAML,
	})

	_, err := file.NewLoader(dir).ListGrammars()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"weather.yaml": weatherYAML})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := file.NewLoader(dir).Watch(ctx)
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{"notes.txt": "ignored", "greet.json": greetJSON})

	select {
	case name := <-changes:
		assert.Equal(t, "greet", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
