package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

const weather = `name: weather
rules:
  - name: ping
    regex: ping
    messages:
      - texts: ["pong."]
`

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv(EnvGrammarDir, "/srv/grammars")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv("PARLEY_MAX_INPUT_SIZE", "128")

	cfg := DefaultConfig()
	assert.Equal(t, "/srv/grammars", cfg.GrammarDir)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, 128, cfg.MaxInputSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Store: StoreMemory}, ""},
		{"bolt without path", Config{Store: StoreBolt}, "--store-path"},
		{"redis without addr", Config{Store: StoreRedis}, "--redis-addr"},
		{"unknown store", Config{Store: "etcd"}, "unknown store"},
		{"transcript without dsn", Config{Store: StoreMemory, TranscriptDriver: "postgres"}, "--transcript-dsn"},
		{"unknown driver", Config{Store: StoreMemory, TranscriptDriver: "mysql", TranscriptDSN: "x"}, "unknown transcript driver"},
		{"loam without dir", Config{Store: StoreMemory, Loam: true}, "--loam"},
		{"seal key not base64", Config{Store: StoreMemory, SealKey: "%%%"}, "seal key 0"},
		{"seal key too short", Config{Store: StoreMemory, SealKey: base64.StdEncoding.EncodeToString([]byte("short"))}, "want 32 bytes"},
		{"sealed", Config{Store: StoreMemory, SealKey: testSealKey}, ""},
		{"bad redact pattern", Config{Store: StoreMemory, Redact: []string{"("}}, "invalid pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name       string
		cfg        Config
		wantLocker bool
	}{
		{"memory", Config{Store: StoreMemory}, false},
		{"file", Config{Store: StoreFile, StorePath: filepath.Join(dir, "sessions")}, false},
		{"bolt", Config{Store: StoreBolt, StorePath: filepath.Join(dir, "parley.db")}, false},
		{"redis", Config{Store: StoreRedis, RedisAddr: mr.Addr()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenBackend(ctx, tt.cfg, logging.NewNop())
			require.NoError(t, err)
			defer func() { assert.NoError(t, b.Close()) }()

			assert.Equal(t, tt.wantLocker, b.Locker != nil)

			m, err := parley.New()
			require.NoError(t, err)
			require.NoError(t, b.Store.Save(ctx, "s1", m.Snapshot()))
			ids, err := b.Store.List(ctx)
			require.NoError(t, err)
			assert.Contains(t, ids, "s1")

			require.NoError(t, b.Transcript.Append(ctx, domain.Exchange{SessionID: "s1", Query: "hi", Text: "Hello!"}))
			exs, err := b.Transcript.Transcript(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, exs, 1)
		})
	}

	t.Run("redis unreachable", func(t *testing.T) {
		_, err := OpenBackend(ctx, Config{Store: StoreRedis, RedisAddr: "127.0.0.1:1"}, logging.NewNop())
		assert.Error(t, err)
	})
}

var testSealKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

func TestOpenBackend_Privacy(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	cfg := Config{
		Store:      StoreFile,
		StorePath:  dir,
		SealKey:    testSealKey,
		MaskGroups: []string{"^name$"},
		Redact:     []string{`\d{3}-\d{4}`},
	}
	b, err := OpenBackend(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer b.Close()

	snap := &domain.Snapshot{
		InConversation: true,
		Active:         "askname",
		Engines: []domain.EngineState{{
			Domain:  "askname",
			Results: []domain.Result{{Rule: "introduce", Group: domain.NewGroup("name", false, false), Value: "ada"}},
		}},
	}
	require.NoError(t, b.Store.Save(ctx, "s1", snap))

	raw, err := file.NewStore(dir).Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, raw.Sealed)
	assert.Empty(t, raw.Engines)

	loaded, err := b.Store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded.Engines, 1)
	assert.Equal(t, "***", loaded.Engines[0].Results[0].Value)

	require.NoError(t, b.Transcript.Append(ctx, domain.Exchange{SessionID: "s1", Query: "call 555-1234", Text: "Calling."}))
	exs, err := b.Transcript.Transcript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, exs, 1)
	assert.Equal(t, "call ***", exs[0].Query)
}

func chat(t *testing.T, cfg Config, id, input string) string {
	t.Helper()
	var out bytes.Buffer
	err := RunChat(context.Background(), cfg, ChatOptions{
		SessionID: id,
		Quiet:     true,
		Style:     "plain",
		In:        strings.NewReader(input),
		Out:       &out,
	}, logging.NewNop())
	require.NoError(t, err)
	return out.String()
}

func TestRunChat(t *testing.T) {
	out := chat(t, Config{Store: StoreMemory}, "", "what is 2 plus 2\nbye\n")
	assert.Contains(t, out, "4\n")
	assert.Contains(t, out, "Bye, see you soon.")
}

func TestRunChat_ResumesFileSession(t *testing.T) {
	cfg := Config{Store: StoreFile, StorePath: t.TempDir()}

	out := chat(t, cfg, "s1", "what is 7 times\n")
	assert.Contains(t, out, "What is the second number?")

	out = chat(t, cfg, "s1", "6\nbye\n")
	assert.Contains(t, out, "resuming session s1")
	assert.Contains(t, out, "42")

	b, err := OpenBackend(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	_, err = b.Store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "quit deletes the session")
}

func TestRunChat_GrammarDir(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{"weather.yaml": weather})

	out := chat(t, Config{Store: StoreMemory, GrammarDir: dir}, "", "ping\nwhat is 2 plus 2\n")
	assert.Contains(t, out, "pong.")
	assert.NotContains(t, out, "4\n", "only the grammars of the directory are loaded")
}

func TestReloadingMachine(t *testing.T) {
	ctx := context.Background()
	var builds atomic.Int32
	base := session.NewFactory(registry.WithSkills(nil), parley.WithRand(firstRand{}))
	factory := func(ctx context.Context) (*parley.Machine, error) {
		builds.Add(1)
		return base(ctx)
	}

	m, err := factory(ctx)
	require.NoError(t, err)
	rm := NewReloadingMachine(m, factory, logging.NewNop())

	resp, err := rm.Answer(ctx, "what is 7 times")
	require.NoError(t, err)
	assert.Equal(t, "What is the second number?", resp.Text)

	rm.Refresh()
	resp, err = rm.Answer(ctx, "6")
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Text, "the conversation survives the reload")
	assert.Equal(t, int32(2), builds.Load())
	assert.NotSame(t, m, rm.Machine(ctx))
}

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) Refresh() { c.n.Add(1) }

func TestWatchGrammars(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{"weather.yaml": weather})

	loader, err := NewLoader(Config{GrammarDir: dir}, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &countingRefresher{}
	events := WatchGrammars(ctx, loader, r, logging.NewNop())
	require.NotNil(t, events)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.yaml"), []byte(weather+"\n"), 0o644))
	select {
	case name := <-events:
		assert.Equal(t, "weather", name)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload event")
	}
	assert.GreaterOrEqual(t, r.n.Load(), int32(1))

	assert.Nil(t, WatchGrammars(ctx, nil, r, logging.NewNop()), "nil loader is not watchable")
}

func TestPrintRules(t *testing.T) {
	m, _, err := NewMachine(context.Background(), Config{Store: StoreMemory}, logging.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, PrintRules(&out, m))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[0], "DOMAIN")
	assert.Contains(t, out.String(), "arithmetic")
	assert.Regexp(t, `ComputeExpression\s+true\s+first%\s+operator%\s+second%`, out.String())
}
