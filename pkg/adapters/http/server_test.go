package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newManager(t *testing.T, opts ...parley.Option) *session.Manager {
	t.Helper()
	opts = append([]parley.Option{parley.WithRand(firstRand{})}, opts...)
	factory := session.NewFactory(registry.WithSkills(nil), opts...)
	return session.NewManager(memory.NewStore(), factory, session.WithTranscript(memory.NewTranscript()))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeTurn(t *testing.T, w *httptest.ResponseRecorder) Turn {
	t.Helper()
	var turn Turn
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turn), w.Body.String())
	return turn
}

func TestServer_Meta(t *testing.T) {
	h := NewHandler(newManager(t))

	w := do(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, "GET", "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, parley.Version, info["version"])
	assert.Equal(t, "1.1.0", info["api_version"])

	w = do(t, h, "GET", "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "title: Parley API")

	w = do(t, h, "OPTIONS", "/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSpecIsValid(t *testing.T) {
	doc, err := GetSpec()
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/sessions/{id}/answer"))
}

func TestServer_Domains(t *testing.T) {
	h := NewHandler(newManager(t))

	w := do(t, h, "GET", "/domains", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["common","arithmetic","askname","conversation"]`, w.Body.String())

	w = do(t, h, "GET", "/domains/arithmetic/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rules []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Contains(t, rules, "ComputeExpression")

	w = do(t, h, "GET", "/domains/weather/rules", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Conversation(t *testing.T) {
	h := NewHandler(newManager(t))

	w := do(t, h, "POST", "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	turn := decodeTurn(t, w)
	id := turn.SessionID
	require.NotEmpty(t, id)
	assert.Equal(t, "What can I do for you?", turn.Response.Text)

	w = do(t, h, "POST", "/sessions/"+id+"/answer", `{"query":"what is 7 times"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	turn = decodeTurn(t, w)
	assert.Equal(t, "What is the second number?", turn.Response.Text)
	assert.Equal(t, domain.EndingPrompt, turn.Response.Ending)
	assert.Equal(t, "what is 7 times", turn.Query)

	w = do(t, h, "POST", "/sessions/"+id+"/answer", `{"query":"6"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", decodeTurn(t, w).Response.Text)

	w = do(t, h, "GET", "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["`+id+`"]`, w.Body.String())

	w = do(t, h, "GET", "/sessions/"+id+"/transcript", "")
	require.Equal(t, http.StatusOK, w.Code)
	var exchanges []domain.Exchange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exchanges))
	require.Len(t, exchanges, 3)
	assert.Equal(t, "6", exchanges[2].Query)

	w = do(t, h, "DELETE", "/sessions/"+id+"?forget=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Goodbye.", decodeTurn(t, w).Response.Text)

	w = do(t, h, "POST", "/sessions/"+id+"/answer", `{"query":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/sessions/"+id+"/transcript", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_RunRuleAndReset(t *testing.T) {
	h := NewHandler(newManager(t))
	id := decodeTurn(t, do(t, h, "POST", "/sessions", "")).SessionID

	w := do(t, h, "POST", "/sessions/"+id+"/rules/name", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	turn := decodeTurn(t, w)
	assert.Equal(t, "What is your name?", turn.Response.Text)

	w = do(t, h, "POST", "/sessions/"+id+"/reset", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "POST", "/sessions/"+id+"/rules/teleport", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	turn = decodeTurn(t, w)
	assert.Equal(t, domain.DefaultApology, turn.Response.Text)
	assert.NotEmpty(t, turn.Error)

	w = do(t, h, "POST", "/sessions/missing/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartWithID(t *testing.T) {
	h := NewHandler(newManager(t))

	w := do(t, h, "POST", "/sessions", `{"session_id":"kiosk-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "kiosk-1", decodeTurn(t, w).SessionID)

	w = do(t, h, "POST", "/sessions", `{"session_id":"kiosk-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_BodyValidation(t *testing.T) {
	h := NewHandler(newManager(t), WithInputLimit(16))
	id := decodeTurn(t, do(t, h, "POST", "/sessions", "")).SessionID

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing body", "/sessions/" + id + "/answer", ""},
		{"missing query", "/sessions/" + id + "/answer", `{}`},
		{"wrong type", "/sessions/" + id + "/answer", `{"query":5}`},
		{"empty query", "/sessions/" + id + "/answer", `{"query":""}`},
		{"unknown field", "/sessions/" + id + "/answer", `{"query":"hi","mood":"happy"}`},
		{"not json", "/sessions/" + id + "/answer", `what is 2 plus 2`},
		{"too large", "/sessions/" + id + "/answer", `{"query":"what is 1234 plus 5678"}`},
		{"bad start", "/sessions", `{"session_id":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	t.Run("missing content type", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/sessions/"+id+"/answer", strings.NewReader(`{"query":"hi"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	h := NewHandler(newManager(t, parley.WithLifecycleHooks(metrics.Hooks())), WithGatherer(reg))

	id := decodeTurn(t, do(t, h, "POST", "/sessions", "")).SessionID
	do(t, h, "POST", "/sessions/"+id+"/answer", `{"query":"what is 2 plus 2"}`)

	w := do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `parley_turns_total{domain="arithmetic",understood="true"} 1`)

	assert.Equal(t, http.StatusNotFound, do(t, NewHandler(newManager(t)), "GET", "/metrics", "").Code)
}

func TestSubscribeEvents(t *testing.T) {
	watch := func(ctx context.Context) (<-chan string, error) {
		ch := make(chan string, 1)
		ch <- "weather"
		close(ch)
		return ch, nil
	}
	h := NewHandler(newManager(t), WithWatch(watch))

	w := do(t, h, "GET", "/events", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: ping")
	assert.Contains(t, w.Body.String(), "event: reload\ndata: weather\n\n")

	assert.Equal(t, http.StatusNotFound, do(t, NewHandler(newManager(t)), "GET", "/events", "").Code)
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")
	assert.Equal(t, 1, sm.Subscribers("s1"))

	sm.Broadcast("s1", []byte("one"))
	sm.Broadcast("s2", []byte("lost"))
	assert.Equal(t, []byte("one"), <-ch)

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("s1"))
	_, ok := <-ch
	assert.False(t, ok)
}

func TestChat_Websocket(t *testing.T) {
	s := NewServer(newManager(t))
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	var started Turn
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()
	id := started.SessionID

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Streams.Subscribers(id) == 1 }, time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "what is 2 plus 2"}))
	var turn Turn
	require.NoError(t, conn.ReadJSON(&turn))
	assert.Equal(t, "4", turn.Response.Text)
	assert.Equal(t, id, turn.SessionID)

	// turns over plain HTTP are mirrored to the socket
	resp, err = http.Post(srv.URL+"/sessions/"+id+"/answer", "application/json", bytes.NewBufferString(`{"query":"hello"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, conn.ReadJSON(&turn))
	assert.Equal(t, "Hello! What can I do for you?", turn.Response.Text)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var reply map[string]string
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply["error"], "invalid frame")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.Streams.Subscribers(id) == 0 }, time.Second, 10*time.Millisecond)
}
