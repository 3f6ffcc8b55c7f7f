package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Conversation is what the server needs from a session manager.
type Conversation interface {
	ports.Conversation
	LoadOrStart(ctx context.Context, sessionID string) (domain.Response, bool, error)
	Rules(name string) []string
	List(ctx context.Context) ([]string, error)
	Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error)
	Forget(ctx context.Context, sessionID string) error
}

// WatchFunc reports the names of reloaded grammars.
type WatchFunc func(ctx context.Context) (<-chan string, error)

// Turn is the body of every conversational response, over HTTP and websocket.
type Turn struct {
	SessionID string          `json:"session_id"`
	Query     string          `json:"query,omitempty"`
	Response  domain.Response `json:"response"`
	// Error is set when interpretation failed and Response carries the apology.
	Error string `json:"error,omitempty"`
}

type startRequest struct {
	SessionID string `json:"session_id"`
}

type answerRequest struct {
	Query string `json:"query"`
}

// Server exposes a Conversation over HTTP.
type Server struct {
	Conv    Conversation
	Streams *StreamManager

	watch     WatchFunc
	gatherer  prometheus.Gatherer
	sanitizer runner.Sanitizer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWatch enables GET /events.
func WithWatch(fn WatchFunc) Option {
	return func(s *Server) {
		s.watch = fn
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithInputLimit bounds the size of a query in bytes.
func WithInputLimit(limit int) Option {
	return func(s *Server) {
		s.sanitizer.Limit = limit
	}
}

// NewServer creates a Server for conv.
func NewServer(conv Conversation, opts ...Option) *Server {
	s := &Server{Conv: conv}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates the HTTP handler for conv.
func NewHandler(conv Conversation, opts ...Option) http.Handler {
	return NewServer(conv, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/domains", s.ListDomains)
	r.Get("/domains/{name}/rules", s.ListRules)

	r.Get("/sessions", s.ListSessions)
	r.With(validateBody).Post("/sessions", s.StartSession)
	r.Delete("/sessions/{id}", s.EndSession)
	r.With(validateBody).Post("/sessions/{id}/answer", s.Answer)
	r.Post("/sessions/{id}/rules/{rule}", s.RunRule)
	r.Post("/sessions/{id}/reset", s.ResetSession)
	r.Get("/sessions/{id}/transcript", s.GetTranscript)
	r.Get("/sessions/{id}/ws", s.Chat)

	if s.watch != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSpec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "parley-http",
		"version":     parley.Version,
		"api_version": apiVersion,
	})
}

// ListDomains handles the GET /domains request.
func (s *Server) ListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Conv.Domains())
}

// ListRules handles the GET /domains/{name}/rules request.
func (s *Server) ListRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rules := s.Conv.Rules(name)
	if rules == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, name))
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Conv.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list sessions failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// StartSession handles the POST /sessions request. With a session_id in the
// body an existing session is left untouched and answered with 200.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if body.SessionID == "" {
		id, resp, err := s.Conv.Start(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "start session failed", "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, Turn{SessionID: id, Response: resp})
		return
	}

	resp, created, err := s.Conv.LoadOrStart(r.Context(), body.SessionID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "start session failed", "session_id", body.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, Turn{SessionID: body.SessionID, Response: resp})
}

// Answer handles the POST /sessions/{id}/answer request.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body answerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	query, err := s.sanitizer.Sanitize(body.Query)
	if err != nil {
		s.logger.WarnContext(r.Context(), "input rejected", "session_id", id, "size", len(body.Query), "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.Conv.Answer(r.Context(), id, query)
	s.writeTurn(w, r, id, query, resp, err)
}

// RunRule handles the POST /sessions/{id}/rules/{rule} request.
func (s *Server) RunRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.Conv.RunRule(r.Context(), id, chi.URLParam(r, "rule"))
	s.writeTurn(w, r, id, "", resp, err)
}

// ResetSession handles the POST /sessions/{id}/reset request.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Conv.Reset(r.Context(), id); err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTranscript handles the GET /sessions/{id}/transcript request.
func (s *Server) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exchanges, err := s.Conv.Transcript(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	if exchanges == nil {
		exchanges = []domain.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// EndSession handles the DELETE /sessions/{id} request.
func (s *Server) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.Conv.End(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	if forget, _ := strconv.ParseBool(r.URL.Query().Get("forget")); forget {
		if err := s.Conv.Forget(r.Context(), id); err != nil {
			s.logger.WarnContext(r.Context(), "forget transcript failed", "session_id", id, "err", err)
		}
	}
	s.publish(id, Turn{SessionID: id, Response: resp})
	writeJSON(w, http.StatusOK, Turn{SessionID: id, Response: resp})
}

// writeTurn answers a conversational call. Interpretation failures still
// carry the apology and are reported with the error alongside.
func (s *Server) writeTurn(w http.ResponseWriter, r *http.Request, id, query string, resp domain.Response, err error) {
	if err != nil && resp.Text == "" {
		s.writeFailure(w, r, id, err)
		return
	}
	turn := Turn{SessionID: id, Query: query, Response: resp}
	status := http.StatusOK
	if err != nil {
		turn.Error = err.Error()
		if errors.Is(err, domain.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
	}
	s.publish(id, turn)
	writeJSON(w, status, turn)
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.logger.ErrorContext(r.Context(), "session call failed", "session_id", id, "err", err)
	writeError(w, http.StatusInternalServerError, err)
}

// publish mirrors a turn to the websocket subscribers of the session.
func (s *Server) publish(id string, turn Turn) {
	if s.Streams.Subscribers(id) == 0 {
		return
	}
	data, err := json.Marshal(turn)
	if err != nil {
		s.logger.Error("encode turn failed", "session_id", id, "err", err)
		return
	}
	s.Streams.Broadcast(id, data)
}

// SubscribeEvents handles the GET /events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.watch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("watch: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case name, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", name)
			flusher.Flush()
		}
	}
}

func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
