package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is already open on every other route.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Chat handles GET /sessions/{id}/ws. Each {"query": "..."} frame is
// answered in the session and the resulting Turn is broadcast to every
// subscriber of the session, this connection included. Turns produced over
// plain HTTP are mirrored too.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "session_id", id, "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodySize)

	ch, cancel := s.Streams.Subscribe(id)
	done := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(done)
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// keep draining so Broadcast never sees a stuck subscriber
				s.logger.Debug("websocket write failed", "session_id", id, "err", err)
			}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	s.logger.InfoContext(r.Context(), "websocket connected", "session_id", id)
	s.readChat(r, conn, id, ch)

	cancel()
	<-done
	s.logger.InfoContext(r.Context(), "websocket disconnected", "session_id", id)
}

// readChat serves incoming frames until the peer goes away. Replies meant
// for this peer only are queued on ch.
func (s *Server) readChat(r *http.Request, conn *websocket.Conn, id string, ch chan<- []byte) {
	ctx := r.Context()
	reply := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		select {
		case ch <- data:
		default:
			s.logger.WarnContext(ctx, "websocket buffer full, dropping reply", "session_id", id)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WarnContext(ctx, "websocket closed unexpectedly", "session_id", id, "err", err)
			}
			return
		}

		var msg answerRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			reply(map[string]string{"error": fmt.Sprintf("invalid frame: %v", err)})
			continue
		}
		if strings.TrimSpace(msg.Query) == "" {
			reply(map[string]string{"error": "query is required"})
			continue
		}
		query, err := s.sanitizer.Sanitize(msg.Query)
		if err != nil {
			reply(map[string]string{"error": err.Error()})
			continue
		}

		resp, err := s.Conv.Answer(ctx, id, query)
		if err != nil && resp.Text == "" {
			if !errors.Is(err, domain.ErrSessionNotFound) {
				s.logger.ErrorContext(ctx, "websocket answer failed", "session_id", id, "err", err)
			}
			reply(map[string]string{"error": err.Error()})
			continue
		}
		turn := Turn{SessionID: id, Query: query, Response: resp}
		if err != nil {
			turn.Error = err.Error()
		}
		s.publish(id, turn)
	}
}
