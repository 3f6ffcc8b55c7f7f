// Package mqtt bridges an MQTT broker to parley sessions. Each session has
// an inbound topic <prefix>/<session>/in and an outbound topic
// <prefix>/<session>/out.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/runner"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPrefix is the root of every bridge topic.
const DefaultPrefix = "parley"

// Conversation is what the bridge needs from a session manager.
type Conversation interface {
	LoadOrStart(ctx context.Context, sessionID string) (domain.Response, bool, error)
	Answer(ctx context.Context, sessionID, query string) (domain.Response, error)
	Delete(ctx context.Context, sessionID string) error
}

// Turn is published on the outbound topic.
type Turn struct {
	SessionID string          `json:"session_id"`
	Query     string          `json:"query,omitempty"`
	Response  domain.Response `json:"response"`
	Error     string          `json:"error,omitempty"`
}

// Outgoing is one message to publish.
type Outgoing struct {
	Topic   string
	Payload []byte
}

type incoming struct {
	topic   string
	payload []byte
}

// Bridge forwards inbound payloads to sessions and publishes the answers.
type Bridge struct {
	client    paho.Client
	conv      Conversation
	prefix    string
	qos       byte
	quiesce   uint
	inTimeout time.Duration
	sanitizer runner.Sanitizer
	logger    *slog.Logger

	incoming chan incoming
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithPrefix sets the topic root.
func WithPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.prefix = strings.Trim(prefix, "/")
	}
}

// WithQoS sets the QoS of the subscription and of published answers.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		b.qos = qos
	}
}

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithInputLimit bounds the size of a query in bytes.
func WithInputLimit(limit int) Option {
	return func(b *Bridge) {
		b.sanitizer.Limit = limit
	}
}

// New creates a Bridge over an MQTT client. The client may be connected or not.
func New(client paho.Client, conv Conversation, opts ...Option) *Bridge {
	b := &Bridge{
		client:    client,
		conv:      conv,
		prefix:    DefaultPrefix,
		quiesce:   250,
		inTimeout: time.Second,
		incoming:  make(chan incoming, 64),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b
}

// NewClient builds a paho client for a broker such as "tcp://localhost:1883".
func NewClient(broker, clientID, username, password string) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.Username = username
	opts.Password = password
	return paho.NewClient(opts)
}

// InTopic is the subscription filter covering every session.
func (b *Bridge) InTopic() string { return b.prefix + "/+/in" }

// OutTopic is where the answers of a session are published.
func (b *Bridge) OutTopic(sessionID string) string { return b.prefix + "/" + sessionID + "/out" }

// SessionID extracts the session of an inbound topic.
func (b *Bridge) SessionID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/in")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Run connects if needed, subscribes and serves inbound messages until ctx
// is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.client.IsConnected() {
		if token := b.client.Connect(); token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt connect: %w", token.Error())
		}
	}
	defer b.client.Disconnect(b.quiesce)

	// paho delivers on its own goroutine; answering there would block its
	// router while we publish, so messages are queued for the loop below.
	handler := func(_ paho.Client, msg paho.Message) {
		in := incoming{topic: msg.Topic(), payload: msg.Payload()}
		timer := time.NewTimer(b.inTimeout)
		defer timer.Stop()
		select {
		case b.incoming <- in:
		case <-ctx.Done():
		case <-timer.C:
			b.logger.Warn("mqtt inbound queue stalled, dropping message", "topic", in.topic)
		}
	}
	if token := b.client.Subscribe(b.InTopic(), b.qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", b.InTopic(), token.Error())
	}
	b.logger.InfoContext(ctx, "mqtt bridge started", "topic", b.InTopic())

	for {
		select {
		case <-ctx.Done():
			if token := b.client.Unsubscribe(b.InTopic()); token.Wait() && token.Error() != nil {
				b.logger.Warn("mqtt unsubscribe failed", "err", token.Error())
			}
			return nil
		case in := <-b.incoming:
			for _, out := range b.Handle(ctx, in.topic, in.payload) {
				token := b.client.Publish(out.Topic, b.qos, false, out.Payload)
				if token.Wait() && token.Error() != nil {
					b.logger.ErrorContext(ctx, "mqtt publish failed", "topic", out.Topic, "err", token.Error())
				}
			}
		}
	}
}

// Handle answers one inbound payload. A new session first gets its starting
// prompt. The payload is {"query": "..."}, a JSON string or plain text.
func (b *Bridge) Handle(ctx context.Context, topic string, payload []byte) []Outgoing {
	id, ok := b.SessionID(topic)
	if !ok {
		b.logger.DebugContext(ctx, "ignoring message on foreign topic", "topic", topic)
		return nil
	}
	query := decodeQuery(payload)
	if query == "" {
		return nil
	}

	var out []Outgoing
	publish := func(t Turn) {
		data, err := json.Marshal(t)
		if err != nil {
			b.logger.ErrorContext(ctx, "encode turn failed", "session_id", id, "err", err)
			return
		}
		out = append(out, Outgoing{Topic: b.OutTopic(id), Payload: data})
	}

	clean, err := b.sanitizer.Sanitize(query)
	if err != nil {
		b.logger.WarnContext(ctx, "mqtt input rejected", "session_id", id, "size", len(query), "err", err)
		publish(Turn{SessionID: id, Error: err.Error()})
		return out
	}

	resp, created, err := b.conv.LoadOrStart(ctx, id)
	if err != nil {
		b.logger.ErrorContext(ctx, "mqtt session start failed", "session_id", id, "err", err)
		publish(Turn{SessionID: id, Error: err.Error()})
		return out
	}
	if created {
		publish(Turn{SessionID: id, Response: resp})
	}

	resp, err = b.conv.Answer(ctx, id, clean)
	turn := Turn{SessionID: id, Query: clean, Response: resp}
	if err != nil {
		if resp.Text == "" && !errors.Is(err, domain.ErrSessionNotFound) {
			b.logger.ErrorContext(ctx, "mqtt answer failed", "session_id", id, "err", err)
		}
		turn.Error = err.Error()
	}
	publish(turn)

	if resp.Quit {
		if err := b.conv.Delete(ctx, id); err != nil {
			b.logger.WarnContext(ctx, "mqtt session delete failed", "session_id", id, "err", err)
		}
	}
	return out
}

func decodeQuery(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	var obj struct {
		Query string `json:"query"`
	}
	if strings.HasPrefix(text, "{") && json.Unmarshal([]byte(text), &obj) == nil {
		return strings.TrimSpace(obj.Query)
	}
	var s string
	if json.Unmarshal([]byte(text), &s) == nil {
		return strings.TrimSpace(s)
	}
	return text
}
