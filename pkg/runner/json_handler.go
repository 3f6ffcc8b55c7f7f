package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader    *bufio.Reader
	Writer    io.Writer
	Encoder   *json.Encoder
	Sanitizer Sanitizer
}

// jsonInput is the object form of an input line.
type jsonInput struct {
	Query string `json:"query"`
}

// systemMessage is emitted by SystemOutput.
type systemMessage struct {
	System string `json:"system"`
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

// Output emits the response as a single JSON line.
func (h *JSONHandler) Output(ctx context.Context, resp domain.Response) error {
	return h.Encoder.Encode(resp)
}

// Input reads one line. It accepts {"query": "..."}, a JSON string or plain
// text. Blank lines are skipped.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := h.Reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return "", err
		}

		text := decodeInput(strings.TrimSpace(line))
		if text == "" {
			continue
		}
		return h.Sanitizer.Sanitize(text)
	}
}

func decodeInput(line string) string {
	var obj jsonInput
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &obj) == nil {
		return strings.TrimSpace(obj.Query)
	}
	var val string
	if err := json.Unmarshal([]byte(line), &val); err == nil {
		return strings.TrimSpace(val)
	}
	// Fallback: raw text (e.g. a host that just sends plain lines)
	return line
}

// SystemOutput emits {"system": msg}.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(systemMessage{System: msg})
}
