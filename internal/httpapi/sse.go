package httpapi

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/uniagent/gateway/pkg/agent"
	"github.com/uniagent/gateway/pkg/openai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sseWriter emits server-sent-event frames, flushing after each one so
// deltas reach the client as the agent produces them. It doubles as the
// chat-completion stream's frame sink.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, f: f}, nil
}

// Raw writes one pre-encoded data frame.
func (s *sseWriter) Raw(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// JSON encodes v into one data frame.
func (s *sseWriter) JSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Raw(data)
}

func (s *sseWriter) Chunk(ch openai.Chunk) error { return s.JSON(ch) }

func (s *sseWriter) ErrorFrame(frame agent.ErrorFrame) error { return s.JSON(frame) }

func (s *sseWriter) Done() error { return s.Raw([]byte(openai.DoneMarker)) }

// writeErrorFrame answers a non-stream failure with the shared error
// shape and an HTTP status.
func writeErrorFrame(w http.ResponseWriter, status int, err *agent.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(err.Frame())
	_, _ = w.Write(data)
}
