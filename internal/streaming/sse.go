package streaming

import (
	"context"
	"fmt"
	"net/http"
)

// SSESender implements text/event-stream incremental delivery: each
// frame becomes one `data: <json>\n\n` event.
type SSESender struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func NewSSESender(w http.ResponseWriter) (*SSESender, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESender{w: w, flusher: flusher}, nil
}

func (s *SSESender) Send(ctx context.Context, frame Frame) error {
	if s.closed {
		return fmt.Errorf("streaming: send on closed SSE sender")
	}

	body, err := marshalFrame(frame)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return err
	}
	s.flusher.Flush()

	if !frame.HasNext {
		return s.Close()
	}
	return nil
}

// keepAlive writes an SSE comment line, used to detect dead TCP peers
// on long-lived connections between real frames.
func (s *SSESender) keepAlive() error {
	if s.closed {
		return nil
	}
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESender) Close() error {
	s.closed = true
	return nil
}
