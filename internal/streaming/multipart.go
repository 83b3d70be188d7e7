package streaming

import (
	"context"
	"fmt"
	"net/http"
)

const multipartBoundary = "graphql"

// MultipartSender implements the multipart/mixed incremental delivery
// transport for @defer, per the GraphQL multipart subscriptions
// convention: each part carries one JSON frame, the stream ends with
// a terminating boundary once the last frame reports HasNext: false.
type MultipartSender struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewMultipartSender writes the multipart response headers and
// returns a sender ready to stream frames. w must support http.Flusher
// (true of every net/http ResponseWriter backed by a real connection).
func NewMultipartSender(w http.ResponseWriter) (*MultipartSender, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", multipartBoundary))
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &MultipartSender{w: w, flusher: flusher}, nil
}

func (m *MultipartSender) Send(ctx context.Context, frame Frame) error {
	if m.closed {
		return fmt.Errorf("streaming: send on closed multipart sender")
	}

	body, err := marshalFrame(frame)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(m.w, "\r\n--%s\r\nContent-Type: application/json; charset=utf-8\r\nContent-Length: %d\r\n\r\n%s\r\n", multipartBoundary, len(body), body); err != nil {
		return err
	}
	m.flusher.Flush()

	if !frame.HasNext {
		return m.Close()
	}
	return nil
}

func (m *MultipartSender) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	_, err := fmt.Fprintf(m.w, "\r\n--%s--\r\n", multipartBoundary)
	m.flusher.Flush()
	return err
}
