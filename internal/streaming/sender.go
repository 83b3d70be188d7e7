// Package streaming implements incremental delivery: multipart/mixed
// and SSE transports for @defer, and the server side of the
// graphql-transport-ws subscription protocol. Multipart and SSE share
// one FrameSender abstraction so the executor's incremental-delivery
// path doesn't need to know which transport the client negotiated.
package streaming

import (
	"context"
	"encoding/json"
)

// Frame is one incremental payload: either a @defer patch (Path points
// at the deferred fragment's location, HasNext signals more patches
// are coming) or one subscription event (Path is empty).
type Frame struct {
	Data    map[string]interface{}   `json:"data,omitempty"`
	Errors  []map[string]interface{} `json:"errors,omitempty"`
	Path    []interface{}            `json:"path,omitempty"`
	Label   string                   `json:"label,omitempty"`
	HasNext bool                     `json:"hasNext"`
}

// FrameSender is an ordered, bounded sink of Frames. Implementations
// must preserve send order against their underlying transport.
type FrameSender interface {
	Send(ctx context.Context, frame Frame) error
	Close() error
}

func marshalFrame(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}
