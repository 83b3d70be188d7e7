package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Sentinel errors an AuthorizeFunc can return to select the close
// code ConnServe uses when rejecting a connection_init.
var (
	ErrUnauthorized = errors.New("streaming: unauthorized")
	ErrForbidden    = errors.New("streaming: forbidden")
)

// Close codes from the graphql-transport-ws spec.
const (
	CloseUnauthorized        = 4401
	CloseForbidden           = 4403
	CloseInitTimeout         = 4408
	CloseDuplicateSubscriber = 4409
	CloseTooManyInitRequests = 4429
)

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthorizeFunc validates a connection_init payload (typically bearing
// a bearer token in `payload.Authorization`). Return ErrUnauthorized /
// ErrForbidden to select the matching close code.
type AuthorizeFunc func(ctx context.Context, initPayload map[string]interface{}) error

// ExecuteFunc starts one subscription operation and returns a channel
// of Frames; the channel closes once the subscription completes.
// incoming is the client's original upgrade-request headers, so the
// owning subgraph's header rule can forward/insert/remove from them.
type ExecuteFunc func(ctx context.Context, query string, variables map[string]interface{}, incoming http.Header) (<-chan Frame, error)

// WSServerConn drives the server side of one client's
// graphql-transport-ws connection: handshake, then at most one active
// subscription at a time (a second Subscribe before Complete closes
// with CloseDuplicateSubscriber).
type WSServerConn struct {
	conn        *websocket.Conn
	authorize   AuthorizeFunc
	initTimeout time.Duration
	logger      *slog.Logger
}

func NewWSServerConn(conn *websocket.Conn, authorize AuthorizeFunc, initTimeout time.Duration, logger *slog.Logger) *WSServerConn {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSServerConn{conn: conn, authorize: authorize, initTimeout: initTimeout, logger: logger}
}

// Serve runs the connection to completion: handshake, then subscribe/
// complete cycles, until the client disconnects or ctx is cancelled.
// incoming carries the client's upgrade-request headers through to
// every execute call this connection makes.
func (s *WSServerConn) Serve(ctx context.Context, execute ExecuteFunc, incoming http.Header) error {
	if err := s.handshake(ctx); err != nil {
		return err
	}

	var activeID string
	var cancelActive context.CancelFunc

	defer func() {
		if cancelActive != nil {
			cancelActive()
		}
	}()

	initAcked := true

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case msgConnectionInit:
			if initAcked {
				s.closeWith(CloseTooManyInitRequests, "too many initialisation requests")
				return fmt.Errorf("streaming: repeated connection_init")
			}

		case msgSubscribe:
			if activeID != "" {
				s.closeWith(CloseDuplicateSubscriber, "subscriber already active")
				return fmt.Errorf("streaming: duplicate subscriber for id %q", msg.ID)
			}

			var payload struct {
				Query     string                 `json:"query"`
				Variables map[string]interface{} `json:"variables"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				s.sendError(msg.ID, err.Error())
				continue
			}

			subCtx, cancel := context.WithCancel(ctx)
			activeID = msg.ID
			cancelActive = cancel

			frames, err := execute(subCtx, payload.Query, payload.Variables, incoming)
			if err != nil {
				s.sendError(msg.ID, err.Error())
				activeID = ""
				cancel()
				continue
			}

			go s.pumpSubscription(subCtx, msg.ID, frames, func() {
				activeID = ""
			})

		case msgComplete:
			if msg.ID == activeID && cancelActive != nil {
				cancelActive()
				activeID = ""
			}

		case msgPong:
			// no-op: liveness acknowledged.

		default:
			s.logger.Warn("streaming: unexpected client message type", "type", msg.Type)
		}
	}
}

func (s *WSServerConn) handshake(ctx context.Context) error {
	ackCh := make(chan error, 1)

	go func() {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			ackCh <- err
			return
		}
		if msg.Type != msgConnectionInit {
			ackCh <- fmt.Errorf("expected connection_init, got %q", msg.Type)
			return
		}

		var payload map[string]interface{}
		_ = json.Unmarshal(msg.Payload, &payload)

		if s.authorize != nil {
			if err := s.authorize(ctx, payload); err != nil {
				ackCh <- err
				return
			}
		}
		ackCh <- nil
	}()

	select {
	case err := <-ackCh:
		if err != nil {
			switch {
			case errors.Is(err, ErrUnauthorized):
				s.closeWith(CloseUnauthorized, "unauthorized")
			case errors.Is(err, ErrForbidden):
				s.closeWith(CloseForbidden, "forbidden")
			default:
				s.closeWith(websocket.CloseProtocolError, err.Error())
			}
			return err
		}
	case <-time.After(s.initTimeout):
		s.closeWith(CloseInitTimeout, "connection initialisation timeout")
		return fmt.Errorf("streaming: connection_init timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.conn.WriteJSON(wsMessage{Type: msgConnectionAck})
}

func (s *WSServerConn) pumpSubscription(ctx context.Context, id string, frames <-chan Frame, onDone func()) {
	defer onDone()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				_ = s.conn.WriteJSON(wsMessage{ID: id, Type: msgComplete})
				return
			}

			if len(frame.Errors) > 0 && frame.Data == nil {
				body, _ := json.Marshal(frame.Errors)
				_ = s.conn.WriteJSON(wsMessage{ID: id, Type: msgError, Payload: body})
				return
			}

			body, err := marshalFrame(frame)
			if err != nil {
				s.logger.Warn("streaming: marshal frame failed", "error", err)
				continue
			}
			if err := s.conn.WriteJSON(wsMessage{ID: id, Type: msgNext, Payload: body}); err != nil {
				s.logger.Warn("streaming: write frame failed", "error", err)
				return
			}

			if !frame.HasNext {
				_ = s.conn.WriteJSON(wsMessage{ID: id, Type: msgComplete})
				return
			}
		}
	}
}

func (s *WSServerConn) sendError(id, message string) {
	body, _ := json.Marshal([]map[string]interface{}{{"message": message}})
	_ = s.conn.WriteJSON(wsMessage{ID: id, Type: msgError, Payload: body})
}

func (s *WSServerConn) closeWith(code int, reason string) {
	deadline := time.Now().Add(2 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = s.conn.Close()
}
