package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// graphql-transport-ws message types (https://github.com/enisdenjo/graphql-ws).
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

// Close codes from the graphql-transport-ws spec.
const (
	CloseUnauthorized     = 4401
	CloseForbidden        = 4403
	CloseInitTimeout      = 4408
	CloseDuplicateSubscriber = 4409
	CloseTooManyInitRequests = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one frame delivered to a subscription's consumer.
type Event struct {
	Data   map[string]interface{}
	Errors []map[string]interface{}
	Done   bool
	Err    error
}

// WSClient drives one graphql-transport-ws subscription against a
// single subgraph. One client corresponds to one upstream connection
// carrying exactly one active subscription, mirroring how the gateway
// opens a fresh upstream connection per client subscription rather
// than multiplexing subscriptions from different clients over a
// shared upstream socket.
type WSClient struct {
	conn *websocket.Conn
}

// DialWS opens the upstream connection, completes the
// ConnectionInit/ConnectionAck handshake, and fails with a timeout
// error (mapped by callers to close code 4408) if the ack never
// arrives.
func DialWS(ctx context.Context, url string, headers http.Header, initPayload interface{}, initTimeout time.Duration) (*WSClient, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"graphql-transport-ws"},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("subgraph: dial %s: %w", url, err)
	}

	initBody, err := json.Marshal(initPayload)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subgraph: marshal connection_init payload: %w", err)
	}

	if err := conn.WriteJSON(wsMessage{Type: msgConnectionInit, Payload: initBody}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subgraph: send connection_init: %w", err)
	}

	ackCh := make(chan error, 1)
	go func() {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			ackCh <- err
			return
		}
		if msg.Type != msgConnectionAck {
			ackCh <- fmt.Errorf("expected connection_ack, got %q", msg.Type)
			return
		}
		ackCh <- nil
	}()

	select {
	case err := <-ackCh:
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("subgraph: connection_ack: %w", err)
		}
	case <-time.After(initTimeout):
		conn.Close()
		return nil, fmt.Errorf("subgraph: timed out waiting for connection_ack")
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}

	return &WSClient{conn: conn}, nil
}

// Subscribe sends a Subscribe message and streams Next/Error/Complete
// frames on the returned channel until the server completes the
// subscription, ctx is cancelled, or the connection fails. The caller
// must eventually call Close.
func (c *WSClient) Subscribe(ctx context.Context, id, query string, variables map[string]interface{}) <-chan Event {
	events := make(chan Event, 1)

	go func() {
		defer close(events)

		payload, err := json.Marshal(map[string]interface{}{
			"query":     query,
			"variables": variables,
		})
		if err != nil {
			events <- Event{Err: fmt.Errorf("subgraph: marshal subscribe payload: %w", err)}
			return
		}

		if err := c.conn.WriteJSON(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
			events <- Event{Err: fmt.Errorf("subgraph: send subscribe: %w", err)}
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var msg wsMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				events <- Event{Err: fmt.Errorf("subgraph: read frame: %w", err)}
				return
			}

			switch msg.Type {
			case msgNext:
				var body struct {
					Data   map[string]interface{}   `json:"data"`
					Errors []map[string]interface{} `json:"errors"`
				}
				if err := json.Unmarshal(msg.Payload, &body); err != nil {
					events <- Event{Err: fmt.Errorf("subgraph: decode next payload: %w", err)}
					return
				}
				events <- Event{Data: body.Data, Errors: body.Errors}

			case msgError:
				var errs []map[string]interface{}
				_ = json.Unmarshal(msg.Payload, &errs)
				events <- Event{Errors: errs, Done: true}
				return

			case msgComplete:
				events <- Event{Done: true}
				return

			case msgPing:
				_ = c.conn.WriteJSON(wsMessage{Type: msgPong})
			}
		}
	}()

	return events
}

// Close sends Complete and closes the underlying connection.
func (c *WSClient) Close(id string) error {
	_ = c.conn.WriteJSON(wsMessage{ID: id, Type: msgComplete})
	return c.conn.Close()
}
