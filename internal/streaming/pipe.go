package streaming

import (
	"context"
	"log/slog"
	"time"
)

// FrameChannelCapacity bounds the producer/consumer channel every
// streamed operation uses: a small, fixed window keeps backpressure
// of a slow client bounded without buffering an unbounded subscription.
const FrameChannelCapacity = 2

// keepAliver is implemented by senders (SSE today) that benefit from
// an idle heartbeat to detect a dead TCP peer on a long-lived
// connection, following the same rationale long-lived-connection
// gateways in the ecosystem apply to their websocket middleware.
type keepAliver interface {
	keepAlive() error
}

// Pump drains frames onto sender in order until the channel closes, a
// frame reports HasNext: false, ctx is cancelled, or a write fails. It
// interleaves a keep-alive heartbeat on idle periods when the sender
// supports it.
func Pump(ctx context.Context, sender FrameSender, frames <-chan Frame, keepAliveInterval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if keepAliveInterval > 0 {
		ticker = time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return sender.Close()
			}
			if err := sender.Send(ctx, frame); err != nil {
				logger.Warn("streaming: frame send failed", "error", err)
				return err
			}
			if !frame.HasNext {
				return nil
			}

		case <-tickC:
			if ka, ok := sender.(keepAliver); ok {
				if err := ka.keepAlive(); err != nil {
					logger.Warn("streaming: keep-alive failed, dropping connection", "error", err)
					return err
				}
			}
		}
	}
}
