package streaming_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/streaming"
)

func TestMultipartSender_WritesPartsAndTerminatesOnLastFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	sender, err := streaming.NewMultipartSender(rec)
	if err != nil {
		t.Fatalf("NewMultipartSender: %v", err)
	}

	if err := sender.Send(context.Background(), streaming.Frame{
		Data:    map[string]interface{}{"a": 1.0},
		HasNext: true,
	}); err != nil {
		t.Fatalf("Send (first): %v", err)
	}
	if err := sender.Send(context.Background(), streaming.Frame{
		Data:    map[string]interface{}{"b": 2.0},
		HasNext: false,
	}); err != nil {
		t.Fatalf("Send (last): %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"a":1`) || !strings.Contains(body, `"b":2`) {
		t.Fatalf("expected both frame bodies in output, got %q", body)
	}
	if !strings.HasSuffix(body, "--graphql--\r\n") {
		t.Fatalf("expected terminating boundary, got %q", body)
	}
}

func TestSSESender_WritesDataEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	sender, err := streaming.NewSSESender(rec)
	if err != nil {
		t.Fatalf("NewSSESender: %v", err)
	}

	if err := sender.Send(context.Background(), streaming.Frame{
		Data:    map[string]interface{}{"x": "y"},
		HasNext: false,
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected SSE data prefix, got %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("expected trailing blank line, got %q", body)
	}
}

type fakeSender struct {
	frames []streaming.Frame
	closed bool
}

func (f *fakeSender) Send(ctx context.Context, frame streaming.Frame) error {
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestPump_DrainsFramesInOrderAndClosesOnChannelClose(t *testing.T) {
	frames := make(chan streaming.Frame, streaming.FrameChannelCapacity)
	frames <- streaming.Frame{Label: "first", HasNext: true}
	frames <- streaming.Frame{Label: "second", HasNext: true}
	close(frames)

	sender := &fakeSender{}
	if err := streaming.Pump(context.Background(), sender, frames, 0, nil); err != nil {
		t.Fatalf("Pump: %v", err)
	}

	if len(sender.frames) != 2 || sender.frames[0].Label != "first" || sender.frames[1].Label != "second" {
		t.Fatalf("expected two frames in order, got %+v", sender.frames)
	}
	if !sender.closed {
		t.Fatalf("expected sender to be closed once the channel drained")
	}
}

func TestPump_StopsAfterFrameWithNoNext(t *testing.T) {
	frames := make(chan streaming.Frame, streaming.FrameChannelCapacity)
	frames <- streaming.Frame{Label: "final", HasNext: false}

	sender := &fakeSender{}
	if err := streaming.Pump(context.Background(), sender, frames, 0, nil); err != nil {
		t.Fatalf("Pump: %v", err)
	}

	if len(sender.frames) != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", len(sender.frames))
	}
	if sender.closed {
		t.Fatalf("Pump should return as soon as HasNext is false, without calling Close")
	}
}

func TestPump_RespectsContextCancellation(t *testing.T) {
	frames := make(chan streaming.Frame)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{}
	err := streaming.Pump(ctx, sender, frames, 0, nil)
	if err == nil {
		t.Fatalf("expected Pump to return the cancellation error")
	}
}

func TestMarshalledFrame_RoundTrips(t *testing.T) {
	frame := streaming.Frame{
		Data:    map[string]interface{}{"k": "v"},
		Path:    []interface{}{"a", 0},
		HasNext: true,
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded streaming.Frame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Path[0] != "a" {
		t.Fatalf("expected path[0] == \"a\", got %v", decoded.Path[0])
	}
}
