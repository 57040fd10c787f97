package sse

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, throttle time.Duration) *Broker {
	t.Helper()
	b := NewBroker(throttle, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(b.Close)
	return b
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := newTestBroker(t, 100*time.Millisecond)
	assert.Zero(t, b.ClientCount())

	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())

	b.Unsubscribe(ch)
	assert.Zero(t, b.ClientCount())
}

func TestPublishChange_Delivery(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange("item.created", "item-1")

	select {
	case msg := <-ch:
		assert.Contains(t, string(msg), "event: item.created\n")
		assert.Contains(t, string(msg), `data: {"id":"item-1"}`)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishChange_SummaryThrottle(t *testing.T) {
	b := newTestBroker(t, 500*time.Millisecond)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange("event.created", "a")
	b.PublishChange("event.updated", "a")
	b.PublishChange("canvas.updated", "a")
	time.Sleep(50 * time.Millisecond)

	var summaries, changes int
	for _, msg := range drain(ch) {
		if strings.Contains(msg, "event: timeline.updated") {
			summaries++
		} else {
			changes++
		}
	}
	assert.Equal(t, 3, changes)
	assert.Equal(t, 1, summaries, "summary is throttled")
}

func TestServeHTTP(t *testing.T) {
	b := newTestBroker(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	b.Publish(Event{Type: "event.deleted", Data: Change{ID: "y1"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: event.deleted")
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublish_SlowClientDoesNotBlock(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "test", Data: Change{ID: "x"}})
	}
	assert.Equal(t, 1, b.ClientCount(), "loop still responsive")
}

func TestClose(t *testing.T) {
	b := NewBroker(100*time.Millisecond, nil)
	ch := b.Subscribe()
	require.Equal(t, 1, b.ClientCount())

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "subscriber channel closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	assert.Zero(t, b.ClientCount())

	b.Publish(Event{Type: "event.updated"})
	b.PublishChange("event.updated", "x")
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
}
