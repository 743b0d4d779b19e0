package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestQueue_ExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	q := NewQueue(WithClock(clock.Now))

	q.Push(KindSuccess, "Big lesson created")
	if got := len(q.Active()); got != 1 {
		t.Fatalf("len(Active()) = %d, want 1", got)
	}

	clock.now = clock.now.Add(DefaultTTL - time.Millisecond)
	if got := len(q.Active()); got != 1 {
		t.Errorf("len(Active()) before TTL = %d, want 1", got)
	}

	clock.now = clock.now.Add(time.Millisecond)
	if got := len(q.Active()); got != 0 {
		t.Errorf("len(Active()) at TTL = %d, want 0", got)
	}
}

func TestQueue_WithTTL(t *testing.T) {
	q := NewQueue(WithTTL(10 * time.Second))
	toast := q.Push(KindInfo, "saved")
	if toast.TTL != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", toast.TTL)
	}
	if !toast.ExpiresAt.Equal(toast.CreatedAt.Add(10 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want CreatedAt+10s", toast.ExpiresAt)
	}
}

func TestQueue_Dismiss(t *testing.T) {
	q := NewQueue()
	a := q.Push(KindError, "Delete failed")
	b := q.Push(KindSuccess, "Deleted")

	if !q.Dismiss(a.ID) {
		t.Fatal("Dismiss() = false for active toast")
	}
	if q.Dismiss(a.ID) {
		t.Error("Dismiss() twice should return false")
	}
	active := q.Active()
	if len(active) != 1 || active[0].ID != b.ID {
		t.Errorf("Active() = %+v, want only %s", active, b.ID)
	}
}

func TestQueue_Subscribe(t *testing.T) {
	q := NewQueue()
	ch, cancel := q.Subscribe(1)

	q.Notify(context.Background(), KindSuccess, "one")
	q.Notify(context.Background(), KindSuccess, "dropped")

	got := <-ch
	if got.Message != "one" {
		t.Errorf("Message = %q, want one", got.Message)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	q.Push(KindInfo, "after cancel")
}

func TestQueue_WatchDeliversOnce(t *testing.T) {
	q := NewQueue()
	before := q.Push(KindSuccess, "before")

	active, ch, cancel := q.Watch(4)
	defer cancel()
	if len(active) != 1 || active[0].ID != before.ID {
		t.Fatalf("active = %+v, want %s", active, before.ID)
	}

	after := q.Push(KindInfo, "after")
	got := <-ch
	if got.ID != after.ID {
		t.Errorf("streamed %s, want %s", got.ID, after.ID)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected toast %+v on the stream", extra)
	default:
	}
}

func TestHub_Drop(t *testing.T) {
	h := NewHub()
	q := h.Queue("a")
	h.Queue("b")
	ch, cancel := q.Subscribe(1)
	defer cancel()

	h.Drop("a")
	if _, ok := <-ch; ok {
		t.Error("subscription should end when the session is dropped")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
	if h.Queue("a") == q {
		t.Error("dropped session should get a fresh queue")
	}
	h.Drop("missing")
}

func TestHub_QueuePerSession(t *testing.T) {
	h := NewHub()
	if h.Queue("a") != h.Queue("a") {
		t.Error("Queue() should return the same queue for a session")
	}
	if h.Queue("a") == h.Queue("b") {
		t.Error("sessions should not share a queue")
	}
}

func TestHub_Serve(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "session-1")
	}))
	defer srv.Close()

	h.Queue("session-1").Push(KindSuccess, "already there")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var first Toast
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first toast: %v", err)
	}
	if first.Message != "already there" {
		t.Errorf("first.Message = %q", first.Message)
	}

	h.Queue("session-1").Push(KindError, "Upload failed")
	var second Toast
	if err := wsjson.Read(ctx, conn, &second); err != nil {
		t.Fatalf("read second toast: %v", err)
	}
	if second.Kind != KindError || second.Message != "Upload failed" {
		t.Errorf("second = %+v", second)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
