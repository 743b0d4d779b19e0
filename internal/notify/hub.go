package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub owns one Queue per dashboard session and streams it over WebSocket.
type Hub struct {
	mu     sync.Mutex
	queues map[string]*Queue
	opts   []Option
}

// NewHub creates a hub whose queues use opts.
func NewHub(opts ...Option) *Hub {
	return &Hub{
		queues: make(map[string]*Queue),
		opts:   opts,
	}
}

// Queue returns the queue of a session, creating it on first use.
func (h *Hub) Queue(session string) *Queue {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.queues[session]
	if !ok {
		q = NewQueue(h.opts...)
		h.queues[session] = q
	}
	return q
}

// Drop forgets the queue of a session and ends its streams.
func (h *Hub) Drop(session string) {
	h.mu.Lock()
	q, ok := h.queues[session]
	delete(h.queues, session)
	h.mu.Unlock()
	if ok {
		q.Close()
	}
}

// Len returns the number of sessions with a queue.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues)
}

// dismissRequest is the only message a client sends.
type dismissRequest struct {
	Dismiss string `json:"dismiss"`
}

// Serve upgrades the request and streams the session's toasts until the
// client goes away. Currently active toasts are sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	q := h.Queue(session)
	active, toasts, cancel := q.Watch(16)
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	go func() {
		defer stop()
		for {
			var req dismissRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			if req.Dismiss != "" {
				q.Dismiss(req.Dismiss)
			}
		}
	}()

	for _, t := range active {
		if err := write(ctx, conn, t); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case t, ok := <-toasts:
			if !ok {
				return
			}
			if err := write(ctx, conn, t); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write failed", "session", session, "error", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, t Toast) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, t)
}
