// Package notify keeps the transient notifications shown by the dashboard as
// a declarative queue instead of ad hoc UI elements.
package notify

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 3 * time.Second

// Kind selects the styling of a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Toast is one notification.
type Toast struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Kind      Kind          `json:"kind"`
	TTL       time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Notifier receives user-facing outcomes of actions.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, message string)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Kind, string) {}

// Option configures a Queue.
type Option func(*Queue)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// Queue holds the toasts of one dashboard session.
type Queue struct {
	mu     sync.Mutex
	toasts []Toast
	subs   map[int]chan Toast
	next   int
	seq    uint64
	ttl    time.Duration
	now    func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		subs: make(map[int]chan Toast),
		ttl:  DefaultTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Notify implements Notifier.
func (q *Queue) Notify(_ context.Context, kind Kind, message string) {
	q.Push(kind, message)
}

// Push adds a toast and fans it out to subscribers. Subscribers that are not
// keeping up miss it.
func (q *Queue) Push(kind Kind, message string) Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.seq++
	t := Toast{
		ID:        strconv.FormatUint(q.seq, 10),
		Message:   message,
		Kind:      kind,
		TTL:       q.ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	q.prune(now)
	q.toasts = append(q.toasts, t)

	for _, ch := range q.subs {
		select {
		case ch <- t:
		default:
		}
	}
	return t
}

// Active returns the toasts that have not expired, oldest first.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.now())
	return append([]Toast{}, q.toasts...)
}

func (q *Queue) prune(now time.Time) {
	kept := q.toasts[:0]
	for _, t := range q.toasts {
		if now.Before(t.ExpiresAt) {
			kept = append(kept, t)
		}
	}
	q.toasts = kept
}

// Dismiss removes a toast before it expires.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.toasts {
		if t.ID == id {
			q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe returns a channel receiving every toast pushed after the call.
// cancel closes the channel.
func (q *Queue) Subscribe(buffer int) (<-chan Toast, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.subscribeLocked(buffer)
}

// Watch returns the active toasts and a channel receiving every toast pushed
// after them. No toast is delivered both ways.
func (q *Queue) Watch(buffer int) ([]Toast, <-chan Toast, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.now())
	active := append([]Toast{}, q.toasts...)
	ch, cancel := q.subscribeLocked(buffer)
	return active, ch, cancel
}

func (q *Queue) subscribeLocked(buffer int) (<-chan Toast, func()) {
	id := q.next
	q.next++
	ch := make(chan Toast, buffer)
	q.subs[id] = ch

	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(ch)
		}
	}
}

// Close ends every subscription.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, ch := range q.subs {
		delete(q.subs, id)
		close(ch)
	}
}
