// Package scope ties asynchronous work to the lifetime of the component that
// started it.
package scope

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrBusy is returned by Begin when the same action is already running.
	ErrBusy = errors.New("action already in progress")
	// ErrClosed is returned by Begin after Close.
	ErrClosed = errors.New("component closed")
)

// Scope tracks in-flight actions of one component. Contexts handed out by
// Begin are cancelled when the scope closes.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	busy map[string]bool
}

// New creates an open scope.
func New() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
		busy:   make(map[string]bool),
	}
}

// Begin marks action as running and returns a context that ends when either
// parent or the scope is done. release must be called when the action
// finishes.
func (s *Scope) Begin(parent context.Context, action string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	if s.busy[action] {
		return nil, nil, ErrBusy
	}
	s.busy[action] = true

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			cancel()
			s.mu.Lock()
			delete(s.busy, action)
			s.mu.Unlock()
		})
	}
	return ctx, release, nil
}

// Bind returns a context that ends when either parent or the scope is done,
// without marking any action as running.
func (s *Scope) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Busy reports whether action is running.
func (s *Scope) Busy(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy[action]
}

// Alive reports whether the scope is still open. Results that arrive after
// Close are dropped by checking Alive before applying them.
func (s *Scope) Alive() bool {
	return s.ctx.Err() == nil
}

// Close cancels every running action.
func (s *Scope) Close() {
	s.cancel()
}
