// Package prefs is the dashboard's typed key-value store for session and
// preference state that a browser would otherwise keep in local storage.
package prefs

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// ErrNotFound is returned by Get when a key has never been set.
var ErrNotFound = errors.New("prefs: key not found")

// Well-known keys.
const (
	KeyToken              = "token"
	KeyUser               = "user"
	KeyIconPanelPinned    = "iconPanelPinned"
	KeyCreditBankViewMode = "ins-creditbank-viewmode"
)

// CollapseKey is the key holding the collapse states of one subject's editor.
func CollapseKey(subjectID int64) string {
	return "collapse_states_subject_" + strconv.FormatInt(subjectID, 10)
}

// Store persists string values by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// scoped prefixes every key with a namespace.
type scoped struct {
	store Store
	scope string
}

// Scoped returns a Store that keeps its keys under scope, so several
// instructors can share one backing store.
func Scoped(store Store, scope string) Store {
	if scope == "" {
		return store
	}
	return &scoped{store: store, scope: scope}
}

func (s *scoped) key(k string) string {
	return s.scope + ":" + k
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.key(key))
}
