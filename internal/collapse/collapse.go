// Package collapse remembers which editor panels are open, per subject, so the
// lesson tree reopens the way the instructor left it.
package collapse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/p-n-ai/pai-instructor/internal/prefs"
)

const writeTimeout = 2 * time.Second

// Aspect names one collapsible section of a node.
type Aspect string

const (
	Expanded    Aspect = "expanded"
	Lessons     Aspect = "lessons"
	Video       Aspect = "video"
	Quiz        Aspect = "quiz"
	Attachments Aspect = "attachments"
)

// BigLessonKey is the node key of a big lesson panel.
func BigLessonKey(id int64) string {
	return fmt.Sprintf("big-lesson-%d", id)
}

// SubLessonKey is the node key of a sub-lesson panel.
func SubLessonKey(id int64) string {
	return fmt.Sprintf("sub-lesson-%d", id)
}

// AttachmentKey is the node key of the attachment list of a big lesson.
func AttachmentKey(bigLessonID int64) string {
	return fmt.Sprintf("attachments-%d", bigLessonID)
}

// State reads and writes open/closed flags. Unknown entries are closed.
type State interface {
	Get(key string, aspect Aspect) bool
	Set(key string, aspect Aspect, open bool)
}

// Funcs adapts a getter/setter pair supplied by a parent that owns the state
// of a whole subtree.
type Funcs struct {
	GetFunc func(key string, aspect Aspect) bool
	SetFunc func(key string, aspect Aspect, open bool)
}

func (f Funcs) Get(key string, aspect Aspect) bool {
	if f.GetFunc == nil {
		return false
	}
	return f.GetFunc(key, aspect)
}

func (f Funcs) Set(key string, aspect Aspect, open bool) {
	if f.SetFunc != nil {
		f.SetFunc(key, aspect, open)
	}
}

// Resolve returns injected when a parent supplied one, otherwise fallback.
func Resolve(injected, fallback State) State {
	switch s := injected.(type) {
	case nil:
		return fallback
	case Funcs:
		if s.GetFunc == nil && s.SetFunc == nil {
			return fallback
		}
	case *Funcs:
		if s == nil || (s.GetFunc == nil && s.SetFunc == nil) {
			return fallback
		}
	}
	return injected
}

// Store is the durable per-subject State. Reads come from an in-memory mirror;
// every Set writes the whole map through to prefs.
type Store struct {
	mu       sync.RWMutex
	states   map[string]map[Aspect]bool
	prefs    prefs.Store
	key      string
	degraded bool
}

// Load reads the saved states of one subject. A nil store, a read failure or
// corrupt data all yield an empty state; Load never fails.
func Load(ctx context.Context, store prefs.Store, subjectID int64) *Store {
	s := &Store{
		states: make(map[string]map[Aspect]bool),
		prefs:  store,
		key:    prefs.CollapseKey(subjectID),
	}
	if store == nil {
		s.degraded = true
		return s
	}

	raw, err := store.Get(ctx, s.key)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		return s
	case err != nil:
		slog.Warn("collapse state unavailable, keeping it in memory",
			"subject_id", subjectID,
			"error", err,
		)
		s.degraded = true
		return s
	}

	var saved map[string]map[Aspect]bool
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		slog.Debug("ignoring corrupt collapse state", "subject_id", subjectID, "error", err)
		return s
	}
	for key, aspects := range saved {
		if aspects != nil {
			s.states[key] = aspects
		}
	}
	return s
}

func (s *Store) Get(key string, aspect Aspect) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key][aspect]
}

func (s *Store) Set(key string, aspect Aspect, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aspects, ok := s.states[key]
	if !ok {
		aspects = make(map[Aspect]bool)
		s.states[key] = aspects
	}
	aspects[aspect] = open

	if s.degraded {
		return
	}
	data, err := json.Marshal(s.states)
	if err != nil {
		s.degrade(err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.prefs.Set(ctx, s.key, string(data)); err != nil {
		s.degrade(err)
	}
}

func (s *Store) degrade(err error) {
	s.degraded = true
	slog.Warn("collapse state write failed, keeping it in memory",
		"key", s.key,
		"error", err,
	)
}

// Toggle flips an entry and returns the new value.
func Toggle(state State, key string, aspect Aspect) bool {
	open := !state.Get(key, aspect)
	state.Set(key, aspect, open)
	return open
}

// Degraded reports whether the store has stopped writing through.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Snapshot returns a copy of every stored entry.
func (s *Store) Snapshot() map[string]map[Aspect]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[Aspect]bool, len(s.states))
	for key, aspects := range s.states {
		out[key] = maps.Clone(aspects)
	}
	return out
}
