// Package tree drives the lesson editor of one subject: big lesson panels,
// their sub-lesson panels, attachment lists and quiz sections.
//
// Every mutation is request-then-refetch. Nothing is patched locally; on
// success the whole big lesson list is fetched again and the panels are
// rebuilt from it.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// ErrDeclined is returned when a destructive action was not confirmed.
var ErrDeclined = errors.New("action not confirmed")

// API is the part of the LMS client the tree needs.
type API interface {
	quiz.API
	ListBigLessons(ctx context.Context, subjectID int64) ([]lms.BigLesson, error)
	CreateBigLesson(ctx context.Context, in lms.BigLessonInput) (*lms.BigLesson, error)
	UpdateBigLesson(ctx context.Context, id int64, in lms.BigLessonInput) (*lms.BigLesson, error)
	DeleteBigLesson(ctx context.Context, id int64) error
	CreateLesson(ctx context.Context, bigLessonID int64, in lms.LessonInput) (*lms.Lesson, error)
	UpdateLesson(ctx context.Context, bigLessonID, lessonID int64, in lms.LessonInput) (*lms.Lesson, error)
	DeleteLesson(ctx context.Context, lessonID int64) error
	ListAttachments(ctx context.Context, bigLessonID int64) ([]lms.Attachment, error)
	UploadAttachment(ctx context.Context, bigLessonID int64, filename string, r io.Reader) (*lms.Attachment, error)
	DeleteAttachment(ctx context.Context, bigLessonID, attachmentID int64) error
}

// Confirmer asks the instructor to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Answer is a Confirmer that always gives the same answer.
type Answer bool

func (a Answer) Confirm(context.Context, string) bool {
	return bool(a)
}

// Mode is the edit state of a panel.
type Mode string

const (
	Viewing Mode = "viewing"
	Editing Mode = "editing"
)

// Config wires a Tree.
type Config struct {
	SubjectID int64
	API       API
	// Collapse is a state owner supplied by a parent. When nil the tree
	// keeps its own, persisted in Prefs.
	Collapse collapse.State
	Prefs    prefs.Store
	Notifier notify.Notifier
	// Confirm is asked before every delete. A nil Confirm declines.
	Confirm  Confirmer
	Activity activity.Logger
	Actor    string
}

// Tree is the lesson editor of one subject.
type Tree struct {
	cfg   Config
	state collapse.State
	scope *scope.Scope

	mu     sync.RWMutex
	panels []*BigLessonPanel
	byID   map[int64]*BigLessonPanel
	loaded bool
}

// New creates a tree. Call Refresh to load it.
func New(ctx context.Context, cfg Config) *Tree {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Confirm == nil {
		cfg.Confirm = Answer(false)
	}
	if cfg.Activity == nil {
		cfg.Activity = activity.Nop{}
	}
	state := collapse.Resolve(cfg.Collapse, nil)
	if state == nil {
		state = collapse.Load(ctx, cfg.Prefs, cfg.SubjectID)
	}
	return &Tree{
		cfg:   cfg,
		state: state,
		scope: scope.New(),
		byID:  make(map[int64]*BigLessonPanel),
	}
}

// SubjectID returns the subject being edited.
func (t *Tree) SubjectID() int64 {
	return t.cfg.SubjectID
}

// State returns the collapse state the panels use.
func (t *Tree) State() collapse.State {
	return t.state
}

// Loaded reports whether Refresh has succeeded at least once.
func (t *Tree) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Refresh fetches the big lesson list again and rebuilds the panels. Panels
// of lessons that still exist keep their edit mode and quiz state.
func (t *Tree) Refresh(ctx context.Context) error {
	ctx, cancel := t.scope.Bind(ctx)
	defer cancel()

	lessons, err := t.cfg.API.ListBigLessons(ctx, t.cfg.SubjectID)
	if err != nil {
		return fmt.Errorf("refresh subject %d: %w", t.cfg.SubjectID, err)
	}
	if !t.scope.Alive() {
		return scope.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	panels := make([]*BigLessonPanel, 0, len(lessons))
	byID := make(map[int64]*BigLessonPanel, len(lessons))
	for i, lesson := range lessons {
		p, ok := t.byID[lesson.ID]
		if !ok {
			p = newBigLessonPanel(t, lesson)
		}
		p.sync(lesson, i)
		panels = append(panels, p)
		byID[lesson.ID] = p
	}
	for id, p := range t.byID {
		if _, ok := byID[id]; !ok {
			p.close()
		}
	}
	t.panels = panels
	t.byID = byID
	t.loaded = true
	return nil
}

// BigLessons returns the lessons as last fetched, in server order.
func (t *Tree) BigLessons() []lms.BigLesson {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]lms.BigLesson, len(t.panels))
	for i, p := range t.panels {
		out[i] = p.Lesson()
	}
	return out
}

// Panels returns the big lesson panels in server order.
func (t *Tree) Panels() []*BigLessonPanel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*BigLessonPanel{}, t.panels...)
}

// Panel returns the panel of one big lesson.
func (t *Tree) Panel(id int64) (*BigLessonPanel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byID[id]
	return p, ok
}

// CreateBigLesson adds a big lesson to the subject.
func (t *Tree) CreateBigLesson(ctx context.Context, title, description string) error {
	in := lms.BigLessonInput{
		Title:       cleanText(title),
		Description: cleanText(description),
		SubjectID:   t.cfg.SubjectID,
	}
	if err := requireTitle(in.Title); err != nil {
		return err
	}

	var created *lms.BigLesson
	return t.mutate(ctx, mutation{
		scope:   t.scope,
		action:  "create_big_lesson",
		failure: "Failed to create big lesson",
		success: fmt.Sprintf("Big lesson %q created", in.Title),
		do: func(ctx context.Context) error {
			var err error
			created, err = t.cfg.API.CreateBigLesson(ctx, in)
			return err
		},
		refresh: t.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.BigLessonCreated, Data: map[string]any{
				"big_lesson_id": created.ID,
				"title":         in.Title,
			}}
		},
	})
}

// Close drops the results of every request still running in the tree.
func (t *Tree) Close() {
	t.scope.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.panels {
		p.close()
	}
}

// mutation is one request-then-refetch action of a panel.
type mutation struct {
	scope   *scope.Scope
	action  string
	failure string
	success string
	do      func(ctx context.Context) error
	refresh func(ctx context.Context) error
	record  func() activity.Event
	after   func()
}

// mutate runs m with the panel's busy guard. A failed request leaves all
// state untouched and shows an error toast; a successful one shows a success
// toast and refetches.
func (t *Tree) mutate(ctx context.Context, m mutation) error {
	ctx, release, err := m.scope.Begin(ctx, m.action)
	if err != nil {
		return err
	}
	defer release()

	if err := m.do(ctx); err != nil {
		if !m.scope.Alive() {
			return scope.ErrClosed
		}
		slog.Warn("lesson tree action failed",
			"action", m.action,
			"subject_id", t.cfg.SubjectID,
			"error", err,
		)
		t.cfg.Notifier.Notify(ctx, notify.KindError, m.failure+": "+message(err))
		return err
	}
	if !m.scope.Alive() {
		return scope.ErrClosed
	}

	if m.after != nil {
		m.after()
	}
	if m.record != nil {
		event := m.record()
		event.SubjectID = t.cfg.SubjectID
		event.Actor = t.cfg.Actor
		activity.Record(ctx, t.cfg.Activity, event)
	}
	t.cfg.Notifier.Notify(ctx, notify.KindSuccess, m.success)

	if m.refresh != nil {
		if err := m.refresh(ctx); err != nil && !errors.Is(err, scope.ErrClosed) {
			slog.Warn("refetch after change failed",
				"action", m.action,
				"subject_id", t.cfg.SubjectID,
				"error", err,
			)
			t.cfg.Notifier.Notify(ctx, notify.KindError, "Failed to reload lessons: "+message(err))
		}
	}
	return nil
}

// confirm asks before a delete. It makes no request.
func (t *Tree) confirm(ctx context.Context, prompt string) error {
	if !t.cfg.Confirm.Confirm(ctx, prompt) {
		return ErrDeclined
	}
	return nil
}

func (t *Tree) editorConfig(owner quiz.Owner, name string, quizID *int64, q *lms.Quiz, onUpdate func(*lms.Quiz)) quiz.Config {
	return quiz.Config{
		Owner:     owner,
		OwnerName: name,
		QuizID:    quizID,
		Quiz:      q,
		API:       t.cfg.API,
		Activity:  t.cfg.Activity,
		SubjectID: t.cfg.SubjectID,
		Actor:     t.cfg.Actor,
		OnUpdate:  onUpdate,
	}
}

// message is the user-facing part of err.
func message(err error) string {
	var apiErr *lms.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
