package tree

import (
	"context"
	"fmt"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// SubLessonPanel is one lesson row inside a big lesson, with video and quiz
// sections.
type SubLessonPanel struct {
	parent *BigLessonPanel
	scope  *scope.Scope
	quiz   *quiz.Editor

	mu     sync.RWMutex
	lesson lms.Lesson
	index  int
	mode   Mode
}

func newSubLessonPanel(parent *BigLessonPanel, lesson lms.Lesson) *SubLessonPanel {
	p := &SubLessonPanel{
		parent: parent,
		scope:  scope.New(),
		lesson: lesson,
		mode:   Viewing,
	}
	p.quiz = quiz.NewEditor(parent.tree.editorConfig(
		quiz.SubLessonOwner(lesson.ID),
		lesson.Title,
		quizRef(lesson.QuizID, lesson.Quiz),
		lesson.Quiz,
		p.quizUpdated,
	))
	return p
}

func (p *SubLessonPanel) quizUpdated(q *lms.Quiz) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lesson.Quiz = q
	p.lesson.QuizID = quizRef(nil, q)
}

func (p *SubLessonPanel) sync(lesson lms.Lesson, index int) {
	p.mu.Lock()
	p.lesson = lesson
	p.index = index
	p.mu.Unlock()
	p.quiz.Sync(quizRef(lesson.QuizID, lesson.Quiz), lesson.Quiz)
}

func (p *SubLessonPanel) close() {
	p.scope.Close()
	p.quiz.Close()
}

// ID returns the lesson id.
func (p *SubLessonPanel) ID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lesson.ID
}

// Lesson returns the lesson data as last fetched.
func (p *SubLessonPanel) Lesson() lms.Lesson {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lesson
}

// Order is the display order number.
func (p *SubLessonPanel) Order() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lms.OrderOf(p.lesson.Order, p.index)
}

// Key is the collapse-state node key.
func (p *SubLessonPanel) Key() string {
	return collapse.SubLessonKey(p.ID())
}

// Expanded reports whether the panel body is shown.
func (p *SubLessonPanel) Expanded() bool {
	return p.parent.tree.state.Get(p.Key(), collapse.Expanded)
}

// Toggle flips the panel between collapsed and expanded.
func (p *SubLessonPanel) Toggle() bool {
	return collapse.Toggle(p.parent.tree.state, p.Key(), collapse.Expanded)
}

// SectionOpen reports whether the video or quiz section is shown.
func (p *SubLessonPanel) SectionOpen(aspect collapse.Aspect) bool {
	return p.parent.tree.state.Get(p.Key(), aspect)
}

// ToggleSection flips the video or quiz section. Opening the quiz section
// fetches its questions.
func (p *SubLessonPanel) ToggleSection(ctx context.Context, aspect collapse.Aspect) (bool, error) {
	if aspect != collapse.Video && aspect != collapse.Quiz {
		return false, &FieldError{Field: "aspect", Reason: fmt.Sprintf("lessons have no %q section", aspect)}
	}
	open := collapse.Toggle(p.parent.tree.state, p.Key(), aspect)
	if open && aspect == collapse.Quiz {
		return true, p.quiz.Refresh(ctx)
	}
	return open, nil
}

// Mode returns the edit state.
func (p *SubLessonPanel) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// BeginEdit opens the edit form.
func (p *SubLessonPanel) BeginEdit() {
	p.setMode(Editing)
}

// CancelEdit closes the edit form without saving.
func (p *SubLessonPanel) CancelEdit() {
	p.setMode(Viewing)
}

func (p *SubLessonPanel) setMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

// Quiz returns the quiz editor of the lesson.
func (p *SubLessonPanel) Quiz() *quiz.Editor {
	return p.quiz
}

// Update saves the edit form. The video URL is checked before any request.
func (p *SubLessonPanel) Update(ctx context.Context, in lms.LessonInput) error {
	in.Title = cleanText(in.Title)
	in.Description = cleanText(in.Description)
	in.VideoURL = cleanText(in.VideoURL)
	if err := requireTitle(in.Title); err != nil {
		return err
	}
	if err := ValidateVideoURL(in.VideoURL); err != nil {
		return err
	}

	current := p.Lesson()
	bigLessonID := p.parent.ID()
	if in.Order == nil {
		in.Order = current.Order
	}
	if in.QuizID == nil {
		in.QuizID = current.QuizID
	}
	if in.Status == "" {
		in.Status = current.Status
	}

	return p.parent.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "update",
		failure: "Failed to update lesson",
		success: "Lesson updated",
		do: func(ctx context.Context) error {
			_, err := p.parent.tree.cfg.API.UpdateLesson(ctx, bigLessonID, current.ID, in)
			return err
		},
		after:   p.CancelEdit,
		refresh: p.parent.tree.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.LessonUpdated, Data: map[string]any{
				"lesson_id": current.ID,
				"title":     in.Title,
			}}
		},
	})
}

// Delete removes the lesson after confirmation. A declined confirmation
// makes no request.
func (p *SubLessonPanel) Delete(ctx context.Context) error {
	current := p.Lesson()
	if err := p.parent.tree.confirm(ctx, fmt.Sprintf("Delete lesson %q?", current.Title)); err != nil {
		return err
	}

	return p.parent.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "delete",
		failure: "Failed to delete lesson",
		success: "Lesson deleted",
		do: func(ctx context.Context) error {
			return p.parent.tree.cfg.API.DeleteLesson(ctx, current.ID)
		},
		refresh: p.parent.tree.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.LessonDeleted, Data: map[string]any{
				"lesson_id": current.ID,
				"title":     current.Title,
			}}
		},
	})
}
