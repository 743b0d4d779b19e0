package tree

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// BigLessonPanel is one chapter row of the tree with its lessons,
// attachments and quiz sections.
type BigLessonPanel struct {
	tree        *Tree
	scope       *scope.Scope
	quiz        *quiz.Editor
	attachments *AttachmentPanel

	mu      sync.RWMutex
	lesson  lms.BigLesson
	index   int
	mode    Mode
	subs    []*SubLessonPanel
	subByID map[int64]*SubLessonPanel
}

func newBigLessonPanel(t *Tree, lesson lms.BigLesson) *BigLessonPanel {
	p := &BigLessonPanel{
		tree:    t,
		scope:   scope.New(),
		lesson:  lesson,
		mode:    Viewing,
		subByID: make(map[int64]*SubLessonPanel),
	}
	p.quiz = quiz.NewEditor(t.editorConfig(
		quiz.BigLessonOwner(lesson.ID),
		lesson.Title,
		quizRef(lesson.QuizID, lesson.Quiz),
		lesson.Quiz,
		p.quizUpdated,
	))
	p.attachments = newAttachmentPanel(p)
	return p
}

func (p *BigLessonPanel) quizUpdated(q *lms.Quiz) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lesson.Quiz = q
	p.lesson.QuizID = quizRef(nil, q)
}

// sync applies freshly fetched data. Callers hold the tree lock.
func (p *BigLessonPanel) sync(lesson lms.BigLesson, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lesson = lesson
	p.index = index

	subs := make([]*SubLessonPanel, 0, len(lesson.Lessons))
	byID := make(map[int64]*SubLessonPanel, len(lesson.Lessons))
	for i, l := range lesson.Lessons {
		sp, ok := p.subByID[l.ID]
		if !ok {
			sp = newSubLessonPanel(p, l)
		}
		sp.sync(l, i)
		subs = append(subs, sp)
		byID[l.ID] = sp
	}
	for id, sp := range p.subByID {
		if _, ok := byID[id]; !ok {
			sp.close()
		}
	}
	p.subs = subs
	p.subByID = byID
	p.quiz.Sync(quizRef(lesson.QuizID, lesson.Quiz), lesson.Quiz)
}

func (p *BigLessonPanel) close() {
	p.scope.Close()
	p.quiz.Close()
	p.attachments.close()
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sp := range p.subs {
		sp.close()
	}
}

// ID returns the big lesson id.
func (p *BigLessonPanel) ID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lesson.ID
}

// Lesson returns the lesson data as last fetched.
func (p *BigLessonPanel) Lesson() lms.BigLesson {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l := p.lesson
	l.Lessons = slices.Clone(p.lesson.Lessons)
	return l
}

// Order is the display order number.
func (p *BigLessonPanel) Order() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lms.OrderOf(p.lesson.Order, p.index)
}

// Key is the collapse-state node key.
func (p *BigLessonPanel) Key() string {
	return collapse.BigLessonKey(p.ID())
}

// Expanded reports whether the panel body is shown.
func (p *BigLessonPanel) Expanded() bool {
	return p.tree.state.Get(p.Key(), collapse.Expanded)
}

// Toggle flips the panel between collapsed and expanded.
func (p *BigLessonPanel) Toggle() bool {
	return collapse.Toggle(p.tree.state, p.Key(), collapse.Expanded)
}

// SectionOpen reports whether a child section (lessons, attachments, quiz)
// is shown.
func (p *BigLessonPanel) SectionOpen(aspect collapse.Aspect) bool {
	return p.tree.state.Get(p.Key(), aspect)
}

// ToggleSection flips one child section. Opening the attachments or quiz
// section loads its content.
func (p *BigLessonPanel) ToggleSection(ctx context.Context, aspect collapse.Aspect) (bool, error) {
	switch aspect {
	case collapse.Lessons, collapse.Attachments, collapse.Quiz:
	default:
		return false, &FieldError{Field: "aspect", Reason: fmt.Sprintf("big lessons have no %q section", aspect)}
	}
	open := collapse.Toggle(p.tree.state, p.Key(), aspect)
	if !open {
		return false, nil
	}
	switch aspect {
	case collapse.Attachments:
		return true, p.attachments.Load(ctx)
	case collapse.Quiz:
		return true, p.quiz.Refresh(ctx)
	}
	return true, nil
}

// Mode returns the edit state.
func (p *BigLessonPanel) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// BeginEdit opens the rename form.
func (p *BigLessonPanel) BeginEdit() {
	p.setMode(Editing)
}

// CancelEdit closes the rename form without saving.
func (p *BigLessonPanel) CancelEdit() {
	p.setMode(Viewing)
}

func (p *BigLessonPanel) setMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

// Quiz returns the quiz editor of the big lesson.
func (p *BigLessonPanel) Quiz() *quiz.Editor {
	return p.quiz
}

// Attachments returns the attachment list panel.
func (p *BigLessonPanel) Attachments() *AttachmentPanel {
	return p.attachments
}

// SubLessons returns the sub-lesson panels in server order.
func (p *BigLessonPanel) SubLessons() []*SubLessonPanel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*SubLessonPanel{}, p.subs...)
}

// SubLesson returns one sub-lesson panel.
func (p *BigLessonPanel) SubLesson(id int64) (*SubLessonPanel, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sp, ok := p.subByID[id]
	return sp, ok
}

// Rename saves a new title and description. On success the panel returns to
// viewing.
func (p *BigLessonPanel) Rename(ctx context.Context, title, description string) error {
	current := p.Lesson()
	in := lms.BigLessonInput{
		Title:       cleanText(title),
		Description: cleanText(description),
		SubjectID:   current.SubjectID,
		Order:       current.Order,
		QuizID:      current.QuizID,
	}
	if err := requireTitle(in.Title); err != nil {
		return err
	}

	return p.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "rename",
		failure: "Failed to update big lesson",
		success: "Big lesson updated",
		do: func(ctx context.Context) error {
			_, err := p.tree.cfg.API.UpdateBigLesson(ctx, current.ID, in)
			return err
		},
		after:   p.CancelEdit,
		refresh: p.tree.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.BigLessonRenamed, Data: map[string]any{
				"big_lesson_id": current.ID,
				"title":         in.Title,
			}}
		},
	})
}

// Delete removes the big lesson after confirmation.
func (p *BigLessonPanel) Delete(ctx context.Context) error {
	current := p.Lesson()
	if err := p.tree.confirm(ctx, fmt.Sprintf("Delete big lesson %q and all of its lessons?", current.Title)); err != nil {
		return err
	}

	return p.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "delete",
		failure: "Failed to delete big lesson",
		success: "Big lesson deleted",
		do: func(ctx context.Context) error {
			return p.tree.cfg.API.DeleteBigLesson(ctx, current.ID)
		},
		refresh: p.tree.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.BigLessonDeleted, Data: map[string]any{
				"big_lesson_id": current.ID,
				"title":         current.Title,
			}}
		},
	})
}

// AddSubLesson creates a sub-lesson under this big lesson.
func (p *BigLessonPanel) AddSubLesson(ctx context.Context, in lms.LessonInput) error {
	in.Title = cleanText(in.Title)
	in.Description = cleanText(in.Description)
	in.VideoURL = cleanText(in.VideoURL)
	if err := requireTitle(in.Title); err != nil {
		return err
	}
	if err := ValidateVideoURL(in.VideoURL); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = lms.StatusDraft
	}

	id := p.ID()
	var created *lms.Lesson
	return p.tree.mutate(ctx, mutation{
		scope:   p.scope,
		action:  "add_sub_lesson",
		failure: "Failed to create lesson",
		success: fmt.Sprintf("Lesson %q created", in.Title),
		do: func(ctx context.Context) error {
			var err error
			created, err = p.tree.cfg.API.CreateLesson(ctx, id, in)
			return err
		},
		refresh: p.tree.Refresh,
		record: func() activity.Event {
			return activity.Event{Type: activity.LessonCreated, Data: map[string]any{
				"big_lesson_id": id,
				"lesson_id":     created.ID,
				"title":         in.Title,
			}}
		},
	})
}

func quizRef(id *int64, q *lms.Quiz) *int64 {
	if id != nil {
		return id
	}
	if q != nil && q.ID != 0 {
		qid := q.ID
		return &qid
	}
	return nil
}
