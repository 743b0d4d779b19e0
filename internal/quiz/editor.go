// Package quiz manages the single quiz attached to a big lesson, a sub-lesson
// or a subject test, and its question list.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
)

// ErrQuizExists is returned by CreateQuiz when the owner already has a quiz.
var ErrQuizExists = errors.New("quiz already exists")

// ErrNoQuiz is returned by operations that need a quiz when none is attached.
var ErrNoQuiz = errors.New("no quiz attached")

// DefaultPageSize is the page size of the quiz picker.
const DefaultPageSize = 10

// writeAction guards every operation that can attach a quiz to the owner, so
// at most one of them runs at a time.
const writeAction = "quiz_write"

// API is the part of the LMS client the editor needs.
type API interface {
	CreateQuiz(ctx context.Context, in lms.QuizInput) (*lms.Quiz, error)
	GetQuizQuestions(ctx context.Context, quizID int64) (*lms.Quiz, error)
	CreateQuestion(ctx context.Context, in lms.QuestionInput) (*lms.Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	ListQuizzes(ctx context.Context, page, pageSize int, search string) (*lms.QuizPage, error)
}

// Config wires an Editor to its owner.
type Config struct {
	Owner     Owner
	OwnerName string
	// QuizID is the id embedded in the owning entity, if any.
	QuizID *int64
	// Quiz is quiz data embedded in the owning entity, if any.
	Quiz *lms.Quiz

	API      API
	Activity activity.Logger
	// SubjectID and Actor tag activity events.
	SubjectID int64
	Actor     string
	PageSize  int
	// OnUpdate is called with the new quiz after every successful change.
	OnUpdate func(*lms.Quiz)
}

// Editor holds the quiz state of one owner. It is safe for concurrent use;
// a second call of the same operation while one is running fails with
// scope.ErrBusy. CreateQuiz, AddQuestion and SelectQuiz share one guard.
type Editor struct {
	cfg   Config
	scope *scope.Scope

	mu       sync.Mutex
	quiz     *lms.Quiz
	embedded *int64
	err      string
}

// NewEditor creates an editor for cfg.Owner.
func NewEditor(cfg Config) *Editor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Activity == nil {
		cfg.Activity = activity.Nop{}
	}
	e := &Editor{
		cfg:      cfg,
		scope:    scope.New(),
		embedded: cfg.QuizID,
	}
	if cfg.Quiz != nil {
		e.quiz = cloneQuiz(cfg.Quiz)
	}
	return e
}

// Owner returns what the quiz belongs to.
func (e *Editor) Owner() Owner {
	return e.cfg.Owner
}

// QuizID resolves the active quiz: fetched quiz data first, then the id
// embedded in the owner.
func (e *Editor) QuizID() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quizIDLocked()
}

func (e *Editor) quizIDLocked() (int64, bool) {
	if e.quiz != nil && e.quiz.ID != 0 {
		return e.quiz.ID, true
	}
	if e.embedded != nil && *e.embedded != 0 {
		return *e.embedded, true
	}
	return 0, false
}

// HasQuiz reports whether a quiz is attached.
func (e *Editor) HasQuiz() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.quizIDLocked()
	return ok || e.quiz != nil
}

// Quiz returns a copy of the local quiz data, or nil.
func (e *Editor) Quiz() *lms.Quiz {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneQuiz(e.quiz)
}

// Questions returns a copy of the local question list.
func (e *Editor) Questions() []lms.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quiz == nil {
		return nil
	}
	return slices.Clone(e.quiz.Questions)
}

// Err returns the inline error of the last failed operation, or "".
func (e *Editor) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close drops the results of any operation still running.
func (e *Editor) Close() {
	e.scope.Close()
}

func (e *Editor) begin(ctx context.Context, action string) (context.Context, func(), error) {
	ctx, release, err := e.scope.Begin(ctx, action)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	e.err = ""
	e.mu.Unlock()
	return ctx, release, nil
}

// fail records err as the inline error and returns it.
func (e *Editor) fail(op string, err error) error {
	if !e.scope.Alive() {
		return scope.ErrClosed
	}
	e.mu.Lock()
	e.err = err.Error()
	e.mu.Unlock()
	slog.Warn("quiz editor operation failed",
		"op", op,
		"owner", e.cfg.Owner.String(),
		"error", err,
	)
	return err
}

func (e *Editor) notify(q *lms.Quiz) {
	if e.cfg.OnUpdate != nil {
		e.cfg.OnUpdate(cloneQuiz(q))
	}
}

func (e *Editor) record(ctx context.Context, typ string, data map[string]any) {
	activity.Record(ctx, e.cfg.Activity, activity.Event{
		SubjectID: e.cfg.SubjectID,
		Actor:     e.cfg.Actor,
		Type:      typ,
		Data:      data,
	})
}

// CreateQuiz creates the owner's quiz with a default title.
func (e *Editor) CreateQuiz(ctx context.Context) (*lms.Quiz, error) {
	ctx, release, err := e.begin(ctx, writeAction)
	if err != nil {
		return nil, err
	}
	defer release()

	if e.HasQuiz() {
		return nil, e.fail("create_quiz", ErrQuizExists)
	}

	q, err := e.createQuiz(ctx)
	if err != nil {
		return nil, e.fail("create_quiz", err)
	}
	return cloneQuiz(q), nil
}

func (e *Editor) createQuiz(ctx context.Context) (*lms.Quiz, error) {
	title, description := e.cfg.Owner.DefaultTitle(e.cfg.OwnerName)
	created, err := e.cfg.API.CreateQuiz(ctx, lms.QuizInput{
		Title:       title,
		Description: description,
		Status:      lms.StatusActive,
		OwnerType:   e.cfg.Owner.APIType(),
		OwnerID:     e.cfg.Owner.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	if created.ID == 0 {
		return nil, fmt.Errorf("create quiz: response has no id")
	}
	if !e.scope.Alive() {
		return nil, scope.ErrClosed
	}
	if created.Title == "" {
		created.Title = title
	}
	if created.Questions == nil {
		created.Questions = []lms.Question{}
	}

	e.mu.Lock()
	e.quiz = cloneQuiz(created)
	e.mu.Unlock()

	e.notify(created)
	e.record(ctx, activity.QuizCreated, map[string]any{
		"quiz_id": created.ID,
		"owner":   e.cfg.Owner.String(),
	})
	return created, nil
}

// FetchQuestions loads a quiz's questions, replacing the local list.
func (e *Editor) FetchQuestions(ctx context.Context, quizID int64) error {
	ctx, release, err := e.begin(ctx, "fetch")
	if err != nil {
		return err
	}
	defer release()

	q, err := e.cfg.API.GetQuizQuestions(ctx, quizID)
	if err != nil {
		return e.fail("fetch", fmt.Errorf("fetch questions: %w", err))
	}
	if !e.scope.Alive() {
		return scope.ErrClosed
	}
	if q.ID == 0 {
		q.ID = quizID
	}
	if q.Questions == nil {
		q.Questions = []lms.Question{}
	}

	e.mu.Lock()
	e.quiz = cloneQuiz(q)
	e.mu.Unlock()
	return nil
}

// Refresh re-fetches the active quiz, if any.
func (e *Editor) Refresh(ctx context.Context) error {
	id, ok := e.QuizID()
	if !ok {
		return nil
	}
	return e.FetchQuestions(ctx, id)
}

// AddQuestion validates d and attaches it to the owner's quiz, creating the
// quiz first when there is none.
func (e *Editor) AddQuestion(ctx context.Context, d Draft) (*lms.Question, error) {
	valid, err := Validate(d)
	if err != nil {
		return nil, e.fail("add_question", err)
	}

	ctx, release, err := e.begin(ctx, writeAction)
	if err != nil {
		return nil, err
	}
	defer release()

	quizID, ok := e.QuizID()
	if !ok {
		created, err := e.createQuiz(ctx)
		if err != nil {
			return nil, e.fail("add_question", err)
		}
		quizID = created.ID
	}

	question, err := e.cfg.API.CreateQuestion(ctx, valid.Input(quizID))
	if err != nil {
		return nil, e.fail("add_question", fmt.Errorf("add question: %w", err))
	}
	if !e.scope.Alive() {
		return nil, scope.ErrClosed
	}

	e.mu.Lock()
	if e.quiz == nil || e.quiz.ID != quizID {
		e.quiz = &lms.Quiz{ID: quizID}
	}
	e.quiz.Questions = append(e.quiz.Questions, *question)
	updated := cloneQuiz(e.quiz)
	e.mu.Unlock()

	e.notify(updated)
	e.record(ctx, activity.QuestionAdded, map[string]any{
		"quiz_id":     quizID,
		"question_id": question.ID,
		"type":        string(question.Type),
	})
	return question, nil
}

// DeleteQuestion removes a question from the quiz.
func (e *Editor) DeleteQuestion(ctx context.Context, questionID int64) error {
	ctx, release, err := e.begin(ctx, "delete_question")
	if err != nil {
		return err
	}
	defer release()

	if err := e.cfg.API.DeleteQuestion(ctx, questionID); err != nil {
		return e.fail("delete_question", fmt.Errorf("delete question: %w", err))
	}
	if !e.scope.Alive() {
		return scope.ErrClosed
	}

	e.mu.Lock()
	var updated *lms.Quiz
	if e.quiz != nil {
		e.quiz.Questions = slices.DeleteFunc(e.quiz.Questions, func(q lms.Question) bool {
			return q.ID == questionID
		})
		updated = cloneQuiz(e.quiz)
	}
	e.mu.Unlock()

	e.notify(updated)
	e.record(ctx, activity.QuestionDeleted, map[string]any{
		"question_id": questionID,
	})
	return nil
}

// ListQuizzes returns one page of existing quizzes for the picker.
func (e *Editor) ListQuizzes(ctx context.Context, page int, search string) (*lms.QuizPage, error) {
	if page < 1 {
		page = 1
	}
	ctx, release, err := e.begin(ctx, "list_quizzes")
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := e.cfg.API.ListQuizzes(ctx, page, e.cfg.PageSize, search)
	if err != nil {
		return nil, e.fail("list_quizzes", fmt.Errorf("list quizzes: %w", err))
	}
	return result, nil
}

// SelectQuiz attaches an existing quiz to the owner and loads its questions.
func (e *Editor) SelectQuiz(ctx context.Context, quizID int64) error {
	ctx, release, err := e.begin(ctx, writeAction)
	if err != nil {
		return err
	}
	defer release()

	q, err := e.cfg.API.GetQuizQuestions(ctx, quizID)
	if err != nil {
		return e.fail("select_quiz", fmt.Errorf("select quiz: %w", err))
	}
	if !e.scope.Alive() {
		return scope.ErrClosed
	}
	if q.ID == 0 {
		q.ID = quizID
	}

	e.mu.Lock()
	e.quiz = cloneQuiz(q)
	e.embedded = &quizID
	e.mu.Unlock()

	e.notify(q)
	e.record(ctx, activity.QuizAttached, map[string]any{
		"quiz_id": quizID,
		"owner":   e.cfg.Owner.String(),
	})
	return nil
}

// Sync applies the quiz reference of a freshly fetched owner. Local quiz data
// is kept unless the owner now points at a different quiz.
func (e *Editor) Sync(quizID *int64, q *lms.Quiz) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quizID == nil && q != nil && q.ID != 0 {
		id := q.ID
		quizID = &id
	}
	e.embedded = quizID
	switch {
	case quizID != nil && e.quiz != nil && e.quiz.ID != *quizID:
		e.quiz = cloneQuiz(q)
	case e.quiz == nil && q != nil:
		e.quiz = cloneQuiz(q)
	}
}

// DetachQuiz forgets the local quiz so a different one can be created or
// selected. The quiz itself is not deleted.
func (e *Editor) DetachQuiz() {
	e.mu.Lock()
	e.quiz = nil
	e.embedded = nil
	e.err = ""
	e.mu.Unlock()
	e.notify(nil)
}

func cloneQuiz(q *lms.Quiz) *lms.Quiz {
	if q == nil {
		return nil
	}
	c := *q
	c.Questions = slices.Clone(q.Questions)
	return &c
}
