// Package questionbank is the standalone question bank: one question written
// once and attached to several quizzes, bulk import from spreadsheets and
// YAML, and spreadsheet export.
package questionbank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// ErrNoQuizzes is returned when a question would be attached to nothing.
var ErrNoQuizzes = errors.New("at least one quiz is required")

// API is the part of the LMS client the bank needs.
type API interface {
	CreateQuestion(ctx context.Context, in lms.QuestionInput) (*lms.Question, error)
	GetQuizQuestions(ctx context.Context, quizID int64) (*lms.Quiz, error)
}

// RowError is a rejected import row. Row is 1-based in the source document.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// ImportError lists every rejected row of an import.
type ImportError struct {
	Rows []RowError
}

func (e *ImportError) Error() string {
	parts := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		parts[i] = r.Error()
	}
	return "import rejected: " + strings.Join(parts, "; ")
}

func (e *ImportError) Unwrap() []error {
	out := make([]error, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = r.Err
	}
	return out
}

// Option configures a Bank.
type Option func(*Bank)

// WithNotifier sets where success and failure toasts go.
func WithNotifier(n notify.Notifier) Option {
	return func(b *Bank) { b.notifier = n }
}

// WithActivity sets the audit log. subjectID scopes the events.
func WithActivity(logger activity.Logger, subjectID int64, actor string) Option {
	return func(b *Bank) {
		b.activity = logger
		b.subjectID = subjectID
		b.actor = actor
	}
}

// Bank submits questions to the LMS.
type Bank struct {
	api       API
	session   *prefs.Session
	notifier  notify.Notifier
	activity  activity.Logger
	subjectID int64
	actor     string
}

// New creates a bank. session holds the layout preference and may be nil.
func New(api API, session *prefs.Session, opts ...Option) *Bank {
	b := &Bank{
		api:      api,
		session:  session,
		notifier: notify.Nop{},
		activity: activity.Nop{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit validates d and creates one question attached to every quiz in
// quizIDs. Nothing is sent when validation fails.
func (b *Bank) Submit(ctx context.Context, quizIDs []int64, d quiz.Draft) (*lms.Question, error) {
	ids, err := normalizeIDs(quizIDs)
	if err != nil {
		return nil, err
	}
	valid, err := quiz.Validate(d)
	if err != nil {
		return nil, err
	}

	q, err := b.create(ctx, ids, valid)
	if err != nil {
		b.notifier.Notify(ctx, notify.KindError, "Failed to add question")
		return nil, err
	}
	b.notifier.Notify(ctx, notify.KindSuccess, "Question added")
	return q, nil
}

// Import validates every draft and, only when all pass, creates them in
// order. On a backend failure the questions created so far are returned
// with the error.
func (b *Bank) Import(ctx context.Context, quizIDs []int64, drafts []quiz.Draft) ([]lms.Question, error) {
	ids, err := normalizeIDs(quizIDs)
	if err != nil {
		return nil, err
	}

	valid := make([]quiz.Draft, 0, len(drafts))
	var rejected []RowError
	for i, d := range drafts {
		v, err := quiz.Validate(d)
		if err != nil {
			rejected = append(rejected, RowError{Row: i + 1, Err: err})
			continue
		}
		valid = append(valid, v)
	}
	if len(rejected) > 0 {
		return nil, &ImportError{Rows: rejected}
	}

	created := make([]lms.Question, 0, len(valid))
	for i, d := range valid {
		q, err := b.create(ctx, ids, d)
		if err != nil {
			b.notifier.Notify(ctx, notify.KindError, fmt.Sprintf("Import stopped after %d of %d questions", len(created), len(valid)))
			return created, fmt.Errorf("import row %d: %w", i+1, err)
		}
		created = append(created, *q)
	}
	slog.Info("questions imported", "count", len(created), "quizzes", ids)
	b.notifier.Notify(ctx, notify.KindSuccess, fmt.Sprintf("%d questions imported", len(created)))
	return created, nil
}

// Questions returns the questions of one quiz.
func (b *Bank) Questions(ctx context.Context, quizID int64) ([]lms.Question, error) {
	q, err := b.api.GetQuizQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return q.Questions, nil
}

// ViewMode returns the stored layout, grid when unset.
func (b *Bank) ViewMode(ctx context.Context) prefs.ViewMode {
	if b.session == nil {
		return prefs.ViewGrid
	}
	return b.session.CreditBankViewMode(ctx)
}

// SetViewMode stores the layout.
func (b *Bank) SetViewMode(ctx context.Context, mode prefs.ViewMode) error {
	if b.session == nil {
		return fmt.Errorf("no session to store view mode")
	}
	return b.session.SetCreditBankViewMode(ctx, mode)
}

func (b *Bank) create(ctx context.Context, quizIDs []int64, d quiz.Draft) (*lms.Question, error) {
	q, err := b.api.CreateQuestion(ctx, d.Input(quizIDs...))
	if err != nil {
		slog.Warn("question bank submit failed", "quizzes", quizIDs, "error", err)
		return nil, fmt.Errorf("create question: %w", err)
	}
	if b.subjectID != 0 {
		activity.Record(ctx, b.activity, activity.Event{
			SubjectID: b.subjectID,
			Actor:     b.actor,
			Type:      activity.QuestionAdded,
			Data: map[string]any{
				"question_id": q.ID,
				"quiz_ids":    quizIDs,
				"type":        string(q.Type),
			},
		})
	}
	return q, nil
}

// normalizeIDs drops zero and repeated ids, keeping the caller's order.
func normalizeIDs(ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrNoQuizzes
	}
	return out, nil
}
