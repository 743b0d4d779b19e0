// Package activity records the mutations an instructor makes through the
// dashboard.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Event types emitted by the lesson tree and quiz editor.
const (
	BigLessonCreated  = "big_lesson_created"
	BigLessonRenamed  = "big_lesson_renamed"
	BigLessonDeleted  = "big_lesson_deleted"
	LessonCreated     = "lesson_created"
	LessonUpdated     = "lesson_updated"
	LessonDeleted     = "lesson_deleted"
	AttachmentAdded   = "attachment_uploaded"
	AttachmentDeleted = "attachment_deleted"
	QuizCreated       = "quiz_created"
	QuizAttached      = "quiz_attached"
	QuizDeleted       = "quiz_deleted"
	QuestionAdded     = "question_added"
	QuestionDeleted   = "question_deleted"
	InstructorRemoved = "instructor_removed"
)

// Schema creates the table used by PostgresLogger.
const Schema = `CREATE TABLE IF NOT EXISTS dashboard_activity (
	id         BIGSERIAL PRIMARY KEY,
	subject_id BIGINT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Event is one recorded mutation.
type Event struct {
	SubjectID int64
	Actor     string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// Logger defines event logging behavior.
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// Nop ignores all events.
type Nop struct{}

func (Nop) Log(context.Context, Event) error {
	return nil
}

// MemoryLogger stores events in memory for tests.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) Log(_ context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Types returns the type of every recorded event in order.
func (l *MemoryLogger) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]string, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}

// PostgresLogger inserts events into the dashboard_activity table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) Log(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("activity logger pool is nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.SubjectID == 0 {
		return fmt.Errorf("subject id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO dashboard_activity (subject_id, actor, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.SubjectID,
		event.Actor,
		event.Type,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	slog.Debug("activity logged",
		"type", event.Type,
		"subject_id", event.SubjectID,
		"actor", event.Actor,
	)
	return nil
}

// Record logs event and reports a failure at warn level instead of returning
// it. A lost audit entry never fails the mutation that produced it.
func Record(ctx context.Context, logger Logger, event Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		slog.Warn("activity not recorded", "type", event.Type, "subject_id", event.SubjectID, "error", err)
	}
}

// Actor formats a user id for Event.Actor.
func Actor(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
