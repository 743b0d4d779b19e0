package dashboard

import (
	"context"
	"sync"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/nav"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
	"github.com/p-n-ai/pai-instructor/internal/questionbank"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
	"github.com/p-n-ai/pai-instructor/internal/tree"
)

type confirmKey struct{}

// withConfirm marks ctx as carrying the instructor's answer to any
// confirmation prompt raised while it is live.
func withConfirm(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, ok)
}

var confirmFromRequest = tree.ConfirmFunc(func(ctx context.Context, _ string) bool {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok
})

// session is the server-side state of one signed-in dashboard.
type session struct {
	id       string
	client   *lms.Client
	store    prefs.Store
	prefs    *prefs.Session
	toasts   *notify.Queue
	activity activity.Logger

	mu         sync.Mutex
	shell      *nav.Shell
	instructor int64
	trees      map[int64]*tree.Tree
	tests      map[quiz.Owner]*quiz.Editor
}

func newSession(id string, client *lms.Client, store prefs.Store, toasts *notify.Queue, logger activity.Logger) *session {
	return &session{
		id:       id,
		client:   client,
		store:    store,
		prefs:    prefs.NewSession(store),
		toasts:   toasts,
		activity: logger,
		trees:    make(map[int64]*tree.Tree),
		tests:    make(map[quiz.Owner]*quiz.Editor),
	}
}

func (s *session) actor(ctx context.Context) string {
	u, ok := s.prefs.User(ctx)
	if !ok {
		return ""
	}
	return activity.Actor(u.ID)
}

// navShell returns the shell of the signed-in instructor. ok is false when no
// user has been stored yet.
func (s *session) navShell(ctx context.Context) (*nav.Shell, bool) {
	id, ok := s.prefs.InstructorID(ctx)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shell == nil || s.instructor != id {
		s.shell = nav.NewShell(s.client, id)
		s.instructor = id
	}
	return s.shell, true
}

// tree returns the editor of a subject, loading it on first use.
func (s *session) tree(ctx context.Context, subjectID int64) (*tree.Tree, error) {
	t, _, err := s.loadTree(ctx, subjectID)
	return t, err
}

// loadTree is tree that also reports whether this call fetched the big
// lesson list.
func (s *session) loadTree(ctx context.Context, subjectID int64) (*tree.Tree, bool, error) {
	s.mu.Lock()
	t, ok := s.trees[subjectID]
	if !ok {
		t = tree.New(ctx, tree.Config{
			SubjectID: subjectID,
			API:       s.client,
			Prefs:     s.store,
			Notifier:  s.toasts,
			Confirm:   confirmFromRequest,
			Activity:  s.activity,
			Actor:     s.actor(ctx),
		})
		s.trees[subjectID] = t
	}
	s.mu.Unlock()

	if t.Loaded() {
		return t, false, nil
	}
	if err := t.Refresh(ctx); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// testEditor returns the one editor of a subject's pre or post test along
// with the subject as fetched now. The editor outlives the request so that
// concurrent writes to the same test share its busy guard. An existing
// editor takes the subject's quiz reference only when resync is set.
func (s *session) testEditor(ctx context.Context, owner quiz.Owner, resync bool) (*quiz.Editor, *lms.Subject, error) {
	subject, err := s.client.GetSubject(ctx, owner.ID)
	if err != nil {
		return nil, nil, err
	}
	linked, embedded := testQuiz(subject, owner.Kind)

	s.mu.Lock()
	e, ok := s.tests[owner]
	if !ok {
		e = quiz.NewEditor(quiz.Config{
			Owner:     owner,
			OwnerName: subject.Name,
			QuizID:    linked,
			Quiz:      embedded,
			API:       s.client,
			Activity:  s.activity,
			SubjectID: subject.ID,
			Actor:     s.actor(ctx),
		})
		s.tests[owner] = e
	}
	s.mu.Unlock()

	if ok && resync {
		e.Sync(linked, embedded)
	}
	return e, subject, nil
}

func testQuiz(subject *lms.Subject, kind quiz.OwnerKind) (*int64, *lms.Quiz) {
	if kind == quiz.OwnerPostTest {
		return subject.PostTestID, subject.PostTest
	}
	return subject.PreTestID, subject.PreTest
}

func (s *session) bank(ctx context.Context, subjectID int64) *questionbank.Bank {
	return questionbank.New(s.client, s.prefs,
		questionbank.WithNotifier(s.toasts),
		questionbank.WithActivity(s.activity, subjectID, s.actor(ctx)),
	)
}

func (s *session) close() {
	s.mu.Lock()
	trees := s.trees
	s.trees = make(map[int64]*tree.Tree)
	tests := s.tests
	s.tests = make(map[quiz.Owner]*quiz.Editor)
	s.shell = nil
	s.mu.Unlock()
	for _, t := range trees {
		t.Close()
	}
	for _, e := range tests {
		e.Close()
	}
}
