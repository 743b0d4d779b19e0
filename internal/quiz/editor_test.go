package quiz_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	nextQuiz  int64
	nextQ     int64
	created   []lms.QuizInput
	questions []lms.QuestionInput
	fetch     map[int64][]*lms.Quiz
	fetchN    map[int64]int
	createErr error
	addErr    error
	block     chan struct{}
	started   chan struct{}
	// createBlock holds CreateQuiz until closed.
	createBlock   chan struct{}
	createStarted chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextQuiz: 100,
		nextQ:    500,
		fetch:    map[int64][]*lms.Quiz{},
		fetchN:   map[int64]int{},
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeAPI) CreateQuiz(_ context.Context, in lms.QuizInput) (*lms.Quiz, error) {
	f.record("create_quiz")
	if f.createBlock != nil {
		f.createStarted <- struct{}{}
		<-f.createBlock
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextQuiz++
	f.created = append(f.created, in)
	return &lms.Quiz{ID: f.nextQuiz, Title: in.Title}, nil
}

func (f *fakeAPI) GetQuizQuestions(ctx context.Context, quizID int64) (*lms.Quiz, error) {
	f.record("get_questions")
	if f.block != nil {
		f.started <- struct{}{}
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.fetch[quizID]
	if len(responses) == 0 {
		return nil, &lms.APIError{StatusCode: 404, Message: "quiz not found"}
	}
	i := f.fetchN[quizID]
	if i >= len(responses) {
		i = len(responses) - 1
	}
	f.fetchN[quizID]++
	q := *responses[i]
	return &q, nil
}

func (f *fakeAPI) CreateQuestion(_ context.Context, in lms.QuestionInput) (*lms.Question, error) {
	f.record("create_question")
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextQ++
	f.questions = append(f.questions, in)
	return &lms.Question{ID: f.nextQ, Text: in.Text, Type: in.Type, Score: in.Score, Choices: in.Choices}, nil
}

func (f *fakeAPI) DeleteQuestion(_ context.Context, _ int64) error {
	f.record("delete_question")
	return nil
}

func (f *fakeAPI) ListQuizzes(_ context.Context, page, pageSize int, search string) (*lms.QuizPage, error) {
	f.record("list_quizzes")
	return &lms.QuizPage{
		Items:    []lms.Quiz{{ID: 1, Title: search}},
		Page:     page,
		PageSize: pageSize,
		Total:    1,
	}, nil
}

func questionsN(n int) []lms.Question {
	out := make([]lms.Question, n)
	for i := range out {
		out[i] = lms.Question{ID: int64(i + 1), Text: "Q", Type: lms.QuestionEssay}
	}
	return out
}

func TestEditor_QuizIDPriority(t *testing.T) {
	embedded := int64(7)

	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), API: newFakeAPI()})
	if _, ok := e.QuizID(); ok || e.HasQuiz() {
		t.Error("editor without quiz should not resolve an id")
	}

	e = quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), QuizID: &embedded, API: newFakeAPI()})
	if id, ok := e.QuizID(); !ok || id != 7 {
		t.Errorf("QuizID() = %d, %v; want embedded 7", id, ok)
	}

	api := newFakeAPI()
	api.fetch[9] = []*lms.Quiz{{ID: 9, Questions: questionsN(1)}}
	e = quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), QuizID: &embedded, API: api})
	if err := e.FetchQuestions(context.Background(), 9); err != nil {
		t.Fatalf("FetchQuestions() error = %v", err)
	}
	if id, _ := e.QuizID(); id != 9 {
		t.Errorf("QuizID() = %d, want fetched 9", id)
	}
}

func TestEditor_FetchQuestionsReplaces(t *testing.T) {
	api := newFakeAPI()
	api.fetch[4] = []*lms.Quiz{
		{ID: 4, Questions: questionsN(3)},
		{ID: 4, Questions: questionsN(2)},
	}
	e := quiz.NewEditor(quiz.Config{Owner: quiz.SubLessonOwner(1), API: api})

	ctx := context.Background()
	if err := e.FetchQuestions(ctx, 4); err != nil {
		t.Fatalf("first FetchQuestions() error = %v", err)
	}
	if err := e.FetchQuestions(ctx, 4); err != nil {
		t.Fatalf("second FetchQuestions() error = %v", err)
	}
	if got := len(e.Questions()); got != 2 {
		t.Errorf("len(Questions()) = %d, want 2", got)
	}
}

func TestEditor_FetchFailureIsInline(t *testing.T) {
	e := quiz.NewEditor(quiz.Config{Owner: quiz.SubLessonOwner(1), API: newFakeAPI()})

	err := e.FetchQuestions(context.Background(), 99)
	if !errors.Is(err, lms.ErrNotFound) {
		t.Fatalf("FetchQuestions() error = %v, want ErrNotFound", err)
	}
	if e.Err() == "" {
		t.Error("Err() should hold the failure message")
	}
	if e.HasQuiz() {
		t.Error("failed fetch should not attach a quiz")
	}
}

func TestEditor_AddQuestionCreatesQuizFirst(t *testing.T) {
	api := newFakeAPI()
	logger := activity.NewMemoryLogger()
	var updates []*lms.Quiz
	e := quiz.NewEditor(quiz.Config{
		Owner:     quiz.SubLessonOwner(12),
		OwnerName: "Capitals",
		SubjectID: 3,
		API:       api,
		Activity:  logger,
		OnUpdate:  func(q *lms.Quiz) { updates = append(updates, q) },
	})

	q, err := e.AddQuestion(context.Background(), quiz.Draft{
		Text:    "Capital of France?",
		Type:    lms.QuestionFillInBlank,
		Choices: []lms.Choice{{Text: "Paris"}, {Text: "paris"}},
	})
	if err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}

	calls := api.Calls()
	if len(calls) != 2 || calls[0] != "create_quiz" || calls[1] != "create_question" {
		t.Fatalf("calls = %v, want create_quiz then create_question", calls)
	}
	if api.created[0].OwnerType != lms.QuizOwnerLesson || api.created[0].OwnerID != 12 {
		t.Errorf("quiz created for %s/%d", api.created[0].OwnerType, api.created[0].OwnerID)
	}
	if api.created[0].Title != "Quiz: Capitals" {
		t.Errorf("quiz title = %q", api.created[0].Title)
	}

	quizID, ok := e.QuizID()
	if !ok || quizID != 101 {
		t.Fatalf("QuizID() = %d, %v; want 101", quizID, ok)
	}
	if ids := api.questions[0].QuizIDs; len(ids) != 1 || ids[0] != quizID {
		t.Errorf("question attached to %v, want [%d]", ids, quizID)
	}
	if got := len(e.Questions()); got != 1 {
		t.Errorf("len(Questions()) = %d, want 1", got)
	}
	if len(q.Choices) != 2 || !q.Choices[0].IsCorrect || !q.Choices[1].IsCorrect {
		t.Errorf("accepted answers = %+v", q.Choices)
	}

	if len(updates) != 2 || len(updates[1].Questions) != 1 {
		t.Errorf("OnUpdate calls = %d", len(updates))
	}
	types := logger.Types()
	if len(types) != 2 || types[0] != activity.QuizCreated || types[1] != activity.QuestionAdded {
		t.Errorf("activity = %v", types)
	}
}

func TestEditor_AddQuestionUsesExistingQuiz(t *testing.T) {
	api := newFakeAPI()
	embedded := int64(40)
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(2), QuizID: &embedded, API: api})

	_, err := e.AddQuestion(context.Background(), quiz.Draft{
		Text:    "Pick one",
		Type:    lms.QuestionSingleChoice,
		Choices: []lms.Choice{{Text: "A", IsCorrect: true}, {Text: "B"}},
	})
	if err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}
	if calls := api.Calls(); len(calls) != 1 || calls[0] != "create_question" {
		t.Errorf("calls = %v, want only create_question", calls)
	}
	if api.questions[0].QuizIDs[0] != 40 {
		t.Errorf("QuizIDs = %v, want [40]", api.questions[0].QuizIDs)
	}
}

func TestEditor_AddQuestionInvalidMakesNoCalls(t *testing.T) {
	api := newFakeAPI()
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(2), API: api})

	_, err := e.AddQuestion(context.Background(), quiz.Draft{
		Text:    "Pick two",
		Type:    lms.QuestionMultipleChoice,
		Choices: []lms.Choice{{Text: "A", IsCorrect: true}, {Text: "B"}, {Text: "C"}},
	})
	if !errors.Is(err, quiz.ErrInvalidQuestion) {
		t.Fatalf("AddQuestion() error = %v, want ErrInvalidQuestion", err)
	}
	if calls := api.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	if e.Err() == "" {
		t.Error("Err() should hold the validation message")
	}
}

func TestEditor_AddQuestionFailureKeepsState(t *testing.T) {
	api := newFakeAPI()
	api.addErr = errors.New("boom")
	embedded := int64(40)
	api.fetch[40] = []*lms.Quiz{{ID: 40, Questions: questionsN(2)}}
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(2), QuizID: &embedded, API: api})
	_ = e.FetchQuestions(context.Background(), 40)

	_, err := e.AddQuestion(context.Background(), quiz.Draft{Text: "Why?", Type: lms.QuestionEssay})
	if err == nil {
		t.Fatal("AddQuestion() should fail")
	}
	if got := len(e.Questions()); got != 2 {
		t.Errorf("len(Questions()) = %d, want 2", got)
	}
	if e.Err() == "" {
		t.Error("Err() should be set")
	}
}

func TestEditor_CreateQuizWhenExists(t *testing.T) {
	embedded := int64(5)
	api := newFakeAPI()
	e := quiz.NewEditor(quiz.Config{Owner: quiz.PostTestOwner(3), QuizID: &embedded, API: api})

	if _, err := e.CreateQuiz(context.Background()); !errors.Is(err, quiz.ErrQuizExists) {
		t.Errorf("CreateQuiz() error = %v, want ErrQuizExists", err)
	}
	if len(api.Calls()) != 0 {
		t.Errorf("calls = %v, want none", api.Calls())
	}
}

func TestEditor_CreateQuizFailure(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &lms.APIError{StatusCode: 500, Message: "db down"}
	e := quiz.NewEditor(quiz.Config{Owner: quiz.PreTestOwner(3), API: api})

	if _, err := e.CreateQuiz(context.Background()); err == nil {
		t.Fatal("CreateQuiz() should fail")
	}
	if e.HasQuiz() {
		t.Error("HasQuiz() = true after failed create")
	}
	if e.Err() == "" {
		t.Error("Err() should be set")
	}
}

func TestEditor_DeleteQuestion(t *testing.T) {
	api := newFakeAPI()
	api.fetch[8] = []*lms.Quiz{{ID: 8, Questions: questionsN(3)}}
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), API: api})
	_ = e.FetchQuestions(context.Background(), 8)

	if err := e.DeleteQuestion(context.Background(), 2); err != nil {
		t.Fatalf("DeleteQuestion() error = %v", err)
	}
	for _, q := range e.Questions() {
		if q.ID == 2 {
			t.Error("question 2 still present")
		}
	}
	if got := len(e.Questions()); got != 2 {
		t.Errorf("len(Questions()) = %d, want 2", got)
	}
}

func TestEditor_SelectAndDetach(t *testing.T) {
	api := newFakeAPI()
	api.fetch[30] = []*lms.Quiz{{ID: 30, Title: "Shared", Questions: questionsN(4)}}
	var last *lms.Quiz
	e := quiz.NewEditor(quiz.Config{
		Owner:    quiz.BigLessonOwner(1),
		API:      api,
		OnUpdate: func(q *lms.Quiz) { last = q },
	})

	page, err := e.ListQuizzes(context.Background(), 0, "Shared")
	if err != nil {
		t.Fatalf("ListQuizzes() error = %v", err)
	}
	if page.Page != 1 || page.PageSize != quiz.DefaultPageSize {
		t.Errorf("page = %d size = %d", page.Page, page.PageSize)
	}

	if err := e.SelectQuiz(context.Background(), 30); err != nil {
		t.Fatalf("SelectQuiz() error = %v", err)
	}
	if id, _ := e.QuizID(); id != 30 {
		t.Errorf("QuizID() = %d, want 30", id)
	}
	if last == nil || len(last.Questions) != 4 {
		t.Errorf("OnUpdate quiz = %+v", last)
	}

	e.DetachQuiz()
	if e.HasQuiz() {
		t.Error("HasQuiz() = true after DetachQuiz")
	}
	if last != nil {
		t.Error("OnUpdate should receive nil after DetachQuiz")
	}
}

func TestEditor_CloseDropsLateResults(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	api.started = make(chan struct{}, 1)
	api.fetch[6] = []*lms.Quiz{{ID: 6, Questions: questionsN(1)}}
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), API: api})

	done := make(chan error, 1)
	go func() {
		done <- e.FetchQuestions(context.Background(), 6)
	}()

	<-api.started
	e.Close()

	if err := <-done; err == nil {
		t.Fatal("FetchQuestions() should fail after Close")
	}
	if e.HasQuiz() {
		t.Error("result applied after Close")
	}
	if e.Err() != "" {
		t.Errorf("Err() = %q, want no inline error after Close", e.Err())
	}
}

func TestEditor_Sync(t *testing.T) {
	api := newFakeAPI()
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(1), API: api})

	if _, err := e.AddQuestion(context.Background(), quiz.Draft{Text: "Why?", Type: lms.QuestionEssay}); err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}
	created, _ := e.QuizID()

	e.Sync(nil, nil)
	if id, ok := e.QuizID(); !ok || id != created {
		t.Errorf("QuizID() after empty sync = %d, %v; want %d", id, ok, created)
	}

	other := int64(77)
	e.Sync(&other, nil)
	if id, _ := e.QuizID(); id != 77 {
		t.Errorf("QuizID() = %d, want 77 after owner points elsewhere", id)
	}
	if e.Questions() != nil {
		t.Error("questions of the previous quiz should be dropped")
	}

	e.Sync(nil, &lms.Quiz{ID: 78, Questions: questionsN(2)})
	if id, _ := e.QuizID(); id != 78 {
		t.Errorf("QuizID() = %d, want embedded quiz 78", id)
	}
	if got := len(e.Questions()); got != 2 {
		t.Errorf("len(Questions()) = %d, want 2", got)
	}
}

func TestEditor_CreateAndAddShareGuard(t *testing.T) {
	api := newFakeAPI()
	api.createBlock = make(chan struct{})
	api.createStarted = make(chan struct{}, 1)
	e := quiz.NewEditor(quiz.Config{Owner: quiz.BigLessonOwner(10), OwnerName: "Europe", API: api})
	defer e.Close()

	type result struct {
		q   *lms.Quiz
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := e.CreateQuiz(context.Background())
		done <- result{q, err}
	}()
	<-api.createStarted

	_, err := e.AddQuestion(context.Background(), quiz.Draft{Text: "Why?", Type: lms.QuestionEssay})
	if !errors.Is(err, scope.ErrBusy) {
		t.Errorf("AddQuestion() during CreateQuiz error = %v, want ErrBusy", err)
	}
	if _, err := e.CreateQuiz(context.Background()); !errors.Is(err, scope.ErrBusy) {
		t.Errorf("second CreateQuiz() error = %v, want ErrBusy", err)
	}

	close(api.createBlock)
	res := <-done
	if res.err != nil {
		t.Fatalf("CreateQuiz() error = %v", res.err)
	}

	if _, err := e.AddQuestion(context.Background(), quiz.Draft{Text: "Why?", Type: lms.QuestionEssay}); err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}
	if _, err := e.CreateQuiz(context.Background()); !errors.Is(err, quiz.ErrQuizExists) {
		t.Errorf("CreateQuiz() after create error = %v, want ErrQuizExists", err)
	}

	creates := 0
	for _, c := range api.Calls() {
		if c == "create_quiz" {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("create_quiz calls = %d, want 1 (calls %v)", creates, api.Calls())
	}
	if ids := api.questions[0].QuizIDs; len(ids) != 1 || ids[0] != res.q.ID {
		t.Errorf("question quizzes = %v, want [%d]", ids, res.q.ID)
	}
}
