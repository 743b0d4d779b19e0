package tree_test

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/lms/lmstest"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
	"github.com/p-n-ai/pai-instructor/internal/tree"
)

type fixture struct {
	srv    *lmstest.Server
	tree   *tree.Tree
	toasts *notify.Queue
	prefs  *prefs.MemoryStore
	log    *activity.MemoryLogger
}

func newFixture(t *testing.T, confirm tree.Confirmer) *fixture {
	t.Helper()
	srv := lmstest.New(t)
	srv.AddSubject(lms.Subject{ID: 3, Name: "Geography"})
	srv.AddBigLesson(lms.BigLesson{
		ID:        10,
		Title:     "Europe",
		SubjectID: 3,
		Lessons: []lms.Lesson{
			{ID: 20, BigLessonID: 10, Title: "France"},
			{ID: 21, BigLessonID: 10, Title: "Spain"},
		},
	})
	srv.AddBigLesson(lms.BigLesson{ID: 11, Title: "Asia", SubjectID: 3})
	srv.AddBigLesson(lms.BigLesson{ID: 12, Title: "Other subject", SubjectID: 4})

	f := &fixture{
		srv:    srv,
		toasts: notify.NewQueue(),
		prefs:  prefs.NewMemoryStore(),
		log:    activity.NewMemoryLogger(),
	}
	f.tree = f.open(t, confirm)
	return f
}

func (f *fixture) open(t *testing.T, confirm tree.Confirmer) *tree.Tree {
	t.Helper()
	tr := tree.New(context.Background(), tree.Config{
		SubjectID: 3,
		API:       f.srv.Client(),
		Prefs:     f.prefs,
		Notifier:  f.toasts,
		Confirm:   confirm,
		Activity:  f.log,
		Actor:     "17",
	})
	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func titles(lessons []lms.BigLesson) []string {
	out := make([]string, len(lessons))
	for i, l := range lessons {
		out[i] = l.Title
	}
	return out
}

func lastToast(t *testing.T, q *notify.Queue) notify.Toast {
	t.Helper()
	active := q.Active()
	if len(active) == 0 {
		t.Fatal("no toast shown")
	}
	return active[len(active)-1]
}

func TestRefresh_LoadsSubjectLessons(t *testing.T) {
	f := newFixture(t, nil)

	got := titles(f.tree.BigLessons())
	if !slices.Equal(got, []string{"Europe", "Asia"}) {
		t.Errorf("BigLessons() = %v", got)
	}

	p, ok := f.tree.Panel(10)
	if !ok {
		t.Fatal("Panel(10) not found")
	}
	if p.Order() != 1 {
		t.Errorf("Order() = %d, want 1", p.Order())
	}
	if len(p.SubLessons()) != 2 {
		t.Errorf("len(SubLessons()) = %d, want 2", len(p.SubLessons()))
	}
	if p.Expanded() || p.Mode() != tree.Viewing {
		t.Errorf("initial state = expanded %v mode %s, want collapsed viewing", p.Expanded(), p.Mode())
	}
}

func TestCreateBigLesson_RefetchesList(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.ResetRequests()

	if err := f.tree.CreateBigLesson(context.Background(), "Intro", ""); err != nil {
		t.Fatalf("CreateBigLesson() error = %v", err)
	}

	want := []string{"POST /api/big-lessons", "GET /api/big-lessons"}
	if got := f.srv.Requests(); !slices.Equal(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if !slices.Contains(titles(f.tree.BigLessons()), "Intro") {
		t.Errorf("BigLessons() = %v, want Intro", titles(f.tree.BigLessons()))
	}
	if toast := lastToast(t, f.toasts); toast.Kind != notify.KindSuccess {
		t.Errorf("toast kind = %s, want success", toast.Kind)
	}
	if types := f.log.Types(); len(types) != 1 || types[0] != activity.BigLessonCreated {
		t.Errorf("activity = %v", types)
	}
}

func TestCreateBigLesson_EmptyTitle(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.ResetRequests()

	err := f.tree.CreateBigLesson(context.Background(), "   ", "")
	if !errors.Is(err, tree.ErrInvalidInput) {
		t.Fatalf("CreateBigLesson() error = %v, want ErrInvalidInput", err)
	}
	if got := f.srv.Requests(); len(got) != 0 {
		t.Errorf("requests = %v, want none", got)
	}
}

func TestSubLessonDelete_DeclinedMakesNoRequest(t *testing.T) {
	f := newFixture(t, tree.Answer(false))
	p, _ := f.tree.Panel(10)
	sub, _ := p.SubLesson(20)
	f.srv.ResetRequests()

	if err := sub.Delete(context.Background()); !errors.Is(err, tree.ErrDeclined) {
		t.Fatalf("Delete() error = %v, want ErrDeclined", err)
	}
	if got := f.srv.Requests(); len(got) != 0 {
		t.Errorf("requests = %v, want none", got)
	}
	if len(p.SubLessons()) != 2 {
		t.Errorf("len(SubLessons()) = %d, want 2", len(p.SubLessons()))
	}
	if len(f.toasts.Active()) != 0 {
		t.Error("declined delete should not show a toast")
	}
}

func TestSubLessonDelete_Confirmed(t *testing.T) {
	var prompt string
	f := newFixture(t, tree.ConfirmFunc(func(_ context.Context, p string) bool {
		prompt = p
		return true
	}))
	p, _ := f.tree.Panel(10)
	sub, _ := p.SubLesson(20)
	f.srv.ResetRequests()

	if err := sub.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !strings.Contains(prompt, "France") {
		t.Errorf("prompt = %q", prompt)
	}
	want := []string{"DELETE /api/courses/lessons/20", "GET /api/big-lessons"}
	if got := f.srv.Requests(); !slices.Equal(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if _, ok := p.SubLesson(20); ok {
		t.Error("deleted lesson still in the tree")
	}
}

func TestDelete_FailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, tree.Answer(true))
	f.srv.Fail(http.MethodDelete, "/api/big-lessons/11", http.StatusInternalServerError)
	p, _ := f.tree.Panel(11)
	f.srv.ResetRequests()

	if err := p.Delete(context.Background()); err == nil {
		t.Fatal("Delete() should fail")
	}
	if got := f.srv.Requests(); len(got) != 1 {
		t.Errorf("requests = %v, want only the delete", got)
	}
	if _, ok := f.tree.Panel(11); !ok {
		t.Error("panel removed after failed delete")
	}
	toast := lastToast(t, f.toasts)
	if toast.Kind != notify.KindError || !strings.Contains(toast.Message, "injected failure") {
		t.Errorf("toast = %+v", toast)
	}
	if toast.TTL != notify.DefaultTTL {
		t.Errorf("toast TTL = %v, want %v", toast.TTL, notify.DefaultTTL)
	}
}

func TestBigLessonDelete_ClosesPanel(t *testing.T) {
	f := newFixture(t, tree.Answer(true))
	p, _ := f.tree.Panel(11)

	if err := p.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := f.tree.Panel(11); ok {
		t.Error("panel still present after delete")
	}
	if err := p.Rename(context.Background(), "Too late", ""); !errors.Is(err, scope.ErrClosed) {
		t.Errorf("Rename() on removed panel error = %v, want ErrClosed", err)
	}
}

func TestRename_ModeTransitions(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)

	p.BeginEdit()
	if p.Mode() != tree.Editing {
		t.Fatalf("Mode() = %s, want editing", p.Mode())
	}

	f.srv.Fail(http.MethodPut, "/api/big-lessons/10", http.StatusBadGateway)
	if err := p.Rename(context.Background(), "Western Europe", ""); err == nil {
		t.Fatal("Rename() should fail")
	}
	if p.Mode() != tree.Editing {
		t.Errorf("Mode() after failure = %s, want editing", p.Mode())
	}
	if p.Lesson().Title != "Europe" {
		t.Errorf("Title after failure = %q, want Europe", p.Lesson().Title)
	}
}

func TestRename_Success(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)
	p.BeginEdit()

	if err := p.Rename(context.Background(), "Western Europe", "Atlantic coast"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if p.Mode() != tree.Viewing {
		t.Errorf("Mode() = %s, want viewing", p.Mode())
	}
	if got := p.Lesson().Title; got != "Western Europe" {
		t.Errorf("Title = %q", got)
	}
	if len(p.SubLessons()) != 2 {
		t.Error("sub-lessons lost on rename")
	}
}

func TestAddSubLesson(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(11)

	err := p.AddSubLesson(context.Background(), lms.LessonInput{Title: "Japan", VideoURL: "https://video.example.com/japan.mp4"})
	if err != nil {
		t.Fatalf("AddSubLesson() error = %v", err)
	}
	subs := p.SubLessons()
	if len(subs) != 1 || subs[0].Lesson().Title != "Japan" {
		t.Fatalf("SubLessons() = %d", len(subs))
	}
	if subs[0].Lesson().Status != lms.StatusDraft {
		t.Errorf("Status = %q, want draft", subs[0].Lesson().Status)
	}
}

func TestSubLessonUpdate_InvalidVideoURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"", false},
		{"https://youtu.be/abc", false},
		{"http://example.com/v.mp4", false},
		{"youtu.be/abc", true},
		{"ftp://example.com/v.mp4", true},
		{"not a url", true},
	}
	for _, tt := range tests {
		err := tree.ValidateVideoURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateVideoURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}

	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)
	sub, _ := p.SubLesson(21)
	sub.BeginEdit()
	f.srv.ResetRequests()

	err := sub.Update(context.Background(), lms.LessonInput{Title: "Spain", VideoURL: "javascript:alert(1)"})
	if !errors.Is(err, tree.ErrInvalidInput) {
		t.Fatalf("Update() error = %v, want ErrInvalidInput", err)
	}
	if got := f.srv.Requests(); len(got) != 0 {
		t.Errorf("requests = %v, want none", got)
	}
	if sub.Mode() != tree.Editing {
		t.Error("invalid input should keep the form open")
	}

	if err := sub.Update(context.Background(), lms.LessonInput{Title: "Spain", VideoURL: "https://video.example.com/es"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if sub.Mode() != tree.Viewing {
		t.Error("successful update should close the form")
	}
	if got := sub.Lesson().VideoURL; got != "https://video.example.com/es" {
		t.Errorf("VideoURL = %q", got)
	}
}

func TestCollapseState_SurvivesReload(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)
	sub, _ := p.SubLesson(20)

	if !p.Toggle() {
		t.Fatal("Toggle() should expand")
	}
	if _, err := p.ToggleSection(context.Background(), collapse.Lessons); err != nil {
		t.Fatalf("ToggleSection() error = %v", err)
	}
	if _, err := sub.ToggleSection(context.Background(), collapse.Video); err != nil {
		t.Fatalf("ToggleSection(video) error = %v", err)
	}

	reopened := f.open(t, nil)
	p2, _ := reopened.Panel(10)
	sub2, _ := p2.SubLesson(20)
	if !p2.Expanded() || !p2.SectionOpen(collapse.Lessons) {
		t.Error("big lesson state lost on reload")
	}
	if !sub2.SectionOpen(collapse.Video) || sub2.SectionOpen(collapse.Quiz) {
		t.Error("sub-lesson state wrong on reload")
	}

	if _, err := sub.ToggleSection(context.Background(), collapse.Attachments); !errors.Is(err, tree.ErrInvalidInput) {
		t.Errorf("ToggleSection(attachments) on sub-lesson error = %v", err)
	}
}

func TestInjectedCollapseState(t *testing.T) {
	srv := lmstest.New(t)
	srv.AddBigLesson(lms.BigLesson{ID: 10, Title: "Europe", SubjectID: 3})
	owned := map[string]bool{}
	tr := tree.New(context.Background(), tree.Config{
		SubjectID: 3,
		API:       srv.Client(),
		Prefs:     prefs.NewMemoryStore(),
		Collapse: collapse.Funcs{
			GetFunc: func(key string, aspect collapse.Aspect) bool { return owned[key+"."+string(aspect)] },
			SetFunc: func(key string, aspect collapse.Aspect, open bool) { owned[key+"."+string(aspect)] = open },
		},
	})
	defer tr.Close()
	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	p, _ := tr.Panel(10)
	p.Toggle()
	if !owned["big-lesson-10.expanded"] {
		t.Error("injected state was not written")
	}
}

func TestAttachments(t *testing.T) {
	f := newFixture(t, tree.Answer(false))
	f.srv.AddAttachment(10, lms.Attachment{ID: 90, Title: "map.pdf"})
	p, _ := f.tree.Panel(10)

	open, err := p.ToggleSection(context.Background(), collapse.Attachments)
	if err != nil || !open {
		t.Fatalf("ToggleSection(attachments) = %v, %v", open, err)
	}
	if files := p.Attachments().Files(); len(files) != 1 || files[0].Title != "map.pdf" {
		t.Fatalf("Files() = %+v", files)
	}

	f.srv.ResetRequests()
	if err := p.Attachments().Upload(context.Background(), "notes.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	want := []string{
		"POST /api/big-lessons/10/attachments",
		"GET /api/big-lessons/10/attachments",
		"GET /api/big-lessons",
	}
	if got := f.srv.Requests(); !slices.Equal(got, want) {
		t.Errorf("requests after upload = %v, want %v", got, want)
	}
	files := p.Attachments().Files()
	if len(files) != 2 || files[1].Title != "notes.txt" || files[1].Size != 5 {
		t.Fatalf("Files() after upload = %+v", files)
	}

	f.srv.ResetRequests()
	if err := p.Attachments().Delete(context.Background(), 90); !errors.Is(err, tree.ErrDeclined) {
		t.Errorf("Delete() error = %v, want ErrDeclined", err)
	}
	if got := f.srv.Requests(); len(got) != 0 {
		t.Errorf("requests = %v, want none", got)
	}

	if err := p.Attachments().Upload(context.Background(), "", strings.NewReader("x")); !errors.Is(err, tree.ErrInvalidInput) {
		t.Errorf("Upload() without name error = %v", err)
	}
}

func TestSubLessonQuiz_AddQuestionCreatesQuiz(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)
	sub, _ := p.SubLesson(20)

	if sub.Quiz().HasQuiz() {
		t.Fatal("lesson should start without a quiz")
	}
	open, err := sub.ToggleSection(context.Background(), collapse.Quiz)
	if err != nil || !open {
		t.Fatalf("ToggleSection(quiz) = %v, %v", open, err)
	}

	_, err = sub.Quiz().AddQuestion(context.Background(), fillInBlank("Capital of France?", "Paris", "paris"))
	if err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}

	quizID, ok := sub.Quiz().QuizID()
	if !ok {
		t.Fatal("no quiz after AddQuestion")
	}
	owner, _ := f.srv.QuizOwner(quizID)
	if owner.OwnerType != lms.QuizOwnerLesson || owner.OwnerID != 20 {
		t.Errorf("quiz owner = %s/%d, want lesson/20", owner.OwnerType, owner.OwnerID)
	}
	stored, _ := f.srv.Quiz(quizID)
	if len(stored.Questions) != 1 {
		t.Errorf("stored questions = %d, want 1", len(stored.Questions))
	}
	if got := len(sub.Quiz().Questions()); got != 1 {
		t.Errorf("local questions = %d, want 1", got)
	}
	if id := sub.Lesson().QuizID; id == nil || *id != quizID {
		t.Error("panel was not told about the new quiz")
	}

	if err := f.tree.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if id, _ := sub.Quiz().QuizID(); id != quizID {
		t.Errorf("quiz lost on refresh: %d", id)
	}
}

func TestClose_DropsLateRefresh(t *testing.T) {
	f := newFixture(t, nil)
	before := len(f.tree.Panels())

	f.tree.Close()
	f.srv.AddBigLesson(lms.BigLesson{ID: 13, Title: "Africa", SubjectID: 3})
	if err := f.tree.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() after Close should fail")
	}
	if got := len(f.tree.Panels()); got != before {
		t.Errorf("len(Panels()) = %d, want %d", got, before)
	}
}

func TestView(t *testing.T) {
	f := newFixture(t, nil)
	p, _ := f.tree.Panel(10)
	p.Toggle()

	v := f.tree.View()
	if v.SubjectID != 3 || len(v.BigLessons) != 2 {
		t.Fatalf("View() = %+v", v)
	}
	first := v.BigLessons[0]
	if !first.Expanded || first.Mode != tree.Viewing || len(first.Lessons) != 2 {
		t.Errorf("first = %+v", first)
	}
	if first.Lessons[1].Order != 2 {
		t.Errorf("second lesson order = %d, want 2", first.Lessons[1].Order)
	}
}
