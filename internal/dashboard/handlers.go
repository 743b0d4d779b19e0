package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/collapse"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/nav"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
	"github.com/p-n-ai/pai-instructor/internal/tree"
)

func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	var u prefs.User
	if !decodeJSON(w, r, &u) {
		return
	}
	if u.ID == 0 && u.InstructorID == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "user id is required"})
		return
	}
	ctx := r.Context()
	// The token stays in the session's LMS client; only the user is stored.
	if err := sess.prefs.SetUser(ctx, u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.id, "user": u})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, sess *session, token string) {
	if err := sess.prefs.SignOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.dropSession(token)
	w.WriteHeader(http.StatusNoContent)
}

type preferences struct {
	IconPanelPinned *bool          `json:"icon_panel_pinned,omitempty"`
	QuestionView    prefs.ViewMode `json:"question_bank_view,omitempty"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	ctx := r.Context()
	pinned := sess.prefs.IconPanelPinned(ctx)
	writeJSON(w, http.StatusOK, preferences{
		IconPanelPinned: &pinned,
		QuestionView:    sess.bank(ctx, 0).ViewMode(ctx),
	})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request, sess *session, token string) {
	var in preferences
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	if in.IconPanelPinned != nil {
		if err := sess.prefs.SetIconPanelPinned(ctx, *in.IconPanelPinned); err != nil {
			writeError(w, err)
			return
		}
	}
	if in.QuestionView != "" {
		if err := sess.bank(ctx, 0).SetViewMode(ctx, in.QuestionView); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	s.handleGetPreferences(w, r, sess, token)
}

func navShell(w http.ResponseWriter, r *http.Request, sess *session) (*nav.Shell, bool) {
	shell, ok := sess.navShell(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no signed-in user"})
		return nil, false
	}
	return shell, true
}

// writeNav answers with the shell page. A failed move still carries the page
// that stayed open, with the failure as its banner.
func writeNav(w http.ResponseWriter, page nav.Page, err error) {
	if err != nil {
		writeJSON(w, statusOf(err), page)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleNav restores the query's location on the first load of a session or
// with ?restore=true. Later loads with a view push a history entry; without
// one they return the current page.
func (s *Server) handleNav(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	shell, ok := navShell(w, r, sess)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	restore, _ := strconv.ParseBool(q.Get("restore"))
	history := shell.History()

	switch {
	case restore || history.Len() == 0:
		page, err := shell.Restore(ctx, q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case q.Has(nav.ParamView):
		page, err := shell.Navigate(ctx, nav.ParseLocation(q))
		writeNav(w, page, err)
	default:
		writeJSON(w, http.StatusOK, shell.Page())
	}
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	shell, ok := navShell(w, r, sess)
	if !ok {
		return
	}
	var loc nav.Location
	if !decodeJSON(w, r, &loc) {
		return
	}
	page, err := shell.Navigate(r.Context(), loc)
	writeNav(w, page, err)
}

func (s *Server) handleNavMove(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	shell, ok := navShell(w, r, sess)
	if !ok {
		return
	}
	var move func(context.Context) (nav.Page, error)
	switch r.PathValue("direction") {
	case "back":
		move = shell.Back
	case "forward":
		move = shell.Forward
	case "my-courses":
		move = shell.ShowMyCourses
	case "faculties":
		move = shell.BrowseFaculties
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown direction"})
		return
	}
	page, err := move(r.Context())
	writeNav(w, page, err)
}

// handleNavSelect drills down into one faculty, department, course or
// subject.
func (s *Server) handleNavSelect(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	shell, ok := navShell(w, r, sess)
	if !ok {
		return
	}
	var selectFn func(context.Context, int64) (nav.Page, error)
	switch r.PathValue("level") {
	case nav.ParamFaculty:
		selectFn = shell.SelectFaculty
	case nav.ParamDepartment:
		selectFn = shell.SelectDepartment
	case nav.ParamCourse:
		selectFn = shell.SelectCourse
	case nav.ParamSubject:
		selectFn = shell.SelectSubject
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown level"})
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	page, err := selectFn(r.Context(), id)
	writeNav(w, page, err)
}

func (s *Server) handleDismissBanner(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	shell, ok := navShell(w, r, sess)
	if !ok {
		return
	}
	shell.DismissBanner()
	w.WriteHeader(http.StatusNoContent)
}

// subjectTree resolves the {id} path value to a loaded tree.
func (s *Server) subjectTree(w http.ResponseWriter, r *http.Request, sess *session) (*tree.Tree, bool) {
	subjectID, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	t, err := sess.tree(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return t, true
}

func (s *Server) bigLessonPanel(w http.ResponseWriter, r *http.Request, sess *session) (*tree.BigLessonPanel, bool) {
	t, ok := s.subjectTree(w, r, sess)
	if !ok {
		return nil, false
	}
	bid, ok := pathID(w, r, "bid")
	if !ok {
		return nil, false
	}
	p, ok := t.Panel(bid)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("big lesson %d not found", bid)})
		return nil, false
	}
	return p, true
}

func (s *Server) subLessonPanel(w http.ResponseWriter, r *http.Request, sess *session) (*tree.SubLessonPanel, bool) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return nil, false
	}
	lid, ok := pathID(w, r, "lid")
	if !ok {
		return nil, false
	}
	sub, ok := p.SubLesson(lid)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("lesson %d not found", lid)})
		return nil, false
	}
	return sub, true
}

func confirmed(r *http.Request) context.Context {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return withConfirm(r.Context(), ok)
}

// handleTree fetches the big lesson list once per request: on first use by
// loading the tree, afterwards by refreshing it.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	subjectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, loaded, err := sess.loadTree(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !loaded {
		if err := t.Refresh(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, t.View())
}

type collapseRequest struct {
	Key    string          `json:"key"`
	Aspect collapse.Aspect `json:"aspect"`
	Open   bool            `json:"open"`
}

func (s *Server) handleCollapse(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	t, ok := s.subjectTree(w, r, sess)
	if !ok {
		return
	}
	var in collapseRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Key == "" || in.Aspect == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "key and aspect are required"})
		return
	}
	if err := setSection(r.Context(), t, in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View())
}

// setSection applies one collapse change through the panel that owns the
// key, so opening a quiz or attachment section loads it. Keys of other nodes
// are stored as given.
func setSection(ctx context.Context, t *tree.Tree, in collapseRequest) error {
	for _, p := range t.Panels() {
		switch in.Key {
		case p.Key():
			if in.Aspect == collapse.Expanded {
				if p.Expanded() != in.Open {
					p.Toggle()
				}
				return nil
			}
			if p.SectionOpen(in.Aspect) == in.Open {
				return nil
			}
			_, err := p.ToggleSection(ctx, in.Aspect)
			return err
		case p.Attachments().Key():
			if in.Aspect != collapse.Expanded {
				return &tree.FieldError{Field: "aspect", Reason: fmt.Sprintf("attachment lists have no %q section", in.Aspect)}
			}
			if p.Attachments().Expanded() != in.Open {
				p.Attachments().Toggle()
			}
			return nil
		}
		for _, sub := range p.SubLessons() {
			if sub.Key() != in.Key {
				continue
			}
			if in.Aspect == collapse.Expanded {
				if sub.Expanded() != in.Open {
					sub.Toggle()
				}
				return nil
			}
			if sub.SectionOpen(in.Aspect) == in.Open {
				return nil
			}
			_, err := sub.ToggleSection(ctx, in.Aspect)
			return err
		}
	}
	t.State().Set(in.Key, in.Aspect, in.Open)
	return nil
}

type modeRequest struct {
	Mode tree.Mode `json:"mode"`
}

func decodeMode(w http.ResponseWriter, r *http.Request) (tree.Mode, bool) {
	var in modeRequest
	if !decodeJSON(w, r, &in) {
		return "", false
	}
	if in.Mode != tree.Viewing && in.Mode != tree.Editing {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("mode must be %q or %q", tree.Viewing, tree.Editing)})
		return "", false
	}
	return in.Mode, true
}

func (s *Server) handleBigLessonMode(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	mode, ok := decodeMode(w, r)
	if !ok {
		return
	}
	if mode == tree.Editing {
		p.BeginEdit()
	} else {
		p.CancelEdit()
	}
	writeJSON(w, http.StatusOK, p.View())
}

func (s *Server) handleLessonMode(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	sub, ok := s.subLessonPanel(w, r, sess)
	if !ok {
		return
	}
	mode, ok := decodeMode(w, r)
	if !ok {
		return
	}
	if mode == tree.Editing {
		sub.BeginEdit()
	} else {
		sub.CancelEdit()
	}
	writeJSON(w, http.StatusOK, sub.View())
}

type bigLessonRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateBigLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	t, ok := s.subjectTree(w, r, sess)
	if !ok {
		return
	}
	var in bigLessonRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := t.CreateBigLesson(r.Context(), in.Title, in.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.View())
}

func (s *Server) handleRenameBigLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	var in bigLessonRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := p.Rename(r.Context(), in.Title, in.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.View())
}

func (s *Server) handleDeleteBigLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	if err := p.Delete(confirmed(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	var in lms.LessonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := p.AddSubLesson(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.View())
}

func (s *Server) handleUpdateLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	sub, ok := s.subLessonPanel(w, r, sess)
	if !ok {
		return
	}
	var in lms.LessonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := sub.Update(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub.View())
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	sub, ok := s.subLessonPanel(w, r, sess)
	if !ok {
		return
	}
	if err := sub.Delete(confirmed(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	if err := p.Attachments().Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Attachments().Files())
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("file is required: %v", err)})
		return
	}
	defer file.Close()

	if err := p.Attachments().Upload(r.Context(), header.Filename, file); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.Attachments().Files())
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	p, ok := s.bigLessonPanel(w, r, sess)
	if !ok {
		return
	}
	aid, ok := pathID(w, r, "aid")
	if !ok {
		return
	}
	if err := p.Attachments().Delete(confirmed(r), aid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bankRequest struct {
	QuizIDs   []int64    `json:"quiz_ids"`
	SubjectID int64      `json:"subject_id,omitempty"`
	Question  quiz.Draft `json:"question"`
}

func (s *Server) handleBankSubmit(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	var in bankRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	question, err := sess.bank(ctx, in.SubjectID).Submit(ctx, in.QuizIDs, in.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

// handleBankImport reads a workbook or YAML document from the body. The
// format comes from ?format= or, failing that, the Content-Type.
func (s *Server) handleBankImport(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	ctx := r.Context()
	q := r.URL.Query()
	subjectID, _ := strconv.ParseInt(q.Get("subject_id"), 10, 64)
	bank := sess.bank(ctx, subjectID)
	quizIDs := queryIDs(r, "quiz_id")
	body := http.MaxBytesReader(w, r.Body, maxBody)

	format := q.Get("format")
	if format == "" {
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(ct, "spreadsheetml"):
			format = "xlsx"
		case strings.Contains(ct, "yaml"):
			format = "yaml"
		}
	}

	var (
		created []lms.Question
		err     error
	)
	switch format {
	case "xlsx":
		created, err = bank.ImportXLSX(ctx, quizIDs, body)
	case "yaml", "yml":
		created, err = bank.ImportYAML(ctx, quizIDs, body)
	default:
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: "import format must be xlsx or yaml"})
		return
	}
	if err != nil {
		if len(created) > 0 {
			writeJSON(w, statusOf(err), map[string]any{"error": err.Error(), "created": created})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": created})
}

func (s *Server) handleBankExport(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	quizID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sess.bank(r.Context(), 0).Export(r.Context(), quizID, &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz-%d.xlsx"`, quizID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("write export failed", "quiz_id", quizID, "error", err)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	writeJSON(w, http.StatusOK, sess.toasts.Active())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	if !sess.toasts.Dismiss(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "notification not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	s.hub.Serve(w, r, sess.id)
}

func (s *Server) handleListInstructors(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	instructors, err := sess.client.ListInstructors(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instructors)
}

func (s *Server) handleSubjectInstructors(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	subjectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	subject, err := sess.client.GetSubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	instructors := subject.Instructors
	if instructors == nil {
		instructors = []lms.Instructor{}
	}
	writeJSON(w, http.StatusOK, instructors)
}

// handleRemoveInstructor drops an instructor from a subject's roster after
// confirmation.
func (s *Server) handleRemoveInstructor(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	subjectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	instructorID, ok := pathID(w, r, "iid")
	if !ok {
		return
	}
	ctx := confirmed(r)
	if !confirmFromRequest.Confirm(ctx, fmt.Sprintf("Remove instructor #%d from this subject?", instructorID)) {
		writeError(w, tree.ErrDeclined)
		return
	}
	if err := sess.client.RemoveSubjectInstructor(ctx, subjectID, instructorID); err != nil {
		sess.toasts.Push(notify.KindError, "Failed to remove instructor: "+err.Error())
		writeError(w, err)
		return
	}
	activity.Record(ctx, sess.activity, activity.Event{
		SubjectID: subjectID,
		Actor:     sess.actor(ctx),
		Type:      activity.InstructorRemoved,
		Data:      map[string]any{"instructor_id": instructorID},
	})
	sess.toasts.Push(notify.KindSuccess, "Instructor removed")
	w.WriteHeader(http.StatusNoContent)
}
