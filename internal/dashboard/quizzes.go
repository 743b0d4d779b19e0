package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
	"github.com/p-n-ai/pai-instructor/internal/tree"
)

// quizTarget is the editor behind one {kind}/{ownerID} path.
type quizTarget struct {
	owner     quiz.Owner
	editor    *quiz.Editor
	subjectID int64
	// subject is set for pre and post tests, as fetched for this request.
	subject *lms.Subject
}

// quizState is the response of every quiz editor route.
type quizState struct {
	Owner string `json:"owner"`
	tree.QuizView
}

func newQuizState(target *quizTarget) quizState {
	return quizState{Owner: target.owner.String(), QuizView: tree.QuizViewOf(target.editor)}
}

// resolveQuiz finds the editor of the owner in the path. Lesson owners live
// in the tree of subjectID, or of ?subject_id= when subjectID is 0. Subject
// tests use the session's editor for that test.
func (s *Server) resolveQuiz(w http.ResponseWriter, r *http.Request, sess *session, subjectID int64, resync bool) (*quizTarget, bool) {
	ownerID, ok := pathID(w, r, "ownerID")
	if !ok {
		return nil, false
	}
	owner, err := quiz.ParseOwner(r.PathValue("kind"), ownerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return nil, false
	}

	ctx := r.Context()
	switch owner.Kind {
	case quiz.OwnerPreTest, quiz.OwnerPostTest:
		editor, subject, err := sess.testEditor(ctx, owner, resync)
		if err != nil {
			writeError(w, err)
			return nil, false
		}
		return &quizTarget{owner: owner, editor: editor, subjectID: subject.ID, subject: subject}, true
	}

	if subjectID <= 0 {
		subjectID, _ = strconv.ParseInt(r.URL.Query().Get("subject_id"), 10, 64)
	}
	if subjectID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "subject_id is required"})
		return nil, false
	}
	t, err := sess.tree(ctx, subjectID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	editor := findEditor(t, owner)
	if editor == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("%s not found in subject %d", owner, subjectID)})
		return nil, false
	}
	return &quizTarget{owner: owner, editor: editor, subjectID: subjectID}, true
}

func findEditor(t *tree.Tree, owner quiz.Owner) *quiz.Editor {
	for _, p := range t.Panels() {
		if owner.Kind == quiz.OwnerBigLesson && p.ID() == owner.ID {
			return p.Quiz()
		}
		if owner.Kind == quiz.OwnerSubLesson {
			if sub, ok := p.SubLesson(owner.ID); ok {
				return sub.Quiz()
			}
		}
	}
	return nil
}

// linkTest points the subject at the test's current quiz when it does not
// already. Lesson quizzes are linked by the backend on creation.
func (s *Server) linkTest(ctx context.Context, sess *session, target *quizTarget, failure string) error {
	if target.subject == nil {
		return nil
	}
	quizID, ok := target.editor.QuizID()
	if !ok {
		return nil
	}
	linked, _ := testQuiz(target.subject, target.owner.Kind)
	if linked != nil && *linked == quizID {
		return nil
	}
	return setTest(ctx, sess, target, quizID, failure)
}

// setTest stores quizID as the subject's test. Zero unlinks it.
func setTest(ctx context.Context, sess *session, target *quizTarget, quizID int64, failure string) error {
	update := lms.SubjectUpdate{PreTestID: &quizID}
	if target.owner.Kind == quiz.OwnerPostTest {
		update = lms.SubjectUpdate{PostTestID: &quizID}
	}
	if _, err := sess.client.UpdateSubject(ctx, target.subject.ID, update); err != nil {
		sess.toasts.Push(notify.KindError, failure)
		return fmt.Errorf("link %s: %w", target.owner, err)
	}
	return nil
}

// handleGetQuiz loads the owner's questions again, as on opening the quiz
// section.
func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, true)
	if !ok {
		return
	}
	if err := target.editor.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizState(target))
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, false)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := target.editor.CreateQuiz(ctx); err != nil {
		writeError(w, err)
		return
	}
	if err := s.linkTest(ctx, sess, target, "Quiz created but the test could not be linked to the subject"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuizState(target))
}

type selectQuizRequest struct {
	QuizID int64 `json:"quiz_id"`
}

func (s *Server) handleSelectQuiz(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, false)
	if !ok {
		return
	}
	var in selectQuizRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.QuizID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "quiz_id is required"})
		return
	}
	ctx := r.Context()
	if err := target.editor.SelectQuiz(ctx, in.QuizID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.linkTest(ctx, sess, target, "Quiz selected but the test could not be linked to the subject"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizState(target))
}

// handleDetachQuiz forgets the owner's quiz. With ?delete=true the quiz is
// also deleted on the backend, which needs ?confirm=true.
func (s *Server) handleDetachQuiz(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, false)
	if !ok {
		return
	}
	remove, _ := strconv.ParseBool(r.URL.Query().Get("delete"))
	quizID, attached := target.editor.QuizID()
	if remove && attached {
		ctx := confirmed(r)
		if !confirmFromRequest.Confirm(ctx, fmt.Sprintf("Delete quiz #%d and all of its questions?", quizID)) {
			writeError(w, tree.ErrDeclined)
			return
		}
		if err := sess.client.DeleteQuiz(ctx, quizID); err != nil {
			sess.toasts.Push(notify.KindError, "Failed to delete quiz: "+err.Error())
			writeError(w, err)
			return
		}
		if target.subject != nil {
			if err := setTest(ctx, sess, target, 0, "Quiz deleted but the subject still points at it"); err != nil {
				writeError(w, err)
				return
			}
		}
		activity.Record(ctx, sess.activity, activity.Event{
			SubjectID: target.subjectID,
			Actor:     sess.actor(ctx),
			Type:      activity.QuizDeleted,
			Data:      map[string]any{"quiz_id": quizID, "owner": target.owner.String()},
		})
		sess.toasts.Push(notify.KindSuccess, "Quiz deleted")
	}
	target.editor.DetachQuiz()
	writeJSON(w, http.StatusOK, newQuizState(target))
}

// handleQuizPicker lists existing quizzes to attach, ?page= and ?search=.
func (s *Server) handleQuizPicker(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, false)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	result, err := target.editor.ListQuizzes(r.Context(), page, q.Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type questionRequest struct {
	SubjectID int64      `json:"subject_id"`
	Question  quiz.Draft `json:"question"`
}

type questionResponse struct {
	QuizID   int64         `json:"quiz_id"`
	Question *lms.Question `json:"question"`
}

// handleAddQuestion adds a question to the quiz of a big lesson, sub-lesson
// or subject test, creating that quiz when there is none.
func (s *Server) handleAddQuestion(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	var in questionRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	target, ok := s.resolveQuiz(w, r, sess, in.SubjectID, false)
	if !ok {
		return
	}

	ctx := r.Context()
	question, err := target.editor.AddQuestion(ctx, in.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.linkTest(ctx, sess, target, "Question added but the test could not be linked to the subject"); err != nil {
		writeError(w, err)
		return
	}
	quizID, _ := target.editor.QuizID()
	writeJSON(w, http.StatusCreated, questionResponse{QuizID: quizID, Question: question})
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request, sess *session, _ string) {
	target, ok := s.resolveQuiz(w, r, sess, 0, false)
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "qid")
	if !ok {
		return
	}
	if err := target.editor.DeleteQuestion(r.Context(), questionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizState(target))
}
