// Package lmstest provides an in-memory LMS backend for tests.
package lmstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-instructor/internal/lms"
)

// Token is the bearer token the fake backend accepts.
const Token = "test-token"

// Server is a fake LMS backend. Seed it with the Add* methods, point an
// lms.Client at URL, then inspect Requests.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	nextID      int64
	requests    []string
	failures    map[string]int
	instructors []lms.Instructor
	faculties   []lms.Faculty
	departments []lms.Department
	courses     []lms.Course
	teaches     map[int64][]int64
	subjects    []*lms.Subject
	bigLessons  []*lms.BigLesson
	attachments map[int64][]lms.Attachment
	quizzes     []*lms.Quiz
	quizOwners  map[int64]lms.QuizInput
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		nextID:      1000,
		failures:    make(map[string]int),
		teaches:     make(map[int64][]int64),
		attachments: make(map[int64][]lms.Attachment),
		quizOwners:  make(map[int64]lms.QuizInput),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns an lms.Client authenticated against the fake.
func (s *Server) Client() *lms.Client {
	return lms.NewClient(
		lms.WithBaseURL(s.URL),
		lms.WithHTTPClient(s.Server.Client()),
		lms.WithTokenSource(lms.StaticToken(Token)),
	)
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// Fail makes every request matching method and path answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	s.failures[method+" "+path] = status
	s.mu.Unlock()
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) AddInstructor(in lms.Instructor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructors = append(s.instructors, in)
}

func (s *Server) AddFaculty(f lms.Faculty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faculties = append(s.faculties, f)
}

func (s *Server) AddDepartment(d lms.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments = append(s.departments, d)
}

// AddCourse seeds a course taught by instructorIDs.
func (s *Server) AddCourse(c lms.Course, instructorIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = append(s.courses, c)
	for _, id := range instructorIDs {
		s.teaches[id] = append(s.teaches[id], c.ID)
	}
}

func (s *Server) AddSubject(sub lms.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, &sub)
}

func (s *Server) AddBigLesson(b lms.BigLesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bigLessons = append(s.bigLessons, &b)
}

func (s *Server) AddAttachment(bigLessonID int64, a lms.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[bigLessonID] = append(s.attachments[bigLessonID], a)
}

func (s *Server) AddQuiz(q lms.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes = append(s.quizzes, &q)
}

// BigLessons returns the stored big lessons of a subject.
func (s *Server) BigLessons(subjectID int64) []lms.BigLesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bigLessonsOf(subjectID)
}

// Quiz returns a stored quiz.
func (s *Server) Quiz(id int64) (lms.Quiz, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quizzes {
		if q.ID == id {
			return *q, true
		}
	}
	return lms.Quiz{}, false
}

// QuizOwner returns the owner a quiz was created for.
func (s *Server) QuizOwner(id int64) (lms.QuizInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.quizOwners[id]
	return in, ok
}

func (s *Server) bigLessonsOf(subjectID int64) []lms.BigLesson {
	var out []lms.BigLesson
	for _, b := range s.bigLessons {
		if b.SubjectID == subjectID {
			out = append(out, *b)
		}
	}
	return out
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/accounts/instructors", func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, http.StatusOK, s.instructors)
	})

	mux.HandleFunc("GET /api/courses/faculties", func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, http.StatusOK, s.faculties)
	})
	mux.HandleFunc("GET /api/courses/faculties/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		for _, f := range s.faculties {
			if f.ID == id {
				s.reply(w, http.StatusOK, f)
				return
			}
		}
		notFound(w)
	})

	mux.HandleFunc("GET /api/courses/departments", func(w http.ResponseWriter, r *http.Request) {
		facultyID := queryID(r, "faculty_id")
		out := []lms.Department{}
		for _, d := range s.departments {
			if d.FacultyID == facultyID {
				out = append(out, d)
			}
		}
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /api/courses/departments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		for _, d := range s.departments {
			if d.ID == id {
				s.reply(w, http.StatusOK, d)
				return
			}
		}
		notFound(w)
	})

	mux.HandleFunc("GET /api/courses/courses", func(w http.ResponseWriter, r *http.Request) {
		out := []lms.Course{}
		if r.URL.Query().Has("instructor_id") {
			ids := s.teaches[queryID(r, "instructor_id")]
			for _, c := range s.courses {
				if slices.Contains(ids, c.ID) {
					out = append(out, c)
				}
			}
		} else {
			departmentID := queryID(r, "department_id")
			for _, c := range s.courses {
				if c.DepartmentID == departmentID {
					out = append(out, c)
				}
			}
		}
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /api/courses/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		for _, c := range s.courses {
			if c.ID == id {
				s.reply(w, http.StatusOK, c)
				return
			}
		}
		notFound(w)
	})

	mux.HandleFunc("GET /api/courses/subjects", func(w http.ResponseWriter, r *http.Request) {
		courseID := queryID(r, "course_id")
		out := []lms.Subject{}
		for _, sub := range s.subjects {
			if sub.CourseID == courseID {
				out = append(out, *sub)
			}
		}
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /api/courses/subjects/{id}", func(w http.ResponseWriter, r *http.Request) {
		sub := s.subject(pathID(r, "id"))
		if sub == nil {
			notFound(w)
			return
		}
		out := *sub
		out.Lessons = s.bigLessonsOf(sub.ID)
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("PUT /api/courses/subjects/{id}", func(w http.ResponseWriter, r *http.Request) {
		sub := s.subject(pathID(r, "id"))
		if sub == nil {
			notFound(w)
			return
		}
		var in lms.SubjectUpdate
		if !decode(w, r, &in) {
			return
		}
		if in.Name != nil {
			sub.Name = *in.Name
		}
		if in.Description != nil {
			sub.Description = *in.Description
		}
		if in.PreTestID != nil {
			sub.PreTestID = in.PreTestID
		}
		if in.PostTestID != nil {
			sub.PostTestID = in.PostTestID
		}
		s.reply(w, http.StatusOK, sub)
	})
	mux.HandleFunc("DELETE /api/courses/subjects/{id}/instructors/{iid}", func(w http.ResponseWriter, r *http.Request) {
		sub := s.subject(pathID(r, "id"))
		if sub == nil {
			notFound(w)
			return
		}
		iid := pathID(r, "iid")
		sub.Instructors = slices.DeleteFunc(sub.Instructors, func(in lms.Instructor) bool { return in.ID == iid })
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/big-lessons", func(w http.ResponseWriter, r *http.Request) {
		out := s.bigLessonsOf(queryID(r, "subject_id"))
		if out == nil {
			out = []lms.BigLesson{}
		}
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /api/big-lessons", func(w http.ResponseWriter, r *http.Request) {
		var in lms.BigLessonInput
		if !decode(w, r, &in) {
			return
		}
		if strings.TrimSpace(in.Title) == "" {
			s.reply(w, http.StatusBadRequest, map[string]string{"message": "title is required"})
			return
		}
		b := &lms.BigLesson{ID: s.id(), Title: in.Title, Description: in.Description, SubjectID: in.SubjectID, QuizID: in.QuizID}
		s.bigLessons = append(s.bigLessons, b)
		s.reply(w, http.StatusCreated, b)
	})
	mux.HandleFunc("PUT /api/big-lessons/{id}", func(w http.ResponseWriter, r *http.Request) {
		b := s.bigLesson(pathID(r, "id"))
		if b == nil {
			notFound(w)
			return
		}
		var in lms.BigLessonInput
		if !decode(w, r, &in) {
			return
		}
		b.Title, b.Description = in.Title, in.Description
		if in.QuizID != nil {
			b.QuizID = in.QuizID
		}
		s.reply(w, http.StatusOK, b)
	})
	mux.HandleFunc("DELETE /api/big-lessons/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		before := len(s.bigLessons)
		s.bigLessons = slices.DeleteFunc(s.bigLessons, func(b *lms.BigLesson) bool { return b.ID == id })
		if len(s.bigLessons) == before {
			notFound(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/big-lessons/{id}/lessons", func(w http.ResponseWriter, r *http.Request) {
		b := s.bigLesson(pathID(r, "id"))
		if b == nil {
			notFound(w)
			return
		}
		var in lms.LessonInput
		if !decode(w, r, &in) {
			return
		}
		l := lms.Lesson{
			ID: s.id(), BigLessonID: b.ID, Title: in.Title, Description: in.Description,
			Content: in.Content, VideoURL: in.VideoURL, Status: in.Status, QuizID: in.QuizID,
		}
		b.Lessons = append(b.Lessons, l)
		s.reply(w, http.StatusCreated, l)
	})
	mux.HandleFunc("PUT /api/big-lessons/{id}/lessons/{lid}", func(w http.ResponseWriter, r *http.Request) {
		b := s.bigLesson(pathID(r, "id"))
		if b == nil {
			notFound(w)
			return
		}
		var in lms.LessonInput
		if !decode(w, r, &in) {
			return
		}
		lid := pathID(r, "lid")
		for i := range b.Lessons {
			if b.Lessons[i].ID == lid {
				l := &b.Lessons[i]
				l.Title, l.Description, l.Content, l.VideoURL = in.Title, in.Description, in.Content, in.VideoURL
				if in.Status != "" {
					l.Status = in.Status
				}
				s.reply(w, http.StatusOK, l)
				return
			}
		}
		notFound(w)
	})
	mux.HandleFunc("DELETE /api/courses/lessons/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		for _, b := range s.bigLessons {
			before := len(b.Lessons)
			b.Lessons = slices.DeleteFunc(b.Lessons, func(l lms.Lesson) bool { return l.ID == id })
			if len(b.Lessons) != before {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		notFound(w)
	})

	mux.HandleFunc("GET /api/big-lessons/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		out := s.attachments[pathID(r, "id")]
		if out == nil {
			out = []lms.Attachment{}
		}
		s.reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /api/big-lessons/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		file, header, err := r.FormFile("file")
		if err != nil {
			s.reply(w, http.StatusBadRequest, map[string]string{"message": "file is required"})
			return
		}
		defer file.Close()
		size, _ := io.Copy(io.Discard, file)
		a := lms.Attachment{
			ID:        s.id(),
			Title:     r.FormValue("title"),
			Size:      size,
			MimeType:  header.Header.Get("Content-Type"),
			URL:       "/media/" + header.Filename,
			CreatedAt: time.Now().UTC(),
		}
		s.attachments[id] = append(s.attachments[id], a)
		s.reply(w, http.StatusCreated, a)
	})
	mux.HandleFunc("DELETE /api/big-lessons/{id}/attachments/{aid}", func(w http.ResponseWriter, r *http.Request) {
		id, aid := pathID(r, "id"), pathID(r, "aid")
		before := len(s.attachments[id])
		s.attachments[id] = slices.DeleteFunc(s.attachments[id], func(a lms.Attachment) bool { return a.ID == aid })
		if len(s.attachments[id]) == before {
			notFound(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/courses/quizzes", func(w http.ResponseWriter, r *http.Request) {
		search := strings.ToLower(r.URL.Query().Get("search"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if page < 1 {
			page = 1
		}
		if size < 1 {
			size = 10
		}
		var matched []lms.Quiz
		for _, q := range s.quizzes {
			if search == "" || strings.Contains(strings.ToLower(q.Title), search) {
				c := *q
				c.Questions = nil
				matched = append(matched, c)
			}
		}
		start := min((page-1)*size, len(matched))
		end := min(start+size, len(matched))
		items := matched[start:end]
		if items == nil {
			items = []lms.Quiz{}
		}
		// The quiz list is the one endpoint that pages instead of enveloping.
		writeJSON(w, http.StatusOK, map[string]any{"data": items, "count": len(matched)})
	})
	mux.HandleFunc("POST /api/courses/quizzes", func(w http.ResponseWriter, r *http.Request) {
		var in lms.QuizInput
		if !decode(w, r, &in) {
			return
		}
		q := &lms.Quiz{ID: s.id(), Title: in.Title, Description: in.Description, Status: in.Status}
		s.quizzes = append(s.quizzes, q)
		s.quizOwners[q.ID] = in
		s.reply(w, http.StatusCreated, q)
	})
	mux.HandleFunc("GET /api/courses/quizzes/{id}/questions", func(w http.ResponseWriter, r *http.Request) {
		q := s.quiz(pathID(r, "id"))
		if q == nil {
			notFound(w)
			return
		}
		questions := make([]map[string]any, 0, len(q.Questions))
		for _, qq := range q.Questions {
			options := make([]map[string]any, 0, len(qq.Choices))
			for _, c := range qq.Choices {
				options = append(options, map[string]any{"choice_text": c.Text, "is_correct": c.IsCorrect})
			}
			questions = append(questions, map[string]any{
				"id":            qq.ID,
				"question_text": qq.Text,
				"question_type": string(qq.Type),
				"points":        qq.Score,
				"options":       options,
			})
		}
		s.reply(w, http.StatusOK, map[string]any{
			"id":        q.ID,
			"title":     q.Title,
			"questions": questions,
		})
	})
	mux.HandleFunc("DELETE /api/courses/quizzes/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		before := len(s.quizzes)
		s.quizzes = slices.DeleteFunc(s.quizzes, func(q *lms.Quiz) bool { return q.ID == id })
		if len(s.quizzes) == before {
			notFound(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/courses/questions", func(w http.ResponseWriter, r *http.Request) {
		var in lms.QuestionInput
		if !decode(w, r, &in) {
			return
		}
		if len(in.QuizIDs) == 0 {
			s.reply(w, http.StatusBadRequest, map[string]string{"message": "quiz_ids is required"})
			return
		}
		question := lms.Question{ID: s.id(), Text: in.Text, Type: in.Type, Score: in.Score, Choices: in.Choices}
		for _, quizID := range in.QuizIDs {
			q := s.quiz(quizID)
			if q == nil {
				notFound(w)
				return
			}
			q.Questions = append(q.Questions, question)
		}
		s.reply(w, http.StatusCreated, question)
	})
	mux.HandleFunc("DELETE /api/courses/questions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r, "id")
		for _, q := range s.quizzes {
			q.Questions = slices.DeleteFunc(q.Questions, func(qq lms.Question) bool { return qq.ID == id })
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return s.middleware(mux)
}

// middleware logs the request, checks the token, applies injected failures
// and serializes access to the fake's state.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.requests = append(s.requests, r.Method+" "+r.URL.Path)

		if r.Header.Get("Authorization") != "Bearer "+Token {
			s.reply(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
			return
		}
		if status, ok := s.failures[r.Method+" "+r.URL.Path]; ok {
			s.reply(w, status, map[string]string{"message": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) subject(id int64) *lms.Subject {
	for _, sub := range s.subjects {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func (s *Server) bigLesson(id int64) *lms.BigLesson {
	for _, b := range s.bigLessons {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (s *Server) quiz(id int64) *lms.Quiz {
	for _, q := range s.quizzes {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// reply wraps successful payloads in a data envelope like the real backend.
func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	if status >= 200 && status < 300 {
		v = map[string]any{"data": v}
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"detail":"not found"}`))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid json"}`))
		return false
	}
	return true
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id
}

func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}
