package lms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/api/accounts/instructors" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":1,"name":"Dr. Ada"}]`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithTokenSource(StaticToken("tok-1")))
	got, err := client.ListInstructors(context.Background())
	if err != nil {
		t.Fatalf("ListInstructors() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Dr. Ada" {
		t.Errorf("ListInstructors() = %+v", got)
	}
}

func TestClient_UnwrapsDataEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"id":12,"code":"CS101","name":"Intro","credit":3,"status":"active"}}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	subject, err := client.GetSubject(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if subject.ID != 12 || subject.Code != "CS101" || subject.Status != StatusActive {
		t.Errorf("GetSubject() = %+v", subject)
	}
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantTarget error
		wantMsg    string
	}{
		{"not found", http.StatusNotFound, `{"message":"subject missing"}`, ErrNotFound, "subject missing"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad token"}`, ErrUnauthorized, "bad token"},
		{"forbidden", http.StatusForbidden, `{"detail":"nope"}`, ErrUnauthorized, "nope"},
		{"server error", http.StatusInternalServerError, `boom`, nil, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			_, err := client.GetSubject(context.Background(), 1)
			if err == nil {
				t.Fatal("GetSubject() should return error")
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if tt.wantTarget != nil && !errors.Is(err, tt.wantTarget) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantTarget)
			}
		})
	}
}

func TestClient_CreateBigLesson(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/big-lessons" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}
		var in BigLessonInput
		json.NewDecoder(r.Body).Decode(&in)
		if in.Title != "Intro" || in.SubjectID != 3 {
			t.Errorf("unexpected body: %+v", in)
		}
		json.NewEncoder(w).Encode(BigLesson{ID: 7, Title: in.Title, SubjectID: in.SubjectID})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	got, err := client.CreateBigLesson(context.Background(), BigLessonInput{Title: "Intro", SubjectID: 3})
	if err != nil {
		t.Fatalf("CreateBigLesson() error = %v", err)
	}
	if got.ID != 7 {
		t.Errorf("ID = %d, want 7", got.ID)
	}
}

func TestClient_ListBigLessons_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("subject_id") != "3" {
			t.Errorf("subject_id = %q, want 3", r.URL.Query().Get("subject_id"))
		}
		w.Write([]byte(`[{"id":1,"title":"A","lessons":[{"id":5,"title":"A.1"}]}]`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	got, err := client.ListBigLessons(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListBigLessons() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Lessons) != 1 {
		t.Errorf("ListBigLessons() = %+v", got)
	}
}

func TestClient_UploadAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "notes.pdf" || string(data) != "pdf-bytes" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		w.Write([]byte(`{"id":3,"title":"notes.pdf","size":9,"url":"/files/notes.pdf"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	got, err := client.UploadAttachment(context.Background(), 4, "notes.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("UploadAttachment() error = %v", err)
	}
	if got.ID != 3 || got.Size != 9 {
		t.Errorf("UploadAttachment() = %+v", got)
	}
}

func TestClient_GetQuizQuestions_Normalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/courses/quizzes/9/questions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": 9,
			"title": "Quiz",
			"passing_score": "60",
			"questions": [
				{"id": 1, "question_text": "2+2?", "question_type": "Single Choice", "points": "2",
				 "options": [{"choice_text": "4", "isCorrect": true}, {"choice_text": "5", "isCorrect": false}]},
				{"id": 2, "title": "Capital of France", "type": "fill-in-blank", "score": 1,
				 "choices": [{"content": "Paris", "correct": true}]}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	quiz, err := client.GetQuizQuestions(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetQuizQuestions() error = %v", err)
	}
	if quiz.PassingScore != 60 {
		t.Errorf("PassingScore = %v, want 60", quiz.PassingScore)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(quiz.Questions))
	}

	q1 := quiz.Questions[0]
	if q1.Text != "2+2?" || q1.Type != QuestionSingleChoice || q1.Score != 2 {
		t.Errorf("question 1 = %+v", q1)
	}
	if len(q1.Choices) != 2 || q1.Choices[0].Text != "4" || !q1.Choices[0].IsCorrect {
		t.Errorf("question 1 choices = %+v", q1.Choices)
	}

	q2 := quiz.Questions[1]
	if q2.Text != "Capital of France" || q2.Type != QuestionFillInBlank {
		t.Errorf("question 2 = %+v", q2)
	}
	if len(q2.Choices) != 1 || q2.Choices[0].Text != "Paris" || !q2.Choices[0].IsCorrect {
		t.Errorf("question 2 choices = %+v", q2.Choices)
	}
}

func TestClient_GetQuizQuestions_BareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":4,"text":"Essay?","type":"essay"}]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	quiz, err := client.GetQuizQuestions(context.Background(), 11)
	if err != nil {
		t.Fatalf("GetQuizQuestions() error = %v", err)
	}
	if quiz.ID != 11 {
		t.Errorf("ID = %d, want 11", quiz.ID)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Type != QuestionEssay {
		t.Errorf("Questions = %+v", quiz.Questions)
	}
}

func TestClient_ListQuizzes_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantTotal int
	}{
		{"page object", `{"items":[{"id":1},{"id":2}],"total":7,"page":2,"page_size":2}`, 2, 7},
		{"data envelope", `{"data":[{"id":1}],"count":1}`, 1, 1},
		{"bare array", `[{"id":1},{"id":2},{"id":3}]`, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("search") != "algebra" {
					t.Errorf("search = %q", r.URL.Query().Get("search"))
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			page, err := client.ListQuizzes(context.Background(), 2, 2, "algebra")
			if err != nil {
				t.Fatalf("ListQuizzes() error = %v", err)
			}
			if len(page.Items) != tt.wantCount {
				t.Errorf("len(Items) = %d, want %d", len(page.Items), tt.wantCount)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
		})
	}
}

func TestClient_CreateQuestion_EchoesInputWhenOnlyIDReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in QuestionInput
		json.NewDecoder(r.Body).Decode(&in)
		if len(in.QuizIDs) != 2 {
			t.Errorf("QuizIDs = %v, want two ids", in.QuizIDs)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":99}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	q, err := client.CreateQuestion(context.Background(), QuestionInput{
		Text:    "Is Go compiled?",
		Type:    QuestionTrueFalse,
		Score:   1,
		Choices: []Choice{{Text: "True", IsCorrect: true}, {Text: "False"}},
		QuizIDs: []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	if q.ID != 99 || q.Text != "Is Go compiled?" || len(q.Choices) != 2 {
		t.Errorf("CreateQuestion() = %+v", q)
	}
}

func TestOrderOf(t *testing.T) {
	five := 5
	if got := OrderOf(&five, 0); got != 5 {
		t.Errorf("OrderOf(5, 0) = %d, want 5", got)
	}
	if got := OrderOf(nil, 2); got != 3 {
		t.Errorf("OrderOf(nil, 2) = %d, want 3", got)
	}
}
