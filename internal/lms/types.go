package lms

import "time"

// Status is the publication state of a subject, lesson, quiz or instructor.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

// Faculty is the top level of the drill-down.
type Faculty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Department belongs to a faculty.
type Department struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	FacultyID int64  `json:"faculty_id"`
}

// Course groups subjects and belongs to a department.
type Course struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code,omitempty"`
	Description  string `json:"description,omitempty"`
	DepartmentID int64  `json:"department_id"`
	SubjectCount int    `json:"subject_count,omitempty"`
}

// Instructor is a teaching account.
type Instructor struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Position     string `json:"position,omitempty"`
	DepartmentID int64  `json:"department_id,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	Status       Status `json:"status,omitempty"`
}

// Subject is the unit an instructor edits. Lessons is only populated on the
// detail endpoint.
type Subject struct {
	ID            int64        `json:"id"`
	CourseID      int64        `json:"course_id,omitempty"`
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Credit        int          `json:"credit"`
	CoverImage    string       `json:"cover_image,omitempty"`
	VideoURL      string       `json:"video_url,omitempty"`
	Status        Status       `json:"status"`
	LessonCount   int          `json:"lesson_count"`
	QuizCount     int          `json:"quiz_count"`
	Instructors   []Instructor `json:"instructors,omitempty"`
	Prerequisites []Subject    `json:"prerequisites,omitempty"`
	PreTestID     *int64       `json:"pre_test_id,omitempty"`
	PostTestID    *int64       `json:"post_test_id,omitempty"`
	PreTest       *Quiz        `json:"pre_test,omitempty"`
	PostTest      *Quiz        `json:"post_test,omitempty"`
	Order         *int         `json:"order_number,omitempty"`
	Lessons       []BigLesson  `json:"lessons,omitempty"`
}

// SubjectUpdate is the PUT body for a subject. Nil fields are left unchanged.
type SubjectUpdate struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	VideoURL      *string `json:"video_url,omitempty"`
	Status        *Status `json:"status,omitempty"`
	InstructorIDs []int64 `json:"instructor_ids,omitempty"`
	PreTestID     *int64  `json:"pre_test_id,omitempty"`
	PostTestID    *int64  `json:"post_test_id,omitempty"`
}

// BigLesson is a top-level chapter of a subject.
type BigLesson struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	SubjectID   int64    `json:"subject_id"`
	Order       *int     `json:"order_number,omitempty"`
	QuizID      *int64   `json:"quiz_id,omitempty"`
	Quiz        *Quiz    `json:"quiz,omitempty"`
	Lessons     []Lesson `json:"lessons,omitempty"`
}

// BigLessonInput is the create/update body for a big lesson.
type BigLessonInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SubjectID   int64  `json:"subject_id,omitempty"`
	Order       *int   `json:"order_number,omitempty"`
	QuizID      *int64 `json:"quiz_id,omitempty"`
}

// Lesson is a sub-lesson nested under a big lesson.
type Lesson struct {
	ID          int64        `json:"id"`
	BigLessonID int64        `json:"big_lesson_id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Content     string       `json:"content,omitempty"`
	VideoURL    string       `json:"video_url,omitempty"`
	VideoFile   string       `json:"video_file,omitempty"`
	Order       *int         `json:"order_number,omitempty"`
	Status      Status       `json:"status,omitempty"`
	QuizID      *int64       `json:"quiz_id,omitempty"`
	Quiz        *Quiz        `json:"quiz,omitempty"`
	Files       []Attachment `json:"files,omitempty"`
}

// LessonInput is the create/update body for a sub-lesson.
type LessonInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	Order       *int   `json:"order_number,omitempty"`
	Status      Status `json:"status,omitempty"`
	QuizID      *int64 `json:"quiz_id,omitempty"`
}

// Attachment is a file attached to a big lesson.
type Attachment struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type,omitempty"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// QuizOwnerType tells the backend what a new quiz belongs to.
type QuizOwnerType string

const (
	QuizOwnerSubject   QuizOwnerType = "subject"
	QuizOwnerBigLesson QuizOwnerType = "big_lesson"
	QuizOwnerLesson    QuizOwnerType = "lesson"
)

// Quiz holds a question list.
type Quiz struct {
	ID                  int64      `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Status              Status     `json:"status,omitempty"`
	PassingScoreEnabled bool       `json:"passing_score_enabled,omitempty"`
	PassingScore        float64    `json:"passing_score,omitempty"`
	Questions           []Question `json:"questions,omitempty"`
}

// QuizInput is the create body for a quiz.
type QuizInput struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status,omitempty"`
	OwnerType   QuizOwnerType `json:"quiz_type"`
	OwnerID     int64         `json:"owner_id"`
}

// QuizPage is one page of the quiz picker.
type QuizPage struct {
	Items    []Quiz `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
}

// QuestionType tags the answer shape of a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
	QuestionEssay          QuestionType = "essay"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionSingleChoice, QuestionTrueFalse, QuestionFillInBlank, QuestionEssay:
		return true
	}
	return false
}

// Choice is one answer option. For fill-in-blank questions every choice is an
// accepted answer.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is the local question shape after normalization.
type Question struct {
	ID      int64        `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Score   float64      `json:"score"`
	Choices []Choice     `json:"choices"`
}

// QuestionInput is the create body for a question.
type QuestionInput struct {
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Score   float64      `json:"score"`
	Choices []Choice     `json:"choices"`
	QuizIDs []int64      `json:"quiz_ids"`
}

// OrderOf returns the display order of a sibling: its explicit index when the
// server sent one, otherwise its 1-based position in the fetched list.
func OrderOf(order *int, index int) int {
	if order != nil {
		return *order
	}
	return index + 1
}
