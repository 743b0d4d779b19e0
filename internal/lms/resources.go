package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

func idPath(format string, ids ...int64) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}

func withQuery(path string, key string, id int64) string {
	return path + "?" + url.Values{key: {strconv.FormatInt(id, 10)}}.Encode()
}

// ListInstructors returns every instructor, for roster selection.
func (c *Client) ListInstructors(ctx context.Context) ([]Instructor, error) {
	var out []Instructor
	if err := c.doJSON(ctx, http.MethodGet, "/api/accounts/instructors", nil, &out); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return out, nil
}

// ListFaculties returns every faculty.
func (c *Client) ListFaculties(ctx context.Context) ([]Faculty, error) {
	var out []Faculty
	if err := c.doJSON(ctx, http.MethodGet, "/api/courses/faculties", nil, &out); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return out, nil
}

// GetFaculty returns one faculty.
func (c *Client) GetFaculty(ctx context.Context, id int64) (*Faculty, error) {
	var out Faculty
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/courses/faculties/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get faculty %d: %w", id, err)
	}
	return &out, nil
}

// ListDepartments returns the departments of a faculty.
func (c *Client) ListDepartments(ctx context.Context, facultyID int64) ([]Department, error) {
	var out []Department
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/courses/departments", "faculty_id", facultyID), nil, &out); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return out, nil
}

// GetDepartment returns one department.
func (c *Client) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	var out Department
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/courses/departments/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get department %d: %w", id, err)
	}
	return &out, nil
}

// ListCourses returns the courses of a department.
func (c *Client) ListCourses(ctx context.Context, departmentID int64) ([]Course, error) {
	var out []Course
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/courses/courses", "department_id", departmentID), nil, &out); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return out, nil
}

// ListInstructorCourses returns every course the instructor teaches in.
func (c *Client) ListInstructorCourses(ctx context.Context, instructorID int64) ([]Course, error) {
	var out []Course
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/courses/courses", "instructor_id", instructorID), nil, &out); err != nil {
		return nil, fmt.Errorf("list instructor courses: %w", err)
	}
	return out, nil
}

// GetCourse returns one course.
func (c *Client) GetCourse(ctx context.Context, id int64) (*Course, error) {
	var out Course
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/courses/courses/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get course %d: %w", id, err)
	}
	return &out, nil
}

// ListSubjects returns the subjects of a course.
func (c *Client) ListSubjects(ctx context.Context, courseID int64) ([]Subject, error) {
	var out []Subject
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/courses/subjects", "course_id", courseID), nil, &out); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return out, nil
}

// GetSubject returns one subject with nested lessons and tests.
func (c *Client) GetSubject(ctx context.Context, id int64) (*Subject, error) {
	var out Subject
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/courses/subjects/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get subject %d: %w", id, err)
	}
	return &out, nil
}

// UpdateSubject updates subject fields or its instructor roster.
func (c *Client) UpdateSubject(ctx context.Context, id int64, in SubjectUpdate) (*Subject, error) {
	var out Subject
	if err := c.doJSON(ctx, http.MethodPut, idPath("/api/courses/subjects/%d", id), in, &out); err != nil {
		return nil, fmt.Errorf("update subject %d: %w", id, err)
	}
	return &out, nil
}

// RemoveSubjectInstructor drops one instructor from a subject's roster.
func (c *Client) RemoveSubjectInstructor(ctx context.Context, subjectID, instructorID int64) error {
	path := idPath("/api/courses/subjects/%d/instructors/%d", subjectID, instructorID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove instructor %d from subject %d: %w", instructorID, subjectID, err)
	}
	return nil
}

// ListBigLessons returns the big lessons of a subject with nested sub-lessons.
func (c *Client) ListBigLessons(ctx context.Context, subjectID int64) ([]BigLesson, error) {
	var out []BigLesson
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/big-lessons", "subject_id", subjectID), nil, &out); err != nil {
		return nil, fmt.Errorf("list big lessons: %w", err)
	}
	return out, nil
}

// CreateBigLesson creates a big lesson.
func (c *Client) CreateBigLesson(ctx context.Context, in BigLessonInput) (*BigLesson, error) {
	var out BigLesson
	if err := c.doJSON(ctx, http.MethodPost, "/api/big-lessons", in, &out); err != nil {
		return nil, fmt.Errorf("create big lesson: %w", err)
	}
	return &out, nil
}

// UpdateBigLesson renames or re-describes a big lesson.
func (c *Client) UpdateBigLesson(ctx context.Context, id int64, in BigLessonInput) (*BigLesson, error) {
	var out BigLesson
	if err := c.doJSON(ctx, http.MethodPut, idPath("/api/big-lessons/%d", id), in, &out); err != nil {
		return nil, fmt.Errorf("update big lesson %d: %w", id, err)
	}
	return &out, nil
}

// DeleteBigLesson deletes a big lesson and everything under it.
func (c *Client) DeleteBigLesson(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, idPath("/api/big-lessons/%d", id), nil, nil); err != nil {
		return fmt.Errorf("delete big lesson %d: %w", id, err)
	}
	return nil
}

// CreateLesson creates a sub-lesson under a big lesson.
func (c *Client) CreateLesson(ctx context.Context, bigLessonID int64, in LessonInput) (*Lesson, error) {
	var out Lesson
	if err := c.doJSON(ctx, http.MethodPost, idPath("/api/big-lessons/%d/lessons", bigLessonID), in, &out); err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return &out, nil
}

// UpdateLesson updates a sub-lesson.
func (c *Client) UpdateLesson(ctx context.Context, bigLessonID, lessonID int64, in LessonInput) (*Lesson, error) {
	var out Lesson
	path := idPath("/api/big-lessons/%d/lessons/%d", bigLessonID, lessonID)
	if err := c.doJSON(ctx, http.MethodPut, path, in, &out); err != nil {
		return nil, fmt.Errorf("update lesson %d: %w", lessonID, err)
	}
	return &out, nil
}

// DeleteLesson deletes a sub-lesson.
func (c *Client) DeleteLesson(ctx context.Context, lessonID int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, idPath("/api/courses/lessons/%d", lessonID), nil, nil); err != nil {
		return fmt.Errorf("delete lesson %d: %w", lessonID, err)
	}
	return nil
}

// ListAttachments returns the files attached to a big lesson.
func (c *Client) ListAttachments(ctx context.Context, bigLessonID int64) ([]Attachment, error) {
	var out []Attachment
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/big-lessons/%d/attachments", bigLessonID), nil, &out); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return out, nil
}

// UploadAttachment uploads one file as multipart/form-data.
func (c *Client) UploadAttachment(ctx context.Context, bigLessonID int64, filename string, r io.Reader) (*Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy attachment: %w", err)
	}
	if err := mw.WriteField("title", filename); err != nil {
		return nil, fmt.Errorf("write title field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out Attachment
	path := idPath("/api/big-lessons/%d/attachments", bigLessonID)
	if err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return &out, nil
}

// DeleteAttachment removes one file from a big lesson.
func (c *Client) DeleteAttachment(ctx context.Context, bigLessonID, attachmentID int64) error {
	path := idPath("/api/big-lessons/%d/attachments/%d", bigLessonID, attachmentID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete attachment %d: %w", attachmentID, err)
	}
	return nil
}

// ListQuizzes returns one page of existing quizzes for the quiz picker. The
// backend answers either with a page object or with {"data": [...], "total": n}.
func (c *Client) ListQuizzes(ctx context.Context, page, pageSize int, search string) (*QuizPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if search != "" {
		q.Set("search", search)
	}
	body, err := c.send(ctx, http.MethodGet, "/api/courses/quizzes?"+q.Encode(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	var raw struct {
		Items    []Quiz `json:"items"`
		Data     []Quiz `json:"data"`
		Results  []Quiz `json:"results"`
		Total    int    `json:"total"`
		Count    int    `json:"count"`
		Page     int    `json:"page"`
		PageSize int    `json:"page_size"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		var items []Quiz
		if err2 := json.Unmarshal(body, &items); err2 != nil {
			return nil, fmt.Errorf("unmarshal quiz page: %w", err)
		}
		return &QuizPage{Items: items, Page: page, PageSize: pageSize, Total: len(items)}, nil
	}

	out := &QuizPage{Page: page, PageSize: pageSize, Total: raw.Total}
	switch {
	case raw.Items != nil:
		out.Items = raw.Items
	case raw.Data != nil:
		out.Items = raw.Data
	default:
		out.Items = raw.Results
	}
	if out.Total == 0 {
		out.Total = raw.Count
	}
	if raw.Page > 0 {
		out.Page = raw.Page
	}
	if raw.PageSize > 0 {
		out.PageSize = raw.PageSize
	}
	return out, nil
}

// CreateQuiz creates a quiz owned by a subject, big lesson or lesson.
func (c *Client) CreateQuiz(ctx context.Context, in QuizInput) (*Quiz, error) {
	var out Quiz
	if err := c.doJSON(ctx, http.MethodPost, "/api/courses/quizzes", in, &out); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	return &out, nil
}

// GetQuizQuestions fetches a quiz and its questions, normalized.
func (c *Client) GetQuizQuestions(ctx context.Context, quizID int64) (*Quiz, error) {
	var raw rawQuiz
	if err := c.doJSON(ctx, http.MethodGet, idPath("/api/courses/quizzes/%d/questions", quizID), nil, &raw); err != nil {
		return nil, fmt.Errorf("get quiz %d questions: %w", quizID, err)
	}
	quiz := raw.normalize()
	if quiz.ID == 0 {
		quiz.ID = quizID
	}
	return quiz, nil
}

// DeleteQuiz deletes a quiz.
func (c *Client) DeleteQuiz(ctx context.Context, quizID int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, idPath("/api/courses/quizzes/%d", quizID), nil, nil); err != nil {
		return fmt.Errorf("delete quiz %d: %w", quizID, err)
	}
	return nil
}

// CreateQuestion creates a question attached to one or more quizzes.
func (c *Client) CreateQuestion(ctx context.Context, in QuestionInput) (*Question, error) {
	var raw rawQuestion
	if err := c.doJSON(ctx, http.MethodPost, "/api/courses/questions", in, &raw); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	q := raw.normalize()
	if q.Text == "" {
		// Some backends only echo the id.
		q.Text, q.Type, q.Score, q.Choices = in.Text, in.Type, in.Score, in.Choices
	}
	return &q, nil
}

// DeleteQuestion deletes a question.
func (c *Client) DeleteQuestion(ctx context.Context, questionID int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, idPath("/api/courses/questions/%d", questionID), nil, nil); err != nil {
		return fmt.Errorf("delete question %d: %w", questionID, err)
	}
	return nil
}
