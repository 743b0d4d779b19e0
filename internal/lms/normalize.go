package lms

import (
	"encoding/json"
	"strconv"
	"strings"
)

// rawQuiz accepts the quiz payload of GET /quizzes/:id/questions. The backend
// has shipped both a quiz object and a bare question array.
type rawQuiz struct {
	quiz      Quiz
	questions []rawQuestion
}

func (r *rawQuiz) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &r.questions)
	}
	var aux struct {
		ID                  int64         `json:"id"`
		Title               string        `json:"title"`
		Description         string        `json:"description"`
		Status              Status        `json:"status"`
		PassingScoreEnabled bool          `json:"passing_score_enabled"`
		PassingScore        flexFloat     `json:"passing_score"`
		Questions           []rawQuestion `json:"questions"`
		Quiz                *Quiz         `json:"quiz"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.quiz = Quiz{
		ID:                  aux.ID,
		Title:               aux.Title,
		Description:         aux.Description,
		Status:              aux.Status,
		PassingScoreEnabled: aux.PassingScoreEnabled,
		PassingScore:        float64(aux.PassingScore),
	}
	if aux.Quiz != nil && r.quiz.ID == 0 {
		r.quiz = *aux.Quiz
		r.quiz.Questions = nil
	}
	r.questions = aux.Questions
	return nil
}

func (r rawQuiz) normalize() *Quiz {
	quiz := r.quiz
	quiz.Questions = make([]Question, 0, len(r.questions))
	for _, q := range r.questions {
		quiz.Questions = append(quiz.Questions, q.normalize())
	}
	return &quiz
}

// rawQuestion folds the field-name variants the backend uses for questions.
type rawQuestion struct {
	ID           int64       `json:"id"`
	Text         string      `json:"text"`
	Title        string      `json:"title"`
	QuestionText string      `json:"question_text"`
	Type         string      `json:"type"`
	QuestionType string      `json:"question_type"`
	Score        *flexFloat  `json:"score"`
	Points       *flexFloat  `json:"points"`
	Choices      []rawChoice `json:"choices"`
	Options      []rawChoice `json:"options"`
}

type rawChoice struct {
	Text       string `json:"text"`
	ChoiceText string `json:"choice_text"`
	Content    string `json:"content"`
	IsCorrect  *bool  `json:"is_correct"`
	IsCorrect2 *bool  `json:"isCorrect"`
	Correct    *bool  `json:"correct"`
}

func (r rawQuestion) normalize() Question {
	q := Question{
		ID:   r.ID,
		Text: firstNonEmpty(r.Text, r.QuestionText, r.Title),
		Type: normalizeType(firstNonEmpty(r.Type, r.QuestionType)),
	}
	switch {
	case r.Score != nil:
		q.Score = float64(*r.Score)
	case r.Points != nil:
		q.Score = float64(*r.Points)
	}

	choices := r.Choices
	if choices == nil {
		choices = r.Options
	}
	q.Choices = make([]Choice, 0, len(choices))
	for _, c := range choices {
		q.Choices = append(q.Choices, c.normalize())
	}
	return q
}

func (c rawChoice) normalize() Choice {
	out := Choice{Text: firstNonEmpty(c.Text, c.ChoiceText, c.Content)}
	for _, v := range []*bool{c.IsCorrect, c.IsCorrect2, c.Correct} {
		if v != nil {
			out.IsCorrect = *v
			break
		}
	}
	return out
}

func normalizeType(s string) QuestionType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "multiple_choice", "multiplechoice", "multi_choice", "mcq":
		return QuestionMultipleChoice
	case "single_choice", "singlechoice", "single":
		return QuestionSingleChoice
	case "true_false", "truefalse", "boolean", "tf":
		return QuestionTrueFalse
	case "fill_in_blank", "fill_in_the_blank", "fillinblank", "fill_blank", "blank":
		return QuestionFillInBlank
	case "essay", "long_answer":
		return QuestionEssay
	}
	return QuestionType(key)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexFloat decodes numbers that arrive either as JSON numbers or strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
