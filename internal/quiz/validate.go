package quiz

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-instructor/internal/lms"
)

// ErrInvalidQuestion is matched by every ValidationError.
var ErrInvalidQuestion = errors.New("invalid question")

// Minimums for multiple-choice questions. Both question paths use them.
const (
	MinMultipleChoices = 3
	MinMultipleCorrect = 2
)

// DefaultScore is used when a draft has no score.
const DefaultScore = 1

// ValidationError describes the first rule a draft breaks.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidQuestion
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Draft is a question as typed into a form.
type Draft struct {
	Text    string           `json:"text"`
	Type    lms.QuestionType `json:"type"`
	Score   float64          `json:"score"`
	Choices []lms.Choice     `json:"choices"`
}

// Validate checks a draft against the answer-shape rules of its type and
// returns the cleaned version. Text is NFC-normalized and trimmed.
//
//   - single choice: at least two choices, exactly one correct
//   - true/false: the two choices True and False, exactly one correct
//   - multiple choice: at least MinMultipleChoices choices, at least
//     MinMultipleCorrect correct
//   - fill in the blank: at least one accepted answer, all correct,
//     exact duplicates dropped
//   - essay: no choices
func Validate(d Draft) (Draft, error) {
	out := Draft{
		Text:  clean(d.Text),
		Type:  d.Type,
		Score: d.Score,
	}
	if out.Text == "" {
		return Draft{}, invalid("text", "question text is required")
	}
	if !out.Type.Valid() {
		return Draft{}, invalid("type", "unknown question type %q", d.Type)
	}
	if out.Score < 0 {
		return Draft{}, invalid("score", "score must not be negative")
	}
	if out.Score == 0 {
		out.Score = DefaultScore
	}

	choices := make([]lms.Choice, 0, len(d.Choices))
	for i, c := range d.Choices {
		text := clean(c.Text)
		if text == "" {
			return Draft{}, invalid("choices", "choice %d is empty", i+1)
		}
		choices = append(choices, lms.Choice{Text: text, IsCorrect: c.IsCorrect})
	}

	switch out.Type {
	case lms.QuestionSingleChoice:
		if len(choices) < 2 {
			return Draft{}, invalid("choices", "single choice needs at least 2 choices")
		}
		if n := countCorrect(choices); n != 1 {
			return Draft{}, invalid("choices", "single choice needs exactly 1 correct choice, got %d", n)
		}
	case lms.QuestionTrueFalse:
		if len(choices) == 0 {
			choices = []lms.Choice{{Text: "True"}, {Text: "False"}}
		}
		if len(choices) != 2 {
			return Draft{}, invalid("choices", "true/false needs exactly 2 choices")
		}
		if n := countCorrect(choices); n != 1 {
			return Draft{}, invalid("choices", "true/false needs exactly 1 correct choice, got %d", n)
		}
	case lms.QuestionMultipleChoice:
		if len(choices) < MinMultipleChoices {
			return Draft{}, invalid("choices", "multiple choice needs at least %d choices", MinMultipleChoices)
		}
		if n := countCorrect(choices); n < MinMultipleCorrect {
			return Draft{}, invalid("choices", "multiple choice needs at least %d correct choices, got %d", MinMultipleCorrect, n)
		}
	case lms.QuestionFillInBlank:
		seen := make(map[string]bool, len(choices))
		answers := choices[:0]
		for _, c := range choices {
			if seen[c.Text] {
				continue
			}
			seen[c.Text] = true
			answers = append(answers, lms.Choice{Text: c.Text, IsCorrect: true})
		}
		choices = answers
		if len(choices) == 0 {
			return Draft{}, invalid("choices", "fill in the blank needs at least 1 accepted answer")
		}
	case lms.QuestionEssay:
		if len(choices) != 0 {
			return Draft{}, invalid("choices", "essay questions take no choices")
		}
		choices = nil
	}

	out.Choices = choices
	return out, nil
}

// Input turns a validated draft into a create request for quizIDs.
func (d Draft) Input(quizIDs ...int64) lms.QuestionInput {
	return lms.QuestionInput{
		Text:    d.Text,
		Type:    d.Type,
		Score:   d.Score,
		Choices: d.Choices,
		QuizIDs: quizIDs,
	}
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func countCorrect(choices []lms.Choice) int {
	n := 0
	for _, c := range choices {
		if c.IsCorrect {
			n++
		}
	}
	return n
}
