package tree_test

import (
	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

func fillInBlank(text string, answers ...string) quiz.Draft {
	choices := make([]lms.Choice, len(answers))
	for i, a := range answers {
		choices[i] = lms.Choice{Text: a}
	}
	return quiz.Draft{Text: text, Type: lms.QuestionFillInBlank, Choices: choices}
}
