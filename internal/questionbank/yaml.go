package questionbank

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// documentSchema is the shape of a YAML question file.
const documentSchema = `{
  "type": "object",
  "required": ["questions"],
  "additionalProperties": false,
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["text", "type"],
        "additionalProperties": false,
        "properties": {
          "text": {"type": "string", "minLength": 1},
          "type": {"enum": ["multiple_choice", "single_choice", "true_false", "fill_in_blank", "essay"]},
          "score": {"type": "number", "minimum": 0},
          "choices": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["text"],
              "additionalProperties": false,
              "properties": {
                "text": {"type": "string"},
                "correct": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

var schema = mustSchema(documentSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("question document schema: %v", err))
	}
	return sch
}

type document struct {
	Questions []yamlQuestion `yaml:"questions"`
}

type yamlQuestion struct {
	Text    string       `yaml:"text"`
	Type    string       `yaml:"type"`
	Score   float64      `yaml:"score"`
	Choices []yamlChoice `yaml:"choices"`
}

type yamlChoice struct {
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// ParseYAML reads drafts from a YAML document such as
//
//	questions:
//	  - text: Capital of France?
//	    type: fill_in_blank
//	    choices:
//	      - text: Paris
//
// The document is checked against a JSON schema first. Drafts are not
// validated.
func ParseYAML(r io.Reader) ([]quiz.Draft, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("check document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	drafts := make([]quiz.Draft, 0, len(doc.Questions))
	for _, q := range doc.Questions {
		d := quiz.Draft{Text: q.Text, Type: lms.QuestionType(q.Type), Score: q.Score}
		for _, c := range q.Choices {
			d.Choices = append(d.Choices, lms.Choice{Text: c.Text, IsCorrect: c.Correct})
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// ImportYAML parses a YAML document and imports its questions into quizIDs.
func (b *Bank) ImportYAML(ctx context.Context, quizIDs []int64, r io.Reader) ([]lms.Question, error) {
	drafts, err := ParseYAML(r)
	if err != nil {
		return nil, err
	}
	return b.Import(ctx, quizIDs, drafts)
}
