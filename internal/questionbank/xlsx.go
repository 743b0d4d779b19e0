package questionbank

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Questions"

// Spreadsheet columns. Choices start at column E and run to the end of the
// row; Correct lists the 1-based numbers of the correct choices.
var header = []any{"Question", "Type", "Score", "Correct", "Choice 1", "Choice 2", "Choice 3", "Choice 4"}

const (
	colText = iota
	colType
	colScore
	colCorrect
	colChoices
)

// ParseXLSX reads drafts from the first worksheet of a workbook. The first
// row is a header; blank rows are skipped. Drafts are not validated.
func ParseXLSX(r io.Reader) ([]quiz.Draft, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	var drafts []quiz.Draft
	var rejected []RowError
	for i, row := range rows {
		if i == 0 || blank(row) {
			continue
		}
		d, err := parseRow(row)
		if err != nil {
			rejected = append(rejected, RowError{Row: i + 1, Err: err})
			continue
		}
		drafts = append(drafts, d)
	}
	if len(rejected) > 0 {
		return nil, &ImportError{Rows: rejected}
	}
	return drafts, nil
}

func parseRow(row []string) (quiz.Draft, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	d := quiz.Draft{
		Text: cell(colText),
		Type: lms.QuestionType(strings.ToLower(cell(colType))),
	}
	if s := cell(colScore); s != "" {
		score, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return quiz.Draft{}, fmt.Errorf("score %q is not a number", s)
		}
		d.Score = score
	}

	for i := colChoices; i < len(row); i++ {
		if text := cell(i); text != "" {
			d.Choices = append(d.Choices, lms.Choice{Text: text})
		}
	}
	if d.Type == lms.QuestionTrueFalse && len(d.Choices) == 0 {
		d.Choices = []lms.Choice{{Text: "True"}, {Text: "False"}}
	}

	for _, field := range strings.FieldsFunc(cell(colCorrect), func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(d.Choices) {
			return quiz.Draft{}, fmt.Errorf("correct choice %q is out of range", field)
		}
		d.Choices[n-1].IsCorrect = true
	}
	return d, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX writes questions in the layout ParseXLSX reads.
func WriteXLSX(w io.Writer, questions []lms.Question) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, q := range questions {
		var correct []string
		row := []any{q.Text, string(q.Type), q.Score, ""}
		for n, c := range q.Choices {
			row = append(row, c.Text)
			if c.IsCorrect {
				correct = append(correct, strconv.Itoa(n+1))
			}
		}
		row[colCorrect] = strings.Join(correct, ",")

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write question %d: %w", q.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Export writes the questions of a quiz as a workbook.
func (b *Bank) Export(ctx context.Context, quizID int64, w io.Writer) error {
	questions, err := b.Questions(ctx, quizID)
	if err != nil {
		return fmt.Errorf("export quiz %d: %w", quizID, err)
	}
	return WriteXLSX(w, questions)
}

// ImportXLSX parses a workbook and imports its questions into quizIDs.
func (b *Bank) ImportXLSX(ctx context.Context, quizIDs []int64, r io.Reader) ([]lms.Question, error) {
	drafts, err := ParseXLSX(r)
	if err != nil {
		return nil, err
	}
	return b.Import(ctx, quizIDs, drafts)
}
