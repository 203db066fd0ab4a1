// Package export writes the saved quiz history as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
)

const (
	AttemptsSheet = "Attempts"
	AnswersSheet  = "Answers"

	// ContentType is the MIME type of the workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	attemptHeader = []any{"Subject", "Topic", "Attempt", "Taken", "Score", "Total", "Percent"}
	answerHeader  = []any{"Attempt", "#", "Question", "Your answer", "Correct answer", "Result"}
)

// WriteAttemptsXLSX writes one row per saved attempt of every quiz topic,
// and one row per reviewed question on a second sheet. Topics without
// attempts are skipped.
func WriteAttemptsXLSX(w io.Writer, topics []content.Topic) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", AttemptsSheet); err != nil {
		return fmt.Errorf("naming attempts sheet: %w", err)
	}
	if _, err := f.NewSheet(AnswersSheet); err != nil {
		return fmt.Errorf("creating answers sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := writeHeader(f, AttemptsSheet, attemptHeader, bold); err != nil {
		return err
	}
	if err := writeHeader(f, AnswersSheet, answerHeader, bold); err != nil {
		return err
	}

	attemptRow, answerRow := 2, 2
	for _, t := range topics {
		for _, a := range t.Attempts {
			row := []any{
				t.ParentSubject,
				t.Name,
				a.ID,
				a.Timestamp.Local().Format(time.DateTime),
				a.Score,
				a.TotalQuestions,
				percent(a.Score, a.TotalQuestions),
			}
			if err := setRow(f, AttemptsSheet, attemptRow, row); err != nil {
				return err
			}
			attemptRow++

			for i, item := range codec.UnpackAttemptReview(a.SummaryData) {
				row := []any{a.ID, i + 1, item.Question, answerText(item, item.UserIndex), answerText(item, item.CorrectIndex), verdict(item)}
				if err := setRow(f, AnswersSheet, answerRow, row); err != nil {
					return err
				}
				answerRow++
			}
		}
	}

	if err := f.SetColWidth(AttemptsSheet, "A", "B", 24); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(AnswersSheet, "C", "E", 40); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func percent(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score*1000/total) / 10
}

func answerText(item codec.ReviewItem, idx int) string {
	if idx < 0 || idx >= codec.AnswerCount {
		return ""
	}
	return item.Answers[idx]
}

func verdict(item codec.ReviewItem) string {
	switch {
	case !item.Answered():
		return "skipped"
	case item.IsCorrect():
		return "correct"
	default:
		return "wrong"
	}
}
