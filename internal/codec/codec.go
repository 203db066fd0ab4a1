// Package codec packs quiz, review and flashcard records into the single
// delimited string a topic body is stored as, and parses them back.
//
// One record per line, fields separated by '|'. Fields are not escaped: a
// '|' or newline inside question text corrupts that line, which the parsers
// then drop. Every Unpack function is total and never returns an error.
package codec

import (
	"strconv"
	"strings"
)

const (
	fieldSep = "|"
	lineSep  = "\n"

	// DefaultHint is used when a packed question carries no hint field.
	DefaultHint = "No hint available."

	// Unanswered marks a review item the user left blank.
	Unanswered = -1

	// AnswerCount is the fixed number of choices per question.
	AnswerCount = 4
)

// Question is one multiple-choice question with exactly four answers.
type Question struct {
	Text         string              `json:"questionText"`
	Answers      [AnswerCount]string `json:"answers"`
	CorrectIndex int                 `json:"correctAnswerIndex"`
	Hint         string              `json:"hint"`
}

// ReviewItem is one question of a finished attempt together with the
// answer the user chose.
type ReviewItem struct {
	Question     string              `json:"question"`
	Answers      [AnswerCount]string `json:"answers"`
	CorrectIndex int                 `json:"correctIndex"`
	Explanation  string              `json:"explanation"`
	UserIndex    int                 `json:"userIndex"`
}

// Answered reports whether the user picked any answer.
func (r ReviewItem) Answered() bool {
	return r.UserIndex != Unanswered
}

// IsCorrect is derived, never stored.
func (r ReviewItem) IsCorrect() bool {
	return r.UserIndex == r.CorrectIndex
}

// Flashcard is a term and its definition.
type Flashcard struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// PackQuiz emits one `question|a1|a2|a3|a4|correctIndex|hint` line per question.
func PackQuiz(questions []Question) string {
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		fields := make([]string, 0, 7)
		fields = append(fields, q.Text)
		fields = append(fields, q.Answers[:]...)
		fields = append(fields, strconv.Itoa(q.CorrectIndex), q.Hint)
		lines = append(lines, strings.Join(fields, fieldSep))
	}
	return strings.Join(lines, lineSep)
}

// UnpackQuiz parses a packed quiz body. Lines with fewer than five fields
// (question plus four answers) are skipped. A missing or unusable correct
// index becomes 0; a missing hint becomes DefaultHint.
func UnpackQuiz(text string) []Question {
	var out []Question
	for _, fields := range splitLines(text) {
		if len(fields) < 1+AnswerCount {
			continue
		}
		q := Question{
			Text:         fields[0],
			CorrectIndex: parseIndex(fields, 5, 0),
			Hint:         DefaultHint,
		}
		copy(q.Answers[:], fields[1:1+AnswerCount])
		if len(fields) > 6 {
			q.Hint = fields[6]
		}
		out = append(out, q)
	}
	return out
}

// PackAttemptReview emits one
// `question|a1|a2|a3|a4|correctIndex|explanation|userIndex` line per item,
// with -1 standing for an unanswered question.
func PackAttemptReview(items []ReviewItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		fields := make([]string, 0, 8)
		fields = append(fields, it.Question)
		fields = append(fields, it.Answers[:]...)
		fields = append(fields,
			strconv.Itoa(it.CorrectIndex),
			it.Explanation,
			strconv.Itoa(it.UserIndex),
		)
		lines = append(lines, strings.Join(fields, fieldSep))
	}
	return strings.Join(lines, lineSep)
}

// UnpackAttemptReview parses a packed review summary. It is looser than
// UnpackQuiz: six fields are enough, and a missing eighth field means the
// question was left unanswered.
func UnpackAttemptReview(text string) []ReviewItem {
	var out []ReviewItem
	for _, fields := range splitLines(text) {
		if len(fields) < 6 {
			continue
		}
		it := ReviewItem{
			Question:     fields[0],
			CorrectIndex: parseIndex(fields, 5, 0),
			UserIndex:    Unanswered,
		}
		copy(it.Answers[:], fields[1:1+AnswerCount])
		if len(fields) > 6 {
			it.Explanation = fields[6]
		}
		if len(fields) > 7 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[7])); err == nil && n >= 0 && n < AnswerCount {
				it.UserIndex = n
			}
		}
		out = append(out, it)
	}
	return out
}

// PackFlashcards emits one `term|definition` line per card.
func PackFlashcards(cards []Flashcard) string {
	lines := make([]string, 0, len(cards))
	for _, c := range cards {
		lines = append(lines, c.Term+fieldSep+c.Definition)
	}
	return strings.Join(lines, lineSep)
}

// UnpackFlashcards keeps only lines with exactly two fields.
func UnpackFlashcards(text string) []Flashcard {
	var out []Flashcard
	for _, fields := range splitLines(text) {
		if len(fields) != 2 {
			continue
		}
		out = append(out, Flashcard{Term: fields[0], Definition: fields[1]})
	}
	return out
}

// splitLines splits text into non-blank lines, each already split into fields.
func splitLines(text string) [][]string {
	var out [][]string
	for _, line := range strings.Split(text, lineSep) {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.Split(line, fieldSep))
	}
	return out
}

// parseIndex reads an answer index from fields[pos]. Absent, non-numeric or
// out-of-range values yield fallback.
func parseIndex(fields []string, pos, fallback int) int {
	if len(fields) <= pos {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[pos]))
	if err != nil || n < 0 || n >= AnswerCount {
		return fallback
	}
	return n
}
