package generate_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/generate"
)

const validQuiz = `{"questions": [
  {"questionText": "What is 2+2?", "answers": ["3", "4", "5", "22"], "correctAnswerIndex": 1, "hint": "Count it out"},
  {"questionText": "Pick A|B", "answers": ["A", "B\nC", "D", "E"], "correctAnswerIndex": 0}
]}`

func TestParseQuiz(t *testing.T) {
	qs, err := generate.ParseQuiz(validQuiz)
	if err != nil {
		t.Fatalf("ParseQuiz() error = %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("len = %d, want 2", len(qs))
	}
	if qs[0].CorrectIndex != 1 || qs[0].Answers[1] != "4" || qs[0].Hint != "Count it out" {
		t.Errorf("first question = %+v", qs[0])
	}
	if qs[1].Text != "Pick A/B" || qs[1].Answers[1] != "B C" {
		t.Errorf("delimiters not cleaned: %+v", qs[1])
	}
	if qs[1].Hint != codec.DefaultHint {
		t.Errorf("missing hint = %q, want default", qs[1].Hint)
	}

	// Cleaned questions must survive the codec unchanged.
	back := codec.UnpackQuiz(codec.PackQuiz(qs))
	if len(back) != 2 || back[1] != qs[1] {
		t.Errorf("pack round trip = %+v", back)
	}
}

func TestParseQuiz_CodeFence(t *testing.T) {
	raw := "Here you go:\n```json\n" + validQuiz + "\n```"
	if _, err := generate.ParseQuiz(raw); err != nil {
		t.Errorf("ParseQuiz() with prose and fence error = %v", err)
	}
	fenced := "```json\n" + validQuiz + "\n```"
	if _, err := generate.ParseQuiz(fenced); err != nil {
		t.Errorf("ParseQuiz() with fence error = %v", err)
	}
}

func TestParseQuiz_Invalid(t *testing.T) {
	tests := map[string]string{
		"no json":        "sorry, I can't help",
		"broken json":    `{"questions": [`,
		"no questions":   `{"questions": []}`,
		"three answers":  `{"questions": [{"questionText": "Q", "answers": ["a","b","c"], "correctAnswerIndex": 0}]}`,
		"index too big":  `{"questions": [{"questionText": "Q", "answers": ["a","b","c","d"], "correctAnswerIndex": 4}]}`,
		"missing text":   `{"questions": [{"answers": ["a","b","c","d"], "correctAnswerIndex": 0}]}`,
		"string index":   `{"questions": [{"questionText": "Q", "answers": ["a","b","c","d"], "correctAnswerIndex": "1"}]}`,
		"wrong root key": `{"items": []}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := generate.ParseQuiz(raw)
			if !errors.Is(err, generate.ErrInvalidQuiz) {
				t.Errorf("ParseQuiz() error = %v, want ErrInvalidQuiz", err)
			}
		})
	}
}

func TestParseFlashcards(t *testing.T) {
	raw := "```\nCell|Basic unit of life\nnot a card\nATP|Energy currency\n```"

	cards := generate.ParseFlashcards(raw)

	if len(cards) != 2 || cards[1].Term != "ATP" {
		t.Errorf("ParseFlashcards() = %+v", cards)
	}
}
