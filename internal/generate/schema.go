package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-study/internal/codec"
)

// ErrInvalidQuiz is returned when generated quiz JSON does not match the
// expected shape.
var ErrInvalidQuiz = errors.New("invalid quiz JSON")

const quizSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["questionText", "answers", "correctAnswerIndex"],
        "properties": {
          "questionText": {"type": "string", "minLength": 1},
          "answers": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {"type": "string"}
          },
          "correctAnswerIndex": {"type": "integer", "minimum": 0, "maximum": 3},
          "hint": {"type": "string"}
        }
      }
    }
  }
}`

var quizSchema = mustSchema(quizSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling quiz schema: %v", err))
	}
	return s
}

type quizDocument struct {
	Questions []codec.Question `json:"questions"`
}

// ParseQuiz extracts the JSON object from a model reply, validates it and
// returns its questions. Delimiter characters inside fields are replaced
// so the questions survive packing.
func ParseQuiz(raw string) ([]codec.Question, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidQuiz)
	}

	result, err := quizSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuiz, strings.Join(msgs, "; "))
	}

	var doc quizDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}

	for i := range doc.Questions {
		q := &doc.Questions[i]
		q.Text = cleanField(q.Text)
		for j := range q.Answers {
			q.Answers[j] = cleanField(q.Answers[j])
		}
		q.Hint = cleanField(q.Hint)
		if q.Hint == "" {
			q.Hint = codec.DefaultHint
		}
	}
	return doc.Questions, nil
}

// ParseFlashcards reads `term|definition` lines from a model reply.
func ParseFlashcards(raw string) []codec.Flashcard {
	return codec.UnpackFlashcards(stripFences(raw))
}

// extractJSON returns the outermost {...} span of s after removing any
// markdown code fence.
func extractJSON(s string) string {
	s = stripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var fieldReplacer = strings.NewReplacer("|", "/", "\r\n", " ", "\n", " ", "\r", " ")

func cleanField(s string) string {
	return strings.TrimSpace(fieldReplacer.Replace(s))
}
