package generate

import (
	"fmt"

	"github.com/p-n-ai/pai-study/internal/content"
)

const systemPrompt = `You write study material for students. Be accurate and concise.`

func userPrompt(topic string, mt content.MaterialType, count int, difficulty string) string {
	switch mt {
	case content.MaterialQuiz:
		return fmt.Sprintf(`Write %d %s multiple-choice questions about %q.
Reply with one JSON object and nothing else, in exactly this shape:
{"questions": [{"questionText": "...", "answers": ["...", "...", "...", "..."], "correctAnswerIndex": 0, "hint": "..."}]}
Every question has exactly four answers. correctAnswerIndex is 0 to 3. The hint explains the correct answer in one sentence. Do not use the "|" character in any text.`,
			count, difficulty, topic)
	case content.MaterialFlashcards:
		return fmt.Sprintf(`Write %d %s flashcards about %q.
Reply with one card per line in the form term|definition and nothing else.
Do not use "|" inside a term or definition.`,
			count, difficulty, topic)
	case content.MaterialCheatsheet:
		return fmt.Sprintf(`Write a one-page %s cheat sheet about %q in markdown.
Use short headings, bullet points and tables. Include key formulas or definitions.`,
			difficulty, topic)
	default:
		return fmt.Sprintf(`Write %s study notes about %q in markdown.
Start with a short overview, then cover the key ideas with examples.`,
			difficulty, topic)
	}
}
