// Package generate asks an AI provider for new study material and turns
// the reply into something the content store can hold.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/content"
)

const (
	DefaultCount      = 5
	MaxCount          = 30
	DefaultDifficulty = "medium"
)

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

// Completer is the part of ai.Router the generator uses.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Generator builds prompts per material type and returns raw model text.
type Generator struct {
	ai        Completer
	model     string
	maxTokens int
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel pins the model name sent with every request.
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = model
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// New creates a Generator over c.
func New(c Completer, opts ...Option) *Generator {
	g := &Generator{ai: c, maxTokens: 2048}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns raw text for topic: quiz JSON for quizzes,
// `term|definition` lines for flashcards, markdown otherwise. count and
// difficulty fall back to defaults when out of range.
func (g *Generator) Generate(ctx context.Context, topic string, mt content.MaterialType, count int, difficulty string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	if !mt.Valid() {
		return "", fmt.Errorf("invalid material type %q", mt)
	}
	count = NormalizeCount(count)
	difficulty = NormalizeDifficulty(difficulty)

	req := ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(topic, mt, count, difficulty)},
		},
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: 0.7,
		Task:        taskFor(mt),
		JSON:        mt == content.MaterialQuiz,
	}

	resp, err := g.ai.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generating %s for %q: %w", strings.ToLower(string(mt)), topic, err)
	}

	slog.Info("material generated",
		"topic", topic,
		"type", string(mt),
		"count", count,
		"difficulty", difficulty,
		"provider", resp.Provider,
		"tokens", resp.TotalTokens(),
	)
	return resp.Content, nil
}

// NormalizeCount clamps count into [1, MaxCount], using DefaultCount for
// non-positive values.
func NormalizeCount(count int) int {
	switch {
	case count <= 0:
		return DefaultCount
	case count > MaxCount:
		return MaxCount
	}
	return count
}

// NormalizeDifficulty lowercases d and falls back to DefaultDifficulty.
func NormalizeDifficulty(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if !difficulties[d] {
		return DefaultDifficulty
	}
	return d
}

func taskFor(mt content.MaterialType) ai.TaskType {
	switch mt {
	case content.MaterialFlashcards:
		return ai.TaskFlashcards
	case content.MaterialNotes:
		return ai.TaskNotes
	case content.MaterialCheatsheet:
		return ai.TaskCheatsheet
	default:
		return ai.TaskQuiz
	}
}
