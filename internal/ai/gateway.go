// Package ai is the transport to external text generators. A Router tries
// registered providers in order and enforces a shared token budget.
package ai

import "context"

// TaskType is the kind of material a completion is generating.
type TaskType int

const (
	TaskQuiz TaskType = iota
	TaskFlashcards
	TaskNotes
	TaskCheatsheet
)

func (t TaskType) String() string {
	switch t {
	case TaskQuiz:
		return "quiz"
	case TaskFlashcards:
		return "flashcards"
	case TaskNotes:
		return "notes"
	case TaskCheatsheet:
		return "cheatsheet"
	default:
		return "unknown"
	}
}

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks the provider for a single JSON object when it supports it.
	JSON bool `json:"json,omitempty"`
}

// CompletionResponse is the output of a completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is implemented by every completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}
