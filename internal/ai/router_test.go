package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-study/internal/ai"
)

func userMsg() ai.CompletionRequest {
	return ai.CompletionRequest{Messages: []ai.Message{{Role: "user", Content: "hi"}}}
}

func TestRouter_SingleProvider(t *testing.T) {
	router := ai.NewRouter(nil)
	router.Register("openai", ai.NewMockProvider("Hello!"))

	resp, err := router.Complete(context.Background(), userMsg())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello!")
	}
	if resp.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", resp.Provider)
	}
}

func TestRouter_Fallback(t *testing.T) {
	router := ai.NewRouter(nil)
	failing := &ai.MockProvider{Err: errors.New("rate limited")}
	router.Register("openai", failing)
	router.Register("ollama", ai.NewMockProvider("Fallback response"))

	resp, err := router.Complete(context.Background(), userMsg())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Fallback response" || resp.Provider != "ollama" {
		t.Errorf("resp = %+v, want fallback from ollama", resp)
	}
	if failing.Calls() != 1 {
		t.Errorf("failing provider calls = %d, want 1", failing.Calls())
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	router := ai.NewRouter(nil)
	first := errors.New("fail 1")
	router.Register("openai", &ai.MockProvider{Err: first})
	router.Register("ollama", &ai.MockProvider{Err: errors.New("fail 2")})

	_, err := router.Complete(context.Background(), userMsg())
	if err == nil {
		t.Fatal("Complete() should return error when all providers fail")
	}
	if !errors.Is(err, first) {
		t.Errorf("error %v should wrap each provider error", err)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter(nil)

	if router.HasProvider() {
		t.Error("HasProvider() should be false")
	}
	if _, err := router.Complete(context.Background(), userMsg()); !errors.Is(err, ai.ErrNoProvider) {
		t.Errorf("Complete() error = %v, want ErrNoProvider", err)
	}
	if err := router.HealthCheck(context.Background()); !errors.Is(err, ai.ErrNoProvider) {
		t.Errorf("HealthCheck() error = %v, want ErrNoProvider", err)
	}
}

func TestRouter_RegisterReplaceKeepsOrder(t *testing.T) {
	router := ai.NewRouter(nil)
	router.Register("a", ai.NewMockProvider("a1"))
	router.Register("b", ai.NewMockProvider("b"))
	router.Register("a", ai.NewMockProvider("a2"))

	got := router.Providers()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Providers() = %v, want [a b]", got)
	}
	resp, _ := router.Complete(context.Background(), userMsg())
	if resp.Content != "a2" {
		t.Errorf("Content = %q, want a2", resp.Content)
	}
}

func TestRouter_Budget(t *testing.T) {
	budget := ai.NewMemoryBudget(30)
	router := ai.NewRouter(budget)
	// 10 input + 10 output tokens per call.
	router.Register("mock", ai.NewMockProvider("0123456789"))

	for i := 0; i < 2; i++ {
		if _, err := router.Complete(context.Background(), userMsg()); err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	_, err := router.Complete(context.Background(), userMsg())
	if !errors.Is(err, ai.ErrBudgetExceeded) {
		t.Errorf("third call error = %v, want ErrBudgetExceeded", err)
	}

	used, limit, _ := budget.Usage(context.Background())
	if used != 40 || limit != 30 {
		t.Errorf("Usage() = %d/%d, want 40/30", used, limit)
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	router := ai.NewRouter(nil)
	router.Register("down", &ai.MockProvider{Err: errors.New("down")})
	router.Register("up", ai.NewMockProvider("ok"))

	if err := router.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil when one provider is up", err)
	}
}
