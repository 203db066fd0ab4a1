package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when nothing is registered.
var ErrNoProvider = errors.New("no AI provider configured")

// Router tries providers in registration order until one succeeds.
type Router struct {
	providers map[string]Provider
	order     []string
	budget    Budget
	mu        sync.RWMutex
}

// NewRouter creates an empty router. A nil budget means unlimited.
func NewRouter(budget Budget) *Router {
	return &Router{
		providers: make(map[string]Provider),
		budget:    budget,
	}
}

// Register adds a provider at the end of the fallback chain. Registering
// a name twice replaces the provider and keeps its position.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = provider
}

// Complete checks the budget, then routes req through the fallback chain
// and records the tokens the successful provider reports.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	providers := make([]Provider, len(order))
	for i, name := range order {
		providers[i] = r.providers[name]
	}
	r.mu.RUnlock()

	if len(order) == 0 {
		return CompletionResponse{}, ErrNoProvider
	}
	if r.budget != nil {
		if err := r.budget.Check(ctx); err != nil {
			return CompletionResponse{}, err
		}
	}

	var errs []error
	for i, name := range order {
		resp, err := providers[i].Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		resp.Provider = name
		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		if r.budget != nil {
			if err := r.budget.Record(ctx, resp.TotalTokens()); err != nil {
				slog.Warn("failed to record token usage", "error", err)
			}
		}
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Providers returns the registered names in fallback order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// HealthCheck reports the first provider that answers, or every failure.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return ErrNoProvider
	}
	var errs []error
	for _, name := range r.order {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
