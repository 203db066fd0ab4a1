package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned once cumulative usage reaches the limit.
var ErrBudgetExceeded = errors.New("AI token budget exceeded")

// Budget caps the tokens spent on generation.
type Budget interface {
	// Check returns ErrBudgetExceeded when no budget remains.
	Check(ctx context.Context) error
	// Record adds tokens to the running total.
	Record(ctx context.Context, tokens int) error
	// Usage returns tokens used so far and the limit (0 = unlimited).
	Usage(ctx context.Context) (used int64, limit int64, err error)
}

// MemoryBudget tracks usage in process memory.
type MemoryBudget struct {
	mu    sync.Mutex
	limit int64
	used  int64
}

// NewMemoryBudget creates a budget of limit tokens. limit <= 0 is unlimited.
func NewMemoryBudget(limit int64) *MemoryBudget {
	return &MemoryBudget{limit: limit}
}

func (b *MemoryBudget) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.used >= b.limit {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *MemoryBudget) Record(_ context.Context, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used += int64(tokens)
	return nil
}

func (b *MemoryBudget) Usage(_ context.Context) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used, b.limit, nil
}

// RedisBudget keeps the running total in a Redis counter so several
// processes share one budget.
type RedisBudget struct {
	client redis.Cmdable
	key    string
	limit  int64
}

// NewRedisBudget creates a budget stored under key.
func NewRedisBudget(client redis.Cmdable, key string, limit int64) *RedisBudget {
	return &RedisBudget{client: client, key: key, limit: limit}
}

func (b *RedisBudget) Check(ctx context.Context) error {
	if b.limit <= 0 {
		return nil
	}
	used, _, err := b.Usage(ctx)
	if err != nil {
		return err
	}
	if used >= b.limit {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *RedisBudget) Record(ctx context.Context, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	if err := b.client.IncrBy(ctx, b.key, int64(tokens)).Err(); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context) (int64, int64, error) {
	v, err := b.client.Get(ctx, b.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, b.limit, fmt.Errorf("reading token usage: %w", err)
	}
	used, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, b.limit, fmt.Errorf("parsing token usage %q: %w", v, err)
	}
	return used, b.limit, nil
}
