package ai

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestMemoryBudget_Unlimited(t *testing.T) {
	b := NewMemoryBudget(0)
	ctx := context.Background()

	if err := b.Record(ctx, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := b.Check(ctx); err != nil {
		t.Errorf("Check() error = %v, want nil for unlimited budget", err)
	}
}

func TestMemoryBudget_Exceeded(t *testing.T) {
	b := NewMemoryBudget(100)
	ctx := context.Background()

	if err := b.Record(ctx, 99); err != nil {
		t.Fatal(err)
	}
	if err := b.Check(ctx); err != nil {
		t.Errorf("Check() at 99/100 error = %v", err)
	}
	_ = b.Record(ctx, 1)
	if err := b.Check(ctx); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Check() at 100/100 error = %v, want ErrBudgetExceeded", err)
	}
}

func TestMemoryBudget_NegativeTokens(t *testing.T) {
	b := NewMemoryBudget(10)
	if err := b.Record(context.Background(), -1); err == nil {
		t.Error("Record(-1) should return error")
	}
	if used, _, _ := b.Usage(context.Background()); used != 0 {
		t.Errorf("used = %d, want 0", used)
	}
}

func TestRedisBudget(t *testing.T) {
	url := os.Getenv("LEARN_TEST_CACHE_URL")
	if url == "" {
		t.Skip("LEARN_TEST_CACHE_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	key := "test:ai:budget:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	b := NewRedisBudget(client, key, 50)
	if used, limit, err := b.Usage(ctx); err != nil || used != 0 || limit != 50 {
		t.Fatalf("Usage() = %d, %d, %v", used, limit, err)
	}
	if err := b.Record(ctx, 50); err != nil {
		t.Fatal(err)
	}
	if err := b.Check(ctx); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Check() error = %v, want ErrBudgetExceeded", err)
	}
}
