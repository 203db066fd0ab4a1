// Package progress awards XP for saved quiz attempts and keeps the daily
// study streak.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-study/internal/replication"
)

const (
	XPPerCorrect    = 10
	CompletionBonus = 5

	dayLayout   = "2006-01-02"
	syncTimeout = 10 * time.Second
)

// Award is the outcome of one saved attempt.
type Award struct {
	Amount  int     `json:"amount"`
	Reason  string  `json:"reason"`
	Profile Profile `json:"profile"`
}

// Tracker updates the profile and forwards every change to the sink
// without waiting for it.
type Tracker struct {
	store ProfileStore
	sink  replication.Sink
	now   func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker. A nil sink discards replication.
func NewTracker(store ProfileStore, sink replication.Sink, opts ...Option) *Tracker {
	if sink == nil {
		sink = replication.NopSink{}
	}
	t := &Tracker{store: store, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// XPFor returns the XP earned for score correct answers.
func XPFor(score int) int {
	if score < 0 {
		score = 0
	}
	return XPPerCorrect*score + CompletionBonus
}

// RecordQuiz awards XP for a saved attempt on subject/topic and advances
// the streak.
func (t *Tracker) RecordQuiz(ctx context.Context, subject, topic string, score int) (Award, error) {
	amount := XPFor(score)
	reason := fmt.Sprintf("quiz:%s/%s", subject, topic)

	t.mu.Lock()
	p, err := t.store.Load(ctx)
	if err != nil {
		t.mu.Unlock()
		return Award{}, err
	}
	today := t.now().Format(dayLayout)
	p.TotalXP += int64(amount)
	p.Streak = nextStreak(p.LastDay, today, p.Streak)
	p.LastDay = today
	if err := t.store.Save(ctx, p); err != nil {
		t.mu.Unlock()
		return Award{}, err
	}
	t.mu.Unlock()

	slog.Info("xp awarded", "amount", amount, "reason", reason, "total_xp", p.TotalXP, "streak", p.Streak)
	t.replicate(p, amount, reason)
	return Award{Amount: amount, Reason: reason, Profile: p}, nil
}

// Profile returns the stored profile. A streak whose last day is older
// than yesterday is reported as 0.
func (t *Tracker) Profile(ctx context.Context) (Profile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.store.Load(ctx)
	if err != nil {
		return Profile{}, err
	}
	if p.LastDay != "" && daysBetween(p.LastDay, t.now().Format(dayLayout)) > 1 {
		p.Streak = 0
	}
	return p, nil
}

// Wait blocks until in-flight replication calls finish or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) replicate(p Profile, amount int, reason string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		if err := t.sink.UpdateProfile(ctx, p.TotalXP, p.Streak); err != nil {
			slog.Warn("profile replication failed", "error", err)
		}
		if err := t.sink.AppendXPLog(ctx, amount, reason); err != nil {
			slog.Warn("xp log replication failed", "reason", reason, "error", err)
		}
	}()
}

// nextStreak keeps the streak on the same day, extends it on the next day
// and restarts it at 1 after a gap.
func nextStreak(lastDay, today string, streak int) int {
	if lastDay == "" {
		return 1
	}
	switch daysBetween(lastDay, today) {
	case 0:
		if streak < 1 {
			return 1
		}
		return streak
	case 1:
		return streak + 1
	default:
		return 1
	}
}

// daysBetween counts calendar days from a to b. Unparseable input counts
// as a gap.
func daysBetween(a, b string) int {
	da, err := time.Parse(dayLayout, a)
	if err != nil {
		return 2
	}
	db, err := time.Parse(dayLayout, b)
	if err != nil {
		return 2
	}
	return int(db.Sub(da).Hours() / 24)
}
