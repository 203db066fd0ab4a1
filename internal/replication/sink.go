// Package replication forwards local changes to a best-effort remote copy.
// Nothing here is on the critical path: callers log failures and move on.
package replication

import (
	"context"
	"sync"
	"time"

	"github.com/p-n-ai/pai-study/internal/content"
)

// Sink receives topic snapshots and profile/XP deltas.
type Sink interface {
	UpsertTopic(ctx context.Context, topic content.Topic) error
	UpdateProfile(ctx context.Context, totalXP int64, streak int) error
	AppendXPLog(ctx context.Context, amount int, reason string) error
}

// NopSink discards everything. Used when no database is configured.
type NopSink struct{}

func (NopSink) UpsertTopic(context.Context, content.Topic) error { return nil }
func (NopSink) UpdateProfile(context.Context, int64, int) error  { return nil }
func (NopSink) AppendXPLog(context.Context, int, string) error   { return nil }

// XPEntry is one row of the XP log.
type XPEntry struct {
	Amount    int
	Reason    string
	CreatedAt time.Time
}

// Profile is the replicated progress summary.
type Profile struct {
	TotalXP int64
	Streak  int
}

// MemorySink keeps everything it receives, keyed like the Postgres tables.
type MemorySink struct {
	mu      sync.RWMutex
	topics  map[topicKey]content.Topic
	profile Profile
	xpLog   []XPEntry
	err     error
}

type topicKey struct {
	subject  string
	name     string
	material content.MaterialType
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{topics: make(map[topicKey]content.Topic)}
}

// FailWith makes every later call return err; nil restores normal behaviour.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySink) UpsertTopic(_ context.Context, t content.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.topics[topicKey{t.ParentSubject, t.Name, t.MaterialType}] = t
	return nil
}

func (s *MemorySink) UpdateProfile(_ context.Context, totalXP int64, streak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.profile = Profile{TotalXP: totalXP, Streak: streak}
	return nil
}

func (s *MemorySink) AppendXPLog(_ context.Context, amount int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.xpLog = append(s.xpLog, XPEntry{Amount: amount, Reason: reason, CreatedAt: time.Now()})
	return nil
}

// Topic returns a replicated topic.
func (s *MemorySink) Topic(subject, name string, mt content.MaterialType) (content.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[topicKey{subject, name, mt}]
	return t, ok
}

// TopicCount returns the number of distinct replicated topics.
func (s *MemorySink) TopicCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}

// Profile returns the last replicated profile.
func (s *MemorySink) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// XPLog returns a copy of the XP log.
func (s *MemorySink) XPLog() []XPEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]XPEntry(nil), s.xpLog...)
}
