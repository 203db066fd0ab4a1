package quiz

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-study/internal/codec"
)

// Entry is a live session together with the topic it quizzes.
type Entry struct {
	ID      string
	Subject string
	Topic   string
	Created time.Time
	Session *Session

	finishedAt time.Time // first sweep that saw the session finished
}

// ManagerConfig sets the time allowance of new sessions. TotalSeconds > 0
// is a fixed allowance; otherwise PerQuestion seconds per question.
//
// A finished session is kept for FinishedTTL so it can be reviewed and
// saved, then dropped. FinishedTTL <= 0 keeps finished sessions until
// Discard.
type ManagerConfig struct {
	PerQuestion  int
	TotalSeconds int
	FinishedTTL  time.Duration
	Now          func() time.Time
}

// Allowance returns the countdown length for n questions.
func (c ManagerConfig) Allowance(n int) int {
	if c.TotalSeconds > 0 {
		return c.TotalSeconds
	}
	per := c.PerQuestion
	if per <= 0 {
		per = SecondsPerQuestion
	}
	return per * n
}

// Manager keeps in-memory sessions by ID. Sessions are never persisted;
// a finished session stays until Discard or until it has been finished for
// longer than FinishedTTL.
type Manager struct {
	cfg      ManagerConfig
	opts     []Option
	now      func() time.Time
	sessions map[string]*Entry
	mu       sync.RWMutex

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates an empty registry. opts are applied to every session.
// With a positive FinishedTTL a janitor goroutine sweeps expired sessions
// until Close.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		opts:     opts,
		now:      cfg.Now,
		sessions: make(map[string]*Entry),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if cfg.FinishedTTL > 0 {
		go m.janitor(sweepInterval(cfg.FinishedTTL))
	} else {
		close(m.done)
	}
	return m
}

func sweepInterval(ttl time.Duration) time.Duration {
	d := ttl / 2
	if d > time.Minute {
		d = time.Minute
	}
	if d <= 0 {
		d = ttl
	}
	return d
}

// Start creates and starts a session over questions.
func (m *Manager) Start(subject, topic string, questions []codec.Question) (*Entry, error) {
	s := NewSession(m.opts...)
	if err := s.Start(questions, m.cfg.Allowance(len(questions))); err != nil {
		return nil, err
	}

	e := &Entry{
		ID:      uuid.NewString(),
		Subject: subject,
		Topic:   topic,
		Created: m.now(),
		Session: s,
	}

	m.mu.Lock()
	m.sessions[e.ID] = e
	m.mu.Unlock()

	slog.Info("quiz session started", "id", e.ID, "subject", subject, "topic", topic, "questions", len(questions))
	return e, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Discard stops and forgets a session. Unknown IDs are ignored.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		e.Session.Abandon()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions that have been finished for at least FinishedTTL
// and returns how many it dropped. A finished session is timed from the
// first sweep that sees it finished.
func (m *Manager) Sweep() int {
	if m.cfg.FinishedTTL <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	var expired []*Entry
	for id, e := range m.sessions {
		if e.Session.State() != Finished {
			e.finishedAt = time.Time{}
			continue
		}
		if e.finishedAt.IsZero() {
			e.finishedAt = now
		}
		if now.Sub(e.finishedAt) >= m.cfg.FinishedTTL {
			expired = append(expired, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		e.Session.Abandon()
		slog.Debug("expired finished quiz session", "id", e.ID, "subject", e.Subject, "topic", e.Topic)
	}
	return len(expired)
}

func (m *Manager) janitor(every time.Duration) {
	defer close(m.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("expired finished quiz sessions", "count", n)
			}
		}
	}
}

// Close stops the janitor and abandons every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.quit) })
	<-m.done

	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		entries = append(entries, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.Session.Abandon()
	}
}
