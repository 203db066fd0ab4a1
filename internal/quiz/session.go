// Package quiz runs timed multiple-choice sessions and turns their results
// into attempts for the content store.
package quiz

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-study/internal/codec"
)

// SecondsPerQuestion is the default time allowance per question.
const SecondsPerQuestion = 30

var (
	ErrEmptySession    = errors.New("quiz has no questions")
	ErrAlreadyStarted  = errors.New("quiz already started")
	ErrNotInProgress   = errors.New("quiz is not in progress")
	ErrNotFinished     = errors.New("quiz is not finished")
	ErrInvalidAnswer   = errors.New("answer index out of range")
	ErrSessionNotFound = errors.New("quiz session not found")
)

// State is the lifecycle position of a Session.
type State int

const (
	NotStarted State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state as its string form in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DefaultSeconds is the time allowed for n questions when no fixed total
// is configured.
func DefaultSeconds(n int) int {
	return SecondsPerQuestion * n
}

// Question is a codec question plus the per-session answer state.
type Question struct {
	codec.Question
	UserIndex int  `json:"userAnswerIndex"`
	Flagged   bool `json:"isFlagged"`
	HintShown bool `json:"hintShown"`
}

// Answered reports whether an answer has been selected.
func (q Question) Answered() bool {
	return q.UserIndex != codec.Unanswered
}

// Ticker delivers the one-second countdown ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Option configures a Session.
type Option func(*Session)

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(s *Session) {
		s.newTicker = fn
	}
}

// WithOnFinish registers a callback run once per finish, outside the
// session lock, on whichever goroutine caused the finish.
func WithOnFinish(fn func(FinalResult)) Option {
	return func(s *Session) {
		s.onFinish = fn
	}
}

// Session is one quiz run. All methods are safe for concurrent use; the
// countdown runs on its own goroutine while InProgress.
type Session struct {
	mu        sync.Mutex
	state     State
	questions []Question
	current   int
	remaining int
	total     int
	result    FinalResult
	gen       uint64
	stop      chan struct{}
	done      chan struct{}

	newTicker func(time.Duration) Ticker
	onFinish  func(FinalResult)
}

// NewSession creates a session in the NotStarted state.
func NewSession(opts ...Option) *Session {
	s := &Session{
		newTicker: NewTicker,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the countdown over questions. totalSeconds <= 0 allows
// SecondsPerQuestion for each question. An empty question list is
// rejected and leaves the session NotStarted.
func (s *Session) Start(questions []codec.Question, totalSeconds int) error {
	if len(questions) == 0 {
		return ErrEmptySession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return ErrAlreadyStarted
	}

	if totalSeconds <= 0 {
		totalSeconds = DefaultSeconds(len(questions))
	}
	s.questions = make([]Question, len(questions))
	for i, q := range questions {
		s.questions[i] = Question{Question: q, UserIndex: codec.Unanswered}
	}
	s.total = totalSeconds
	s.beginLocked()

	slog.Debug("quiz started", "questions", len(questions), "seconds", totalSeconds)
	return nil
}

// SelectAnswer records index for the current question, replacing any
// earlier choice. It does not advance.
func (s *Session) SelectAnswer(index int) error {
	if index < 0 || index >= codec.AnswerCount {
		return ErrInvalidAnswer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	s.questions[s.current].UserIndex = index
	return nil
}

// ToggleFlag flips the advisory flag on the current question.
func (s *Session) ToggleFlag() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	q := &s.questions[s.current]
	q.Flagged = !q.Flagged
	return nil
}

// Hint returns the current question's hint and records that it was shown.
func (s *Session) Hint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return "", ErrNotInProgress
	}
	q := &s.questions[s.current]
	q.HintShown = true
	return q.Hint, nil
}

// Next moves to the following question. Called on the last question it
// finishes the session instead.
func (s *Session) Next() error {
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if s.current < len(s.questions)-1 {
		s.current++
		s.mu.Unlock()
		return nil
	}
	res := s.finishLocked()
	s.mu.Unlock()

	s.notify(res)
	return nil
}

// Previous moves back one question, stopping at the first.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	if s.current > 0 {
		s.current--
	}
	return nil
}

// Finish stops the countdown and scores the session.
func (s *Session) Finish() (FinalResult, error) {
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return FinalResult{}, ErrNotInProgress
	}
	res := s.finishLocked()
	s.mu.Unlock()

	s.notify(res)
	return res, nil
}

// Retake clears every answer and flag and restarts the countdown from the
// full allowance. Only valid once Finished.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Finished {
		return ErrNotFinished
	}
	for i := range s.questions {
		s.questions[i].UserIndex = codec.Unanswered
		s.questions[i].Flagged = false
		s.questions[i].HintShown = false
	}
	s.result = FinalResult{}
	s.done = make(chan struct{})
	s.beginLocked()
	return nil
}

// Abandon stops a running countdown without scoring. The session returns
// to NotStarted and produces no result. Waiters on the previous Done
// channel are released.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case InProgress:
		close(s.stop)
		close(s.done)
	case NotStarted:
		close(s.done)
	}
	s.gen++
	s.state = NotStarted
	s.done = make(chan struct{})
	s.questions = nil
	s.current = 0
	s.remaining = 0
	s.total = 0
}

// --- Reads ---

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the question under the cursor and its index.
func (s *Session) Current() (Question, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return Question{}, 0
	}
	return s.questions[s.current], s.current
}

// Questions returns a copy of every question with its answer state.
func (s *Session) Questions() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Question(nil), s.questions...)
}

// SecondsRemaining returns the countdown value.
func (s *Session) SecondsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// TotalSeconds returns the allowance the countdown started from.
func (s *Session) TotalSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Progress is the fraction of questions answered, 0 when there are none.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return 0
	}
	answered := 0
	for _, q := range s.questions {
		if q.Answered() {
			answered++
		}
	}
	return float64(answered) / float64(len(s.questions))
}

// Result returns the score of a finished session.
func (s *Session) Result() (FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Finished {
		return FinalResult{}, ErrNotFinished
	}
	return s.result, nil
}

// Done is closed when the current run finishes or is abandoned. Retake
// and Abandon replace it.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// --- internals ---

func (s *Session) beginLocked() {
	s.state = InProgress
	s.current = 0
	s.remaining = s.total
	s.gen++
	s.stop = make(chan struct{})
	go s.countdown(s.newTicker(time.Second), s.stop, s.gen)
}

func (s *Session) countdown(t Ticker, stop <-chan struct{}, gen uint64) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !s.tick(gen) {
				return
			}
		}
	}
}

// tick decrements the countdown and reports whether it should keep running.
func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	if s.state != InProgress || s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return true
	}
	res := s.finishLocked()
	s.mu.Unlock()

	slog.Debug("quiz time expired", "score", res.Score, "total", res.Total)
	s.notify(res)
	return false
}

func (s *Session) finishLocked() FinalResult {
	close(s.stop)
	s.state = Finished
	if s.remaining < 0 {
		s.remaining = 0
	}
	s.result = score(s.questions, s.total-s.remaining)
	close(s.done)
	return s.result
}

func (s *Session) notify(res FinalResult) {
	if s.onFinish != nil {
		s.onFinish(res)
	}
}
