package quiz_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
	"github.com/p-n-ai/pai-study/internal/quiz"
)

func TestFinalResult_AttemptRoundTrip(t *testing.T) {
	s, _ := newSession(t)
	_ = s.Start(questions(3), 0)
	_ = s.SelectAnswer(0)
	_ = s.Next()
	_ = s.SelectAnswer(3)
	res, err := s.Finish()
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := res.Attempt(now)

	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("Attempt ID %q is not a uuid: %v", a.ID, err)
	}
	if !a.Timestamp.Equal(now) || a.Score != 1 || a.TotalQuestions != 3 {
		t.Errorf("attempt = %+v", a)
	}

	review := quiz.Review(a)
	if len(review) != 3 {
		t.Fatalf("Review() = %d entries, want 3", len(review))
	}
	wantUser := []int{0, 3, codec.Unanswered}
	wantCorrect := []bool{true, false, false}
	for i, r := range review {
		if r.UserIndex != wantUser[i] {
			t.Errorf("entry %d UserIndex = %d, want %d", i, r.UserIndex, wantUser[i])
		}
		if r.Correct != wantCorrect[i] {
			t.Errorf("entry %d Correct = %v, want %v", i, r.Correct, wantCorrect[i])
		}
		if r.Explanation != "hint" {
			t.Errorf("entry %d Explanation = %q, want hint", i, r.Explanation)
		}
	}
}

func TestFinalResult_AttemptIDsAreUnique(t *testing.T) {
	res := quiz.FinalResult{Score: 1, Total: 1}
	a, b := res.Attempt(time.Now()), res.Attempt(time.Now())
	if a.ID == b.ID {
		t.Error("two attempts share an ID")
	}
}

func TestReview_EmptySummary(t *testing.T) {
	if got := quiz.Review(content.Attempt{}); len(got) != 0 {
		t.Errorf("Review() = %+v, want empty", got)
	}
}

// Store starts empty, a one-question quiz body is added, unpacked and
// answered correctly, and the saved attempt is reflected in the store.
func TestEndToEnd_StoreToSession(t *testing.T) {
	store, err := content.Open(filepath.Join(t.TempDir(), "study.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	body := "What is velocity?|Speed|Distance|Time|Mass|0|Velocity is speed with direction"
	store.CreateSubject("Physics")
	store.UpsertTopic("Physics", content.Topic{
		Name:         "Kinematics",
		MaterialType: content.MaterialQuiz,
		Body:         body,
	})

	got := store.DetailedContent("Physics", "Kinematics")
	if got != body {
		t.Fatalf("DetailedContent() = %q, want raw body", got)
	}
	qs := codec.UnpackQuiz(got)
	if len(qs) != 1 || qs[0].CorrectIndex != 0 {
		t.Fatalf("UnpackQuiz() = %+v, want one question with correct index 0", qs)
	}

	s, _ := newSession(t)
	if err := s.Start(qs, 0); err != nil {
		t.Fatal(err)
	}
	_ = s.SelectAnswer(0)
	res, err := s.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 1 {
		t.Fatalf("Score = %d, want 1", res.Score)
	}

	store.AppendAttempt("Physics", content.Topic{Name: "Kinematics", MaterialType: content.MaterialQuiz}, res.Attempt(time.Now()))
	latest, ok := store.LatestAttempt("Physics", "Kinematics")
	if !ok || latest.Score != 1 {
		t.Errorf("LatestAttempt() = %+v, %v", latest, ok)
	}
	topic, _ := store.Topic("Physics", "Kinematics")
	if topic.LastAccessed != "Score: 1/1" {
		t.Errorf("LastAccessed = %q, want Score: 1/1", topic.LastAccessed)
	}
}

func TestManager(t *testing.T) {
	clock := &fakeClock{}
	m := quiz.NewManager(quiz.ManagerConfig{PerQuestion: 10}, quiz.WithTicker(clock.newTicker))
	t.Cleanup(m.Close)

	e, err := m.Start("Physics", "Kinematics", questions(3))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("ID %q is not a uuid", e.ID)
	}
	if e.Session.TotalSeconds() != 30 {
		t.Errorf("TotalSeconds() = %d, want 30", e.Session.TotalSeconds())
	}

	got, err := m.Get(e.ID)
	if err != nil || got != e {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	if _, err := m.Start("Physics", "Empty", nil); !errors.Is(err, quiz.ErrEmptySession) {
		t.Errorf("Start(empty) error = %v, want ErrEmptySession", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	m.Discard(e.ID)
	m.Discard("unknown")

	if _, err := m.Get(e.ID); !errors.Is(err, quiz.ErrSessionNotFound) {
		t.Errorf("Get() after Discard error = %v, want ErrSessionNotFound", err)
	}
	if e.Session.State() != quiz.NotStarted {
		t.Errorf("discarded session State() = %v, want NotStarted", e.Session.State())
	}
}

func TestManager_SweepExpiresFinished(t *testing.T) {
	clock := &fakeClock{}
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	m := quiz.NewManager(quiz.ManagerConfig{
		FinishedTTL: 10 * time.Minute,
		Now:         func() time.Time { return now },
	}, quiz.WithTicker(clock.newTicker))
	t.Cleanup(m.Close)

	finished, _ := m.Start("Physics", "Kinematics", questions(1))
	running, _ := m.Start("Physics", "Optics", questions(1))
	if _, err := finished.Session.Finish(); err != nil {
		t.Fatal(err)
	}

	if n := m.Sweep(); n != 0 {
		t.Fatalf("first Sweep() = %d, want 0", n)
	}
	now = now.Add(9 * time.Minute)
	if n := m.Sweep(); n != 0 {
		t.Fatalf("Sweep() before the TTL = %d, want 0", n)
	}
	now = now.Add(time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() after the TTL = %d, want 1", n)
	}

	if _, err := m.Get(finished.ID); !errors.Is(err, quiz.ErrSessionNotFound) {
		t.Errorf("Get(finished) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Get(running.ID); err != nil {
		t.Errorf("running session was swept: %v", err)
	}
}

func TestManager_SweepRestartsTimerOnRetake(t *testing.T) {
	clock := &fakeClock{}
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	m := quiz.NewManager(quiz.ManagerConfig{
		FinishedTTL: time.Minute,
		Now:         func() time.Time { return now },
	}, quiz.WithTicker(clock.newTicker))
	t.Cleanup(m.Close)

	e, _ := m.Start("Physics", "Kinematics", questions(1))
	_, _ = e.Session.Finish()
	m.Sweep()

	_ = e.Session.Retake()
	now = now.Add(time.Hour)
	m.Sweep()
	_, _ = e.Session.Finish()
	m.Sweep()

	if _, err := m.Get(e.ID); err != nil {
		t.Errorf("retaken session expired early: %v", err)
	}
}

func TestManager_JanitorEvicts(t *testing.T) {
	m := quiz.NewManager(quiz.ManagerConfig{FinishedTTL: 20 * time.Millisecond})
	t.Cleanup(m.Close)

	e, err := m.Start("Physics", "Kinematics", questions(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Session.Finish(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, finished session never expired", m.Len())
	}
	m.Close()
}

func TestManagerConfig_Allowance(t *testing.T) {
	tests := []struct {
		cfg  quiz.ManagerConfig
		n    int
		want int
	}{
		{quiz.ManagerConfig{}, 5, 150},
		{quiz.ManagerConfig{PerQuestion: 20}, 5, 100},
		{quiz.ManagerConfig{PerQuestion: 20, TotalSeconds: 300}, 5, 300},
	}
	for _, tt := range tests {
		if got := tt.cfg.Allowance(tt.n); got != tt.want {
			t.Errorf("%+v.Allowance(%d) = %d, want %d", tt.cfg, tt.n, got, tt.want)
		}
	}
}
