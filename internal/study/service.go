// Package study composes the content store, the generator, live quiz
// sessions and progress tracking into the operations the HTTP surface
// exposes.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
	"github.com/p-n-ai/pai-study/internal/generate"
	"github.com/p-n-ai/pai-study/internal/progress"
	"github.com/p-n-ai/pai-study/internal/quiz"
)

// JustNow is the LastAccessed marker of freshly generated material.
const JustNow = "Just now"

var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrNotQuiz       = errors.New("topic is not a quiz")
	ErrNoAttempt     = errors.New("topic has no saved attempt")
	ErrNoGenerator   = errors.New("content generation is not configured")
	ErrEmptyMaterial = errors.New("generated material is empty")
)

// Generator produces raw study material for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string, mt content.MaterialType, count int, difficulty string) (string, error)
}

// ServiceConfig holds dependencies for the study service.
type ServiceConfig struct {
	Store     *content.Store
	Generator Generator // nil disables generation
	Sessions  *quiz.Manager
	Progress  *progress.Tracker

	DefaultCount      int    // questions generated for an empty quiz (default 5)
	DefaultDifficulty string // (default medium)
	Now               func() time.Time
}

// Service is the application layer over the core packages.
type Service struct {
	store      *content.Store
	gen        Generator
	sessions   *quiz.Manager
	progress   *progress.Tracker
	count      int
	difficulty string
	now        func() time.Time
}

// NewService creates a service. Missing sessions or progress collaborators
// get in-memory defaults.
func NewService(cfg ServiceConfig) *Service {
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = quiz.NewManager(quiz.ManagerConfig{})
	}
	tracker := cfg.Progress
	if tracker == nil {
		tracker = progress.NewTracker(progress.NewMemoryProfileStore(), nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      cfg.Store,
		gen:        cfg.Generator,
		sessions:   sessions,
		progress:   tracker,
		count:      generate.NormalizeCount(cfg.DefaultCount),
		difficulty: generate.NormalizeDifficulty(cfg.DefaultDifficulty),
		now:        now,
	}
}

// Store returns the underlying content store.
func (s *Service) Store() *content.Store { return s.store }

// Sessions returns the live session registry.
func (s *Service) Sessions() *quiz.Manager { return s.sessions }

// StartQuiz starts a session over a quiz topic. Questions come from the
// packed body, else from the topic's structured questions. A quiz with
// neither is generated, validated and packed into the body first.
func (s *Service) StartQuiz(ctx context.Context, subject, topic string) (*quiz.Entry, error) {
	t, ok := s.store.TopicOfType(subject, topic, content.MaterialQuiz)
	if !ok {
		if other, found := s.store.Topic(subject, topic); found {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotQuiz, other.Name, other.MaterialType)
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrTopicNotFound, subject, topic)
	}

	home := t.ParentSubject
	if home == "" {
		home = subject
	}

	questions := codec.UnpackQuiz(t.Body)
	if len(questions) == 0 {
		questions = t.QuizQuestions
	}
	if len(questions) == 0 {
		var err error
		questions, err = s.generateQuiz(ctx, t.Name, s.count, s.difficulty)
		if err != nil {
			return nil, err
		}
		s.store.UpdateTopicContent(home, t.Name, codec.PackQuiz(questions), content.MaterialQuiz)
	}

	return s.sessions.Start(home, t.Name, questions)
}

// SaveResult is what saving a finished session produced.
type SaveResult struct {
	Attempt content.Attempt `json:"attempt"`
	Award   progress.Award  `json:"award"`
}

// SaveAttempt appends the finished session's result to its topic's
// history, awards XP and discards the session. Saving twice is not
// possible because the session is gone afterwards.
func (s *Service) SaveAttempt(ctx context.Context, sessionID string) (SaveResult, error) {
	entry, err := s.sessions.Get(sessionID)
	if err != nil {
		return SaveResult{}, err
	}
	res, err := entry.Session.Result()
	if err != nil {
		return SaveResult{}, err
	}
	t, ok := s.store.TopicOfType(entry.Subject, entry.Topic, content.MaterialQuiz)
	if !ok {
		return SaveResult{}, fmt.Errorf("%w: %s/%s", ErrTopicNotFound, entry.Subject, entry.Topic)
	}

	attempt := res.Attempt(s.now())
	s.store.AppendAttempt(entry.Subject, t, attempt)
	s.sessions.Discard(sessionID)

	award, err := s.progress.RecordQuiz(ctx, entry.Subject, entry.Topic, res.Score)
	if err != nil {
		// The attempt is already in history; a profile failure only loses XP.
		slog.Error("failed to record xp", "subject", entry.Subject, "topic", entry.Topic, "error", err)
	}
	return SaveResult{Attempt: attempt, Award: award}, nil
}

// GenerateRequest describes new material to create.
type GenerateRequest struct {
	Subject      string
	Topic        string
	MaterialType content.MaterialType
	Count        int
	Difficulty   string
}

// Generate asks the generator for new material and upserts it as a topic,
// replacing any topic of the same name and type.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (content.Topic, error) {
	name := strings.TrimSpace(req.Topic)
	if name == "" {
		return content.Topic{}, fmt.Errorf("topic name is required")
	}
	if !req.MaterialType.Valid() {
		return content.Topic{}, fmt.Errorf("invalid material type %q", req.MaterialType)
	}

	t := content.Topic{
		Name:         name,
		MaterialType: req.MaterialType,
		LastAccessed: JustNow,
	}

	switch req.MaterialType {
	case content.MaterialQuiz:
		questions, err := s.generateQuiz(ctx, name, req.Count, req.Difficulty)
		if err != nil {
			return content.Topic{}, err
		}
		t.Body = codec.PackQuiz(questions)
	default:
		raw, err := s.generateRaw(ctx, name, req.MaterialType, req.Count, req.Difficulty)
		if err != nil {
			return content.Topic{}, err
		}
		switch req.MaterialType {
		case content.MaterialFlashcards:
			cards := generate.ParseFlashcards(raw)
			if len(cards) == 0 {
				return content.Topic{}, fmt.Errorf("%w: no term|definition lines", ErrEmptyMaterial)
			}
			t.Body = codec.PackFlashcards(cards)
		case content.MaterialNotes:
			t.NotesContent = raw
		case content.MaterialCheatsheet:
			t.CheatsheetContent = raw
		}
	}

	s.store.UpsertTopic(req.Subject, t)
	stored, ok := s.store.TopicOfType(req.Subject, name, req.MaterialType)
	if !ok {
		return content.Topic{}, fmt.Errorf("%w: %s/%s", ErrTopicNotFound, req.Subject, name)
	}
	return stored, nil
}

// Review returns the per-question review of the topic's latest attempt.
func (s *Service) Review(subject, topic string) (content.Attempt, []quiz.ReviewEntry, error) {
	t, ok := s.store.TopicOfType(subject, topic, content.MaterialQuiz)
	if !ok {
		if _, found := s.store.Topic(subject, topic); found {
			return content.Attempt{}, nil, ErrNoAttempt
		}
		return content.Attempt{}, nil, fmt.Errorf("%w: %s/%s", ErrTopicNotFound, subject, topic)
	}
	a, ok := t.LatestAttempt()
	if !ok {
		return content.Attempt{}, nil, ErrNoAttempt
	}
	return a, quiz.Review(a), nil
}

// Flashcards returns the cards stored in a flashcards topic.
func (s *Service) Flashcards(subject, topic string) ([]codec.Flashcard, error) {
	t, ok := s.store.TopicOfType(subject, topic, content.MaterialFlashcards)
	if !ok {
		if t, ok = s.store.Topic(subject, topic); !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrTopicNotFound, subject, topic)
		}
	}
	return codec.UnpackFlashcards(t.Body), nil
}

// Profile returns the learner's XP and streak.
func (s *Service) Profile(ctx context.Context) (progress.Profile, error) {
	return s.progress.Profile(ctx)
}

func (s *Service) generateQuiz(ctx context.Context, topic string, count int, difficulty string) ([]codec.Question, error) {
	raw, err := s.generateRaw(ctx, topic, content.MaterialQuiz, count, difficulty)
	if err != nil {
		return nil, err
	}
	questions, err := generate.ParseQuiz(raw)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *Service) generateRaw(ctx context.Context, topic string, mt content.MaterialType, count int, difficulty string) (string, error) {
	if s.gen == nil {
		return "", ErrNoGenerator
	}
	if count <= 0 {
		count = s.count
	}
	if difficulty == "" {
		difficulty = s.difficulty
	}
	raw, err := s.gen.Generate(ctx, topic, mt, count, difficulty)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyMaterial
	}
	return raw, nil
}
