package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/content"
	"github.com/p-n-ai/pai-study/internal/curriculum"
	"github.com/p-n-ai/pai-study/internal/generate"
	"github.com/p-n-ai/pai-study/internal/httpapi"
	"github.com/p-n-ai/pai-study/internal/platform/cache"
	"github.com/p-n-ai/pai-study/internal/platform/config"
	"github.com/p-n-ai/pai-study/internal/platform/database"
	"github.com/p-n-ai/pai-study/internal/progress"
	"github.com/p-n-ai/pai-study/internal/quiz"
	"github.com/p-n-ai/pai-study/internal/realtime"
	"github.com/p-n-ai/pai-study/internal/replication"
	"github.com/p-n-ai/pai-study/internal/study"
)

const cachePrefix = "study"

// app owns every long-lived dependency. Nothing here is global; newApp
// builds the graph and Close tears it down in reverse.
type app struct {
	handler http.Handler

	store    *content.Store
	sessions *quiz.Manager
	tracker  *progress.Tracker
	db       *database.DB
	cache    *cache.Cache
	relay    *realtime.Relay

	stopRelay context.CancelFunc
	relayDone sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	if err := a.build(ctx, cfg); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg *config.Config) error {
	loader, err := newLoader(cfg.Store)
	if err != nil {
		return err
	}

	var sink replication.Sink = replication.NopSink{}
	if cfg.Database.URL != "" {
		a.db, err = database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			ConnectAttempts: 5,
			RetryDelay:      2 * time.Second,
		})
		if err != nil {
			return err
		}
		pg, err := replication.NewPostgresSink(a.db.Pool)
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		sink = pg
		slog.Info("replication enabled")
	}

	if cfg.Cache.URL != "" {
		if a.cache, err = cache.New(ctx, cfg.Cache.URL, cachePrefix); err != nil {
			return err
		}
	}

	a.store, err = content.Open(cfg.Store.Path,
		content.WithSeed(loader.Catalog()),
		content.WithReplicator(sink),
	)
	if err != nil {
		return err
	}
	slog.Info("content store opened",
		"path", cfg.Store.Path,
		"subjects", len(a.store.Subjects()),
		"seeded", a.store.Seeded(),
	)

	var profiles progress.ProfileStore = progress.NewMemoryProfileStore()
	if a.cache != nil {
		profiles = progress.NewRedisProfileStore(a.cache.Client, a.cache.Key("profile"))
	}
	a.tracker = progress.NewTracker(profiles, sink)

	router := newAIRouter(cfg.AI, a.budget(cfg.AI.TokenBudget))
	var gen study.Generator
	if router.HasProvider() {
		gen = generate.New(router, generate.WithModel(cfg.AI.Model))
		slog.Info("generation enabled", "providers", router.Providers())
	} else {
		slog.Warn("no AI provider configured, generation disabled")
	}

	a.sessions = quiz.NewManager(quiz.ManagerConfig{
		PerQuestion:  cfg.Quiz.SecondsPerQuestion,
		TotalSeconds: cfg.Quiz.TotalSeconds,
		FinishedTTL:  time.Duration(cfg.Quiz.ResultTTLSeconds) * time.Second,
	})

	svc := study.NewService(study.ServiceConfig{
		Store:             a.store,
		Generator:         gen,
		Sessions:          a.sessions,
		Progress:          a.tracker,
		DefaultCount:      cfg.Quiz.DefaultCount,
		DefaultDifficulty: cfg.Quiz.DefaultDifficulty,
	})

	feed := realtime.NewFeed(cfg.Server.AllowedOrigins...)
	a.store.Subscribe(feed.Broadcast)
	if a.cache != nil {
		a.startRelay(cfg.Cache.EventsChannel, feed)
	}

	a.handler = httpapi.NewMux(httpapi.Config{
		Service: svc,
		Events:  feed,
		Checks:  a.checks(),
	})
	return nil
}

func newLoader(cfg config.StoreConfig) (*curriculum.Loader, error) {
	if cfg.SeedPath != "" {
		return curriculum.NewDirLoader(cfg.SeedPath)
	}
	return curriculum.Default()
}

// newAIRouter registers every configured provider in fallback order.
func newAIRouter(cfg config.AIConfig, budget ai.Budget) *ai.Router {
	router := ai.NewRouter(budget)
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}
	return router
}

// budget shares the token counter through Redis when available.
func (a *app) budget(limit int64) ai.Budget {
	if a.cache != nil {
		return ai.NewRedisBudget(a.cache.Client, a.cache.Key("ai", "tokens"), limit)
	}
	if limit > 0 {
		return ai.NewMemoryBudget(limit)
	}
	return nil
}

// startRelay publishes local store events and feeds remote ones to
// connected websocket clients.
func (a *app) startRelay(channel string, feed *realtime.Feed) {
	a.relay = realtime.NewRelay(a.cache.Client, channel)
	a.store.Subscribe(a.relay.Forward)

	ctx, cancel := context.WithCancel(context.Background())
	a.stopRelay = cancel
	a.relayDone.Add(1)
	go func() {
		defer a.relayDone.Done()
		if err := a.relay.Run(ctx, feed.Broadcast); err != nil {
			slog.Error("event relay stopped", "error", err)
		}
	}()
}

func (a *app) checks() []httpapi.Check {
	var checks []httpapi.Check
	if a.db != nil {
		checks = append(checks, httpapi.Check{Name: "database", Fn: a.db.HealthCheck})
	}
	if a.cache != nil {
		checks = append(checks, httpapi.Check{Name: "cache", Fn: a.cache.HealthCheck})
	}
	return checks
}

// Close stops sessions, drains the store and background replication, and
// then releases connections. Safe on a partially built app.
func (a *app) Close(ctx context.Context) error {
	var errs []error

	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.tracker != nil {
		if err := a.tracker.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for progress replication: %w", err))
		}
	}
	if a.relay != nil {
		if err := a.relay.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for relay: %w", err))
		}
		a.stopRelay()
		a.relayDone.Wait()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
