// Package httpapi is the JSON surface the presentation layer talks to.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-study/internal/study"
)

const readyTimeout = 3 * time.Second

// Check is a named readiness check, such as a database ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Config holds dependencies for the HTTP handlers.
type Config struct {
	Service *study.Service
	Events  http.Handler // websocket feed; nil leaves /api/events unrouted
	Checks  []Check
}

type api struct {
	svc    *study.Service
	checks []Check
}

// NewMux creates the router with every endpoint registered.
func NewMux(cfg Config) *http.ServeMux {
	a := &api{svc: cfg.Service, checks: cfg.Checks}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("GET /api/subjects", a.listSubjects)
	mux.HandleFunc("POST /api/subjects", a.createSubject)
	mux.HandleFunc("GET /api/subjects/{name}", a.getSubject)
	mux.HandleFunc("DELETE /api/subjects/{name}", a.deleteSubject)
	mux.HandleFunc("POST /api/subjects/{name}/rename", a.renameSubject)
	mux.HandleFunc("POST /api/subjects/{name}/sources", a.upsertSource)
	mux.HandleFunc("POST /api/subjects/{name}/generate", a.generate)
	mux.HandleFunc("POST /api/subjects/{name}/items/delete", a.deleteItems)
	mux.HandleFunc("POST /api/subjects/{name}/items/move", a.moveItems)
	mux.HandleFunc("POST /api/subjects/{name}/items/rename", a.renameItem)
	mux.HandleFunc("GET /api/subjects/{name}/topics/{topic}/content", a.topicContent)
	mux.HandleFunc("PUT /api/subjects/{name}/topics/{topic}/content", a.updateTopicContent)
	mux.HandleFunc("GET /api/subjects/{name}/topics/{topic}/review", a.review)
	mux.HandleFunc("GET /api/subjects/{name}/topics/{topic}/flashcards", a.flashcards)
	mux.HandleFunc("GET /api/topics", a.listTopics)

	mux.HandleFunc("POST /api/sessions", a.startSession)
	mux.HandleFunc("GET /api/sessions/{id}", a.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.discardSession)
	mux.HandleFunc("POST /api/sessions/{id}/{action}", a.sessionAction)

	mux.HandleFunc("GET /api/profile", a.profile)
	mux.HandleFunc("GET /api/export/attempts.xlsx", a.exportAttempts)

	if cfg.Events != nil {
		mux.Handle("GET /api/events", cfg.Events)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for _, c := range a.checks {
		if err := c.Fn(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
