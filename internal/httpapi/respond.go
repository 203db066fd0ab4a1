package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/generate"
	"github.com/p-n-ai/pai-study/internal/quiz"
	"github.com/p-n-ai/pai-study/internal/study"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, quiz.ErrEmptySession),
		errors.Is(err, quiz.ErrInvalidAnswer),
		errors.Is(err, study.ErrNotQuiz):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrTopicNotFound),
		errors.Is(err, study.ErrNoAttempt),
		errors.Is(err, quiz.ErrSessionNotFound),
		errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrNotInProgress),
		errors.Is(err, quiz.ErrNotFinished),
		errors.Is(err, quiz.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, ai.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, generate.ErrInvalidQuiz),
		errors.Is(err, study.ErrEmptyMaterial):
		return http.StatusBadGateway
	case errors.Is(err, study.ErrNoGenerator),
		errors.Is(err, ai.ErrNoProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %v", errBadRequest, err)
	}
	return nil
}
