package httpapi

import (
	"fmt"
	"net/http"

	"github.com/p-n-ai/pai-study/internal/quiz"
)

type sessionView struct {
	ID               string            `json:"id"`
	Subject          string            `json:"subject"`
	Topic            string            `json:"topic"`
	State            quiz.State        `json:"state"`
	CurrentIndex     int               `json:"currentIndex"`
	Question         *quiz.Question    `json:"question,omitempty"`
	TotalQuestions   int               `json:"totalQuestions"`
	SecondsRemaining int               `json:"secondsRemaining"`
	TotalSeconds     int               `json:"totalSeconds"`
	Progress         float64           `json:"progress"`
	Result           *quiz.FinalResult `json:"result,omitempty"`
}

func viewOf(e *quiz.Entry) sessionView {
	s := e.Session
	v := sessionView{
		ID:               e.ID,
		Subject:          e.Subject,
		Topic:            e.Topic,
		State:            s.State(),
		TotalQuestions:   len(s.Questions()),
		SecondsRemaining: s.SecondsRemaining(),
		TotalSeconds:     s.TotalSeconds(),
		Progress:         s.Progress(),
	}
	if v.TotalQuestions > 0 {
		q, idx := s.Current()
		v.Question = &q
		v.CurrentIndex = idx
	}
	if res, err := s.Result(); err == nil {
		v.Result = &res
	}
	return v
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Topic   string `json:"topic"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := a.svc.StartQuiz(r.Context(), req.Subject, req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(entry))
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	entry, err := a.svc.Sessions().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func (a *api) discardSession(w http.ResponseWriter, r *http.Request) {
	a.svc.Sessions().Discard(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) sessionAction(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")

	if action == "save" {
		saved, err := a.svc.SaveAttempt(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
		return
	}

	entry, err := a.svc.Sessions().Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	s := entry.Session

	switch action {
	case "answer":
		var req struct {
			Index int `json:"index"`
		}
		if err = decode(w, r, &req); err == nil {
			err = s.SelectAnswer(req.Index)
		}
	case "flag":
		err = s.ToggleFlag()
	case "hint":
		var hint string
		if hint, err = s.Hint(); err == nil {
			writeJSON(w, http.StatusOK, map[string]string{"hint": hint})
			return
		}
	case "next":
		err = s.Next()
	case "previous":
		err = s.Previous()
	case "finish":
		_, err = s.Finish()
	case "retake":
		err = s.Retake()
	default:
		err = fmt.Errorf("%w: unknown session action %q", errNotFound, action)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}
