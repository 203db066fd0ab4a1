package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-study/internal/content"
	"github.com/p-n-ai/pai-study/internal/export"
	"github.com/p-n-ai/pai-study/internal/study"
)

type subjectSummary struct {
	Name      string `json:"name"`
	Materials int    `json:"materials"`
	Sources   int    `json:"sources"`
}

// itemRef names a topic or source by its identity.
type itemRef struct {
	Kind         content.ItemKind     `json:"kind"`
	Name         string               `json:"name"`
	MaterialType content.MaterialType `json:"materialType,omitempty"`
}

func (ref itemRef) item() (content.Item, error) {
	switch ref.Kind {
	case content.KindTopic:
		if !ref.MaterialType.Valid() {
			return nil, fmt.Errorf("%w: topic %q needs a valid materialType", errBadRequest, ref.Name)
		}
		return content.Topic{Name: ref.Name, MaterialType: ref.MaterialType}, nil
	case content.KindSource:
		return content.Source{Name: ref.Name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", errBadRequest, ref.Kind)
	}
}

func items(refs []itemRef) ([]content.Item, error) {
	out := make([]content.Item, 0, len(refs))
	for _, ref := range refs {
		it, err := ref.item()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (a *api) store() *content.Store { return a.svc.Store() }

func (a *api) listSubjects(w http.ResponseWriter, r *http.Request) {
	names := a.store().Subjects()
	out := make([]subjectSummary, 0, len(names))
	for _, name := range names {
		subj, ok := a.store().Subject(name)
		if !ok {
			continue
		}
		out = append(out, subjectSummary{Name: name, Materials: len(subj.Materials), Sources: len(subj.Sources)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getSubject(w http.ResponseWriter, r *http.Request) {
	subj, ok := a.store().Subject(r.PathValue("name"))
	if !ok {
		writeError(w, fmt.Errorf("%w: subject %q", errNotFound, r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, subj)
}

func (a *api) createSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	a.store().CreateSubject(req.Name)
	writeJSON(w, http.StatusCreated, map[string]string{"name": strings.TrimSpace(req.Name)})
}

func (a *api) deleteSubject(w http.ResponseWriter, r *http.Request) {
	a.store().DeleteSubject(r.PathValue("name"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) renameSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	old := r.PathValue("name")
	if _, ok := a.store().Subject(old); !ok {
		writeError(w, fmt.Errorf("%w: subject %q", errNotFound, old))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	a.store().RenameSubject(old, req.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) upsertSource(w http.ResponseWriter, r *http.Request) {
	var src content.Source
	if err := decode(w, r, &src); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(src.Name) == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	a.store().UpsertSource(r.PathValue("name"), src)
	writeJSON(w, http.StatusCreated, src)
}

func (a *api) deleteItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []itemRef `json:"items"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	its, err := items(req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	a.store().DeleteItems(r.PathValue("name"), its)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) moveItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []itemRef `json:"items"`
		To    string    `json:"to"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	its, err := items(req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	a.store().MoveItems(its, r.PathValue("name"), req.To)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) renameItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item    itemRef `json:"item"`
		NewName string  `json:"newName"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	it, err := req.Item.item()
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.NewName) == "" {
		writeError(w, fmt.Errorf("%w: newName is required", errBadRequest))
		return
	}
	a.store().RenameItem(r.PathValue("name"), it, req.NewName)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listTopics(w http.ResponseWriter, r *http.Request) {
	topics := a.store().AllTopics()
	if topics == nil {
		topics = []content.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (a *api) topicContent(w http.ResponseWriter, r *http.Request) {
	text := a.store().DetailedContent(r.PathValue("name"), r.PathValue("topic"))
	writeJSON(w, http.StatusOK, map[string]string{"content": text})
}

func (a *api) updateTopicContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string               `json:"text"`
		MaterialType content.MaterialType `json:"materialType"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	subject, topic := r.PathValue("name"), r.PathValue("topic")
	t, ok := a.store().Topic(subject, topic)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s/%s", study.ErrTopicNotFound, subject, topic))
		return
	}
	kind := req.MaterialType
	if kind == "" {
		kind = t.MaterialType
	}
	a.store().UpdateTopicContent(subject, topic, req.Text, kind)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) review(w http.ResponseWriter, r *http.Request) {
	attempt, entries, err := a.svc.Review(r.PathValue("name"), r.PathValue("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempt": attempt, "review": entries})
}

func (a *api) flashcards(w http.ResponseWriter, r *http.Request) {
	cards, err := a.svc.Flashcards(r.PathValue("name"), r.PathValue("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (a *api) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic        string `json:"topic"`
		MaterialType string `json:"materialType"`
		Count        int    `json:"count"`
		Difficulty   string `json:"difficulty"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	mt, err := content.ParseMaterialType(req.MaterialType)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, fmt.Errorf("%w: topic is required", errBadRequest))
		return
	}

	topic, err := a.svc.Generate(r.Context(), study.GenerateRequest{
		Subject:      r.PathValue("name"),
		Topic:        req.Topic,
		MaterialType: mt,
		Count:        req.Count,
		Difficulty:   req.Difficulty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Profile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) exportAttempts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="attempts.xlsx"`)
	if err := export.WriteAttemptsXLSX(w, a.store().AllTopics()); err != nil {
		// Headers are already written.
		slog.Error("failed to export attempts", "error", err)
	}
}
