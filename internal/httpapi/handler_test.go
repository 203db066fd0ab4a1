package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
	"github.com/p-n-ai/pai-study/internal/export"
	"github.com/p-n-ai/pai-study/internal/generate"
	"github.com/p-n-ai/pai-study/internal/httpapi"
	"github.com/p-n-ai/pai-study/internal/quiz"
	"github.com/p-n-ai/pai-study/internal/study"
)

const generatedQuiz = `{"questions": [
  {"questionText": "Unit of force?", "answers": ["Joule", "Newton", "Watt", "Pascal"], "correctAnswerIndex": 1, "hint": "Apples"},
  {"questionText": "Unit of power?", "answers": ["Watt", "Volt", "Ohm", "Tesla"], "correctAnswerIndex": 0, "hint": "Light bulbs"}
]}`

type testServer struct {
	mux   *http.ServeMux
	store *content.Store
	mock  *ai.MockProvider
}

func newServer(t *testing.T, checks ...httpapi.Check) *testServer {
	t.Helper()
	store, err := content.Open(t.TempDir() + "/study.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	mock := ai.NewMockProvider(generatedQuiz)
	router := ai.NewRouter(nil)
	router.Register("mock", mock)

	sessions := quiz.NewManager(quiz.ManagerConfig{})
	t.Cleanup(sessions.Close)

	svc := study.NewService(study.ServiceConfig{
		Store:     store,
		Generator: generate.New(router),
		Sessions:  sessions,
	})
	mux := httpapi.NewMux(httpapi.Config{Service: svc, Checks: checks})
	return &testServer{mux: mux, store: store, mock: mock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"healthz returns 200", "/healthz", http.StatusOK, `{"status":"ok"}`},
		{"readyz returns 200", "/readyz", http.StatusOK, `{"status":"ready"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	srv := newServer(t,
		httpapi.Check{Name: "database", Fn: func(context.Context) error { return errors.New("connection refused") }},
		httpapi.Check{Name: "cache", Fn: func(context.Context) error { return nil }},
	)
	rec := srv.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody[struct {
		Failed map[string]string `json:"failed"`
	}](t, rec)
	if len(body.Failed) != 1 || body.Failed["database"] == "" {
		t.Errorf("failed = %v", body.Failed)
	}
}

func TestSubjects(t *testing.T) {
	srv := newServer(t)

	if rec := srv.do(t, http.MethodPost, "/api/subjects", map[string]string{"name": "Physics"}); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, "/api/subjects", map[string]string{"name": "  "}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank create status = %d, want 400", rec.Code)
	}
	if rec := srv.do(t, http.MethodPost, "/api/subjects/Physics/sources", content.Source{Name: "book.pdf", FileType: "pdf", Size: "2 MB"}); rec.Code != http.StatusCreated {
		t.Errorf("source status = %d", rec.Code)
	}

	list := decodeBody[[]struct {
		Name    string `json:"name"`
		Sources int    `json:"sources"`
	}](t, srv.do(t, http.MethodGet, "/api/subjects", nil))
	if len(list) != 1 || list[0].Name != "Physics" || list[0].Sources != 1 {
		t.Errorf("subjects = %+v", list)
	}

	rec := srv.do(t, http.MethodPost, "/api/subjects/Physics/rename", map[string]string{"name": "Mechanics"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d", rec.Code)
	}
	if got := srv.store.Subjects(); len(got) != 1 || got[0] != "Mechanics" {
		t.Errorf("Subjects() = %v", got)
	}
	if rec := srv.do(t, http.MethodPost, "/api/subjects/Nope/rename", map[string]string{"name": "X"}); rec.Code != http.StatusNotFound {
		t.Errorf("rename missing status = %d, want 404", rec.Code)
	}

	if rec := srv.do(t, http.MethodGet, "/api/subjects/Mechanics", nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodDelete, "/api/subjects/Mechanics", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/api/subjects/Mechanics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
}

func TestSubjectNameWithSpaces(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("General Study", content.Topic{Name: "Cell Walls", MaterialType: content.MaterialNotes, NotesContent: "Plants have them."})

	path := "/api/subjects/" + url.PathEscape("General Study") + "/topics/" + url.PathEscape("Cell Walls") + "/content"
	body := decodeBody[map[string]string](t, srv.do(t, http.MethodGet, path, nil))
	if body["content"] != "Plants have them." {
		t.Errorf("content = %q", body["content"])
	}
}

func TestItems(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("A", content.Topic{Name: "One", MaterialType: content.MaterialNotes})
	srv.store.UpsertTopic("A", content.Topic{Name: "Two", MaterialType: content.MaterialQuiz})
	srv.store.UpsertSource("A", content.Source{Name: "ref.pdf"})

	rec := srv.do(t, http.MethodPost, "/api/subjects/A/items/rename", map[string]any{
		"item":    map[string]string{"kind": "topic", "name": "One", "materialType": "Notes"},
		"newName": "Uno",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d: %s", rec.Code, rec.Body)
	}
	if _, ok := srv.store.Topic("A", "Uno"); !ok {
		t.Error("renamed topic not found")
	}

	rec = srv.do(t, http.MethodPost, "/api/subjects/A/items/move", map[string]any{
		"items": []map[string]string{{"kind": "topic", "name": "Two", "materialType": "Quiz"}, {"kind": "source", "name": "ref.pdf"}},
		"to":    "B",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("move status = %d: %s", rec.Code, rec.Body)
	}
	if moved, ok := srv.store.Topic("B", "Two"); !ok || moved.ParentSubject != "B" {
		t.Errorf("moved topic = %+v, %v", moved, ok)
	}
	if len(srv.store.Sources("B")) != 1 {
		t.Error("source not moved")
	}

	rec = srv.do(t, http.MethodPost, "/api/subjects/A/items/delete", map[string]any{
		"items": []map[string]string{{"kind": "topic", "name": "Uno", "materialType": "Notes"}},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if subj, _ := srv.store.Subject("A"); len(subj.Materials) != 0 {
		t.Errorf("materials left = %+v", subj.Materials)
	}

	rec = srv.do(t, http.MethodPost, "/api/subjects/A/items/delete", map[string]any{
		"items": []map[string]string{{"kind": "folder", "name": "x"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", rec.Code)
	}
}

func TestTopicContent(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("S", content.Topic{Name: "Sheet", MaterialType: content.MaterialCheatsheet})

	rec := srv.do(t, http.MethodPut, "/api/subjects/S/topics/Sheet/content", map[string]string{"text": "E = mc^2"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d", rec.Code)
	}
	if got, _ := srv.store.Topic("S", "Sheet"); got.CheatsheetContent != "E = mc^2" {
		t.Errorf("CheatsheetContent = %q", got.CheatsheetContent)
	}

	rec = srv.do(t, http.MethodPut, "/api/subjects/S/topics/Missing/content", map[string]string{"text": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing topic status = %d, want 404", rec.Code)
	}

	body := decodeBody[map[string]string](t, srv.do(t, http.MethodGet, "/api/subjects/S/topics/Missing/content", nil))
	if body["content"] != content.NoContent {
		t.Errorf("content = %q, want NoContent", body["content"])
	}
}

func TestGenerateEndpoint(t *testing.T) {
	srv := newServer(t)

	rec := srv.do(t, http.MethodPost, "/api/subjects/Physics/generate", map[string]any{
		"topic": "Units", "materialType": "quiz", "count": 2, "difficulty": "easy",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	topic := decodeBody[content.Topic](t, rec)
	if topic.MaterialType != content.MaterialQuiz || len(codec.UnpackQuiz(topic.Body)) != 2 {
		t.Errorf("topic = %+v", topic)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad type", map[string]any{"topic": "x", "materialType": "essay"}, http.StatusBadRequest},
		{"no topic", map[string]any{"materialType": "notes"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := srv.do(t, http.MethodPost, "/api/subjects/Physics/generate", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	srv.mock.Response = `{"questions": []}`
	rec = srv.do(t, http.MethodPost, "/api/subjects/Physics/generate", map[string]any{"topic": "Bad", "materialType": "Quiz"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("invalid quiz status = %d, want 502", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("Physics", content.Topic{Name: "Units", MaterialType: content.MaterialQuiz})

	rec := srv.do(t, http.MethodPost, "/api/sessions", map[string]string{"subject": "Physics", "topic": "Units"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	type view struct {
		ID             string `json:"id"`
		State          string `json:"state"`
		CurrentIndex   int    `json:"currentIndex"`
		TotalQuestions int    `json:"totalQuestions"`
		TotalSeconds   int    `json:"totalSeconds"`
		Result         *struct {
			Score int `json:"score"`
			Total int `json:"total"`
		} `json:"result"`
	}
	v := decodeBody[view](t, rec)
	if v.State != "in_progress" || v.TotalQuestions != 2 || v.TotalSeconds != 60 {
		t.Fatalf("view = %+v", v)
	}
	base := "/api/sessions/" + v.ID

	steps := []struct {
		action string
		body   any
		want   int
	}{
		{"answer", map[string]int{"index": 1}, http.StatusOK},
		{"answer", map[string]int{"index": 7}, http.StatusBadRequest},
		{"flag", nil, http.StatusOK},
		{"hint", nil, http.StatusOK},
		{"next", nil, http.StatusOK},
		{"answer", map[string]int{"index": 3}, http.StatusOK},
		{"previous", nil, http.StatusOK},
		{"save", nil, http.StatusConflict},
		{"teleport", nil, http.StatusNotFound},
		{"finish", nil, http.StatusOK},
		{"next", nil, http.StatusConflict},
	}
	for _, st := range steps {
		if rec := srv.do(t, http.MethodPost, base+"/"+st.action, st.body); rec.Code != st.want {
			t.Fatalf("%s status = %d, want %d: %s", st.action, rec.Code, st.want, rec.Body)
		}
	}

	v = decodeBody[view](t, srv.do(t, http.MethodGet, base, nil))
	if v.State != "finished" || v.Result == nil || v.Result.Score != 1 || v.Result.Total != 2 {
		t.Fatalf("finished view = %+v", v)
	}

	rec = srv.do(t, http.MethodPost, base+"/save", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body)
	}
	saved := decodeBody[study.SaveResult](t, rec)
	if saved.Attempt.Score != 1 || saved.Award.Amount != 15 {
		t.Errorf("saved = %+v", saved)
	}
	if rec := srv.do(t, http.MethodGet, base, nil); rec.Code != http.StatusNotFound {
		t.Errorf("session after save status = %d, want 404", rec.Code)
	}

	review := decodeBody[struct {
		Review []quiz.ReviewEntry `json:"review"`
	}](t, srv.do(t, http.MethodGet, "/api/subjects/Physics/topics/Units/review", nil))
	if len(review.Review) != 2 || !review.Review[0].Correct || review.Review[1].UserIndex != 3 {
		t.Errorf("review = %+v", review.Review)
	}

	profile := decodeBody[map[string]any](t, srv.do(t, http.MethodGet, "/api/profile", nil))
	if profile["totalXP"] != float64(15) {
		t.Errorf("profile = %v", profile)
	}
}

func TestSessionRetakeAndDiscard(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("S", content.Topic{Name: "Q", MaterialType: content.MaterialQuiz})

	v := decodeBody[struct {
		ID string `json:"id"`
	}](t, srv.do(t, http.MethodPost, "/api/sessions", map[string]string{"subject": "S", "topic": "Q"}))
	base := "/api/sessions/" + v.ID

	if rec := srv.do(t, http.MethodPost, base+"/retake", nil); rec.Code != http.StatusConflict {
		t.Errorf("retake while running status = %d, want 409", rec.Code)
	}
	srv.do(t, http.MethodPost, base+"/finish", nil)
	if rec := srv.do(t, http.MethodPost, base+"/retake", nil); rec.Code != http.StatusOK {
		t.Errorf("retake status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodDelete, base, nil); rec.Code != http.StatusNoContent {
		t.Errorf("discard status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, base, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get discarded status = %d, want 404", rec.Code)
	}
}

func TestStartSession_Errors(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("S", content.Topic{Name: "Notes", MaterialType: content.MaterialNotes})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing topic", map[string]string{"subject": "S", "topic": "Nope"}, http.StatusNotFound},
		{"not a quiz", map[string]string{"subject": "S", "topic": "Notes"}, http.StatusBadRequest},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := srv.do(t, http.MethodPost, "/api/sessions", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListTopics(t *testing.T) {
	srv := newServer(t)
	if got := strings.TrimSpace(srv.do(t, http.MethodGet, "/api/topics", nil).Body.String()); got != "[]" {
		t.Errorf("empty topics = %s, want []", got)
	}

	srv.store.UpsertTopic("S", content.Topic{Name: "Old", MaterialType: content.MaterialNotes, LastAccessed: "2 weeks ago"})
	srv.store.UpsertTopic("S", content.Topic{Name: "New", MaterialType: content.MaterialNotes, LastAccessed: "Just now"})

	topics := decodeBody[[]content.Topic](t, srv.do(t, http.MethodGet, "/api/topics", nil))
	if len(topics) != 2 || topics[0].Name != "New" {
		t.Errorf("topics = %+v", topics)
	}
}

func TestExportAttempts(t *testing.T) {
	srv := newServer(t)
	srv.store.UpsertTopic("S", content.Topic{Name: "Q", MaterialType: content.MaterialQuiz})
	srv.store.AppendAttempt("S", content.Topic{Name: "Q", MaterialType: content.MaterialQuiz}, content.Attempt{ID: "a1", Timestamp: time.Now(), Score: 2, TotalQuestions: 4})

	rec := srv.do(t, http.MethodGet, "/api/export/attempts.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(export.AttemptsSheet)
	if len(rows) != 2 || rows[1][2] != "a1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestEventsRouteOptional(t *testing.T) {
	srv := newServer(t)
	if rec := srv.do(t, http.MethodGet, "/api/events", nil); rec.Code != http.StatusNotFound {
		t.Errorf("events without feed status = %d, want 404", rec.Code)
	}

	called := false
	mux := httpapi.NewMux(httpapi.Config{
		Service: study.NewService(study.ServiceConfig{Store: srv.store}),
		Events:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
	})
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if !called {
		t.Error("events handler not routed")
	}
}
