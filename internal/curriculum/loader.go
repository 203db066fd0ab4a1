// Package curriculum loads the default study materials written into a
// fresh content store.
package curriculum

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
)

//go:embed defaults
var defaultsFS embed.FS

// NewTopicMarker is the LastAccessed text of seed topics that set none.
const NewTopicMarker = "New"

// Loader loads and caches seed content from a filesystem.
type Loader struct {
	fsys          fs.FS
	topics        map[string]Topic
	subjects      map[string]Subject
	teachingNotes map[string]string
	mu            sync.RWMutex
}

// NewLoader loads all content found in fsys.
func NewLoader(fsys fs.FS) (*Loader, error) {
	l := &Loader{
		fsys:          fsys,
		topics:        make(map[string]Topic),
		subjects:      make(map[string]Subject),
		teachingNotes: make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "topics", len(l.topics), "subjects", len(l.subjects))
	return l, nil
}

// NewDirLoader loads content from a directory on disk.
func NewDirLoader(dir string) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening seed directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("seed path %q is not a directory", dir)
	}
	return NewLoader(os.DirFS(dir))
}

// Default loads the content embedded in the binary.
func Default() (*Loader, error) {
	sub, err := fs.Sub(defaultsFS, "defaults")
	if err != nil {
		return nil, fmt.Errorf("opening embedded defaults: %w", err)
	}
	return NewLoader(sub)
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// GetTeachingNotes returns teaching notes for a topic ID.
func (l *Loader) GetTeachingNotes(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.teachingNotes[id]
	return n, ok
}

// AllTopics returns all loaded topics ordered by ID.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics
}

// Catalog converts everything loaded into store subjects. Quiz and
// flashcard topics get their questions packed into the body; a topic's
// teaching notes become its notes when the YAML sets none.
func (l *Loader) Catalog() map[string]content.Subject {
	out := make(map[string]content.Subject)
	get := func(name string) content.Subject {
		subj, ok := out[name]
		if !ok {
			subj = content.Subject{Materials: []content.Topic{}, Sources: []content.Source{}}
		}
		return subj
	}

	for _, t := range l.AllTopics() {
		ct, err := l.toContent(t)
		if err != nil {
			slog.Warn("skipping seed topic", "id", t.ID, "error", err)
			continue
		}
		subj := get(ct.ParentSubject)
		subj.Materials = append(subj.Materials, ct)
		out[ct.ParentSubject] = subj
	}

	l.mu.RLock()
	ids := make([]string, 0, len(l.subjects))
	for id := range l.subjects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := l.subjects[id]
		subj := get(s.Name)
		for _, src := range s.Sources {
			subj.Sources = append(subj.Sources, content.Source{Name: src.Name, FileType: src.FileType, Size: src.Size})
		}
		out[s.Name] = subj
	}
	l.mu.RUnlock()

	return out
}

func (l *Loader) toContent(t Topic) (content.Topic, error) {
	mt, err := content.ParseMaterialType(t.MaterialType)
	if err != nil {
		return content.Topic{}, err
	}

	subject := strings.TrimSpace(t.Subject)
	if subject == "" {
		subject = content.DefaultSubject
	}
	last := t.LastAccessed
	if last == "" {
		last = NewTopicMarker
	}

	ct := content.Topic{
		Name:          t.Name,
		LastAccessed:  last,
		MaterialType:  mt,
		ParentSubject: subject,
		Attempts:      []content.Attempt{},
	}

	switch mt {
	case content.MaterialQuiz:
		qs, err := toQuestions(t.Questions)
		if err != nil {
			return content.Topic{}, err
		}
		ct.Body = codec.PackQuiz(qs)
	case content.MaterialFlashcards:
		if len(t.Flashcards) == 0 {
			return content.Topic{}, fmt.Errorf("flashcards topic has no cards")
		}
		cards := make([]codec.Flashcard, 0, len(t.Flashcards))
		for _, c := range t.Flashcards {
			cards = append(cards, codec.Flashcard{Term: c.Term, Definition: c.Definition})
		}
		ct.Body = codec.PackFlashcards(cards)
	case content.MaterialCheatsheet:
		ct.CheatsheetContent = t.Cheatsheet
	}

	ct.NotesContent = t.Notes
	if ct.NotesContent == "" {
		if notes, ok := l.GetTeachingNotes(t.ID); ok {
			ct.NotesContent = notes
		}
	}
	return ct, nil
}

func toQuestions(in []Question) ([]codec.Question, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("quiz topic has no questions")
	}
	out := make([]codec.Question, 0, len(in))
	for i, q := range in {
		if len(q.Answers) != codec.AnswerCount {
			return nil, fmt.Errorf("question %d: want %d answers, got %d", i+1, codec.AnswerCount, len(q.Answers))
		}
		if q.Correct < 0 || q.Correct >= codec.AnswerCount {
			return nil, fmt.Errorf("question %d: correct index %d out of range", i+1, q.Correct)
		}
		cq := codec.Question{Text: q.Text, CorrectIndex: q.Correct, Hint: q.Hint}
		copy(cq.Answers[:], q.Answers)
		if cq.Hint == "" {
			cq.Hint = codec.DefaultHint
		}
		out = append(out, cq)
	}
	return out, nil
}

func (l *Loader) loadAll() error {
	return fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(p, ".teaching.md"):
			return l.loadTeachingNotes(p)
		case strings.HasSuffix(p, ".subject.yaml"):
			return l.loadSubject(p)
		case strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml"):
			return l.loadTopic(p)
		}
		return nil
	})
}

func (l *Loader) loadTopic(p string) error {
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", p, "error", err)
		return nil
	}

	if topic.ID == "" || strings.TrimSpace(topic.Name) == "" {
		return nil // Not a topic file
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadSubject(p string) error {
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return err
	}

	var subj Subject
	if err := yaml.Unmarshal(data, &subj); err != nil {
		slog.Warn("skipping invalid subject YAML", "path", p, "error", err)
		return nil
	}
	if strings.TrimSpace(subj.Name) == "" {
		return nil
	}
	if subj.ID == "" {
		subj.ID = subj.Name
	}

	l.mu.Lock()
	l.subjects[subj.ID] = subj
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadTeachingNotes(p string) error {
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return err
	}

	// Derive topic ID from matching YAML file
	yamlPath := strings.TrimSuffix(p, ".teaching.md") + ".yaml"
	yamlData, err := fs.ReadFile(l.fsys, path.Clean(yamlPath))
	if err != nil {
		return nil // No matching YAML, skip
	}

	var partial struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(yamlData, &partial); err != nil || partial.ID == "" {
		return nil
	}

	l.mu.Lock()
	l.teachingNotes[partial.ID] = string(data)
	l.mu.Unlock()

	return nil
}
