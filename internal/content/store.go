package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

const replicationTimeout = 10 * time.Second

// Replicator receives a copy of every topic written through UpsertTopic,
// UpdateTopicContent, RenameItem, MoveItems or AppendAttempt. Calls are
// fire-and-forget: a failure is logged and never undoes the local change.
type Replicator interface {
	UpsertTopic(ctx context.Context, topic Topic) error
}

// Option configures a Store.
type Option func(*Store)

// WithSeed sets the subjects written on first run, or when the document
// on disk cannot be decoded. It is not applied when a valid document
// simply happens to be empty.
func WithSeed(subjects map[string]Subject) Option {
	return func(s *Store) {
		s.seed = subjects
	}
}

// WithReplicator sets the remote sink for topic snapshots.
func WithReplicator(r Replicator) Option {
	return func(s *Store) {
		s.replicator = r
	}
}

// Store holds every subject in memory. Mutations are serialised by mu;
// each one publishes an event and schedules a full-document write.
type Store struct {
	subjects   map[string]*Subject
	mu         sync.RWMutex
	bus        *Bus
	persister  *persister
	replicator Replicator
	replWG     sync.WaitGroup
	seed       map[string]Subject
	seeded     bool
}

// Open loads the document at path. A missing or undecodable document
// yields a store populated from the seed; any other read error is returned.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}

	s := &Store{
		subjects:  make(map[string]*Subject),
		bus:       NewBus(),
		persister: newPersister(path),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("no store document found, starting fresh", "path", path)
		s.applySeed()
	case err != nil:
		_ = s.persister.close(context.Background())
		return nil, fmt.Errorf("reading store document: %w", err)
	default:
		subjects, derr := decodeDocument(data)
		if derr != nil {
			slog.Warn("store document unreadable, starting fresh", "path", path, "error", derr)
			s.applySeed()
			break
		}
		s.subjects = subjects
		s.persister.remember(data)
	}

	slog.Info("content store loaded", "path", path, "subjects", len(s.subjects), "seeded", s.seeded)
	return s, nil
}

func (s *Store) applySeed() {
	if len(s.seed) == 0 {
		return
	}
	for name, subj := range s.seed {
		n := normalizeName(name)
		if n == "" {
			continue
		}
		c := subj.clone()
		for i := range c.Materials {
			c.Materials[i].Name = normalizeName(c.Materials[i].Name)
			c.Materials[i].ParentSubject = n
		}
		for i := range c.Sources {
			c.Sources[i].Name = normalizeName(c.Sources[i].Name)
		}
		s.subjects[n] = &c
	}
	s.seeded = true

	data, err := encodeDocument(s.subjects)
	if err != nil {
		slog.Error("failed to encode seeded store", "error", err)
		return
	}
	s.persister.schedule(data)
}

// Seeded reports whether the default subjects were written during Open.
func (s *Store) Seeded() bool {
	return s.seeded
}

// Subscribe registers fn for change events. Events are delivered on the
// mutating goroutine after the in-memory update, possibly before the write
// reaches disk.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Flush blocks until every mutation made before the call is on disk.
func (s *Store) Flush(ctx context.Context) error {
	return s.persister.flush(ctx)
}

// Close writes any pending snapshot and waits for in-flight replication.
func (s *Store) Close(ctx context.Context) error {
	err := s.persister.close(ctx)

	done := make(chan struct{})
	go func() {
		s.replWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// --- Subjects ---

// CreateSubject adds an empty subject. Existing or blank names are ignored.
func (s *Store) CreateSubject(name string) {
	name = normalizeName(name)
	if name == "" {
		return
	}
	s.mutate(func() []EventKind {
		if _, ok := s.subjects[name]; ok {
			return nil
		}
		s.subjects[name] = newSubject()
		return []EventKind{FoldersChanged}
	})
}

// DeleteSubject removes a subject and everything in it. FoldersChanged is
// published even when the subject did not exist.
func (s *Store) DeleteSubject(name string) {
	name = normalizeName(name)
	s.mutate(func() []EventKind {
		delete(s.subjects, name)
		return []EventKind{FoldersChanged}
	})
}

// RenameSubject moves a subject to a new key. If newName already exists
// its content is replaced, not merged.
func (s *Store) RenameSubject(oldName, newName string) {
	oldName, newName = normalizeName(oldName), normalizeName(newName)
	if oldName == newName || newName == "" {
		return
	}
	s.mutate(func() []EventKind {
		subj, ok := s.subjects[oldName]
		if !ok {
			return nil
		}
		for i := range subj.Materials {
			subj.Materials[i].ParentSubject = newName
		}
		s.subjects[newName] = subj
		delete(s.subjects, oldName)
		return []EventKind{FoldersChanged}
	})
}

// --- Items ---

// UpsertTopic stores t in the subject's Materials, replacing any topic
// with the same name and material type. The new entry goes to the end.
// An empty subject means DefaultSubject.
func (s *Store) UpsertTopic(subject string, t Topic) {
	subject = resolveSubject(subject)
	t = t.clone()
	t.Name = normalizeName(t.Name)
	t.ParentSubject = subject

	s.mutate(func() []EventKind {
		subj, created := s.ensureSubject(subject)
		subj.Materials = removeTopic(subj.Materials, keyOf(t))
		subj.Materials = append(subj.Materials, t)
		s.replicate(t)
		return withFolders(created, MaterialsChanged)
	})
}

// UpsertSource stores src in the subject's Sources, replacing any source
// with the same name.
func (s *Store) UpsertSource(subject string, src Source) {
	subject = resolveSubject(subject)
	src.Name = normalizeName(src.Name)

	s.mutate(func() []EventKind {
		subj, created := s.ensureSubject(subject)
		subj.Sources = removeSource(subj.Sources, keyOf(src))
		subj.Sources = append(subj.Sources, src)
		return withFolders(created, MaterialsChanged)
	})
}

// DeleteItems removes each matching topic or source from the subject.
// MaterialsChanged is published whether or not anything matched.
func (s *Store) DeleteItems(subject string, items []Item) {
	subject = resolveSubject(subject)
	s.mutate(func() []EventKind {
		if subj, ok := s.subjects[subject]; ok {
			for _, it := range items {
				k := keyOf(it)
				switch k.kind {
				case KindTopic:
					subj.Materials = removeTopic(subj.Materials, k)
				case KindSource:
					subj.Sources = removeSource(subj.Sources, k)
				}
			}
		}
		return []EventKind{MaterialsChanged}
	})
}

// MoveItems takes the stored versions of items out of from and upserts
// them into to. Topics are re-parented. Items not present in from are
// skipped.
func (s *Store) MoveItems(items []Item, from, to string) {
	from, to = resolveSubject(from), resolveSubject(to)
	if from == to {
		return
	}
	s.mutate(func() []EventKind {
		src, ok := s.subjects[from]
		if !ok {
			return nil
		}

		var topics []Topic
		var sources []Source
		for _, it := range items {
			k := keyOf(it)
			switch k.kind {
			case KindTopic:
				if i := indexTopic(src.Materials, k); i >= 0 {
					topics = append(topics, src.Materials[i])
					src.Materials = removeTopic(src.Materials, k)
				}
			case KindSource:
				if i := indexSource(src.Sources, k); i >= 0 {
					sources = append(sources, src.Sources[i])
					src.Sources = removeSource(src.Sources, k)
				}
			}
		}
		if len(topics) == 0 && len(sources) == 0 {
			return nil
		}

		dst, created := s.ensureSubject(to)
		for _, t := range topics {
			t.ParentSubject = to
			dst.Materials = append(removeTopic(dst.Materials, keyOf(t)), t)
			s.replicate(t)
		}
		for _, src := range sources {
			dst.Sources = append(removeSource(dst.Sources, keyOf(src)), src)
		}
		return withFolders(created, MaterialsChanged)
	})
}

// RenameItem rewrites the display name of the matching item in place,
// keeping its position. Unknown items and blank names are ignored. An
// item that already holds the new identity is removed first, as an upsert
// would replace it.
func (s *Store) RenameItem(subject string, item Item, newName string) {
	subject = resolveSubject(subject)
	newName = normalizeName(newName)
	if newName == "" {
		return
	}
	s.mutate(func() []EventKind {
		subj, ok := s.subjects[subject]
		if !ok {
			return nil
		}
		k := keyOf(item)
		renamed := k
		renamed.name = newName
		switch k.kind {
		case KindTopic:
			if indexTopic(subj.Materials, k) < 0 {
				return nil
			}
			if renamed != k {
				subj.Materials = removeTopic(subj.Materials, renamed)
			}
			i := indexTopic(subj.Materials, k)
			subj.Materials[i].Name = newName
			s.replicate(subj.Materials[i])
		case KindSource:
			if indexSource(subj.Sources, k) < 0 {
				return nil
			}
			if renamed != k {
				subj.Sources = removeSource(subj.Sources, renamed)
			}
			i := indexSource(subj.Sources, k)
			subj.Sources[i].Name = newName
		}
		return []EventKind{MaterialsChanged}
	})
}

// UpdateTopicContent writes text into the field selected by kind:
// NotesContent for Notes, CheatsheetContent for Cheatsheet, Body otherwise.
// The topic of material type kind is updated when the name has several.
func (s *Store) UpdateTopicContent(subject, topicName, text string, kind MaterialType) {
	subject = resolveSubject(subject)
	topicName = normalizeName(topicName)
	s.mutate(func() []EventKind {
		t := s.findTopicLocked(subject, topicName, kind)
		if t == nil {
			return nil
		}
		switch kind {
		case MaterialNotes:
			t.NotesContent = text
		case MaterialCheatsheet:
			t.CheatsheetContent = text
		default:
			t.Body = text
		}
		s.replicate(*t)
		return []EventKind{MaterialsChanged}
	})
}

// AppendAttempt adds a to the history of the topic with topic's name and
// material type, and sets its LastAccessed marker to "Score: x/y".
// Existing attempts are never touched.
func (s *Store) AppendAttempt(subject string, topic Topic, a Attempt) {
	subject = resolveSubject(subject)
	k := keyOf(topic)
	s.mutate(func() []EventKind {
		subj, ok := s.subjects[subject]
		if !ok {
			return nil
		}
		i := indexTopic(subj.Materials, k)
		if i < 0 {
			return nil
		}
		t := &subj.Materials[i]
		t.Attempts = append(t.Attempts, a)
		t.LastAccessed = ScoreMarker(a.Score, a.TotalQuestions)
		s.replicate(*t)
		return []EventKind{MaterialsChanged}
	})
}

// ScoreMarker is the LastAccessed text written after a saved attempt.
func ScoreMarker(score, total int) string {
	return fmt.Sprintf("Score: %d/%d", score, total)
}

// --- Reads ---

// Subjects returns all subject names in sorted order.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedNamesLocked()
}

// Subject returns a copy of the named subject.
func (s *Store) Subject(name string) (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[normalizeName(name)]
	if !ok {
		return Subject{}, false
	}
	return subj.clone(), true
}

// Sources returns the imported sources of a subject in insertion order.
func (s *Store) Sources(subject string) []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[resolveSubject(subject)]
	if !ok {
		return nil
	}
	return append([]Source(nil), subj.Sources...)
}

// Topic returns the first topic with the given name in the subject.
func (s *Store) Topic(subject, name string) (Topic, bool) {
	return s.TopicOfType(subject, name, "")
}

// TopicOfType returns the topic identified by name and material type. An
// empty mt matches the first topic with the name.
func (s *Store) TopicOfType(subject, name string, mt MaterialType) (Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[resolveSubject(subject)]
	if !ok {
		return Topic{}, false
	}
	name = normalizeName(name)
	for _, t := range subj.Materials {
		if t.Name == name && (mt == "" || t.MaterialType == mt) {
			return t.clone(), true
		}
	}
	return Topic{}, false
}

// AllTopics flattens every subject's materials and orders them by the
// recency marker heuristic. Subjects are visited in name order, so topics
// with the same rank keep a stable order.
func (s *Store) AllTopics() []Topic {
	s.mu.RLock()
	var out []Topic
	for _, name := range s.sortedNamesLocked() {
		for _, t := range s.subjects[name].Materials {
			out = append(out, t.clone())
		}
	}
	s.mu.RUnlock()

	sortByRecency(out)
	return out
}

// DetailedContent returns the topic's notes, else its body, else NoContent.
func (s *Store) DetailedContent(subject, topicName string) string {
	t, ok := s.Topic(subject, topicName)
	if !ok {
		return NoContent
	}
	switch {
	case t.NotesContent != "":
		return t.NotesContent
	case t.Body != "":
		return t.Body
	default:
		return NoContent
	}
}

// LatestAttempt returns the most recent attempt of the named quiz.
func (s *Store) LatestAttempt(subject, topicName string) (Attempt, bool) {
	t, ok := s.TopicOfType(subject, topicName, MaterialQuiz)
	if !ok {
		return Attempt{}, false
	}
	return t.LatestAttempt()
}

// --- internals ---

// mutate runs fn under the write lock. If fn reports events, the new state
// is handed to the writer before unlocking, so snapshots reach the writer
// in mutation order. Events are published after unlocking.
func (s *Store) mutate(fn func() []EventKind) {
	s.mu.Lock()
	events := fn()
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	data, err := encodeDocument(s.subjects)
	if err != nil {
		slog.Error("failed to encode store snapshot", "error", err)
	} else {
		s.persister.schedule(data)
	}
	s.mu.Unlock()

	for _, kind := range events {
		s.bus.Publish(kind)
	}
}

// replicate sends a copy of t to the replicator on its own goroutine.
// Must be called with mu held so the copy is consistent.
func (s *Store) replicate(t Topic) {
	if s.replicator == nil {
		return
	}
	snapshot := t.clone()
	s.replWG.Add(1)
	go func() {
		defer s.replWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), replicationTimeout)
		defer cancel()
		if err := s.replicator.UpsertTopic(ctx, snapshot); err != nil {
			slog.Warn("topic replication failed",
				"subject", snapshot.ParentSubject,
				"topic", snapshot.Name,
				"error", err,
			)
		}
	}()
}

func (s *Store) ensureSubject(name string) (*Subject, bool) {
	if subj, ok := s.subjects[name]; ok {
		return subj, false
	}
	subj := newSubject()
	s.subjects[name] = subj
	return subj, true
}

// findTopicLocked returns the topic with name and material type prefer,
// else the first topic with name.
func (s *Store) findTopicLocked(subject, name string, prefer MaterialType) *Topic {
	subj, ok := s.subjects[subject]
	if !ok {
		return nil
	}
	first := -1
	for i := range subj.Materials {
		if subj.Materials[i].Name != name {
			continue
		}
		if subj.Materials[i].MaterialType == prefer {
			return &subj.Materials[i]
		}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return nil
	}
	return &subj.Materials[first]
}

func (s *Store) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.subjects))
	for name := range s.subjects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newSubject() *Subject {
	return &Subject{Materials: []Topic{}, Sources: []Source{}}
}

func withFolders(created bool, kind EventKind) []EventKind {
	if created {
		return []EventKind{FoldersChanged, kind}
	}
	return []EventKind{kind}
}

func indexTopic(topics []Topic, k itemKey) int {
	for i := range topics {
		if keyOf(topics[i]) == k {
			return i
		}
	}
	return -1
}

func indexSource(sources []Source, k itemKey) int {
	for i := range sources {
		if keyOf(sources[i]) == k {
			return i
		}
	}
	return -1
}

func removeTopic(topics []Topic, k itemKey) []Topic {
	out := topics[:0]
	for _, t := range topics {
		if keyOf(t) != k {
			out = append(out, t)
		}
	}
	return out
}

func removeSource(sources []Source, k itemKey) []Source {
	out := sources[:0]
	for _, src := range sources {
		if keyOf(src) != k {
			out = append(out, src)
		}
	}
	return out
}

// normalizeName trims surrounding space and puts the name in NFC form so
// that composed and decomposed spellings share one identity.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func resolveSubject(name string) string {
	if n := normalizeName(name); n != "" {
		return n
	}
	return DefaultSubject
}
