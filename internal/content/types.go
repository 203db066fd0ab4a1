// Package content is the single source of truth for subjects, their study
// materials and their imported sources.
//
// The Store keeps everything in memory behind one mutex, publishes a change
// event after every mutation, and hands a full-document snapshot to a
// background writer that replaces the file on disk atomically.
package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/p-n-ai/pai-study/internal/codec"
)

// DefaultSubject receives topics and sources upserted without a subject.
const DefaultSubject = "General Study"

// NoContent is returned by DetailedContent when a topic has no body at all.
const NoContent = "No content available for this topic."

// --- Material type enum ---

// MaterialType distinguishes the four kinds of study material.
type MaterialType string

const (
	MaterialQuiz       MaterialType = "Quiz"
	MaterialFlashcards MaterialType = "Flashcards"
	MaterialNotes      MaterialType = "Notes"
	MaterialCheatsheet MaterialType = "Cheatsheet"
)

var materialTypes = []MaterialType{MaterialQuiz, MaterialFlashcards, MaterialNotes, MaterialCheatsheet}

// Valid reports whether m is one of the four known material types.
func (m MaterialType) Valid() bool {
	for _, t := range materialTypes {
		if m == t {
			return true
		}
	}
	return false
}

// ParseMaterialType accepts any casing of a material type name, plus
// "cheat-sheet" and "flashcard".
func ParseMaterialType(s string) (MaterialType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiz":
		return MaterialQuiz, nil
	case "flashcards", "flashcard":
		return MaterialFlashcards, nil
	case "notes", "note":
		return MaterialNotes, nil
	case "cheatsheet", "cheat-sheet", "cheat sheet":
		return MaterialCheatsheet, nil
	}
	return "", fmt.Errorf("invalid material type %q: must be one of: Quiz, Flashcards, Notes, Cheatsheet", s)
}

// --- Items ---

// ItemKind is the discriminant of the Item union.
type ItemKind string

const (
	KindTopic  ItemKind = "topic"
	KindSource ItemKind = "source"
)

// Item is either a Topic or a Source. The set is closed: only this package
// can add variants.
type Item interface {
	Kind() ItemKind
	DisplayName() string
	isItem()
}

// Attempt is one saved quiz run. Attempts are appended, never edited.
type Attempt struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	SummaryData    string    `json:"summaryData"`
}

// Topic is a single study material inside a subject's Materials segment.
// Identity within a segment is (Name, MaterialType).
type Topic struct {
	Name              string           `json:"name"`
	LastAccessed      string           `json:"lastAccessed"`
	MaterialType      MaterialType     `json:"materialType"`
	ParentSubject     string           `json:"parentSubjectName"`
	NotesContent      string           `json:"notesContent,omitempty"`
	CheatsheetContent string           `json:"cheatsheetContent,omitempty"`
	Body              string           `json:"largeContentBody,omitempty"`
	QuizQuestions     []codec.Question `json:"quizQuestions,omitempty"`
	Attempts          []Attempt        `json:"attempts"`
}

func (Topic) Kind() ItemKind        { return KindTopic }
func (t Topic) DisplayName() string { return t.Name }
func (Topic) isItem()               {}

// LatestAttempt returns the most recent attempt, if any.
func (t Topic) LatestAttempt() (Attempt, bool) {
	if len(t.Attempts) == 0 {
		return Attempt{}, false
	}
	return t.Attempts[len(t.Attempts)-1], true
}

func (t Topic) clone() Topic {
	if t.QuizQuestions != nil {
		t.QuizQuestions = append([]codec.Question(nil), t.QuizQuestions...)
	}
	t.Attempts = append([]Attempt{}, t.Attempts...)
	return t
}

// Source is an imported reference file or link. Identity is Name.
type Source struct {
	Name     string `json:"name"`
	FileType string `json:"fileType"`
	Size     string `json:"size"`
}

func (Source) Kind() ItemKind        { return KindSource }
func (s Source) DisplayName() string { return s.Name }
func (Source) isItem()               {}

// itemKey is the identity an item is matched by inside a segment.
type itemKey struct {
	kind     ItemKind
	name     string
	material MaterialType
}

func keyOf(it Item) itemKey {
	switch v := it.(type) {
	case Topic:
		return itemKey{kind: KindTopic, name: normalizeName(v.Name), material: v.MaterialType}
	case *Topic:
		return itemKey{kind: KindTopic, name: normalizeName(v.Name), material: v.MaterialType}
	case Source:
		return itemKey{kind: KindSource, name: normalizeName(v.Name)}
	case *Source:
		return itemKey{kind: KindSource, name: normalizeName(v.Name)}
	default:
		panic(fmt.Sprintf("content: unknown item type %T", it))
	}
}

// --- Subject ---

// Subject is a named folder with two insertion-ordered segments.
type Subject struct {
	Materials []Topic  `json:"Materials"`
	Sources   []Source `json:"Sources"`
}

func (s Subject) clone() Subject {
	out := Subject{
		Materials: make([]Topic, len(s.Materials)),
		Sources:   append([]Source{}, s.Sources...),
	}
	for i, t := range s.Materials {
		out.Materials[i] = t.clone()
	}
	return out
}
