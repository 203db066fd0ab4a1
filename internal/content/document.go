package content

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// The persisted document maps subject name to its two segments. Every item
// is wrapped with an explicit "kind" discriminant:
//
//	{"Physics": {"Materials": [{"kind": "topic", "topic": {...}}],
//	             "Sources":   [{"kind": "source", "source": {...}}]}}

type wireItem struct {
	Kind   ItemKind `json:"kind"`
	Topic  *Topic   `json:"topic,omitempty"`
	Source *Source  `json:"source,omitempty"`
}

type wireSubject struct {
	Materials []wireItem `json:"Materials"`
	Sources   []wireItem `json:"Sources"`
}

func encodeDocument(subjects map[string]*Subject) ([]byte, error) {
	doc := make(map[string]wireSubject, len(subjects))
	for name, subj := range subjects {
		ws := wireSubject{
			Materials: make([]wireItem, 0, len(subj.Materials)),
			Sources:   make([]wireItem, 0, len(subj.Sources)),
		}
		for i := range subj.Materials {
			t := subj.Materials[i]
			if t.Attempts == nil {
				t.Attempts = []Attempt{}
			}
			ws.Materials = append(ws.Materials, wireItem{Kind: KindTopic, Topic: &t})
		}
		for i := range subj.Sources {
			src := subj.Sources[i]
			ws.Sources = append(ws.Sources, wireItem{Kind: KindSource, Source: &src})
		}
		doc[name] = ws
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling store document: %w", err)
	}
	return data, nil
}

// decodeDocument parses a persisted document. Items with an unknown kind,
// or whose payload does not match their kind, are dropped with a warning;
// anything else that fails to parse fails the whole document.
func decodeDocument(data []byte) (map[string]*Subject, error) {
	var doc map[string]wireSubject
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing store document: %w", err)
	}

	subjects := make(map[string]*Subject, len(doc))
	for rawName, ws := range doc {
		name := normalizeName(rawName)
		if name == "" {
			slog.Warn("skipping subject with empty name in store document")
			continue
		}
		subj := &Subject{Materials: []Topic{}, Sources: []Source{}}
		for _, it := range append(append([]wireItem{}, ws.Materials...), ws.Sources...) {
			switch {
			case it.Kind == KindTopic && it.Topic != nil:
				t := *it.Topic
				t.Name = normalizeName(t.Name)
				if t.Attempts == nil {
					t.Attempts = []Attempt{}
				}
				subj.Materials = append(subj.Materials, t)
			case it.Kind == KindSource && it.Source != nil:
				src := *it.Source
				src.Name = normalizeName(src.Name)
				subj.Sources = append(subj.Sources, src)
			default:
				slog.Warn("dropping unrecognised item in store document",
					"subject", name,
					"kind", it.Kind,
				)
			}
		}
		subjects[name] = subj
	}
	return subjects, nil
}
