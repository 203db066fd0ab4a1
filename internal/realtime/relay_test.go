package realtime

import (
	"encoding/json"
	"testing"

	"github.com/p-n-ai/pai-study/internal/content"
)

func TestRelay_Decode(t *testing.T) {
	r := NewRelay(nil, "")
	if r.channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", r.channel, DefaultChannel)
	}

	encode := func(origin string, kind content.EventKind) string {
		data, _ := json.Marshal(envelope{Origin: origin, Event: kind})
		return string(data)
	}

	tests := []struct {
		name    string
		payload string
		want    content.EventKind
		remote  bool
	}{
		{"remote folders", encode("other", content.FoldersChanged), content.FoldersChanged, true},
		{"remote materials", encode("other", content.MaterialsChanged), content.MaterialsChanged, true},
		{"own event", encode(r.origin, content.FoldersChanged), "", false},
		{"unknown event", encode("other", "somethingElse"), "", false},
		{"malformed", "{not json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, remote := r.decode(tt.payload)
			if remote != tt.remote || ev.Kind != tt.want {
				t.Errorf("decode() = (%q, %v), want (%q, %v)", ev.Kind, remote, tt.want, tt.remote)
			}
		})
	}
}

func TestRelay_DistinctOrigins(t *testing.T) {
	if NewRelay(nil, "c").origin == NewRelay(nil, "c").origin {
		t.Error("two relays share an origin id")
	}
}
