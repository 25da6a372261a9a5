package timeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/chatreel/internal/media"
)

func TestStore_AppendValidates(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "t.yaml"), "r")

	bad := []*Entry{
		{Frame: "f.png", Duration: 0, Body: &Message{Text: "x"}},
		{Frame: "", Duration: 1, Body: &Message{Text: "x"}},
		{Frame: "f.png", Duration: 1},
		{Frame: "f.png", Duration: 1, Speaker: "Jay", Body: &Keystroke{Text: "a|"}},
	}
	for i, e := range bad {
		if err := s.Append(e); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if s.Len() != 0 {
		t.Errorf("invalid entries were stored")
	}
}

func TestStore_RoundTripVariants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.yaml")
	s := NewStore(path, "r")
	asset := &media.Asset{Path: "m.gif", Ext: ".gif", Mime: "image/gif", Class: media.ClassAnimated, Width: 10, Height: 20, DurationHint: 1.2}

	entries := []*Entry{
		{Frame: "1.png", Duration: 0.05, Speaker: "Banka", Primary: true, Body: &Keystroke{Text: "h|", Sound: true, SessionID: "s1"}},
		{Frame: "2.png", Duration: 1.5, Speaker: "Jay", Body: &TypingIndicator{}},
		{Frame: "3.png", Duration: 2.5, Speaker: "Jay", Body: &Message{Text: "hi", Media: asset}},
		{Frame: "4.png", Duration: 3.0, Speaker: "Jay", Body: &Meme{Media: asset}},
	}
	for _, e := range entries {
		if err := s.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got := reopened.Entries()
	if len(got) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(got))
	}
	if k := got[0].Body.(*Keystroke); !k.Sound || k.SessionID != "s1" || k.Text != "h|" {
		t.Errorf("keystroke lost fields: %+v", k)
	}
	if _, ok := got[1].Body.(*TypingIndicator); !ok {
		t.Errorf("expected indicator, got %T", got[1].Body)
	}
	if m := got[2].Media(); m == nil || m.DurationHint != 1.2 || m.Class != media.ClassAnimated {
		t.Errorf("media lost: %+v", m)
	}
	if got[3].Kind() != KindMeme || got[3].Index != 3 {
		t.Errorf("unexpected meme entry %+v", got[3])
	}
	if total := reopened.Document().Total(); total != 0.05+1.5+2.5+3.0 {
		t.Errorf("unexpected total %f", total)
	}
}

func TestLoad_RejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.yaml")
	data := "run_id: r\nentries:\n  - index: 0\n    kind: hologram\n    frame: a.png\n    duration: 1\n"
	os.WriteFile(path, []byte(data), 0644)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "hologram") {
		t.Errorf("Expected unknown kind error, got %v", err)
	}
}

func TestAttachMedia(t *testing.T) {
	asset := &media.Asset{Path: "m.png"}
	tests := []struct {
		name string
		body Body
		ok   bool
	}{
		{"plain message", &Message{Text: "hi"}, true},
		{"empty text", &Message{}, false},
		{"already has media", &Message{Text: "hi", Media: asset}, false},
		{"indicator", &TypingIndicator{}, false},
		{"meme", &Meme{Media: asset}, false},
		{"keystroke", &Keystroke{Text: "h|"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Frame: "f", Duration: 1, Body: tt.body}
			err := e.AttachMedia(asset)
			if (err == nil) != tt.ok {
				t.Errorf("AttachMedia err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && e.Media() != asset {
				t.Error("media not attached")
			}
		})
	}
}
