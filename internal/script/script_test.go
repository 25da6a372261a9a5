package script

import (
	"strings"
	"testing"

	"github.com/ivlev/chatreel/internal/logging"
)

func TestParseLine(t *testing.T) {
	p := NewParser("", logging.Discard())

	tests := []struct {
		raw     string
		ok      bool
		speaker string
		text    string
		query   string
	}{
		{"Banka: Hi there", true, "Banka", "Hi there", ""},
		{"Jay: lol [MEME] funny cat", true, "Jay", "lol", "funny cat"},
		{"Jay: [MEME] confused chimpanzee", true, "Jay", "", "confused chimpanzee"},
		{"Jay: time is 10:30", true, "Jay", "time is 10:30", ""},
		{"Jay: ok [MEME]", true, "Jay", "ok", ""},
		{"no colon here", false, "", "", ""},
		{": orphan message", false, "", "", ""},
		{"Jay:   ", false, "", "", ""},
		{"Jay: [MEME]", false, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			line, ok := p.ParseLine(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if !ok {
				return
			}
			if line.Speaker != tt.speaker || line.Text != tt.text || line.MemeQuery != tt.query {
				t.Errorf("got %+v, want speaker=%q text=%q query=%q", line, tt.speaker, tt.text, tt.query)
			}
			if line.HasMeme() != (tt.query != "") {
				t.Errorf("HasMeme() = %v", line.HasMeme())
			}
		})
	}
}

func TestParse_SkipsAndNumbers(t *testing.T) {
	input := strings.Join([]string{
		"# cast: Banka, Jay",
		"Banka: Hey guys",
		"",
		"garbage line",
		"Jay: sup [MEME] wave",
	}, "\n")

	lines, skipped, err := NewParser("[MEME]", logging.Discard()).Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped line, got %d", skipped)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].Number != 2 || lines[1].Number != 5 {
		t.Errorf("unexpected line numbers %d, %d", lines[0].Number, lines[1].Number)
	}
	if lines[1].MemeQuery != "wave" {
		t.Errorf("Expected meme query 'wave', got %q", lines[1].MemeQuery)
	}
}

func TestParseStrings(t *testing.T) {
	lines, skipped := NewParser("", logging.Discard()).ParseStrings([]string{"A: one", "bad", "B: two"})
	if len(lines) != 2 || skipped != 1 {
		t.Errorf("got %d lines, %d skipped", len(lines), skipped)
	}
}
