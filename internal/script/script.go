// Package script parses chat scripts of the form "speaker: message".
package script

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const DefaultMarker = "[MEME]"

// Line is one parsed script line. Text is the caption part when a meme marker is present.
type Line struct {
	Number    int
	Speaker   string
	Text      string
	MemeQuery string
}

func (l Line) HasMeme() bool {
	return l.MemeQuery != ""
}

type Parser struct {
	Marker string
	Logger *slog.Logger
}

func NewParser(marker string, logger *slog.Logger) *Parser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Parser{Marker: marker, Logger: logger}
}

// Parse reads lines from r. Blank lines and "#" comments are ignored; malformed lines are skipped
// with a warning. The second return value counts skipped lines.
func (p *Parser) Parse(r io.Reader) ([]Line, int, error) {
	var lines []Line
	skipped := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		line, ok := p.ParseLine(raw)
		if !ok {
			skipped++
			p.Logger.Warn("script line skipped", "line", n, "text", truncate(raw, 40))
			continue
		}
		line.Number = n
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return lines, skipped, errors.Wrap(err, "failed to read script")
	}
	return lines, skipped, nil
}

func (p *Parser) ParseFile(path string) ([]Line, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open script %s", path)
	}
	defer f.Close()
	return p.Parse(f)
}

// ParseStrings parses already-split lines, e.g. dialogue returned by a text-completion service.
func (p *Parser) ParseStrings(raw []string) ([]Line, int) {
	lines, skipped, _ := p.Parse(strings.NewReader(strings.Join(raw, "\n")))
	return lines, skipped
}

// ParseLine splits one "speaker: message" line. A line needs a non-empty speaker and either
// text or a meme query.
func (p *Parser) ParseLine(raw string) (Line, bool) {
	speaker, message, found := strings.Cut(raw, ":")
	if !found {
		return Line{}, false
	}
	speaker = strings.TrimSpace(speaker)
	message = strings.TrimSpace(message)
	if speaker == "" {
		return Line{}, false
	}

	line := Line{Speaker: speaker, Text: message}
	if caption, query, ok := strings.Cut(message, p.Marker); ok {
		line.Text = strings.TrimSpace(caption)
		line.MemeQuery = strings.TrimSpace(query)
	}

	if line.Text == "" && line.MemeQuery == "" {
		return Line{}, false
	}
	return line, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
