// Package manifest turns a finished timeline into the ordered (frame, duration) edit list the
// encoder consumes.
package manifest

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/source"
	"github.com/ivlev/chatreel/internal/timeline"
)

var ErrNoFrames = errors.New("no valid frames survived filtering")

// ClosingEntry marks the closing card in Pair.Entry.
const ClosingEntry = -1

var FallbackMorals = []string{
	"And that's why you should always think before you type",
	"Moral of the story: Think twice, send once",
	"The lesson: Great conversations create great connections",
	"Remember: Quality over quantity in every conversation",
	"The takeaway: Every message matters",
	"Moral: Better conversations lead to better relationships",
}

// Pair is one edit list item.
type Pair struct {
	Path      string
	Duration  float64
	Clip      bool
	Entry     int
	SessionID string

	// Message marks pairs that show a sent message or meme and get a send/receive sound.
	Message bool
	Primary bool
}

type Manifest struct {
	Pairs   []Pair
	Closing *Pair
	Skipped int
	Total   float64
}

// All returns the pairs in playback order, closing card last.
func (m *Manifest) All() []Pair {
	if m.Closing == nil {
		return m.Pairs
	}
	return append(m.Pairs[:len(m.Pairs):len(m.Pairs)], *m.Closing)
}

type Preparer interface {
	Prepare(ctx context.Context, a *media.Asset, hold float64, index int) (media.Prepared, error)
}

// Closing configures the card appended after the last entry.
type Closing struct {
	Enabled  bool
	Text     string
	Link     string
	Duration float64
	Path     string
	Width    int
	Height   int
}

type Builder struct {
	Preparer    Preparer
	FollowDelay float64
	Closing     Closing
	// Card draws the closing card image.
	Card   func(path, text, link string, width, height int) error
	Rng    *rand.Rand
	Logger *slog.Logger
}

// Build walks entries in stored order. Entries whose frame is unusable are repaired from their
// raw meme when they have one, and skipped otherwise.
func (b *Builder) Build(ctx context.Context, entries []*timeline.Entry) (*Manifest, error) {
	m := &Manifest{}

	for i, e := range entries {
		d := e.Duration
		if i > 0 && b.followsOwnText(entries[i-1], e) {
			d += b.FollowDelay
		}

		msg := e.Kind() == timeline.KindMessage || e.Kind() == timeline.KindMeme
		if usableFrame(e.Frame) {
			m.add(Pair{Path: e.Frame, Duration: d, Entry: e.Index, SessionID: e.SessionID(), Message: msg, Primary: e.Primary})
			continue
		}

		a := e.Media()
		if a == nil {
			m.Skipped++
			b.Logger.Warn("frame missing or invalid, entry skipped", "entry", e.Index, "frame", e.Frame)
			continue
		}

		p, err := b.Preparer.Prepare(ctx, a, d, e.Index)
		if err != nil || !usablePrepared(p) {
			m.Skipped++
			b.Logger.Warn("meme preparation failed, entry skipped", "entry", e.Index, "meme", a.Path, "error", err)
			continue
		}
		b.Logger.Info("frame replaced by prepared meme", "entry", e.Index, "path", p.Path, "clip", p.Clip)
		m.add(Pair{Path: p.Path, Duration: p.Duration, Clip: p.Clip, Entry: e.Index, Message: msg, Primary: e.Primary})
	}

	if len(m.Pairs) == 0 {
		return nil, errors.Wrapf(ErrNoFrames, "%d entries, %d skipped", len(entries), m.Skipped)
	}

	if b.Closing.Enabled && b.Closing.Duration > 0 {
		text := b.closingText()
		if err := b.Card(b.Closing.Path, text, b.Closing.Link, b.Closing.Width, b.Closing.Height); err != nil {
			b.Logger.Warn("closing card failed, omitted", "error", err)
		} else {
			m.Closing = &Pair{Path: b.Closing.Path, Duration: b.Closing.Duration, Entry: ClosingEntry}
			m.Total += b.Closing.Duration
		}
	}
	return m, nil
}

func (m *Manifest) add(p Pair) {
	m.Pairs = append(m.Pairs, p)
	m.Total += p.Duration
}

// followsOwnText reports a caption-less meme sent right after the same speaker's text.
func (b *Builder) followsOwnText(prev, cur *timeline.Entry) bool {
	return cur.Kind() == timeline.KindMeme &&
		prev.Kind() == timeline.KindMessage &&
		prev.Media() == nil && prev.Text() != "" &&
		strings.EqualFold(prev.Speaker, cur.Speaker)
}

func (b *Builder) closingText() string {
	if t := strings.TrimSpace(b.Closing.Text); t != "" {
		return t
	}
	return FallbackMorals[b.Rng.Intn(len(FallbackMorals))]
}

// usableFrame decodes the whole image: a header-only check passes truncated renders.
func usableFrame(path string) bool {
	return path != "" && source.IsDecodable(path)
}

func usablePrepared(p media.Prepared) bool {
	if p.Duration <= 0 {
		return false
	}
	if p.Clip {
		fi, err := os.Stat(p.Path)
		return err == nil && fi.Size() > 0
	}
	return source.IsDecodable(p.Path)
}

// abs resolves relative frame paths for the concat demuxer, which resolves them against the list.
func abs(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return path
}
