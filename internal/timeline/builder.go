package timeline

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/duration"
	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/participant"
	"github.com/ivlev/chatreel/internal/render"
	"github.com/ivlev/chatreel/internal/script"
	"github.com/ivlev/chatreel/internal/typing"
	"github.com/ivlev/chatreel/internal/xcall"
)

// MemeFetcher is the media-search collaborator as the builder sees it.
type MemeFetcher interface {
	Fetch(ctx context.Context, query string) (*media.Asset, error)
}

// Stats summarizes one build.
type Stats struct {
	Lines         int
	Entries       int
	SkippedLines  int
	SkippedFrames int
	DegradedMemes int
	Memes         int
}

// Builder turns script lines into stored timeline entries, rendering one frame per entry.
type Builder struct {
	Registry  *participant.Registry
	Estimator *duration.Estimator
	Typing    *typing.Generator
	Fetcher   MemeFetcher
	Store     *Store
	Rng       *rand.Rand
	Logger    *slog.Logger

	// OpenRenderer is called once per Build; the renderer is closed when Build returns.
	OpenRenderer func() (render.Renderer, error)

	Title           string
	IndicatorChance float64
	RenderTimeout   time.Duration
	// History caps how many sent messages stay visible on a frame.
	History int
	// OnMeme receives every meme resolved during the build.
	OnMeme func(*media.Asset)
	// NewSessionID mints typing session ids.
	NewSessionID func() string

	renderer render.Renderer
	visible  []render.Bubble
	stats    Stats
}

// Build processes lines in order. Per-line failures are logged and counted; only a renderer
// that cannot be opened, a timeline that cannot be persisted, or an empty result fail the build.
func (b *Builder) Build(ctx context.Context, lines []script.Line) (st Stats, err error) {
	r, err := b.OpenRenderer()
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to open renderer")
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close renderer")
		}
	}()

	b.renderer = r
	b.visible = nil
	b.stats = Stats{}
	if b.NewSessionID == nil {
		b.NewSessionID = uuid.NewString
	}

	for _, line := range lines {
		b.stats.Lines++
		if err := b.processLine(ctx, line); err != nil {
			return b.stats, err
		}
	}

	b.stats.Entries = b.Store.Len()
	if b.Store.Len() == 0 {
		return b.stats, errors.WithStack(ErrNoEntries)
	}
	return b.stats, nil
}

// processLine renders a line's sub-frames and its message, then commits them together. The
// returned error is a persistence failure; render and search failures are absorbed here.
func (b *Builder) processLine(ctx context.Context, line script.Line) error {
	log := b.Logger.With("line", line.Number, "speaker", line.Speaker)
	b.Registry.Add(line.Speaker)
	primary := b.Registry.IsPrimary(line.Speaker)

	var asset *media.Asset
	if line.HasMeme() {
		a, err := b.Fetcher.Fetch(ctx, line.MemeQuery)
		if err != nil {
			b.stats.DegradedMemes++
			log.Warn("meme resolution failed, using caption only", "query", line.MemeQuery, "error", err)
		} else {
			asset = a
			b.stats.Memes++
			if b.OnMeme != nil {
				b.OnMeme(a)
			}
		}
	}

	if line.Text == "" && asset == nil {
		b.stats.SkippedLines++
		log.Warn("line has nothing to show")
		return nil
	}

	var pending []*Entry
	switch {
	case primary && line.Text != "":
		pending = b.keystrokes(ctx, line, log)
	case !primary && b.Rng.Float64() < b.IndicatorChance:
		if e := b.indicator(ctx, line, log); e != nil {
			pending = append(pending, e)
		}
	}

	bubble := render.Bubble{Speaker: line.Speaker, Text: line.Text, Primary: primary, Media: asset}
	frame, err := b.render(ctx, render.FrameState{Title: b.Title, Messages: b.visible}.With(bubble))
	if err != nil {
		b.stats.SkippedFrames++
		b.stats.SkippedLines++
		log.Warn("message render failed, line skipped", "dropped_frames", len(pending), "error", err)
		return nil
	}

	msg := &Entry{Line: line.Number, Frame: frame, Speaker: line.Speaker, Primary: primary}
	switch {
	case line.Text == "":
		msg.Body = &Meme{Media: asset}
		msg.Duration = b.Estimator.Meme(asset)
	case asset != nil:
		msg.Body = &Message{Text: line.Text, Media: asset}
		msg.Duration = b.Estimator.Combined(line.Text, asset)
	default:
		msg.Body = &Message{Text: line.Text}
		msg.Duration = b.Estimator.Text(line.Text)
	}
	pending = append(pending, msg)

	for _, e := range pending {
		if err := b.Store.Append(e); err != nil {
			return errors.Wrapf(err, "line %d", line.Number)
		}
	}

	b.visible = append(b.visible, bubble)
	if b.History > 0 && len(b.visible) > b.History {
		b.visible = b.visible[len(b.visible)-b.History:]
	}
	return nil
}

// keystrokes renders the typing-bar animation. A session id is minted when active typing starts
// and cleared when it stops, so one burst shares one id.
func (b *Builder) keystrokes(ctx context.Context, line script.Line, log *slog.Logger) []*Entry {
	var out []*Entry
	session := ""
	for f := range b.Typing.Sequence(line.Text) {
		active := f.Sound && strings.TrimSuffix(f.Text, typing.Cursor) != ""
		switch {
		case active && session == "":
			session = b.NewSessionID()
		case !active:
			session = ""
		}

		state := render.FrameState{
			Title:    b.Title,
			Messages: b.visible,
			Bar:      &render.TypingBar{Speaker: line.Speaker, Text: f.Text},
		}
		frame, err := b.render(ctx, state)
		if err != nil {
			b.stats.SkippedFrames++
			log.Warn("typing frame render failed", "text", f.Text, "error", err)
			continue
		}
		out = append(out, &Entry{
			Line:     line.Number,
			Frame:    frame,
			Duration: f.Duration,
			Speaker:  line.Speaker,
			Primary:  true,
			Body:     &Keystroke{Text: f.Text, Sound: f.Sound, SessionID: session},
		})
	}
	return out
}

func (b *Builder) indicator(ctx context.Context, line script.Line, log *slog.Logger) *Entry {
	state := render.FrameState{Title: b.Title, Messages: b.visible, Indicator: line.Speaker}
	frame, err := b.render(ctx, state)
	if err != nil {
		b.stats.SkippedFrames++
		log.Warn("typing indicator render failed", "error", err)
		return nil
	}
	return &Entry{
		Line:     line.Number,
		Frame:    frame,
		Duration: b.Estimator.Indicator(),
		Speaker:  line.Speaker,
		Body:     &TypingIndicator{},
	}
}

func (b *Builder) render(ctx context.Context, state render.FrameState) (string, error) {
	return xcall.Do(ctx, b.RenderTimeout, "", func(ctx context.Context) (string, error) {
		return b.renderer.Render(ctx, state)
	})
}
