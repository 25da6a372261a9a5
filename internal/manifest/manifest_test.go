package manifest

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/logging"
	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/timeline"
)

func writePNG(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakePreparer struct {
	dir   string
	fail  bool
	calls int
}

func (f *fakePreparer) Prepare(ctx context.Context, a *media.Asset, hold float64, index int) (media.Prepared, error) {
	f.calls++
	if f.fail {
		return media.Prepared{}, errors.New("transcode failed")
	}
	return media.Prepared{Path: writePNGNoT(filepath.Join(f.dir, "prepared.png")), Duration: hold}, nil
}

func writePNGNoT(path string) string {
	f, _ := os.Create(path)
	defer f.Close()
	png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	return path
}

func newBuilder(t *testing.T, prep Preparer, closing bool) (*Builder, *[]string) {
	t.Helper()
	dir := t.TempDir()
	var cards []string
	return &Builder{
		Preparer:    prep,
		FollowDelay: 0.5,
		Closing: Closing{
			Enabled:  closing,
			Duration: 4.0,
			Path:     filepath.Join(dir, "closing.png"),
			Width:    64,
			Height:   36,
		},
		Card: func(path, text, link string, w, h int) error {
			cards = append(cards, text)
			writePNGNoT(path)
			return nil
		},
		Rng:    rand.New(rand.NewSource(1)),
		Logger: logging.Discard(),
	}, &cards
}

func TestBuild_TotalAndOrder(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, filepath.Join(dir, "a.png"))
	b := writePNG(t, filepath.Join(dir, "b.png"))

	entries := []*timeline.Entry{
		{Index: 0, Frame: a, Duration: 0.05, Speaker: "Banka", Primary: true, Body: &timeline.Keystroke{Text: "h|", Sound: true, SessionID: "s1"}},
		{Index: 1, Frame: filepath.Join(dir, "missing.png"), Duration: 2.5, Body: &timeline.Message{Text: "lost"}},
		{Index: 2, Frame: b, Duration: 2.5, Speaker: "Banka", Primary: true, Body: &timeline.Message{Text: "hi"}},
	}

	builder, cards := newBuilder(t, &fakePreparer{dir: dir}, true)
	m, err := builder.Build(context.Background(), entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Pairs) != 2 || m.Skipped != 1 {
		t.Fatalf("Expected 2 pairs and 1 skipped, got %d/%d", len(m.Pairs), m.Skipped)
	}
	if m.Pairs[0].Path != a || m.Pairs[1].Path != b || m.Pairs[0].SessionID != "s1" {
		t.Errorf("unexpected pairs %+v", m.Pairs)
	}
	if m.Pairs[0].Message || !m.Pairs[1].Message || !m.Pairs[1].Primary {
		t.Errorf("message flags wrong: %+v", m.Pairs)
	}

	sum := 0.0
	for _, p := range m.Pairs {
		sum += p.Duration
	}
	if m.Closing == nil || math.Abs(m.Total-(sum+4.0)) > 1e-9 {
		t.Errorf("Total %f, want %f", m.Total, sum+4.0)
	}
	if len(*cards) != 1 || !slices.Contains(FallbackMorals, (*cards)[0]) {
		t.Errorf("expected one fallback moral, got %v", *cards)
	}
	if all := m.All(); len(all) != 3 || all[2].Entry != ClosingEntry {
		t.Errorf("closing must come last: %+v", all)
	}
}

func TestBuild_ClosingText(t *testing.T) {
	dir := t.TempDir()
	entries := []*timeline.Entry{{Frame: writePNG(t, filepath.Join(dir, "a.png")), Duration: 1, Body: &timeline.Message{Text: "x"}}}

	builder, cards := newBuilder(t, &fakePreparer{dir: dir}, true)
	builder.Closing.Text = "  Always check the group chat  "
	if _, err := builder.Build(context.Background(), entries); err != nil {
		t.Fatal(err)
	}
	if (*cards)[0] != "Always check the group chat" {
		t.Errorf("unexpected card text %q", (*cards)[0])
	}

	builder.Card = func(string, string, string, int, int) error { return errors.New("disk full") }
	m, err := builder.Build(context.Background(), entries)
	if err != nil {
		t.Fatalf("card failure must not fail the build: %v", err)
	}
	if m.Closing != nil || m.Total != 1 {
		t.Errorf("closing should be omitted, total %f", m.Total)
	}
}

func TestBuild_MemeRepair(t *testing.T) {
	dir := t.TempDir()
	asset := &media.Asset{Path: "raw.gif", Class: media.ClassAnimated}
	entries := []*timeline.Entry{
		{Index: 0, Frame: filepath.Join(dir, "gone.png"), Duration: 3.0, Speaker: "Jay", Body: &timeline.Meme{Media: asset}},
	}

	prep := &fakePreparer{dir: dir}
	builder, _ := newBuilder(t, prep, false)
	m, err := builder.Build(context.Background(), entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if prep.calls != 1 || len(m.Pairs) != 1 || m.Pairs[0].Duration != 3.0 {
		t.Errorf("unexpected repair result %+v", m.Pairs)
	}
	if !m.Pairs[0].Message || m.Pairs[0].Primary {
		t.Errorf("repaired meme keeps its message flags: %+v", m.Pairs[0])
	}

	prep.fail = true
	if _, err := builder.Build(context.Background(), entries); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}

func TestBuild_NoFrames(t *testing.T) {
	builder, cards := newBuilder(t, &fakePreparer{dir: t.TempDir()}, true)
	entries := []*timeline.Entry{{Frame: "nowhere.png", Duration: 1, Body: &timeline.Message{Text: "x"}}}

	m, err := builder.Build(context.Background(), entries)
	if !errors.Is(err, ErrNoFrames) || m != nil {
		t.Fatalf("Expected ErrNoFrames and no manifest, got %v %v", m, err)
	}
	if len(*cards) != 0 {
		t.Error("closing card must not be drawn for an empty manifest")
	}
	if _, err := builder.Build(context.Background(), nil); !errors.Is(err, ErrNoFrames) {
		t.Errorf("empty timeline: %v", err)
	}
}

func TestBuild_TruncatedFrame(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, filepath.Join(dir, "good.png"))
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}
	// header intact, pixel data cut off
	cut := filepath.Join(dir, "cut.png")
	if err := os.WriteFile(cut, data[:len(data)-20], 0644); err != nil {
		t.Fatal(err)
	}

	entries := []*timeline.Entry{
		{Index: 0, Frame: good, Duration: 1, Body: &timeline.Message{Text: "ok"}},
		{Index: 1, Frame: cut, Duration: 1, Body: &timeline.Message{Text: "broken"}},
	}
	builder, _ := newBuilder(t, &fakePreparer{dir: dir}, false)
	m, err := builder.Build(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Pairs) != 1 || m.Skipped != 1 || m.Pairs[0].Path != good {
		t.Errorf("truncated frame must be skipped, got %+v (skipped %d)", m.Pairs, m.Skipped)
	}
}

func TestBuild_FollowDelay(t *testing.T) {
	dir := t.TempDir()
	f := writePNG(t, filepath.Join(dir, "f.png"))
	asset := &media.Asset{Path: "m.png"}
	entries := []*timeline.Entry{
		{Index: 0, Frame: f, Duration: 2.5, Speaker: "Jay", Body: &timeline.Message{Text: "look"}},
		{Index: 1, Frame: f, Duration: 3.0, Speaker: "Jay", Body: &timeline.Meme{Media: asset}},
		{Index: 2, Frame: f, Duration: 3.0, Speaker: "Max", Body: &timeline.Meme{Media: asset}},
	}

	builder, _ := newBuilder(t, &fakePreparer{dir: dir}, false)
	m, err := builder.Build(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	if m.Pairs[1].Duration != 3.5 || m.Pairs[2].Duration != 3.0 {
		t.Errorf("unexpected durations %f %f", m.Pairs[1].Duration, m.Pairs[2].Duration)
	}
	if entries[1].Duration != 3.0 {
		t.Error("stored entry must not change")
	}
}

func TestWriteConcat(t *testing.T) {
	m := &Manifest{
		Pairs: []Pair{
			{Path: "/tmp/a.png", Duration: 0.1234},
			{Path: "/tmp/it's.png", Duration: 2},
		},
		Closing: &Pair{Path: "/tmp/closing.png", Duration: 4, Entry: ClosingEntry},
	}

	var buf bytes.Buffer
	if err := WriteConcat(&buf, m); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"ffconcat version 1.0",
		"file '/tmp/a.png'",
		"duration 0.123",
		`file '/tmp/it'\''s.png'`,
		"duration 2.000",
		"file '/tmp/closing.png'",
		"duration 4.000",
		"file '/tmp/closing.png'",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteConcat_TrailingClip(t *testing.T) {
	m := &Manifest{
		Pairs: []Pair{
			{Path: "/r/frames/a.png", Duration: 2.5},
			{Path: "/r/media/meme_1.mp4", Duration: 3.0, Clip: true},
		},
		Total: 5.5,
	}

	var buf bytes.Buffer
	if err := WriteConcat(&buf, m); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "file '/r/media/meme_1.mp4'"); n != 1 {
		t.Errorf("clip listed %d times, want 1:\n%s", n, buf.String())
	}
	if !strings.HasSuffix(buf.String(), "duration 3.000\n") {
		t.Errorf("list must end with the clip duration:\n%s", buf.String())
	}
}

func TestWriteConcatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concat.txt")
	m := &Manifest{Pairs: []Pair{{Path: "rel/a.png", Duration: 1}}}
	if err := WriteConcatFile(path, m); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	absA, _ := filepath.Abs("rel/a.png")
	if !strings.Contains(string(data), "file '"+absA+"'") {
		t.Errorf("relative path not made absolute:\n%s", data)
	}
}
