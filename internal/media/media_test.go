package media

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/logging"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeGIF(t *testing.T, path string, w, h int, delays []int) {
	t.Helper()
	pal := color.Palette{color.Black, color.White}
	g := &gif.GIF{}
	for _, d := range delays {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, w, h), pal))
		g.Delay = append(g.Delay, d)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
}

type fakeProber struct {
	info Info
	err  error
}

func (f fakeProber) Probe(ctx context.Context, path string) (Info, error) {
	return f.info, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path  string
		mime  string
		class Class
		ok    bool
	}{
		{"a/cat.PNG", "image/png", ClassImage, true},
		{"dance.gif", "image/gif", ClassAnimated, true},
		{"clip.webm", "video/webm", ClassVideo, true},
		{"notes.txt", "", "", false},
	}
	for _, tt := range tests {
		_, mime, class, ok := Classify(tt.path)
		if ok != tt.ok || mime != tt.mime || class != tt.class {
			t.Errorf("Classify(%q) = %q %q %v", tt.path, mime, class, ok)
		}
	}
}

func TestLoader_Still(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.png")
	writePNG(t, path, 500, 500)

	a, err := NewLoader(fakeProber{}, 0, logging.Discard()).Load(context.Background(), path, "funny cat")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Width != 500 || a.Height != 500 || !a.Still() || a.Query != "funny cat" {
		t.Errorf("unexpected asset %+v", a)
	}
}

func TestLoader_GIFDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.gif")
	writeGIF(t, path, 30, 20, []int{50, 50, 100})

	a, err := NewLoader(fakeProber{}, 0, logging.Discard()).Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Class != ClassAnimated || a.Width != 30 || a.Height != 20 {
		t.Errorf("unexpected asset %+v", a)
	}
	if a.DurationHint != 2.0 {
		t.Errorf("Expected duration hint 2.0, got %f", a.DurationHint)
	}
}

func TestLoader_VideoProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	os.WriteFile(path, []byte("fake"), 0644)

	a, err := NewLoader(fakeProber{info: Info{Width: 640, Height: 360, Duration: 4.2}}, 0, logging.Discard()).
		Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Width != 640 || a.DurationHint != 4.2 {
		t.Errorf("unexpected asset %+v", a)
	}

	a, err = NewLoader(fakeProber{err: errors.New("boom")}, 0, logging.Discard()).
		Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("probe failure must not fail Load: %v", err)
	}
	if a.Measured() {
		t.Error("Expected unmeasured asset after probe failure")
	}
}

func TestLoader_Rejects(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(fakeProber{}, 0, logging.Discard())
	if _, err := l.Load(context.Background(), filepath.Join(dir, "notes.txt"), ""); err == nil {
		t.Error("Expected error for unsupported extension")
	}
	if _, err := l.Load(context.Background(), filepath.Join(dir, "missing.png"), ""); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":320,"height":240,"nb_frames":"50","r_frame_rate":"25/1"}],"format":{}}`
	info, err := parseProbe(raw)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if info.Width != 320 || info.Height != 240 || info.Duration != 2.0 {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := parseProbe(`{"streams":[{"codec_type":"audio"}]}`); err == nil {
		t.Error("Expected error without a video stream")
	}
}

func TestFit(t *testing.T) {
	r := Fit(image.Rect(0, 0, 500, 250), 100, 100)
	if r != image.Rect(0, 25, 100, 75) {
		t.Errorf("unexpected fit %v", r)
	}
}

func TestHoldClipArgs(t *testing.T) {
	args := HoldClipArgs("in.gif", "out.mp4", 2.5, config.SegmentParams{Width: 1280, Height: 720, FPS: 25})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i in.gif", "-t 2.500", "scale=1280:720", "out.mp4", "-y"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestPreparer(t *testing.T) {
	dir := t.TempDir()
	still := filepath.Join(dir, "cat.png")
	writePNG(t, still, 40, 20)
	anim := filepath.Join(dir, "dance.gif")
	writeGIF(t, anim, 10, 10, []int{10})

	seg := config.SegmentParams{Width: 64, Height: 36, FPS: 25}
	p := NewPreparer(filepath.Join(dir, "out"), seg, 0, logging.Discard())

	var ran []string
	p.Run = func(ctx context.Context, name string, args ...string) error {
		ran = append(ran, name)
		return nil
	}

	got, err := p.Prepare(context.Background(), &Asset{Path: still, Class: ClassImage}, 3.0, 1)
	if err != nil {
		t.Fatalf("Prepare still failed: %v", err)
	}
	if got.Clip || got.Duration != 3.0 {
		t.Errorf("unexpected still result %+v", got)
	}
	w, h, err := decodeSize(got.Path)
	if err != nil || w != 64 || h != 36 {
		t.Errorf("thumbnail size %dx%d err %v", w, h, err)
	}

	got, err = p.Prepare(context.Background(), &Asset{Path: anim, Class: ClassAnimated}, 3.0, 2)
	if err != nil {
		t.Fatalf("Prepare clip failed: %v", err)
	}
	if !got.Clip || len(ran) != 1 || ran[0] != "ffmpeg" {
		t.Errorf("unexpected clip result %+v, ran %v", got, ran)
	}

	p.Run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("encoder missing")
	}
	got, err = p.Prepare(context.Background(), &Asset{Path: anim, Class: ClassAnimated}, 3.0, 3)
	if err != nil {
		t.Fatalf("thumbnail fallback failed: %v", err)
	}
	if got.Clip || got.Duration != 2.0 {
		t.Errorf("unexpected fallback result %+v", got)
	}
}

func decodeSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg.Width, cfg.Height, err
}
