package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	newer := filepath.Join(dir, "new.WAV")
	os.WriteFile(old, []byte("a"), 0644)
	os.WriteFile(newer, []byte("b"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("c"), 0644)

	past := time.Now().Add(-time.Hour)
	os.Chtimes(old, past, past)

	got, err := FindLatestAudio(dir)
	if err != nil {
		t.Fatalf("FindLatestAudio failed: %v", err)
	}
	if got != newer {
		t.Errorf("Expected %s, got %s", newer, got)
	}

	script, err := FindLatestScript(dir)
	if err != nil || filepath.Base(script) != "notes.txt" {
		t.Errorf("FindLatestScript = %s, %v", script, err)
	}

	if _, err := FindLatest(dir, []string{".flac"}); err == nil {
		t.Error("Expected error when nothing matches")
	}
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "chat.txt")
	os.WriteFile(f, []byte("A: hi"), 0644)

	if got, err := ResolveFile(f, ScriptExtensions); err != nil || got != f {
		t.Errorf("file path: got %s, %v", got, err)
	}
	if got, err := ResolveFile(dir, ScriptExtensions); err != nil || got != f {
		t.Errorf("dir path: got %s, %v", got, err)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration(" 12.5\n"); err != nil || d != 12.5 {
		t.Errorf("got %f, %v", d, err)
	}
	if _, err := ParseDuration("N/A"); err == nil {
		t.Error("Expected error")
	}
}

func TestPickEncoder(t *testing.T) {
	if got := pickEncoder(" V..... h264_nvenc  NVIDIA NVENC"); got != "h264_nvenc" {
		t.Errorf("got %s", got)
	}
	if got := pickEncoder(" V..... libx264"); got != "libx264" {
		t.Errorf("got %s", got)
	}
	if got := ResolveEncoder("libx265"); got != "libx265" {
		t.Errorf("explicit encoder changed to %s", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestImagePool(t *testing.T) {
	p := NewImagePool()
	img := p.Get(64, 32)
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	p.Put(img)
	p.Put(nil)
	if again := p.Get(64, 32); again.Bounds() != img.Bounds() {
		t.Errorf("unexpected size %v", again.Bounds())
	}
}

func TestCollectStats(t *testing.T) {
	s, err := CollectStats(context.Background())
	if err != nil {
		t.Skipf("stats unavailable here: %v", err)
	}
	if s.LogicalCPUs <= 0 || s.Goroutines <= 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}
