package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/image/draw"

	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/source"
	"github.com/ivlev/chatreel/internal/system"
	"github.com/ivlev/chatreel/internal/xcall"
)

// Prepared is a meme materialized for the concat list.
type Prepared struct {
	Path     string
	Clip     bool
	Duration float64
}

// Preparer materializes raw meme assets: stills become a letterboxed PNG of the first frame,
// animated and video memes become a hold clip.
type Preparer struct {
	Dir     string
	Segment config.SegmentParams
	Timeout time.Duration
	Run     system.RunFunc
	Logger  *slog.Logger
}

func NewPreparer(dir string, seg config.SegmentParams, timeout time.Duration, logger *slog.Logger) *Preparer {
	return &Preparer{Dir: dir, Segment: seg, Timeout: timeout, Run: system.ExecRun, Logger: logger}
}

func (p *Preparer) Prepare(ctx context.Context, a *Asset, hold float64, index int) (Prepared, error) {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return Prepared{}, errors.WithStack(err)
	}

	if a.Still() {
		out := filepath.Join(p.Dir, fmt.Sprintf("meme_%d.png", index))
		if err := Thumbnail(a.Path, out, p.Segment.Width, p.Segment.Height); err != nil {
			return Prepared{}, err
		}
		return Prepared{Path: out, Duration: hold}, nil
	}

	clip := filepath.Join(p.Dir, fmt.Sprintf("meme_%d.mp4", index))
	_, err := xcall.Do(ctx, p.Timeout, struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Run(ctx, "ffmpeg", HoldClipArgs(a.Path, clip, hold, p.Segment)...)
	})
	if err == nil {
		return Prepared{Path: clip, Clip: true, Duration: hold}, nil
	}
	p.Logger.Warn("meme clip failed, falling back to thumbnail", "path", a.Path, "error", err)

	thumb := filepath.Join(p.Dir, fmt.Sprintf("meme_%d_thumb.png", index))
	if terr := Thumbnail(a.Path, thumb, p.Segment.Width, p.Segment.Height); terr != nil {
		return Prepared{}, errors.Wrap(terr, "thumbnail fallback")
	}
	return Prepared{Path: thumb, Duration: min(hold, 2.0)}, nil
}

// HoldClipArgs builds the ffmpeg arguments that cut src to hold seconds, scaled to fit the
// canvas with even dimensions, silent, at the segment frame rate.
func HoldClipArgs(src, out string, hold float64, seg config.SegmentParams) []string {
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,scale=trunc(iw/2)*2:trunc(ih/2)*2,fps=%d",
		seg.Width, seg.Height, seg.FPS)
	if seg.Filter != "" {
		vf += "," + seg.Filter
	}
	return ffmpeg.Input(src).
		Output(out, ffmpeg.KwArgs{
			"t":       fmt.Sprintf("%.3f", hold),
			"an":      "",
			"vf":      vf,
			"pix_fmt": "yuv420p",
			"r":       seg.FPS,
			"c:v":     "libx264",
			"preset":  "veryfast",
			"crf":     18,
		}).
		OverWriteOutput().
		GetArgs()
}

// Thumbnail captures the first frame of src and letterboxes it onto a black w x h PNG.
func Thumbnail(src, out string, w, h int) error {
	s, err := source.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer s.Close()

	frame, err := s.Frame(0)
	if err != nil {
		return errors.Wrapf(err, "failed to read first frame of %s", src)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{color.Black}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, Fit(frame.Bounds(), w, h), frame, frame.Bounds(), draw.Over, nil)

	f, err := os.Create(out)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := png.Encode(f, canvas); err != nil {
		return errors.Wrapf(err, "failed to encode %s", out)
	}
	return nil
}

// Fit returns the centered rectangle of b scaled to fit inside w x h, keeping aspect ratio.
func Fit(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()
	if bw <= 0 || bh <= 0 {
		return image.Rect(0, 0, w, h)
	}
	scale := min(float64(w)/float64(bw), float64(h)/float64(bh))
	nw, nh := int(float64(bw)*scale), int(float64(bh)*scale)
	x0, y0 := (w-nw)/2, (h-nh)/2
	return image.Rect(x0, y0, x0+nw, y0+nh)
}
