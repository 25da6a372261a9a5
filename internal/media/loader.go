package media

import (
	"context"
	"image/gif"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/source"
	"github.com/ivlev/chatreel/internal/xcall"
)

// Loader turns a local file into a measured Asset.
type Loader struct {
	Prober       Prober
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

func NewLoader(prober Prober, timeout time.Duration, logger *slog.Logger) *Loader {
	if prober == nil {
		prober = FFProbe{}
	}
	return &Loader{Prober: prober, ProbeTimeout: timeout, Logger: logger}
}

// Load classifies and measures path. Unsupported or missing files are errors; a file that
// cannot be measured is still returned, unmeasured, so estimators fall back to safe defaults.
func (l *Loader) Load(ctx context.Context, path, query string) (*Asset, error) {
	ext, mime, class, ok := Classify(path)
	if !ok {
		return nil, errors.Errorf("unsupported meme extension %q", ext)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "meme file %s", path)
	}

	a := &Asset{Path: path, Query: query, Ext: ext, Mime: mime, Class: class}

	var err error
	switch class {
	case ClassImage:
		err = measureStill(a)
	case ClassAnimated:
		err = measureGIF(a)
	case ClassVideo:
		var info Info
		info, err = xcall.Do(ctx, l.ProbeTimeout, Info{}, func(ctx context.Context) (Info, error) {
			return l.Prober.Probe(ctx, path)
		})
		a.Width, a.Height, a.DurationHint = info.Width, info.Height, info.Duration
	}
	if err != nil {
		l.Logger.Warn("meme not measured", "path", path, "class", class, "error", err)
	}
	return a, nil
}

func measureStill(a *Asset) error {
	w, h, err := source.DecodeDimensions(a.Path)
	if err == nil {
		a.Width, a.Height = w, h
		return nil
	}
	src, ferr := source.Open(a.Path)
	if ferr != nil {
		return err
	}
	defer src.Close()
	a.Width, a.Height, err = src.Dimensions()
	return err
}

// measureGIF reads the logical screen size and sums frame delays (1/100 s units).
func measureGIF(a *Asset) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return measureStill(a)
	}
	a.Width, a.Height = g.Config.Width, g.Config.Height
	total := 0
	for _, d := range g.Delay {
		total += d
	}
	a.DurationHint = float64(total) / 100
	return nil
}
