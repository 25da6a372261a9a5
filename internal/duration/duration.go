// Package duration maps message content to on-screen display time.
package duration

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/exp/constraints"

	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/media"
)

type Estimator struct {
	t config.Timing
}

func NewEstimator(t config.Timing) *Estimator {
	return &Estimator{t: t}
}

// Text returns max(floor, chars/rate). Empty text gets the floor.
func (e *Estimator) Text(text string) float64 {
	chars := utf8.RuneCountInString(strings.TrimSpace(text))
	if chars == 0 || e.t.ReadingRate <= 0 {
		return e.floor()
	}
	return max(e.floor(), float64(chars)/e.t.ReadingRate)
}

// MemeSize derives a hold from aspect ratio (h/w) and area relative to the meme canvas,
// clamped to [MemeMin, MemeMax].
func (e *Estimator) MemeSize(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return e.memeFallback()
	}
	canvas := float64(e.t.MemeCanvasWidth * e.t.MemeCanvasHeight)
	if canvas <= 0 {
		canvas = 1920 * 1080
	}
	aspect := float64(height) / float64(width)
	area := float64(width*height) / canvas
	d := e.t.MemeBase + aspect*e.t.MemeAspectWeight + area*e.t.MemeAreaWeight
	if e.t.MemeMax < e.t.MemeMin || e.t.MemeMax <= 0 {
		return max(d, e.memeFallback())
	}
	return Clamp(d, e.t.MemeMin, e.t.MemeMax)
}

// Meme estimates for a resolved asset. A nil or unmeasured asset gets the fallback.
func (e *Estimator) Meme(a *media.Asset) float64 {
	if a == nil || !a.Measured() {
		return e.memeFallback()
	}
	return e.MemeSize(a.Width, a.Height)
}

// Combined is the longer of the caption and meme estimates.
func (e *Estimator) Combined(text string, a *media.Asset) float64 {
	if strings.TrimSpace(text) == "" {
		return e.Meme(a)
	}
	return max(e.Text(text), e.Meme(a))
}

// Indicator is the fixed hold of the generic "typing..." bubble.
func (e *Estimator) Indicator() float64 {
	if e.t.IndicatorDuration <= 0 {
		return 1.5
	}
	return e.t.IndicatorDuration
}

func (e *Estimator) floor() float64 {
	if e.t.TextFloor <= 0 {
		return 1.0
	}
	return e.t.TextFloor
}

func (e *Estimator) memeFallback() float64 {
	if e.t.MemeFallback > 0 {
		return e.t.MemeFallback
	}
	if e.t.MemeMin > 0 {
		return e.t.MemeMin
	}
	return e.floor()
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
