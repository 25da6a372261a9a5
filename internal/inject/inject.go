// Package inject attaches pooled memes to plain text messages after the timeline is built.
package inject

import (
	"log/slog"
	"math/rand"

	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/timeline"
)

type Injector struct {
	Chance float64
	Max    int
	Rng    *rand.Rand
	Logger *slog.Logger
}

func New(chance float64, maxPerVideo int, rng *rand.Rand, logger *slog.Logger) *Injector {
	return &Injector{Chance: chance, Max: maxPerVideo, Rng: rng, Logger: logger}
}

// Inject walks entries in order and attaches a random pool asset to eligible messages with
// probability Chance, at most Max times. Assets may repeat. Durations are left untouched.
// It returns the number of injections.
func (in *Injector) Inject(entries []*timeline.Entry, pool []*media.Asset) int {
	if len(pool) == 0 || in.Max <= 0 || in.Chance <= 0 {
		return 0
	}

	n := 0
	for _, e := range entries {
		if n >= in.Max {
			break
		}
		if !e.Injectable() || in.Rng.Float64() >= in.Chance {
			continue
		}
		a := pool[in.Rng.Intn(len(pool))]
		if err := e.AttachMedia(a); err != nil {
			in.Logger.Warn("meme injection rejected", "entry", e.Index, "error", err)
			continue
		}
		n++
		in.Logger.Debug("meme injected", "entry", e.Index, "meme", a.Path)
	}
	return n
}
