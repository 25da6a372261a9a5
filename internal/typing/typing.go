// Package typing simulates the primary user composing a message in the typing bar.
package typing

import (
	"iter"
	"math/rand"
	"strings"

	"github.com/ivlev/chatreel/internal/config"
)

const Cursor = "|"

type Phase string

const (
	PhaseDecoy   Phase = "decoy"
	PhaseTyping  Phase = "typing"
	PhaseBlink   Phase = "blink"
	PhaseSettled Phase = "settled"
)

// Frame is one state of the typing bar. Sound marks active typing.
type Frame struct {
	Text     string
	Duration float64
	Sound    bool
	Phase    Phase
}

// DecoyBudget caps decoy detours across one run.
type DecoyBudget struct {
	used int
	cap  int
}

// NewDecoyBudget draws the per-run cap uniformly from [lo, hi].
func NewDecoyBudget(rng *rand.Rand, lo, hi int) *DecoyBudget {
	if hi < lo {
		hi = lo
	}
	return &DecoyBudget{cap: lo + rng.Intn(hi-lo+1)}
}

func (b *DecoyBudget) Cap() int  { return b.cap }
func (b *DecoyBudget) Used() int { return b.used }

func (b *DecoyBudget) available() bool {
	return b != nil && b.used < b.cap
}

type Generator struct {
	cfg    config.Typing
	rng    *rand.Rand
	budget *DecoyBudget
}

func NewGenerator(cfg config.Typing, rng *rand.Rand, budget *DecoyBudget) *Generator {
	if cfg.SpeedMultiplier <= 0 {
		cfg.SpeedMultiplier = 1
	}
	if cfg.BlinkHold <= 0 {
		cfg.BlinkHold = 0.25
	}
	if cfg.SettleHold <= 0 {
		cfg.SettleHold = 0.8
	}
	if cfg.DecoyPause <= 0 {
		cfg.DecoyPause = 0.5
	}
	cfg.SilentTail = max(cfg.SilentTail, 0)
	return &Generator{cfg: cfg, rng: rng, budget: budget}
}

// Sequence yields the typing frames for message. Every range over the result draws fresh
// timings and decoy decisions; nothing is cached. An empty message yields nothing.
func (g *Generator) Sequence(message string) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if message == "" {
			return
		}

		if g.budget.available() && len(g.cfg.DecoyPhrases) > 0 && g.rng.Float64() < g.cfg.DecoyChance {
			g.budget.used++
			decoy := g.cfg.DecoyPhrases[g.rng.Intn(len(g.cfg.DecoyPhrases))]
			if !g.decoy(decoy, yield) {
				return
			}
		}

		runes := []rune(message)
		var buf strings.Builder
		for i, r := range runes {
			buf.WriteRune(r)
			sound := i < len(runes)-g.cfg.SilentTail
			if !yield(Frame{buf.String() + Cursor, g.charDelay(r), sound, PhaseTyping}) {
				return
			}
		}

		for range 2 {
			if !g.blink(message, yield) {
				return
			}
		}
		yield(Frame{message, g.cfg.SettleHold, false, PhaseSettled})
	}
}

// decoy types phrase with sound, blinks once, deletes it silently and pauses.
func (g *Generator) decoy(phrase string, yield func(Frame) bool) bool {
	runes := []rune(phrase)
	for i, r := range runes {
		if !yield(Frame{string(runes[:i+1]) + Cursor, g.charDelay(r), true, PhaseDecoy}) {
			return false
		}
	}
	if !g.blink(phrase, yield) {
		return false
	}
	for i := len(runes) - 1; i >= 0; i-- {
		if !yield(Frame{string(runes[:i]) + Cursor, g.uniform(0.15, 0.25), false, PhaseDecoy}) {
			return false
		}
	}
	return yield(Frame{"", g.cfg.DecoyPause, false, PhaseDecoy})
}

func (g *Generator) blink(text string, yield func(Frame) bool) bool {
	return yield(Frame{text + Cursor, g.cfg.BlinkHold, false, PhaseBlink}) &&
		yield(Frame{text, g.cfg.BlinkHold, false, PhaseBlink})
}

func (g *Generator) charDelay(r rune) float64 {
	var d float64
	switch {
	case strings.ContainsRune(".,!?…", r):
		d = g.uniform(0.12, 0.25)
	case r == ' ':
		d = g.uniform(0.06, 0.1)
	case r > 127:
		d = g.uniform(0.15, 0.25)
	default:
		d = g.uniform(0.07, 0.17)
	}
	return d * g.cfg.SpeedMultiplier
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
