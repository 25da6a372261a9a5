package typing

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/ivlev/chatreel/internal/config"
)

func newGen(seed int64, decoyChance float64, capLo, capHi int) *Generator {
	cfg := config.Default().Typing
	cfg.DecoyChance = decoyChance
	rng := rand.New(rand.NewSource(seed))
	return NewGenerator(cfg, rng, NewDecoyBudget(rng, capLo, capHi))
}

func TestSequence_NoDecoy(t *testing.T) {
	g := newGen(1, 0, 1, 2)
	frames := slices.Collect(g.Sequence("Hi there"))

	// 8 characters + 2 blink pairs + settle
	if len(frames) != 8+4+1 {
		t.Fatalf("Expected 13 frames, got %d", len(frames))
	}
	if frames[0].Text != "H"+Cursor {
		t.Errorf("first frame %q", frames[0].Text)
	}
	if frames[7].Text != "Hi there"+Cursor {
		t.Errorf("last typing frame %q", frames[7].Text)
	}
	last := frames[len(frames)-1]
	if last.Text != "Hi there" || last.Duration != 0.8 || last.Sound || last.Phase != PhaseSettled {
		t.Errorf("unexpected settle frame %+v", last)
	}
	for _, f := range frames {
		if f.Duration <= 0 {
			t.Fatalf("non-positive duration in %+v", f)
		}
	}
}

func TestSequence_SilentTail(t *testing.T) {
	messages := []string{"Hey", "okay", "Hi there", "Привет мир!", "see you at 10..."}
	for seed := int64(0); seed < 20; seed++ {
		g := newGen(seed, 0.5, 1, 2)
		for _, m := range messages {
			var typed []Frame
			for f := range g.Sequence(m) {
				switch f.Phase {
				case PhaseTyping:
					typed = append(typed, f)
				case PhaseBlink, PhaseSettled:
					if f.Sound {
						t.Fatalf("blink/settle frame with sound: %+v", f)
					}
				}
			}
			n := len([]rune(m))
			if len(typed) != n {
				t.Fatalf("%q: expected %d typing frames, got %d", m, n, len(typed))
			}
			for i, f := range typed {
				want := i < n-3
				if f.Sound != want {
					t.Errorf("%q frame %d: sound=%v, want %v", m, i, f.Sound, want)
				}
			}
		}
	}
}

func TestSequence_Decoy(t *testing.T) {
	g := newGen(7, 1.0, 1, 1)
	frames := slices.Collect(g.Sequence("ok sure"))

	if frames[0].Phase != PhaseDecoy || !frames[0].Sound {
		t.Fatalf("expected decoy to open the sequence, got %+v", frames[0])
	}

	var pause int
	for i, f := range frames {
		if f.Phase == PhaseDecoy && f.Text == "" {
			pause = i
			break
		}
	}
	if pause == 0 {
		t.Fatal("decoy pause frame not found")
	}
	if frames[pause].Sound || frames[pause].Duration != 0.5 {
		t.Errorf("unexpected pause frame %+v", frames[pause])
	}
	if frames[pause-1].Text != Cursor {
		t.Errorf("decoy must be deleted down to the cursor, got %q", frames[pause-1].Text)
	}

	phrase := ""
	for _, f := range frames[:pause] {
		if f.Sound {
			phrase = strings.TrimSuffix(f.Text, Cursor)
		}
	}
	if !slices.Contains(config.Default().Typing.DecoyPhrases, phrase) {
		t.Errorf("typed decoy %q is not a configured phrase", phrase)
	}

	// Budget of one is spent.
	for f := range g.Sequence("again") {
		if f.Phase == PhaseDecoy {
			t.Fatal("decoy used beyond the run cap")
		}
	}
	if g.budget.Used() != 1 {
		t.Errorf("Expected 1 decoy used, got %d", g.budget.Used())
	}
}

func TestSequence_Deterministic(t *testing.T) {
	a := slices.Collect(newGen(42, 0.4, 1, 2).Sequence("same seed"))
	b := slices.Collect(newGen(42, 0.4, 1, 2).Sequence("same seed"))
	if !slices.Equal(a, b) {
		t.Error("same seed should produce identical frames")
	}
}

func TestSequence_FreshEachRange(t *testing.T) {
	g := newGen(3, 0, 1, 2)
	seq := g.Sequence("fresh timings")
	a := slices.Collect(seq)
	b := slices.Collect(seq)
	if len(a) != len(b) {
		t.Fatalf("structure differs: %d vs %d", len(a), len(b))
	}
	if slices.Equal(a, b) {
		t.Error("expected fresh timings on a second range")
	}
}

func TestSequence_EarlyStopAndEmpty(t *testing.T) {
	g := newGen(1, 0, 1, 2)
	n := 0
	for range g.Sequence("stop early") {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected to stop after 3, got %d", n)
	}
	if len(slices.Collect(g.Sequence(""))) != 0 {
		t.Error("empty message should yield nothing")
	}
}

func TestDecoyBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 50 {
		b := NewDecoyBudget(rng, 1, 2)
		if b.Cap() < 1 || b.Cap() > 2 {
			t.Fatalf("cap %d out of range", b.Cap())
		}
	}
	if NewDecoyBudget(rng, 3, 1).Cap() != 3 {
		t.Error("inverted range should collapse to the lower bound")
	}
}
