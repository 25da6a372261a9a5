package pipeline

import (
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/logging"
	"github.com/ivlev/chatreel/internal/meme"
	"github.com/ivlev/chatreel/internal/participant"
	"github.com/ivlev/chatreel/internal/typing"
)

// RunContext is the state of exactly one video-generation run. Nothing in it outlives the run.
type RunContext struct {
	ID       string
	Dir      string
	Config   *config.Config
	Rng      *rand.Rand
	Registry *participant.Registry
	Decoys   *typing.DecoyBudget
	Pool     *meme.Pool
	Logger   *slog.Logger
	Started  time.Time
}

// NewRunContext starts a run. A zero seed draws one from the clock.
func NewRunContext(cfg *config.Config, seed int64, logger *slog.Logger) *RunContext {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	id := uuid.NewString()
	rng := rand.New(rand.NewSource(seed))
	return &RunContext{
		ID:       id,
		Dir:      cfg.RunDir(id),
		Config:   cfg,
		Rng:      rng,
		Registry: participant.NewRegistry(cfg.PrimaryUser, cfg.Participants...),
		Decoys:   typing.NewDecoyBudget(rng, cfg.Typing.DecoyCapMin, cfg.Typing.DecoyCapMax),
		Pool:     meme.NewPool(),
		Logger:   logging.WithRunID(logger, id),
		Started:  time.Now(),
	}
}

func (rc *RunContext) TimelinePath() string { return rc.Config.TimelinePath(rc.ID) }
func (rc *RunContext) ConcatPath() string   { return rc.Config.ConcatPath(rc.ID) }
func (rc *RunContext) FramesDir() string    { return filepath.Join(rc.Dir, "frames") }
func (rc *RunContext) MediaDir() string     { return filepath.Join(rc.Dir, "media") }
func (rc *RunContext) TmpDir() string       { return filepath.Join(rc.Dir, "tmp") }
