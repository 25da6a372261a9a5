// Package pipeline runs one chat-video generation end to end: script, timeline, manifest, encode.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/audio"
	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/duration"
	"github.com/ivlev/chatreel/internal/inject"
	"github.com/ivlev/chatreel/internal/logging"
	"github.com/ivlev/chatreel/internal/manifest"
	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/meme"
	"github.com/ivlev/chatreel/internal/render"
	"github.com/ivlev/chatreel/internal/script"
	"github.com/ivlev/chatreel/internal/system"
	"github.com/ivlev/chatreel/internal/timeline"
	"github.com/ivlev/chatreel/internal/typing"
	"github.com/ivlev/chatreel/internal/video"
)

// visibleHistory caps the sent messages kept on screen.
const visibleHistory = 6

// Input selects the script for a run. Lines take precedence over ScriptPath.
type Input struct {
	ScriptPath string
	Lines      []string
	Output     string
	// SkipEncode stops after the concat list is written.
	SkipEncode bool
}

// Recorder is notified when a run starts and finishes.
type Recorder interface {
	RunStarted(ctx context.Context, runID, script string, started time.Time) error
	RunFinished(ctx context.Context, rep *Report, runErr error) error
}

type Project struct {
	Config   *config.Config
	Resolver meme.Resolver
	Prober   media.Prober
	Encoder  video.Encoder
	Recorder Recorder
	Logger   *slog.Logger
	// Seed fixes the run RNG; zero seeds from the clock.
	Seed int64

	// OpenRenderer and Preparer default to the canvas renderer and the ffmpeg meme preparer.
	OpenRenderer func(rc *RunContext) (render.Renderer, error)
	Preparer     func(rc *RunContext) manifest.Preparer
}

func NewProject(cfg *config.Config, logger *slog.Logger) *Project {
	return &Project{
		Config:  cfg,
		Prober:  media.FFProbe{},
		Encoder: video.NewFFmpegEncoder(cfg.Timeouts.Encode, logging.WithComponent(logger, "video")),
		Logger:  logger,
	}
}

// Run executes every stage and records the outcome. The report is returned even on failure and
// holds whatever the completed stages produced.
func (p *Project) Run(ctx context.Context, in Input) (*Report, error) {
	return p.Execute(ctx, p.Begin(ctx, in), in)
}

// Begin creates the run context and records the start, so the run is visible before any stage runs.
func (p *Project) Begin(ctx context.Context, in Input) *RunContext {
	rc := NewRunContext(p.Config, p.Seed, p.Logger)
	if p.Recorder != nil {
		if err := p.Recorder.RunStarted(ctx, rc.ID, scriptLabel(in), rc.Started); err != nil {
			rc.Logger.Warn("failed to record run start", "error", err)
		}
	}
	return rc
}

// Execute runs the stages for a context created by Begin.
func (p *Project) Execute(ctx context.Context, rc *RunContext, in Input) (*Report, error) {
	rep := &Report{RunID: rc.ID, Dir: rc.Dir}
	err := p.run(ctx, rc, in, rep)
	rep.Elapsed = time.Since(rc.Started)
	if stats, serr := system.CollectStats(ctx); serr == nil {
		rep.Stats = &stats
	}

	if p.Recorder != nil {
		// history must be written even when the run was cancelled
		if rerr := p.Recorder.RunFinished(context.WithoutCancel(ctx), rep, err); rerr != nil {
			rc.Logger.Warn("failed to record run result", "error", rerr)
		}
	}
	if err != nil {
		rc.Logger.Error("run failed", "stage", FailedStage(err), "error", err)
		return rep, err
	}
	rc.Logger.Info("run finished", "entries", rep.Entries, "total", rep.Total, "elapsed", rep.Elapsed)
	return rep, nil
}

func (p *Project) run(ctx context.Context, rc *RunContext, in Input, rep *Report) error {
	lines, skipped, err := p.Parse(rc, in)
	rep.SkippedLines = skipped
	if err != nil {
		return stageErr(StageParse, err)
	}
	rep.Lines = len(lines)

	store, err := p.BuildTimeline(ctx, rc, lines, rep)
	if err != nil {
		return stageErr(StageTimeline, err)
	}
	rep.TimelinePath = store.Path()

	m, err := p.BuildManifest(ctx, rc, store.Entries())
	if err != nil {
		return stageErr(StageManifest, err)
	}
	rep.Frames = len(m.Pairs)
	rep.SkippedEntries = m.Skipped
	rep.Closing = m.Closing != nil
	rep.Total = m.Total
	rep.ConcatPath = rc.ConcatPath()

	if in.SkipEncode {
		return nil
	}
	res, err := p.Encode(ctx, rc, m, in.Output)
	if err != nil {
		return stageErr(StageEncode, err)
	}
	rep.Output = res.Output
	rep.AudioFallback = res.AudioFallback
	return nil
}

// Parse reads the script. A script without a single usable line fails the run.
func (p *Project) Parse(rc *RunContext, in Input) ([]script.Line, int, error) {
	parser := script.NewParser(rc.Config.Memes.Marker, logging.WithComponent(rc.Logger, "script"))

	var (
		lines   []script.Line
		skipped int
	)
	switch {
	case len(in.Lines) > 0:
		lines, skipped = parser.ParseStrings(in.Lines)
	default:
		path, err := p.scriptPath(rc, in)
		if err != nil {
			return nil, 0, errors.Wrap(err, "no script")
		}
		lines, skipped, err = parser.ParseFile(path)
		if err != nil {
			return nil, skipped, err
		}
	}
	if len(lines) == 0 {
		return nil, skipped, errors.Errorf("script has no usable lines (%d skipped)", skipped)
	}
	return lines, skipped, nil
}

// BuildTimeline prefetches the meme pool, builds and persists the timeline, then injects pooled
// memes and persists again.
func (p *Project) BuildTimeline(ctx context.Context, rc *RunContext, lines []script.Line, rep *Report) (*timeline.Store, error) {
	cfg := rc.Config
	log := logging.WithComponent(rc.Logger, "timeline")

	loader := media.NewLoader(p.Prober, cfg.Timeouts.Probe, log)
	resolver := p.Resolver
	if resolver == nil {
		resolver = meme.NewLocalResolver(cfg.Memes.Dir, rc.MediaDir())
	}
	fetcher := meme.NewFetcher(resolver, loader, cfg.Timeouts.Search, log)

	if cfg.Memes.InjectMax > 0 && cfg.Memes.InjectChance > 0 {
		n := rc.Pool.Prefetch(ctx, fetcher, rc.Rng, cfg.Memes.StockQueries, cfg.Memes.PoolSize, cfg.Workers, log)
		log.Info("meme pool prefetched", "assets", n)
	}

	openRenderer := p.OpenRenderer
	if openRenderer == nil {
		openRenderer = canvasRenderer
	}

	store := timeline.NewStore(rc.TimelinePath(), rc.ID)
	b := &timeline.Builder{
		Registry:        rc.Registry,
		Estimator:       duration.NewEstimator(cfg.Timing),
		Typing:          typing.NewGenerator(cfg.Typing, rc.Rng, rc.Decoys),
		Fetcher:         fetcher,
		Store:           store,
		Rng:             rc.Rng,
		Logger:          log,
		OpenRenderer:    func() (render.Renderer, error) { return openRenderer(rc) },
		Title:           cfg.ChatTitle,
		IndicatorChance: cfg.Timing.IndicatorChance,
		RenderTimeout:   cfg.Timeouts.Render,
		History:         visibleHistory,
		OnMeme:          rc.Pool.Add,
	}
	stats, err := b.Build(ctx, lines)
	rep.Entries = stats.Entries
	rep.SkippedFrames = stats.SkippedFrames
	rep.SkippedLines += stats.SkippedLines
	rep.DegradedMemes = stats.DegradedMemes
	if err != nil {
		return nil, err
	}

	injector := inject.New(cfg.Memes.InjectChance, cfg.Memes.InjectMax, rc.Rng, logging.WithComponent(rc.Logger, "inject"))
	rep.Injected = injector.Inject(store.Entries(), rc.Pool.Assets())
	if rep.Injected > 0 {
		if err := store.Save(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// BuildManifest turns stored entries into the edit list and writes the concat file.
func (p *Project) BuildManifest(ctx context.Context, rc *RunContext, entries []*timeline.Entry) (*manifest.Manifest, error) {
	cfg := rc.Config
	preparer := p.preparer(rc)

	b := &manifest.Builder{
		Preparer:    preparer,
		FollowDelay: cfg.Timing.MemeFollowDelay,
		Closing: manifest.Closing{
			Enabled:  cfg.Closing.Enabled,
			Text:     cfg.Closing.Text,
			Link:     cfg.Closing.Link,
			Duration: cfg.Closing.Duration,
			Path:     filepath.Join(rc.Dir, "closing.png"),
			Width:    cfg.Width,
			Height:   cfg.Height,
		},
		Card:   render.ClosingCard,
		Rng:    rc.Rng,
		Logger: logging.WithComponent(rc.Logger, "manifest"),
	}
	m, err := b.Build(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err := manifest.WriteConcatFile(rc.ConcatPath(), m); err != nil {
		return m, err
	}
	return m, nil
}

// Encode renders the concat list with keystroke cues and the background track.
func (p *Project) Encode(ctx context.Context, rc *RunContext, m *manifest.Manifest, output string) (video.Result, error) {
	cfg := rc.Config
	if output == "" {
		output = cfg.OutputVideo
	}
	if output == "" {
		output = filepath.Join(rc.Dir, "chat.mp4")
	}

	job := video.Job{
		ConcatPath:       rc.ConcatPath(),
		Output:           output,
		TmpDir:           rc.TmpDir(),
		Total:            m.Total,
		FPS:              cfg.FPS,
		VideoEncoder:     system.ResolveEncoder(cfg.VideoEncoder),
		Quality:          cfg.Quality,
		BackgroundVolume: cfg.Audio.BackgroundVolume,
	}
	if cfg.Audio.Background != "" {
		bg, err := system.ResolveFile(cfg.Audio.Background, system.AudioExtensions)
		if err != nil {
			rc.Logger.Warn("background audio unavailable", "path", cfg.Audio.Background, "error", err)
		} else {
			job.Background = bg
			if d, err := system.GetAudioDuration(ctx, bg); err == nil && d < m.Total {
				rc.Logger.Info("background audio shorter than video, looping", "audio", d, "video", m.Total)
			}
		}
	}
	if cfg.Audio.Keystroke != "" {
		if _, err := os.Stat(cfg.Audio.Keystroke); err != nil {
			rc.Logger.Warn("keystroke audio unavailable", "path", cfg.Audio.Keystroke, "error", err)
		} else {
			job.Keystroke = cfg.Audio.Keystroke
			job.Cues = audio.Sessions(m)
		}
	}
	job.Send = availableSound(rc, "send", cfg.Audio.Send)
	job.Receive = availableSound(rc, "receive", cfg.Audio.Receive)
	if job.Send != "" || job.Receive != "" {
		job.Messages = audio.MessageCues(m)
	}

	return p.Encoder.Encode(ctx, job)
}

// availableSound returns path when the file exists, logging and dropping it otherwise.
func availableSound(rc *RunContext, name, path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		rc.Logger.Warn("message sound unavailable", "sound", name, "path", path, "error", err)
		return ""
	}
	return path
}

// scriptPath falls back to the newest script in <data_dir>/scripts when none is configured.
func (p *Project) scriptPath(rc *RunContext, in Input) (string, error) {
	if path := firstNonEmpty(in.ScriptPath, rc.Config.ScriptPath); path != "" {
		return system.ResolveFile(path, system.ScriptExtensions)
	}
	return system.FindLatestScript(filepath.Join(rc.Config.DataDir, "scripts"))
}

func (p *Project) preparer(rc *RunContext) manifest.Preparer {
	if p.Preparer != nil {
		return p.Preparer(rc)
	}
	seg := config.SegmentParams{Width: rc.Config.Width, Height: rc.Config.Height, FPS: rc.Config.FPS}
	return media.NewPreparer(rc.MediaDir(), seg, rc.Config.Timeouts.Encode, logging.WithComponent(rc.Logger, "media"))
}

func canvasRenderer(rc *RunContext) (render.Renderer, error) {
	return render.NewCanvasRenderer(rc.FramesDir(), rc.Config.Width, rc.Config.Height, rc.Registry)
}

func scriptLabel(in Input) string {
	if len(in.Lines) > 0 {
		return "inline"
	}
	return in.ScriptPath
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
