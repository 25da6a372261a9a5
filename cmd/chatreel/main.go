package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ivlev/chatreel/internal/api"
	"github.com/ivlev/chatreel/internal/config"
	"github.com/ivlev/chatreel/internal/history"
	"github.com/ivlev/chatreel/internal/logging"
	"github.com/ivlev/chatreel/internal/pipeline"
	"github.com/ivlev/chatreel/internal/system"
	"github.com/ivlev/chatreel/internal/timeline"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	dataDir    string
	seed       int64

	rootCmd = &cobra.Command{
		Use:   "chatreel",
		Short: "Render chat scripts into short-form videos",
		Long: `chatreel turns a "speaker: message" chat script into a video of a messaging app:
typing animation for the primary user, typing indicators for others, memes and a closing card.

Examples:
  # Build a video from the newest script in <data_dir>/scripts
  chatreel build

  # Build from a script with background music
  chatreel build -s chat.txt -o out.mp4 --bg-dir input/audio --stats

  # Serve the run API
  chatreel serve --addr 127.0.0.1:8790`,
		SilenceUsage: true,
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Run the whole pipeline: timeline, manifest, encode",
		RunE:  runBuild,
	}

	timelineCmd = &cobra.Command{
		Use:   "timeline",
		Short: "Parse a script and write its timeline without encoding",
		RunE:  runTimeline,
	}

	manifestCmd = &cobra.Command{
		Use:   "manifest <timeline.yaml>",
		Short: "Build the concat list from a persisted timeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runManifest,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP run API",
		RunE:  runServe,
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runRuns,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for runs and history (default ~/.chatreel)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Random seed (0 = from clock)")

	for _, cmd := range []*cobra.Command{buildCmd, timelineCmd} {
		cmd.Flags().StringP("script", "s", "", "Chat script, or a directory holding scripts (newest is used)")
	}
	buildCmd.Flags().StringP("output", "o", "", "Output video (default output/<script>_<timestamp>.mp4)")
	buildCmd.Flags().String("bg-dir", "", "Directory to take the newest background track from")
	buildCmd.Flags().Bool("stats", false, "Print the run report with resource usage")
	buildCmd.Flags().Bool("skip-encode", false, "Stop after writing the concat list")

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	runsCmd.Flags().Int("limit", 20, "Number of runs to show")

	rootCmd.AddCommand(buildCmd, timelineCmd, manifestCmd, serveCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.BuildVersion = version

	logger := logging.NewLogger(cfg.LogLevel)
	// a run can hold several thousand frames
	system.InitResourceLimits(logger)
	return cfg, logger, nil
}

// openProject wires the pipeline with run history recording.
func openProject(cfg *config.Config, logger *slog.Logger) (*pipeline.Project, *history.Store, error) {
	store, err := history.Open(cfg.HistoryPath(), logging.WithComponent(logger, "history"))
	if err != nil {
		return nil, nil, err
	}
	p := pipeline.NewProject(cfg, logger)
	p.Recorder = store
	p.Seed = seed
	return p, store, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	scriptPath, _ := cmd.Flags().GetString("script")
	output, _ := cmd.Flags().GetString("output")
	bgDir, _ := cmd.Flags().GetString("bg-dir")
	showStats, _ := cmd.Flags().GetBool("stats")
	skipEncode, _ := cmd.Flags().GetBool("skip-encode")

	if bgDir != "" {
		bg, err := system.FindLatestAudio(bgDir)
		if err != nil {
			fmt.Printf("[!] Background audio not found: %v\n", err)
		} else {
			cfg.Audio.Background = bg
			fmt.Printf("[*] Background audio: %s\n", bg)
		}
	}
	if output == "" && !skipEncode {
		output = defaultOutput(scriptPath)
	}

	encoder := system.ResolveEncoder(cfg.VideoEncoder)
	if encoder != "libx264" {
		fmt.Printf("[*] Hardware encoder: %s\n", encoder)
	}

	project, store, err := openProject(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("[*] Building chat video...\n")
	rep, err := project.Run(ctx, pipeline.Input{ScriptPath: scriptPath, Output: output, SkipEncode: skipEncode})
	if showStats || err != nil {
		rep.Print(os.Stdout)
	}
	if err != nil {
		return err
	}

	if skipEncode {
		fmt.Printf("[+++] Concat list: %s\n", rep.ConcatPath)
		return nil
	}
	fmt.Printf("[+++] Success! Result: %s\n", rep.Output)
	return nil
}

func runTimeline(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	scriptPath, _ := cmd.Flags().GetString("script")

	project := pipeline.NewProject(cfg, logger)
	project.Seed = seed
	in := pipeline.Input{ScriptPath: scriptPath}
	rc := project.Begin(cmd.Context(), in)

	lines, skipped, err := project.Parse(rc, in)
	if err != nil {
		return err
	}
	fmt.Printf("[*] %d lines parsed, %d skipped\n", len(lines), skipped)

	rep := &pipeline.Report{RunID: rc.ID}
	store, err := project.BuildTimeline(cmd.Context(), rc, lines, rep)
	if err != nil {
		return err
	}
	fmt.Printf("[+++] Timeline: %s (%d entries, %.2fs, %d frames skipped)\n",
		store.Path(), store.Len(), store.Document().Total(), rep.SkippedFrames)
	return nil
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := timeline.Load(args[0])
	if err != nil {
		return err
	}

	project := pipeline.NewProject(cfg, logger)
	project.Seed = seed
	rc := pipeline.NewRunContext(cfg, seed, logger)
	m, err := project.BuildManifest(cmd.Context(), rc, doc.Entries)
	if err != nil {
		return err
	}
	fmt.Printf("[+++] Concat list: %s (%d frames, %d skipped, %.2fs)\n", rc.ConcatPath(), len(m.Pairs), m.Skipped, m.Total)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	project, store, err := openProject(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTPAddr,
		Runner:       project,
		Runs:         store,
		DataDir:      cfg.DataDir,
		TimelinePath: cfg.TimelinePath,
		Logger:       logging.WithComponent(logger, "api"),
		StartTime:    time.Now(),
		Version:      version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sig:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(cfg.HistoryPath(), logger)
	if err != nil {
		return errors.Wrap(err, "failed to open history")
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-9s  %s  %3d entries  %6.2fs", r.ID, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Entries, r.Total)
		if r.Stage != "" {
			line += "  failed in " + r.Stage
		}
		fmt.Println(line)
	}
	return nil
}

func defaultOutput(scriptPath string) string {
	name := "chat"
	if scriptPath != "" {
		base := filepath.Base(scriptPath)
		name = strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, timestamp))
}
