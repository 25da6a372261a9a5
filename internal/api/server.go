// Package api exposes runs over HTTP: start one, list them, inspect one and its timeline.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/history"
	"github.com/ivlev/chatreel/internal/pipeline"
)

// Runner starts runs. *pipeline.Project satisfies it.
type Runner interface {
	Begin(ctx context.Context, in pipeline.Input) *pipeline.RunContext
	Execute(ctx context.Context, rc *pipeline.RunContext, in pipeline.Input) (*pipeline.Report, error)
}

// RunStore reads recorded runs. *history.Store satisfies it.
type RunStore interface {
	Get(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]*history.Run, error)
}

type ServerConfig struct {
	Addr         string
	Runner       Runner
	Runs         RunStore
	// DataDir confines client-supplied paths: scripts under DataDir/scripts, outputs under
	// DataDir/output.
	DataDir      string
	// TimelinePath locates a run's persisted timeline.
	TimelinePath func(runID string) string
	Logger       *slog.Logger
	StartTime    time.Time
	Version      string
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	runs       *background
}

// background tracks runs started over HTTP so shutdown can cancel and wait for them.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackground() *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel}
}

func (b *background) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

func (b *background) Stop() {
	b.cancel()
	b.wg.Wait()
}

func NewServer(cfg ServerConfig) *Server {
	bg := newBackground()
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(cfg, bg),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
		runs:   bg,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}

// Shutdown stops accepting requests, then cancels and waits for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	s.runs.Stop()
	return errors.WithStack(err)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
