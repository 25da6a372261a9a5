package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/history"
	"github.com/ivlev/chatreel/internal/pipeline"
	"github.com/ivlev/chatreel/internal/timeline"
)

func NewRouter(cfg ServerConfig, bg *background) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", startRunHandler(cfg, bg))
		r.Get("/", listRunsHandler(cfg))
		r.Get("/{id}", getRunHandler(cfg))
		r.Get("/{id}/timeline", timelineHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

// startRunHandler records the run and returns its id; the stages run in the background.
func startRunHandler(cfg ServerConfig, bg *background) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.Lines) == 0 && req.Script == "" {
			WriteError(w, http.StatusBadRequest, "lines or script is required", "BAD_REQUEST")
			return
		}

		script, err := confine(cfg.DataDir, "scripts", req.Script)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid script: "+err.Error(), "BAD_REQUEST")
			return
		}
		output, err := confine(cfg.DataDir, "output", req.Output)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid output: "+err.Error(), "BAD_REQUEST")
			return
		}

		in := pipeline.Input{Lines: req.Lines, ScriptPath: script, Output: output, SkipEncode: req.SkipEncode}
		rc := cfg.Runner.Begin(r.Context(), in)
		bg.Go(func(ctx context.Context) {
			// The report and any failure are recorded by the runner.
			_, _ = cfg.Runner.Execute(ctx, rc, in)
		})

		WriteJSON(w, http.StatusAccepted, StartRunResponse{RunID: rc.ID})
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Runs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		if runs == nil {
			runs = []*history.Run{}
		}
		WriteJSON(w, http.StatusOK, RunsResponse{Runs: runs})
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, run)
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, cfg)
		if !ok {
			return
		}

		path := run.TimelinePath
		if path == "" {
			path = cfg.TimelinePath(run.ID)
		}
		doc, err := timeline.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "timeline not written yet", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, TimelineToResponse(doc))
	}
}

func lookupRun(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*history.Run, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "run id required", "BAD_REQUEST")
		return nil, false
	}

	run, err := cfg.Runs.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
		return nil, false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	return run, true
}

// confine resolves a client-supplied relative path under dataDir/sub. Absolute paths and paths
// that climb out with ".." are rejected. An empty path stays empty.
func confine(dataDir, sub, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !filepath.IsLocal(path) {
		return "", errors.Errorf("%q must be a relative path inside %s", path, sub)
	}
	if dataDir == "" {
		return "", errors.New("server has no data directory")
	}
	return filepath.Join(dataDir, sub, path), nil
}
