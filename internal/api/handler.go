// Package api exposes the comparison pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/pipeline"
	"github.com/kalambet/icebreaker/internal/storage"
	"github.com/kalambet/icebreaker/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Pipeline is the subset of the orchestrator the façade drives.
type Pipeline interface {
	Submit(ctx context.Context, refs []collect.ProfileRef) (string, error)
	FetchResult(ctx context.Context, jobID string) ([]byte, error)
	Analyze(ctx context.Context, jobID string) (string, error)
	Run(ctx context.Context, refs []collect.ProfileRef) (*pipeline.Run, error)
}

// RunStore reads persisted run records.
type RunStore interface {
	GetRun(id string) (storage.Run, error)
	ListRuns(limit, offset int) ([]storage.Run, error)
}

type Deps struct {
	Pipeline Pipeline
	Runs     RunStore     // optional; nil disables run history routes
	Queue    worker.Queue // optional; nil disables POST /api/runs
	Logger   *slog.Logger
}

type urlsRequest struct {
	URLs []collect.ProfileRef `json:"urls"`
}

type analyzeRequest struct {
	SnapshotID    string `json:"snapshotId"`
	SnapshotIDAlt string `json:"snapshot_id"`
}

// NewHandler returns the HTTP handler serving the comparison API.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/trigger", handleTrigger(deps))
		r.Get("/snapshot/{snapshotID}", handleSnapshot(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/compare", handleCompare(deps))

		if deps.Runs != nil {
			r.Get("/runs", handleListRuns(deps))
			r.Get("/runs/{id}", handleGetRun(deps))
		}
		if deps.Queue != nil {
			r.Post("/runs", handleEnqueueRun(deps))
		}
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidInput("api.decode", "invalid request body: %v", err)
	}
	return nil
}

func handleTrigger(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		jobID, err := deps.Pipeline.Submit(r.Context(), req.URLs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": jobID})
	}
}

func handleSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "snapshotID")

		payload, err := deps.Pipeline.FetchResult(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		jobID := req.SnapshotID
		if jobID == "" {
			jobID = req.SnapshotIDAlt
		}
		if strings.TrimSpace(jobID) == "" {
			writeError(w, r, apperr.InvalidInput("api.analyze", "snapshotId is required"))
			return
		}

		text, err := deps.Pipeline.Analyze(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"insights": text})
	}
}

func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		run, err := deps.Pipeline.Run(r.Context(), req.URLs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"run_id":      run.ID,
			"snapshot_id": run.JobID,
			"insights":    run.Insight,
		})
	}
}

func handleEnqueueRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		runID, err := worker.Enqueue(deps.Queue, req.URLs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": runID,
			"status": worker.StatusQueued,
		})
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := deps.Runs.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		runs, err := deps.Runs.ListRuns(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
