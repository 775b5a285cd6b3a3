package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/internal/probe"
	"github.com/wonny/newsdeck/backend/internal/runner"
	"github.com/wonny/newsdeck/backend/internal/store"
	"github.com/wonny/newsdeck/backend/pkg/logger"
	"github.com/wonny/newsdeck/backend/pkg/redis"
)

// Event names pushed to websocket clients.
const (
	EventCacheRebuilt = "cache_rebuilt"
	EventTaskFinished = "task_finished"
)

// CacheLoader serves the dashboard cache.
type CacheLoader interface {
	Load(ctx context.Context, refresh bool) (*dashboard.Payload, error)
}

// ReportReader returns raw legacy reports by file name.
type ReportReader interface {
	Report(name string) ([]byte, error)
}

// SettingsStore reads and writes the config blob.
type SettingsStore interface {
	Get(ctx context.Context) (map[string]any, error)
	Set(ctx context.Context, values map[string]any) error
}

// Prober measures latency against a URL.
type Prober interface {
	Probe(ctx context.Context, url string) probe.Result
}

// TaskRunner runs project scripts.
type TaskRunner interface {
	Run(ctx context.Context, task runner.Task) (*runner.Result, error)
}

// RunLimiter bounds how often tasks may be started.
type RunLimiter interface {
	Allow(ctx context.Context, cfg redis.RateLimitConfig) (bool, int, error)
}

// Notifier pushes events to connected clients.
type Notifier interface {
	Broadcast(eventType string, payload interface{})
}

// BuildGuard makes sure the app build exists before a refresh.
type BuildGuard interface {
	Ensure(ctx context.Context) error
}

// QualityHandler serves the quality dashboard API
// ⭐ SSOT: 품질 대시보드 API 핸들러는 이 구조체에서만
type QualityHandler struct {
	cache      CacheLoader
	reports    ReportReader
	settings   SettingsStore
	prober     Prober
	probeURL   string
	probeCache *redis.Cache
	runner     TaskRunner
	limiter    RunLimiter
	notifier   Notifier
	guard      BuildGuard
	logger     *logger.Logger
}

// Deps groups the collaborators of QualityHandler. Optional ones may be nil.
type Deps struct {
	Cache      CacheLoader
	Reports    ReportReader
	Settings   SettingsStore
	Prober     Prober
	ProbeURL   string
	ProbeCache *redis.Cache
	Runner     TaskRunner
	Limiter    RunLimiter
	Notifier   Notifier
	Guard      BuildGuard
}

// NewQualityHandler creates a new quality handler
func NewQualityHandler(d Deps, log *logger.Logger) *QualityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QualityHandler{
		cache:      d.Cache,
		reports:    d.Reports,
		settings:   d.Settings,
		prober:     d.Prober,
		probeURL:   d.ProbeURL,
		probeCache: d.ProbeCache,
		runner:     d.Runner,
		limiter:    d.Limiter,
		notifier:   d.Notifier,
		guard:      d.Guard,
		logger:     log,
	}
}

// GetSnapshots returns the dashboard payload
// GET /api/snapshots?refresh=true
func (h *QualityHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	if refresh && h.guard != nil {
		if err := h.guard.Ensure(ctx); err != nil {
			h.logger.WithError(err).Warn("Build check failed, refreshing anyway")
		}
	}

	p, err := h.cache.Load(ctx, refresh)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load dashboard cache")
		respondError(w, http.StatusInternalServerError, "Failed to load snapshots")
		return
	}

	if refresh {
		h.notify(EventCacheRebuilt, map[string]interface{}{
			"generatedAt": p.GeneratedAt,
			"count":       p.Summary.Count,
		})
	}

	respondJSON(w, http.StatusOK, p)
}

// GetConfig returns the settings blob
// GET /api/config
func (h *QualityHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	values, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read settings")
		respondError(w, http.StatusInternalServerError, "Failed to read config")
		return
	}
	respondJSON(w, http.StatusOK, values)
}

// PutConfig replaces the settings blob
// PUT /api/config
func (h *QualityHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&values); err != nil || values == nil {
		respondError(w, http.StatusBadRequest, "Config must be a JSON object")
		return
	}

	if err := h.settings.Set(r.Context(), values); err != nil {
		h.logger.WithError(err).Error("Failed to write settings")
		respondError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
	respondJSON(w, http.StatusOK, values)
}

// GetReport returns a legacy report's raw text
// GET /api/reports/{name}
func (h *QualityHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	data, err := h.reports.Report(name)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read report")
		respondError(w, http.StatusInternalServerError, "Failed to read report")
		return
	}

	contentType := "text/markdown; charset=utf-8"
	if path.Ext(name) == ".html" {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetProbe runs one best-effort latency probe. It always answers 200.
// GET /api/probe
func (h *QualityHandler) GetProbe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var result probe.Result
	if h.probeCache != nil {
		if ok, err := h.probeCache.Get(ctx, redis.ProbeKey(h.probeURL), &result); err == nil && ok {
			respondJSON(w, http.StatusOK, result)
			return
		}
	}

	result = probe.Result{CheckedAt: time.Now().UTC()}
	if h.prober != nil {
		result = h.prober.Probe(ctx, h.probeURL)
	}

	if h.probeCache != nil && result.Success {
		if err := h.probeCache.Set(ctx, redis.ProbeKey(h.probeURL), result, redis.TTLShort); err != nil {
			h.logger.WithError(err).Debug("Failed to cache probe result")
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// RunTask runs a project script and relays its output verbatim
// POST /api/run/{task}
func (h *QualityHandler) RunTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	task, err := runner.ParseTask(mux.Vars(r)["task"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.limiter != nil {
		allowed, remaining, err := h.limiter.Allow(ctx, redis.RunRateLimit(string(task)))
		if err != nil {
			h.logger.WithError(err).Warn("Rate limiter unavailable, allowing task")
		} else if !allowed {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			respondError(w, http.StatusTooManyRequests, "Task was started too recently")
			return
		}
	}

	res, err := h.runner.Run(ctx, task)
	if err != nil {
		h.logger.WithError(err).Error("Failed to run task")
		respondError(w, http.StatusInternalServerError, "Failed to start task")
		return
	}

	h.notify(EventTaskFinished, map[string]interface{}{
		"task":     res.Task,
		"exitCode": res.ExitCode,
		"duration": res.Duration,
	})

	respondJSON(w, http.StatusOK, res)
}

func (h *QualityHandler) notify(event string, payload interface{}) {
	if h.notifier != nil {
		h.notifier.Broadcast(event, payload)
	}
}
