package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/newsdeck/backend/internal/api/handlers"
	"github.com/wonny/newsdeck/backend/internal/scheduler"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// JobStatter reports scheduled job statistics for /health.
type JobStatter interface {
	GetJobStats() map[string]scheduler.JobStats
}

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	jobs JobStatter
}

// WithJobStats adds scheduled job statistics to the health response.
func WithJobStats(jobs JobStatter) RouterOption {
	return func(o *routerOptions) { o.jobs = jobs }
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(quality *handlers.QualityHandler, hub *Hub, activity *Activity, log *logger.Logger, opts ...RouterOption) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(o.jobs)).Methods("GET")

	// Push notifications
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS).Methods("GET")
	}

	// Quality API. Registered on the root router so a method mismatch
	// answers 405 rather than 404.
	r.HandleFunc("/api/snapshots", quality.GetSnapshots).Methods("GET")
	r.HandleFunc("/api/config", quality.GetConfig).Methods("GET")
	r.HandleFunc("/api/config", quality.PutConfig).Methods("PUT")
	r.HandleFunc("/api/reports/{name}", quality.GetReport).Methods("GET")
	r.HandleFunc("/api/probe", quality.GetProbe).Methods("GET")
	r.HandleFunc("/api/run/{task}", quality.RunTask).Methods("POST")

	// Apply middleware
	if activity != nil {
		r.Use(activity.Middleware)
	}
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status, plus job stats when a
// refresh schedule is running.
func healthCheckHandler(jobs JobStatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "newsdeck-quality",
		}
		if jobs != nil {
			body["jobs"] = jobs.GetJobStats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// loggingMiddleware logs every request with its status and duration.
// Server errors are logged at warn level, the rest at debug.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := log.Since(start).WithFields(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rec.status,
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("HTTP request failed")
				return
			}
			entry.Debug("HTTP request")
		})
	}
}

// recoveryMiddleware turns a handler panic into a JSON 500.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"panic": fmt.Sprint(err),
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
