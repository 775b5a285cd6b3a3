package probe

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/httputil"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// DegradedLatency is the response time above which a reachable app counts as degraded.
const DegradedLatency = 1500.0 // ms

// Result is the outcome of one latency probe. Latency is in milliseconds.
type Result struct {
	Success   bool      `json:"success"`
	Latency   float64   `json:"latency"`
	Status    int       `json:"status,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Prober issues best-effort GET requests against the deployed app
// ⭐ SSOT: 지연시간 측정은 여기서만 수행
type Prober struct {
	client *httputil.Client
	logger *logger.Logger
	now    func() time.Time
}

// New creates a prober limited to one request per second with a burst of three.
func New(timeout time.Duration, log *logger.Logger) *Prober {
	if log == nil {
		log = logger.Nop()
	}
	client := httputil.New(log, timeout).
		WithRateLimiter(rate.NewLimiter(rate.Limit(1), 3))

	return &Prober{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

// Probe measures the time to a successful response. It never returns an
// error: any failure, timeout or non-2xx/3xx answer yields Success=false and
// Latency=0.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	result := Result{CheckedAt: p.now().UTC()}

	if strings.TrimSpace(url) == "" {
		return result
	}

	timing, err := p.client.Measure(ctx, url)
	if err != nil {
		p.logger.WithFields(map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		}).Warn("Latency probe failed")
		return result
	}

	result.Status = timing.Status
	if timing.Status >= http.StatusBadRequest {
		p.logger.WithFields(map[string]interface{}{
			"url":    url,
			"status": timing.Status,
		}).Warn("Latency probe got error status")
		return result
	}

	result.Success = true
	result.Latency = math.Round(float64(timing.Header.Microseconds())/10) / 100
	return result
}

// Stability converts a probe result into snapshot stability metrics.
// A reachable app answering with an error status counts as degraded.
func Stability(r Result) snapshot.StabilityMetrics {
	m := snapshot.StabilityMetrics{
		Latency:   r.Latency,
		LastCheck: r.CheckedAt,
		Status:    snapshot.StatusOffline,
	}

	switch {
	case r.Success && r.Latency > DegradedLatency:
		m.Uptime = 100
		m.Status = snapshot.StatusDegraded
	case r.Success:
		m.Uptime = 100
		m.Status = snapshot.StatusOnline
	case r.Status != 0:
		m.Status = snapshot.StatusDegraded
	}

	return m
}
