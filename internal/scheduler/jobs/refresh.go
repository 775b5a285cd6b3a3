package jobs

import (
	"context"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Rebuilder rebuilds and persists the dashboard cache.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*dashboard.Payload, error)
}

// CacheRefreshJob periodically rebuilds the dashboard cache
type CacheRefreshJob struct {
	builder  Rebuilder
	schedule string
	before   func(ctx context.Context) error
	after    func(p *dashboard.Payload)
	logger   *logger.Logger
}

// NewCacheRefreshJob creates a refresh job on the given cron schedule.
func NewCacheRefreshJob(builder Rebuilder, schedule string, log *logger.Logger) *CacheRefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &CacheRefreshJob{
		builder:  builder,
		schedule: schedule,
		logger:   log,
	}
}

// Before registers a step run ahead of every rebuild (e.g. an app build).
// Its failure aborts the run.
func (j *CacheRefreshJob) Before(fn func(ctx context.Context) error) *CacheRefreshJob {
	j.before = fn
	return j
}

// After registers a callback receiving every rebuilt payload.
func (j *CacheRefreshJob) After(fn func(p *dashboard.Payload)) *CacheRefreshJob {
	j.after = fn
	return j
}

// Name returns the job name
func (j *CacheRefreshJob) Name() string {
	return "cache_refresh"
}

// Schedule returns the cron schedule
func (j *CacheRefreshJob) Schedule() string {
	return j.schedule
}

// Run rebuilds the cache
func (j *CacheRefreshJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled cache refresh")

	if j.before != nil {
		if err := j.before(ctx); err != nil {
			return err
		}
	}

	p, err := j.builder.Rebuild(ctx)
	if err != nil {
		return err
	}

	j.logger.WithField("snapshots", p.Summary.Count).Info("Cache refresh completed")
	if j.after != nil {
		j.after(p)
	}
	return nil
}
