package commands

import (
	"context"
	"fmt"

	"github.com/wonny/newsdeck/backend/internal/archive"
	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/internal/health"
	"github.com/wonny/newsdeck/backend/internal/publish"
	"github.com/wonny/newsdeck/backend/internal/store"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
	"github.com/wonny/newsdeck/backend/pkg/redis"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	ws      *workspace.Workspace
	store   *store.Store
	redis   *redis.Client
	cache   *redis.Cache // nil when redis is disabled
	closers []func() error
}

// newApp wires the snapshot store and the optional redis mirror.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		ws:  workspace.New(cfg.Paths.Root),
	}

	calc := health.NewCalculator(health.DefaultWeightConfig(), log.Component("health"))
	a.store = store.New(a.ws, cfg.Paths, calc, store.NewCoverageCache(), log.Component("store"))

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	if client.Enabled() {
		a.cache = redis.NewCache(client, "quality", cfg.Redis.TTL)
		log.Info("Connected to redis")
	}

	return a, nil
}

// builder creates the dashboard cache builder with the mirror and every
// configured publisher.
func (a *app) builder(ctx context.Context) *dashboard.Builder {
	var opts []dashboard.Option
	if a.cache != nil {
		opts = append(opts, dashboard.WithMirror(a.cache))
	}

	multi := publish.NewMulti(a.log.Component("publish"), a.publishers(ctx)...)
	if multi.Len() > 0 {
		opts = append(opts, dashboard.WithPublishers(multi))
	}

	return dashboard.NewBuilder(a.store, a.ws, a.cfg.Paths, a.log, opts...)
}

// publishers connects the S3 and NATS publishers that are configured.
// A publisher that cannot be set up is logged and skipped.
func (a *app) publishers(ctx context.Context) []dashboard.Publisher {
	var out []dashboard.Publisher
	pc := a.cfg.Publish

	if pc.S3Bucket != "" {
		s3p, err := publish.NewS3(ctx, pc)
		if err != nil {
			a.log.WithError(err).Warn("S3 publisher disabled")
		} else {
			out = append(out, s3p)
		}
	}

	if pc.NATSURL != "" {
		np, err := publish.NewNATS(pc.NATSURL, pc.NATSSubject, a.log)
		if err != nil {
			a.log.WithError(err).Warn("NATS publisher disabled")
		} else {
			out = append(out, np)
			a.closers = append(a.closers, np.Close)
		}
	}

	return out
}

// archive opens the configured snapshot archive.
func (a *app) archive(ctx context.Context) (archive.Archive, error) {
	arc, err := archive.Open(ctx, a.cfg.Archive, a.log.Component("archive"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, arc.Close)
	return arc, nil
}

// Close releases connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Debug("Close failed")
		}
	}
}
