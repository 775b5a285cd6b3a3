package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/wonny/newsdeck/backend/internal/api/handlers"
	"github.com/wonny/newsdeck/backend/internal/runner"
	"github.com/wonny/newsdeck/backend/pkg/logger"
	"github.com/wonny/newsdeck/backend/pkg/redis"
)

// Stater reports file metadata.
type Stater interface {
	Stat(name string) (fs.FileInfo, error)
}

// AppBuild rebuilds the web app when its build output is missing, so that
// bundle sizes and lighthouse runs have something to measure.
type AppBuild struct {
	files   Stater
	dir     string
	runner  handlers.TaskRunner
	limiter handlers.RunLimiter
	logger  *logger.Logger
}

// NewAppBuild creates a build guard for the build output dir. limiter may be nil.
func NewAppBuild(files Stater, dir string, r handlers.TaskRunner, limiter handlers.RunLimiter, log *logger.Logger) *AppBuild {
	if log == nil {
		log = logger.Nop()
	}
	return &AppBuild{
		files:   files,
		dir:     dir,
		runner:  r,
		limiter: limiter,
		logger:  log,
	}
}

// Valid reports whether the build output has an index.html.
func (b *AppBuild) Valid() bool {
	_, err := b.files.Stat(path.Join(b.dir, "index.html"))
	return err == nil
}

// Ensure runs the build task unless the output is valid or a build ran
// too recently.
func (b *AppBuild) Ensure(ctx context.Context) error {
	if b.Valid() {
		return nil
	}

	if b.limiter != nil {
		allowed, _, err := b.limiter.Allow(ctx, redis.RunBuildRateLimit)
		if err == nil && !allowed {
			b.logger.Debug("Skipping app build, one ran recently")
			return nil
		}
	}

	b.logger.WithField("dir", b.dir).Info("Build output invalid, rebuilding app")
	res, err := b.runner.Run(ctx, runner.TaskBuild)
	if err != nil {
		return fmt.Errorf("app build: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("app build exited with code %d", res.ExitCode)
	}
	if !b.Valid() {
		return errors.New("app build produced no index.html")
	}
	return nil
}
