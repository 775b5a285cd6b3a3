package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// SnapshotLister supplies the sorted snapshot history.
type SnapshotLister interface {
	List(ctx context.Context) ([]snapshot.Snapshot, error)
}

// Mirror is a secondary byte store for the cache (Redis).
type Mirror interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, data []byte) error
}

// Publisher receives every written payload.
type Publisher interface {
	Publish(ctx context.Context, p *Payload) error
}

// MirrorKey is the key of the payload in the mirror.
const MirrorKey = "dashboard"

// Builder assembles, persists and reads the dashboard cache
// ⭐ SSOT: 대시보드 캐시는 여기서만 생성
type Builder struct {
	store      SnapshotLister
	ws         *workspace.Workspace
	paths      config.PathsConfig
	mirror     Mirror
	publishers []Publisher
	logger     *logger.Logger
	now        func() time.Time

	mu sync.Mutex // serialises rebuilds within one process
}

// Option configures a Builder.
type Option func(*Builder)

// WithMirror mirrors written payloads and serves reads on a local miss.
func WithMirror(m Mirror) Option {
	return func(b *Builder) { b.mirror = m }
}

// WithPublishers hands every written payload to each publisher.
func WithPublishers(p ...Publisher) Option {
	return func(b *Builder) { b.publishers = append(b.publishers, p...) }
}

// WithClock overrides time.Now for generatedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a dashboard cache builder.
func NewBuilder(store SnapshotLister, ws *workspace.Workspace, paths config.PathsConfig, log *logger.Logger, opts ...Option) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	b := &Builder{
		store:  store,
		ws:     ws,
		paths:  paths,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles a fresh payload. Only a failure to list snapshots is an
// error; each auxiliary artifact independently degrades to absent.
func (b *Builder) Build(ctx context.Context) (*Payload, error) {
	snaps, err := b.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}

	var (
		wg              sync.WaitGroup
		security        *artifact.SecurityReport
		securityHistory []SecurityPoint
		scripts         []ScriptStats
		scriptHistory   map[string][]ScriptPoint
		coverageTotals  *artifact.CoverageTotals
		coverageFiles   []artifact.FileCoverage
	)
	wg.Add(4)
	go func() { defer wg.Done(); security = b.loadSecurity() }()
	go func() { defer wg.Done(); securityHistory = b.loadSecurityHistory() }()
	go func() { defer wg.Done(); scripts, scriptHistory = b.loadScripts() }()
	go func() { defer wg.Done(); coverageTotals, coverageFiles = b.loadCoverage() }()
	wg.Wait()

	summary := Summary{
		Count:           len(snaps),
		Averages:        ComputeAverages(snaps),
		Security:        security,
		SecurityHistory: securityHistory,
		CoverageSummary: coverageTotals,
		CoverageDetails: coverageFiles,
		Scripts:         scripts,
		ScriptHistory:   scriptHistory,
	}
	if len(snaps) > 0 {
		latest := snaps[0].Timestamp
		summary.LatestTimestamp = &latest
	}

	return &Payload{
		GeneratedAt: b.now().UTC(),
		Summary:     summary,
		Data:        snaps,
	}, nil
}

// Write persists p as the cache file, replacing any previous version. A nil
// payload is built first. The mirror and publishers are best effort.
func (b *Builder) Write(ctx context.Context, p *Payload) (*Payload, error) {
	if p == nil {
		var err error
		if p, err = b.Build(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode dashboard cache: %w", err)
	}

	if err := b.ws.WriteFile(b.paths.Rel(b.paths.CacheFile), data); err != nil {
		if !errors.Is(err, workspace.ErrReadOnly) || b.mirror == nil {
			return nil, fmt.Errorf("write dashboard cache: %w", err)
		}
	}

	if b.mirror != nil {
		if err := b.mirror.SetBytes(ctx, MirrorKey, data); err != nil {
			b.logger.WithError(err).Warn("Failed to mirror dashboard cache")
		}
	}

	for _, pub := range b.publishers {
		if err := pub.Publish(ctx, p); err != nil {
			b.logger.WithError(err).Warn("Failed to publish dashboard cache")
		}
	}

	b.logger.WithFields(map[string]interface{}{
		"snapshots": p.Summary.Count,
		"bytes":     len(data),
	}).Info("Dashboard cache written")

	return p, nil
}

// Rebuild builds and writes a fresh payload.
func (b *Builder) Rebuild(ctx context.Context) (*Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Write(ctx, nil)
}

// Read returns the cached payload, nil when missing or malformed. The
// local file is tried first, then the mirror.
func (b *Builder) Read(ctx context.Context) (*Payload, error) {
	data, err := b.ws.ReadFile(b.paths.Rel(b.paths.CacheFile))
	if err == nil {
		if p := decode(data); p != nil {
			return p, nil
		}
		b.logger.Warn("Dashboard cache is malformed, treating as miss")
	} else if !errors.Is(err, fs.ErrNotExist) {
		b.logger.WithError(err).Warn("Failed to read dashboard cache")
	}

	if b.mirror == nil {
		return nil, nil
	}
	data, err = b.mirror.GetBytes(ctx, MirrorKey)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to read dashboard cache mirror")
		return nil, nil
	}
	if data == nil {
		return nil, nil
	}
	return decode(data), nil
}

// Load serves the cache, rebuilding on refresh or on a miss.
func (b *Builder) Load(ctx context.Context, refresh bool) (*Payload, error) {
	if !refresh {
		p, err := b.Read(ctx)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
		b.logger.Debug("Dashboard cache miss, rebuilding")
	}
	return b.Rebuild(ctx)
}

func decode(data []byte) *Payload {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	if p.GeneratedAt.IsZero() || p.Data == nil {
		return nil
	}
	return &p
}
