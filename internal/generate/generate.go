package generate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/wonny/newsdeck/backend/internal/archive"
	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/health"
	"github.com/wonny/newsdeck/backend/internal/probe"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/internal/store"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

const (
	// TrendThreshold is the coverage change, in points, that counts as a trend.
	TrendThreshold = 0.5
	// RegressionThreshold is the category drop, in points, reported as a regression.
	RegressionThreshold = 5.0
)

// Identity resolves the commit hash and branch being measured.
type Identity func(ctx context.Context) (commit, branch string)

// Result is the outcome of one generation run.
type Result struct {
	Snapshot snapshot.Snapshot
	Path     string
	Previous *snapshot.Snapshot
}

// Generator assembles and saves a structured snapshot from the artifacts
// of the current run
// ⭐ SSOT: 구조화 스냅샷 생성은 여기서만
type Generator struct {
	store    *store.Store
	paths    config.PathsConfig
	archive  archive.Archive
	prober   *probe.Prober
	probeURL string
	identity Identity
	now      func() time.Time
	logger   *logger.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithArchive records every saved snapshot in a.
func WithArchive(a archive.Archive) Option {
	return func(g *Generator) { g.archive = a }
}

// WithProber measures stability against url.
func WithProber(p *probe.Prober, url string) Option {
	return func(g *Generator) {
		g.prober = p
		g.probeURL = url
	}
}

// WithIdentity overrides git identity resolution.
func WithIdentity(id Identity) Option {
	return func(g *Generator) { g.identity = id }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a generator over st.
func New(st *store.Store, paths config.PathsConfig, log *logger.Logger, opts ...Option) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	g := &Generator{
		store:    st,
		paths:    paths,
		archive:  archive.Noop{},
		identity: GitIdentity(paths.Root, "", ""),
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate measures the current state, scores it and saves it. Only a
// failure to save is returned as an error; missing inputs degrade the
// snapshot's confidence instead.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	now := g.now().UTC().Truncate(time.Millisecond)
	commit, branch := g.identity(ctx)

	previous, err := g.previous(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to load previous snapshots")
	}

	snap := snapshot.Snapshot{
		CommitHash: commit,
		Branch:     branch,
		Timestamp:  now,
		Source:     snapshot.SourceStructured,
		Metrics: snapshot.Metrics{
			Tests:       g.tests(),
			Coverage:    g.coverage(),
			Performance: g.store.Performance(now),
			Stability:   g.stability(ctx),
		},
	}

	snap.Metrics.Coverage.Trend = snapshot.TrendStable
	if previous != nil {
		snap.Metrics.Coverage.Trend = CoverageTrend(snap.Metrics.Coverage, previous.Metrics.Coverage)
		snap.Metrics.Performance.Regressions = Regressions(snap.Metrics, previous.Metrics)
	}

	snap.Refresh()
	r := g.store.Health().Apply(&snap, health.Borrowed{})

	name, err := g.store.Save(ctx, snap)
	if err != nil {
		return nil, err
	}

	if err := g.archive.Record(ctx, snap); err != nil {
		g.logger.WithError(err).Warn("Failed to archive snapshot")
	}

	g.logger.WithFields(map[string]interface{}{
		"commit":      snap.CommitHash,
		"score":       r.Score,
		"confidence":  r.Confidence,
		"regressions": len(snap.Metrics.Performance.Regressions),
	}).Info("Snapshot generated")

	return &Result{Snapshot: snap, Path: name, Previous: previous}, nil
}

func (g *Generator) previous(ctx context.Context) (*snapshot.Snapshot, error) {
	list, err := g.store.List(ctx)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	prev := list[0]
	return &prev, nil
}

func (g *Generator) tests() snapshot.TestMetrics {
	name := g.paths.Rel(g.paths.TestResults)
	data, err := g.store.Workspace().ReadFile(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.logger.WithError(err).Warn("Failed to read test results")
		} else {
			g.logger.WithField("file", name).Warn("No test results found")
		}
		return snapshot.TestMetrics{Suites: []snapshot.TestSuite{}}
	}

	m, err := artifact.ParseTestResults(data)
	if err != nil {
		g.logger.WithError(err).Warn("Ignoring unreadable test results")
		return snapshot.TestMetrics{Suites: []snapshot.TestSuite{}}
	}
	return m
}

func (g *Generator) coverage() snapshot.CoverageMetrics {
	totals := g.store.CoverageSummary()
	if totals == nil {
		return snapshot.CoverageMetrics{}
	}
	return snapshot.CoverageMetrics{
		Lines:      totals.Lines,
		Statements: totals.Statements,
		Branches:   totals.Branches,
		Functions:  totals.Functions,
	}
}

func (g *Generator) stability(ctx context.Context) snapshot.StabilityMetrics {
	if g.prober == nil || g.probeURL == "" {
		return snapshot.StabilityMetrics{Status: snapshot.StatusOffline}
	}
	return probe.Stability(g.prober.Probe(ctx, g.probeURL))
}

// CoverageTrend compares line coverage, falling back to statements.
func CoverageTrend(cur, prev snapshot.CoverageMetrics) snapshot.Trend {
	c, p := cur.Lines, prev.Lines
	if c == 0 || p == 0 {
		c, p = cur.Statements, prev.Statements
	}
	if c == 0 || p == 0 {
		return snapshot.TrendStable
	}

	switch d := c - p; {
	case d > TrendThreshold:
		return snapshot.TrendUp
	case d < -TrendThreshold:
		return snapshot.TrendDown
	default:
		return snapshot.TrendStable
	}
}

// Regressions lists every category that dropped more than
// RegressionThreshold points. Categories unmeasured on either side are ignored.
func Regressions(cur, prev snapshot.Metrics) []string {
	c, p := health.CategoriesOf(cur), health.CategoriesOf(prev)

	out := []string{}
	for _, cat := range []struct {
		name      string
		cur, prev float64
	}{
		{"tests", c.Tests, p.Tests},
		{"coverage", c.Coverage, p.Coverage},
		{"performance", c.Performance, p.Performance},
		{"stability", c.Stability, p.Stability},
	} {
		if math.IsNaN(cat.cur) || math.IsNaN(cat.prev) {
			continue
		}
		if drop := cat.prev - cat.cur; drop > RegressionThreshold {
			out = append(out, fmt.Sprintf("%s -%.1f", cat.name, drop))
		}
	}
	return out
}

// GitIdentity resolves the commit and branch from the given overrides,
// falling back to git in dir.
func GitIdentity(dir, commit, branch string) Identity {
	return func(ctx context.Context) (string, string) {
		c, b := commit, branch
		if c == "" {
			c = git(ctx, dir, "rev-parse", "--short", "HEAD")
		}
		if b == "" {
			b = git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
		}
		if c == "" {
			c = "unknown"
		}
		if b == "" || b == "HEAD" {
			b = "main"
		}
		return c, b
	}
}

func git(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
