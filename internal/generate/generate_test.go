package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/newsdeck/backend/internal/archive"
	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/internal/store"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/config"
)

var now = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func testPaths(root string) config.PathsConfig {
	return config.PathsConfig{
		Root:                root,
		Snapshots:           "quality/snapshots",
		Reports:             "reports",
		HTMLReports:         "docs/reports",
		Lighthouse:          "quality/lighthouse",
		Coverage:            "coverage",
		BuildOutput:         "dist",
		TestResults:         "quality/test-results.json",
		SecurityFindingsCap: 50,
	}
}

func fixedIdentity(context.Context) (string, string) { return "abc1234", "feature/feed" }

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func previousSnapshot() snapshot.Snapshot {
	prev := snapshot.Snapshot{
		CommitHash:      "0ld0000",
		Branch:          "main",
		Timestamp:       now.Add(-24 * time.Hour),
		HealthScore:     90,
		ConfidenceLevel: snapshot.ConfidenceHigh,
		Source:          snapshot.SourceStructured,
		Metrics: snapshot.Metrics{
			Tests:    snapshot.TestMetrics{Total: 10, Passed: 10, Suites: []snapshot.TestSuite{}},
			Coverage: snapshot.CoverageMetrics{Lines: 70, Statements: 70, Branches: 70, Functions: 70, Trend: snapshot.TrendStable},
			Performance: snapshot.PerformanceMetrics{
				Base:        snapshot.ScoreSet{Performance: 98, Accessibility: 95, BestPractices: 100, SEO: 90},
				BundleSize:  300,
				Regressions: []string{},
			},
			Stability: snapshot.StabilityMetrics{Uptime: 99.9, Latency: 120, LastCheck: now.Add(-24 * time.Hour), Status: snapshot.StatusOnline},
		},
	}
	prev.Refresh()
	return prev
}

func seedProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "quality/test-results.json", []byte(`{
		"numTotalTests": 10, "numPassedTests": 9, "numFailedTests": 1, "numPendingTests": 0,
		"testResults": [{"name": "src/Feed.test.tsx", "status": "failed", "startTime": 1000, "endTime": 3000,
			"assertionResults": [{"status": "passed"}, {"status": "failed"}]}]
	}`))
	writeFile(t, dir, "coverage/coverage-summary.json", []byte(`{"total": {
		"lines": {"pct": 80}, "statements": {"pct": 80},
		"branches": {"pct": 70}, "functions": {"pct": 60}}}`))
	writeFile(t, dir, fmt.Sprintf("quality/lighthouse/lighthouse_desktop_%s.json", artifact.FormatFilenameTimestamp(now.Add(-time.Minute))),
		[]byte(`{"categories": {"performance": {"score": 0.9}, "accessibility": {"score": 0.95},
			"best-practices": {"score": 1}, "seo": {"score": 0.9}},
			"audits": {"largest-contentful-paint": {"numericValue": 1500}}}`))
	writeFile(t, dir, "dist/assets/app.js", make([]byte, 3*1024))
	writeFile(t, dir, "dist/assets/app.css", make([]byte, 1024))

	prev := previousSnapshot()
	data, err := json.Marshal(prev)
	require.NoError(t, err)
	writeFile(t, dir, "quality/snapshots/"+store.FileName(prev), data)

	return dir
}

func TestGenerate(t *testing.T) {
	dir := seedProject(t)
	st := store.New(workspace.New(dir), testPaths(dir), nil, nil, nil)

	arch, err := archive.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "archive.db"), nil)
	require.NoError(t, err)
	defer arch.Close()

	g := New(st, testPaths(dir), nil,
		WithIdentity(fixedIdentity),
		WithClock(func() time.Time { return now }),
		WithArchive(arch),
	)

	res, err := g.Generate(context.Background())
	require.NoError(t, err)

	snap := res.Snapshot
	assert.Equal(t, "abc1234", snap.CommitHash)
	assert.Equal(t, "feature/feed", snap.Branch)
	assert.True(t, snap.Timestamp.Equal(now))
	assert.Equal(t, snapshot.SourceStructured, snap.Source)

	assert.Equal(t, 10, snap.Metrics.Tests.Total)
	assert.Equal(t, 9, snap.Metrics.Tests.Passed)
	require.Len(t, snap.Metrics.Tests.Suites, 1)

	assert.Equal(t, 80.0, snap.Metrics.Coverage.Lines)
	assert.Equal(t, snapshot.TrendUp, snap.Metrics.Coverage.Trend)
	assert.True(t, snap.DataQuality.CoverageComplete)

	assert.Equal(t, 90, snap.Metrics.Performance.Base.Performance)
	assert.True(t, snap.DataQuality.LighthouseValid)
	assert.Equal(t, 4.0, snap.Metrics.Performance.BundleSize)
	assert.Equal(t, []string{"tests -10.0", "performance -8.0"}, snap.Metrics.Performance.Regressions)

	// Stability was not probed: tests 90, coverage 72.5 and performance 90
	// are renormalised over the remaining weights.
	assert.Equal(t, 85, snap.HealthScore)
	assert.Equal(t, snapshot.ConfidenceMedium, snap.ConfidenceLevel)

	require.NotNil(t, res.Previous)
	assert.Equal(t, "0ld0000", res.Previous.CommitHash)

	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(res.Path)))
	assert.NoError(t, err)

	entries, err := arch.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc1234", entries[0].Snapshot.CommitHash)
}

func TestGenerate_WithoutInputs(t *testing.T) {
	dir := t.TempDir()
	st := store.New(workspace.New(dir), testPaths(dir), nil, nil, nil)

	res, err := New(st, testPaths(dir), nil, WithIdentity(fixedIdentity), WithClock(func() time.Time { return now })).
		Generate(context.Background())
	require.NoError(t, err)

	assert.Nil(t, res.Previous)
	assert.Equal(t, snapshot.TrendStable, res.Snapshot.Metrics.Coverage.Trend)
	assert.Empty(t, res.Snapshot.Metrics.Performance.Regressions)
	assert.Equal(t, snapshot.ConfidenceLow, res.Snapshot.ConfidenceLevel)
}

func TestGenerate_WriteFailureIsFatal(t *testing.T) {
	paths := testPaths(".")
	st := store.New(workspace.FromFS(fstest.MapFS{}), paths, nil, nil, nil)

	_, err := New(st, paths, nil, WithIdentity(fixedIdentity)).Generate(context.Background())
	assert.ErrorIs(t, err, workspace.ErrReadOnly)
}

func TestCoverageTrend(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev snapshot.CoverageMetrics
		want      snapshot.Trend
	}{
		{"up", snapshot.CoverageMetrics{Lines: 81}, snapshot.CoverageMetrics{Lines: 80}, snapshot.TrendUp},
		{"down", snapshot.CoverageMetrics{Lines: 79.4}, snapshot.CoverageMetrics{Lines: 80}, snapshot.TrendDown},
		{"within threshold", snapshot.CoverageMetrics{Lines: 80.5}, snapshot.CoverageMetrics{Lines: 80}, snapshot.TrendStable},
		{"statements fallback", snapshot.CoverageMetrics{Statements: 60}, snapshot.CoverageMetrics{Statements: 70}, snapshot.TrendDown},
		{"nothing to compare", snapshot.CoverageMetrics{Lines: 80}, snapshot.CoverageMetrics{}, snapshot.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoverageTrend(tt.cur, tt.prev))
		})
	}
}

func TestRegressionsIgnoreUnmeasuredAndSmallDrops(t *testing.T) {
	prev := previousSnapshot().Metrics
	cur := prev
	cur.Tests = snapshot.TestMetrics{Total: 100, Passed: 96}
	cur.Stability = snapshot.StabilityMetrics{}

	got := Regressions(cur, prev)
	assert.Empty(t, got)
}
