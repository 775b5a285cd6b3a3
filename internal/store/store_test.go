package store

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

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/config"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testPaths() config.PathsConfig {
	return config.PathsConfig{
		Root:                ".",
		Snapshots:           "quality/snapshots",
		Reports:             "reports",
		HTMLReports:         "docs/reports",
		Lighthouse:          "quality/lighthouse",
		Coverage:            "coverage",
		BuildOutput:         "dist",
		SecurityFindingsCap: 50,
	}
}

func structured(commit string, ts time.Time, perf snapshot.ScoreSet) snapshot.Snapshot {
	s := snapshot.Snapshot{
		CommitHash:      commit,
		Branch:          "main",
		Timestamp:       ts,
		HealthScore:     80,
		ConfidenceLevel: snapshot.ConfidenceHigh,
		Source:          snapshot.SourceStructured,
		Metrics: snapshot.Metrics{
			Tests:    snapshot.TestMetrics{Total: 10, Passed: 10, Suites: []snapshot.TestSuite{}},
			Coverage: snapshot.CoverageMetrics{Lines: 80, Statements: 79, Branches: 70, Functions: 75, Trend: snapshot.TrendStable},
			Performance: snapshot.PerformanceMetrics{
				Base:        perf,
				WebVitals:   snapshot.WebVitals{LCP: 1200, CLS: 0.01, TBT: 50},
				BundleSize:  300,
				Regressions: []string{},
			},
			Stability: snapshot.StabilityMetrics{Uptime: 99.9, Latency: 120, LastCheck: ts, Status: snapshot.StatusOnline},
		},
	}
	s.Refresh()
	return s
}

func snapshotFile(t *testing.T, s snapshot.Snapshot) (string, *fstest.MapFile) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return "quality/snapshots/" + FileName(s), &fstest.MapFile{Data: data}
}

func newStore(files fstest.MapFS) *Store {
	return New(workspace.FromFS(files), testPaths(), nil, nil, nil)
}

func TestListBackfillsOnlyTheLatestSnapshot(t *testing.T) {
	valid := snapshot.ScoreSet{Performance: 91, Accessibility: 95, BestPractices: 100, SEO: 90}
	t1 := structured("aaa1111", t0, valid)
	t2 := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{})
	t3 := structured("ccc3333", t0.Add(2*time.Hour), snapshot.ScoreSet{})
	t2.Metrics.Performance.WebVitals = snapshot.WebVitals{}
	t3.Metrics.Performance.WebVitals = snapshot.WebVitals{}

	files := fstest.MapFS{}
	for _, s := range []snapshot.Snapshot{t1, t2, t3} {
		name, f := snapshotFile(t, s)
		files[name] = f
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "ccc3333", list[0].CommitHash)
	assert.Equal(t, valid, list[0].Metrics.Performance.Base)
	assert.Equal(t, t1.Metrics.Performance.WebVitals, list[0].Metrics.Performance.WebVitals)
	assert.True(t, list[0].DataQuality.LighthouseValid)

	assert.Equal(t, "bbb2222", list[1].CommitHash)
	assert.Equal(t, snapshot.ScoreSet{}, list[1].Metrics.Performance.Base)
	assert.False(t, list[1].DataQuality.LighthouseValid)

	assert.Equal(t, "aaa1111", list[2].CommitHash)
}

func TestListSkipsCorruptFiles(t *testing.T) {
	name, f := snapshotFile(t, structured("aaa1111", t0, snapshot.ScoreSet{Performance: 90}))
	files := fstest.MapFS{
		name:                             f,
		"quality/snapshots/broken.json":  &fstest.MapFile{Data: []byte(`{"commitHash": `)},
		"quality/snapshots/unknown.json": &fstest.MapFile{Data: []byte(`{"hello": "world"}`)},
		"quality/snapshots/notes.txt":    &fstest.MapFile{Data: []byte(`ignored`)},
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "aaa1111", list[0].CommitHash)
}

func TestListEmptyWorkspace(t *testing.T) {
	list, err := newStore(fstest.MapFS{}).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

const legacyMarkdown = `# Report

Commit: 9f8e7d6

<!-- METRICS_START -->
coverage: 75%
<!-- METRICS_END -->

## Test Results

| Suite | Status | Time |
|---|---|---|
| feed | ✅ | 2s |
| modal | ❌ | 1s |
`

func TestListDedupsLegacyReportsByTimestamp(t *testing.T) {
	files := fstest.MapFS{
		"reports/test-report-1714558830123.md":              &fstest.MapFile{Data: []byte(legacyMarkdown)},
		"docs/reports/report_2024-05-01T10-20-30-123Z.html": &fstest.MapFile{Data: []byte(`<h2>Test Results</h2>`)},
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	s := list[0]
	assert.Equal(t, snapshot.SourceFreeform, s.Source)
	assert.Equal(t, int64(1714558830123), s.Timestamp.UnixMilli())
	assert.Equal(t, "test-report-1714558830123.md", s.ReportFile)
	assert.Equal(t, "9f8e7d6", s.CommitHash)
}

func TestLegacySnapshotUsesLegacyFormula(t *testing.T) {
	ts := time.UnixMilli(1714558830123).UTC()
	files := fstest.MapFS{
		"reports/test-report-1714558830123.md": &fstest.MapFile{Data: []byte(legacyMarkdown)},
		"reports/test-report-1714558830123.json": &fstest.MapFile{
			Data: []byte(`{"jsBytes": 102400, "cssBytes": 20480}`),
		},
		fmt.Sprintf("quality/lighthouse/lighthouse_desktop_%s.json", artifact.FormatFilenameTimestamp(ts.Add(time.Minute))): &fstest.MapFile{
			Data: []byte(`{"categories": {"performance": {"score": 0.8}, "accessibility": {"score": 0.9},
				"best-practices": {"score": 0.9}, "seo": {"score": 0.9}},
				"audits":         {"largest-contentful-paint": {"numericValue": 2100}}}`),
		},
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	s := list[0]
	assert.Equal(t, 2, s.Metrics.Tests.Total)
	assert.Equal(t, 1, s.Metrics.Tests.Passed)
	assert.Equal(t, 75.0, s.Metrics.Coverage.Lines)
	assert.Equal(t, 120.0, s.Metrics.Performance.BundleSize)
	assert.Equal(t, 80, s.Metrics.Performance.Base.Performance)
	assert.Equal(t, 2100.0, s.Metrics.Performance.WebVitals.LCP)

	// 50*0.5 + 80*0.3 + 20
	assert.Equal(t, 69, s.HealthScore)
	assert.Equal(t, snapshot.ConfidenceHigh, s.ConfidenceLevel)
	assert.True(t, s.DataQuality.LighthouseValid)
}

func TestLegacyReportShadowedByStructuredSnapshot(t *testing.T) {
	ts := time.UnixMilli(1714558830123).UTC()
	name, f := snapshotFile(t, structured("aaa1111", ts, snapshot.ScoreSet{Performance: 90}))
	files := fstest.MapFS{
		name:                                   f,
		"reports/test-report-1714558830123.md": &fstest.MapFile{Data: []byte(legacyMarkdown)},
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snapshot.SourceStructured, list[0].Source)
}

func TestBackfillCoverageFromSummary(t *testing.T) {
	latest := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{Performance: 90})
	latest.Metrics.Coverage = snapshot.CoverageMetrics{}
	older := structured("aaa1111", t0, snapshot.ScoreSet{Performance: 90})

	files := fstest.MapFS{
		"coverage/coverage-summary.json": &fstest.MapFile{Data: []byte(`{"total": {
			"lines":    {"pct": 66}, "statements": {"pct": 65},
			"branches": {"pct": 50}, "functions": {"pct": 60}}}`)},
	}
	for _, s := range []snapshot.Snapshot{latest, older} {
		name, f := snapshotFile(t, s)
		files[name] = f
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 66.0, list[0].Metrics.Coverage.Lines)
	assert.Equal(t, 50.0, list[0].Metrics.Coverage.Branches)
	assert.True(t, list[0].DataQuality.CoverageComplete)
}

func TestBackfillCoverageFromNeighbour(t *testing.T) {
	latest := structured("ccc3333", t0.Add(2*time.Hour), snapshot.ScoreSet{Performance: 90})
	latest.Metrics.Coverage = snapshot.CoverageMetrics{}
	middle := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{Performance: 90})
	middle.Metrics.Coverage = snapshot.CoverageMetrics{}
	oldest := structured("aaa1111", t0, snapshot.ScoreSet{Performance: 90})

	files := fstest.MapFS{}
	for _, s := range []snapshot.Snapshot{latest, middle, oldest} {
		name, f := snapshotFile(t, s)
		files[name] = f
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oldest.Metrics.Coverage, list[0].Metrics.Coverage)
	assert.Zero(t, list[1].Metrics.Coverage.Lines)
}

func TestBackfillBorrowsOnlyBranchesAndFunctions(t *testing.T) {
	latest := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{Performance: 90})
	latest.Metrics.Coverage = snapshot.CoverageMetrics{Lines: 88, Statements: 87}
	older := structured("aaa1111", t0, snapshot.ScoreSet{Performance: 90})

	files := fstest.MapFS{}
	for _, s := range []snapshot.Snapshot{latest, older} {
		name, f := snapshotFile(t, s)
		files[name] = f
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	c := list[0].Metrics.Coverage
	assert.Equal(t, 88.0, c.Lines)
	assert.Equal(t, 87.0, c.Statements)
	assert.Equal(t, 70.0, c.Branches)
	assert.Equal(t, 75.0, c.Functions)
}

func TestBackfillBundleSizeFromBuildOutput(t *testing.T) {
	latest := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{Performance: 90})
	latest.Metrics.Performance.BundleSize = 0

	files := fstest.MapFS{
		"dist/assets/app.js":    &fstest.MapFile{Data: make([]byte, 2048)},
		"dist/assets/app.css":   &fstest.MapFile{Data: make([]byte, 1024)},
		"dist/assets/logo.png":  &fstest.MapFile{Data: make([]byte, 4096)},
		"dist/index.html":       &fstest.MapFile{Data: []byte("<html>")},
		"dist/nested/deep/x.js": &fstest.MapFile{Data: make([]byte, 1024)},
	}
	name, f := snapshotFile(t, latest)
	files[name] = f

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, list[0].Metrics.Performance.BundleSize)
}

func TestBackfillBundleSizeFromNeighbour(t *testing.T) {
	latest := structured("bbb2222", t0.Add(time.Hour), snapshot.ScoreSet{Performance: 90})
	latest.Metrics.Performance.BundleSize = 0
	older := structured("aaa1111", t0, snapshot.ScoreSet{Performance: 90})
	older.Metrics.Performance.BundleSize = 321.5

	files := fstest.MapFS{}
	for _, s := range []snapshot.Snapshot{latest, older} {
		name, f := snapshotFile(t, s)
		files[name] = f
	}

	list, err := newStore(files).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 321.5, list[0].Metrics.Performance.BundleSize)
}

func TestSaveWritesCommitAndMillisName(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir), testPaths(), nil, nil, nil)
	snap := structured("abc1234", time.UnixMilli(1714558830123).UTC(), snapshot.ScoreSet{Performance: 90})

	name, err := s.Save(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "quality/snapshots/abc1234-1714558830123.json", name)

	data, err := os.ReadFile(filepath.Join(dir, "quality", "snapshots", "abc1234-1714558830123.json"))
	require.NoError(t, err)

	back, err := snapshot.Migrate(data)
	require.NoError(t, err)
	assert.Equal(t, snap.CommitHash, back.CommitHash)
	assert.True(t, snap.Timestamp.Equal(back.Timestamp))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSaveOnReadOnlyWorkspaceFails(t *testing.T) {
	s := newStore(fstest.MapFS{})
	_, err := s.Save(context.Background(), structured("abc1234", t0, snapshot.ScoreSet{}))
	assert.ErrorIs(t, err, workspace.ErrReadOnly)
}

func TestListCreatesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir), testPaths(), nil, nil, nil)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, d := range []string{"quality/snapshots", "reports", "docs/reports"} {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(d)))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir())
	}
}

func TestReport(t *testing.T) {
	s := newStore(fstest.MapFS{
		"reports/test-report-1714558830123.md":   &fstest.MapFile{Data: []byte("# md")},
		"docs/reports/report_1714558830123.html": &fstest.MapFile{Data: []byte("<h1>")},
		"secret.txt":                             &fstest.MapFile{Data: []byte("nope")},
	})

	data, err := s.Report("test-report-1714558830123.md")
	require.NoError(t, err)
	assert.Equal(t, "# md", string(data))

	data, err = s.Report("report_1714558830123.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>", string(data))

	for _, bad := range []string{"", "../secret.txt", "reports/test-report-1.md", "secret.txt", "test-report-9.md"} {
		_, err := s.Report(bad)
		assert.ErrorIs(t, err, ErrNotFound, bad)
	}
}
