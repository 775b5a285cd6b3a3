package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/lighthouse"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/config"
)

// legacySource is one directory/prefix/extension convention for free-text reports.
type legacySource struct {
	prefix string
	ext    string
	kind   artifact.ReportKind
	dir    func(config.PathsConfig) string
}

var legacySources = []legacySource{
	{
		prefix: "test-report-",
		ext:    ".md",
		kind:   artifact.ReportMarkdown,
		dir:    func(p config.PathsConfig) string { return p.Reports },
	},
	{
		prefix: "report_",
		ext:    ".html",
		kind:   artifact.ReportHTML,
		dir:    func(p config.PathsConfig) string { return p.HTMLReports },
	},
}

func (l legacySource) matches(name string) bool {
	return strings.HasPrefix(name, l.prefix) && strings.HasSuffix(name, l.ext)
}

// legacyFile is a discovered report whose filename decoded to a timestamp.
type legacyFile struct {
	path      string
	name      string
	kind      artifact.ReportKind
	priority  int // index into legacySources; lower wins a dedup tie
	timestamp time.Time
}

// DedupKey identifies the underlying run of a legacy report.
func DedupKey(ts time.Time) string {
	return fmt.Sprintf("legacy-%d", ts.UnixMilli())
}

func (s *Store) listLegacy(priority int, src legacySource) ([]legacyFile, error) {
	dir := s.paths.Rel(src.dir(s.paths))
	entries, err := s.ws.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list reports %s: %w", dir, err)
	}

	files := make([]legacyFile, 0, len(entries))
	for _, e := range entries {
		if !src.matches(e.Name) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(e.Name, src.prefix), src.ext)
		ts, err := artifact.ParseFilenameTimestamp(raw)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"file":  e.Path,
				"error": err.Error(),
			}).Warn("Skipping report with undecodable timestamp")
			continue
		}
		files = append(files, legacyFile{path: e.Path, name: e.Name, kind: src.kind, priority: priority, timestamp: ts})
	}
	return files, nil
}

// loadLegacy dedups discovered reports by timestamp and rebuilds a
// freeform snapshot from each survivor. Reports already represented by a
// structured snapshot are skipped.
func (s *Store) loadLegacy(ctx context.Context, structured []snapshot.Snapshot, files []legacyFile) ([]snapshot.Snapshot, error) {
	seen := make(map[string]bool, len(structured)+len(files))
	for _, snap := range structured {
		seen[DedupKey(snap.Timestamp)] = true
		if snap.ReportFile != "" {
			seen[snap.ReportFile] = true
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].timestamp.Equal(files[j].timestamp) {
			return files[i].timestamp.Before(files[j].timestamp)
		}
		if files[i].priority != files[j].priority {
			return files[i].priority < files[j].priority
		}
		return files[i].path < files[j].path
	})

	unique := make([]legacyFile, 0, len(files))
	for _, f := range files {
		key := DedupKey(f.timestamp)
		if seen[key] || seen[f.name] {
			s.logger.WithField("file", f.path).Debug("Skipping duplicate report")
			continue
		}
		seen[key] = true
		unique = append(unique, f)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	audits, err := s.matcher.Candidates()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list lighthouse audits")
		audits = nil
	}

	out := make([]*snapshot.Snapshot, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range unique {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.buildLegacy(f, audits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snaps := make([]snapshot.Snapshot, 0, len(out))
	for _, snap := range out {
		if snap != nil {
			snaps = append(snaps, *snap)
		}
	}
	return snaps, nil
}

func (s *Store) buildLegacy(f legacyFile, audits []artifact.AuditFile) *snapshot.Snapshot {
	body, err := s.ws.ReadFile(f.path)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"file":  f.path,
			"error": err.Error(),
		}).Warn("Failed to read report")
		return nil
	}

	report := artifact.ParseLegacyReport(body, f.kind)

	if report.BundleSize == 0 {
		report.BundleSize = s.siblingBundle(f.path)
	}

	coverage := snapshot.CoverageMetrics{
		Lines:      report.Coverage,
		Statements: report.Coverage,
		Trend:      snapshot.TrendStable,
	}
	if coverage.Lines == 0 {
		if totals := s.coverageSummary(); totals != nil {
			coverage.Lines = totals.Lines
			coverage.Statements = totals.Statements
			coverage.Branches = totals.Branches
			coverage.Functions = totals.Functions
		}
	}

	perf := snapshot.PerformanceMetrics{
		BundleSize:  report.BundleSize,
		Regressions: []string{},
	}
	s.attachAudits(&perf, f.timestamp, audits)

	commit := report.CommitHash
	if commit == "" {
		commit = DedupKey(f.timestamp)
	}

	snap := &snapshot.Snapshot{
		CommitHash: commit,
		Branch:     "main",
		Timestamp:  f.timestamp,
		Source:     snapshot.SourceFreeform,
		Metrics: snapshot.Metrics{
			Tests:       report.Tests,
			Coverage:    coverage,
			Performance: perf,
		},
		ReportFile: f.name,
	}

	r := s.health.Legacy(report.Tests.PassRate(), perf.PrimaryScore(), perf.HasValidScores())
	snap.HealthScore = r.Score
	snap.ConfidenceLevel = r.Confidence
	snap.Refresh()
	return snap
}

// attachAudits fills the generic score set plus home and feed sets when a
// target-specific audit exists. Web vitals follow the primary set.
func (s *Store) attachAudits(perf *snapshot.PerformanceMetrics, ts time.Time, audits []artifact.AuditFile) {
	if len(audits) == 0 {
		return
	}

	var primary *lighthouse.Match
	if m := s.matcher.FindMatchIn(audits, ts, artifact.TargetAny, artifact.DeviceDesktop); m != nil {
		perf.Base = m.Audit.Scores
		primary = m
	}
	if m := s.matcher.FindMatchIn(audits, ts, artifact.TargetHome, artifact.DeviceDesktop); m != nil && m.File.Target == artifact.TargetHome {
		scores := m.Audit.Scores
		perf.Home = &scores
		primary = m
	}
	if m := s.matcher.FindMatchIn(audits, ts, artifact.TargetFeed, artifact.DeviceDesktop); m != nil && m.File.Target == artifact.TargetFeed {
		scores := m.Audit.Scores
		perf.Feed = &scores
		primary = m
	}
	if primary != nil {
		perf.WebVitals = primary.Audit.WebVitals
	}
}

// siblingBundle reads <report>.json next to a report for raw build totals.
func (s *Store) siblingBundle(reportPath string) float64 {
	sibling := strings.TrimSuffix(reportPath, path.Ext(reportPath)) + ".json"
	data, err := s.ws.ReadFile(sibling)
	if err != nil {
		return 0
	}
	stats, err := artifact.ParseBuildStats(data)
	if err != nil {
		s.logger.WithField("file", sibling).Debug("Ignoring unreadable build stats")
		return 0
	}
	return stats.BundleKB()
}

func (s *Store) coverageSummary() *artifact.SummaryTotals {
	name := path.Join(s.paths.Rel(s.paths.Coverage), "coverage-summary.json")
	return s.coverage.Summary(s.ws, name)
}
