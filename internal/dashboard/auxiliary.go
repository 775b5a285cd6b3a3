package dashboard

import (
	"path"
	"regexp"
	"sort"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
)

var historyStamp = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}T\d{2}[-:]\d{2}[-:]\d{2}(?:[-.]\d{3})?Z?|\d{10,13})`)

// loadSecurity reads the latest security scan, nil when absent or unreadable.
func (b *Builder) loadSecurity() *artifact.SecurityReport {
	name := path.Join(b.paths.Rel(b.paths.Security), "latest.json")
	data, err := b.ws.ReadFile(name)
	if err != nil {
		return nil
	}
	report, err := artifact.ParseSecurityScan(data, b.paths.SecurityFindingsCap)
	if err != nil {
		b.logger.WithError(err).Warn("Ignoring unreadable security scan")
		return nil
	}
	return report
}

// loadSecurityHistory reads every prior scan, oldest first. The timestamp
// comes from the filename, or from the content when the name has none.
func (b *Builder) loadSecurityHistory() []SecurityPoint {
	dir := path.Join(b.paths.Rel(b.paths.Security), "history")
	entries, err := b.ws.List(dir)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to list security history")
		return []SecurityPoint{}
	}

	points := make([]SecurityPoint, 0, len(entries))
	for _, e := range entries {
		if path.Ext(e.Name) != ".json" {
			continue
		}
		data, err := b.ws.ReadFile(e.Path)
		if err != nil {
			continue
		}
		report, err := artifact.ParseSecurityScan(data, 1)
		if err != nil {
			b.logger.WithField("file", e.Path).Debug("Skipping unreadable security history entry")
			continue
		}

		ts := report.Timestamp
		if m := historyStamp.FindString(e.Name); m != "" {
			if parsed, err := artifact.ParseFilenameTimestamp(m); err == nil {
				ts = parsed
			}
		}
		if ts.IsZero() {
			ts = e.ModTime.UTC()
		}

		points = append(points, SecurityPoint{
			Timestamp:     ts,
			File:          e.Name,
			Passed:        report.Passed,
			Severity:      report.Severity,
			TotalFindings: report.TotalFindings,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}

// loadScripts aggregates the script timing log per script.
func (b *Builder) loadScripts() ([]ScriptStats, map[string][]ScriptPoint) {
	data, err := b.ws.ReadFile(b.paths.Rel(b.paths.ScriptTimings))
	if err != nil {
		return []ScriptStats{}, map[string][]ScriptPoint{}
	}
	runs, err := artifact.ParseScriptTimings(data)
	if err != nil {
		b.logger.WithError(err).Warn("Ignoring unreadable script timings")
		return []ScriptStats{}, map[string][]ScriptPoint{}
	}
	return AggregateScripts(runs)
}

// AggregateScripts groups runs by script. A script's runs are ordered by
// time when every run carries a timestamp, otherwise they keep log order.
func AggregateScripts(runs []artifact.ScriptRun) ([]ScriptStats, map[string][]ScriptPoint) {
	byScript := make(map[string][]artifact.ScriptRun)
	for _, r := range runs {
		byScript[r.Script] = append(byScript[r.Script], r)
	}

	stats := make([]ScriptStats, 0, len(byScript))
	history := make(map[string][]ScriptPoint, len(byScript))
	for script, rs := range byScript {
		if allTimestamped(rs) {
			sort.SliceStable(rs, func(i, j int) bool {
				return rs[i].Timestamp.Before(rs[j].Timestamp)
			})
		}

		total := 0.0
		points := make([]ScriptPoint, 0, len(rs))
		for _, r := range rs {
			total += r.Duration
			points = append(points, ScriptPoint{
				Timestamp: timePtr(r.Timestamp),
				Duration:  r.Duration,
				ExitCode:  r.ExitCode,
			})
		}

		last := rs[len(rs)-1]
		stats = append(stats, ScriptStats{
			Script:          script,
			Runs:            len(rs),
			AverageDuration: roundMs(total / float64(len(rs))),
			LastDuration:    last.Duration,
			LastRun:         timePtr(last.Timestamp),
		})
		history[script] = points
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Script < stats[j].Script })
	return stats, history
}

// loadCoverage derives per-file and aggregate coverage from the raw dump.
func (b *Builder) loadCoverage() (*artifact.CoverageTotals, []artifact.FileCoverage) {
	name := path.Join(b.paths.Rel(b.paths.Coverage), "coverage-final.json")
	data, err := b.ws.ReadFile(name)
	if err != nil {
		return nil, []artifact.FileCoverage{}
	}
	detail, err := artifact.ParseCoverageDump(data)
	if err != nil {
		b.logger.WithError(err).Warn("Ignoring unreadable coverage dump")
		return nil, []artifact.FileCoverage{}
	}
	return &detail.Total, detail.Files
}

func allTimestamped(runs []artifact.ScriptRun) bool {
	for _, r := range runs {
		if r.Timestamp.IsZero() {
			return false
		}
	}
	return true
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func roundMs(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
