package store

import (
	"path"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/health"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// backfill repairs gaps in list[0] only, borrowing from the nearest older
// snapshot that has the data. list must be sorted newest first.
// TODO: decide whether older snapshots shown in the history chart should
// get the same repair; today only the latest card is filled in.
func (s *Store) backfill(list []snapshot.Snapshot) health.Borrowed {
	var borrowed health.Borrowed
	latest := &list[0]
	older := list[1:]
	m := &latest.Metrics

	if !m.Performance.HasValidScores() {
		for _, o := range older {
			if o.Metrics.Performance.HasValidScores() {
				copyScores(&m.Performance, o.Metrics.Performance)
				borrowed.Performance = true
				break
			}
		}
	}

	if m.Coverage.Lines == 0 {
		if totals := s.coverageSummary(); totals != nil && totals.Lines > 0 {
			m.Coverage.Lines = totals.Lines
			m.Coverage.Statements = totals.Statements
			m.Coverage.Branches = totals.Branches
			m.Coverage.Functions = totals.Functions
		} else {
			for _, o := range older {
				if o.Metrics.Coverage.Lines != 0 {
					m.Coverage = o.Metrics.Coverage
					borrowed.Coverage = true
					break
				}
			}
		}
	}

	if (m.Coverage.Lines > 0 || m.Coverage.Statements > 0) && m.Coverage.Branches == 0 && m.Coverage.Functions == 0 {
		for _, o := range older {
			c := o.Metrics.Coverage
			if c.Branches > 0 || c.Functions > 0 {
				m.Coverage.Branches = c.Branches
				m.Coverage.Functions = c.Functions
				borrowed.Coverage = true
				break
			}
		}
	}

	if m.Performance.BundleSize == 0 {
		if kb := s.bundleSize(); kb > 0 {
			m.Performance.BundleSize = kb
		} else {
			for _, o := range older {
				if o.Metrics.Performance.BundleSize > 0 {
					m.Performance.BundleSize = o.Metrics.Performance.BundleSize
					borrowed.Performance = true
					break
				}
			}
		}
	}

	latest.Refresh()
	return borrowed
}

// copyScores copies every score set and the web vitals, leaving bundle
// size and regressions alone.
func copyScores(dst *snapshot.PerformanceMetrics, src snapshot.PerformanceMetrics) {
	dst.Base = src.Base
	dst.Home = cloneSet(src.Home)
	dst.Feed = cloneSet(src.Feed)
	dst.WebVitals = src.WebVitals
}

func cloneSet(s *snapshot.ScoreSet) *snapshot.ScoreSet {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// bundleSize sums script and stylesheet sizes in the build output, in KB.
func (s *Store) bundleSize() float64 {
	return BundleSize(s.ws, s.paths.Rel(s.paths.BuildOutput))
}

// Sizer sums file sizes by extension under a directory.
type Sizer interface {
	SizeByExtension(dir string, exts ...string) (map[string]int64, error)
}

// BundleSize walks dir for .js and .css files and returns their total in KB.
func BundleSize(ws Sizer, dir string) float64 {
	sizes, err := ws.SizeByExtension(path.Clean(dir), "js", "css")
	if err != nil {
		return 0
	}
	return artifact.BytesToKB(sizes["js"] + sizes["css"])
}
