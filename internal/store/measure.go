package store

import (
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// Performance collects the current lighthouse scores nearest to ts and the
// bundle size of the build output.
func (s *Store) Performance(ts time.Time) snapshot.PerformanceMetrics {
	perf := snapshot.PerformanceMetrics{Regressions: []string{}}

	audits, err := s.matcher.Candidates()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list lighthouse audits")
	}
	s.attachAudits(&perf, ts, audits)
	perf.BundleSize = s.bundleSize()

	return perf
}

// CoverageSummary returns the current coverage summary totals, nil when absent.
func (s *Store) CoverageSummary() *artifact.SummaryTotals {
	return s.coverageSummary()
}
