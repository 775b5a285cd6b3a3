package dashboard

import (
	"math"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// Payload is the single persisted, fully rebuildable dashboard cache.
type Payload struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Summary     Summary             `json:"summary"`
	Data        []snapshot.Snapshot `json:"data"`
}

// Summary aggregates the snapshot history and auxiliary artifacts.
type Summary struct {
	Count           int                      `json:"count"`
	LatestTimestamp *time.Time               `json:"latestTimestamp"`
	Averages        Averages                 `json:"averages"`
	Security        *artifact.SecurityReport `json:"security"`
	SecurityHistory []SecurityPoint          `json:"securityHistory"`
	CoverageSummary *artifact.CoverageTotals `json:"coverageSummary"`
	CoverageDetails []artifact.FileCoverage  `json:"coverageDetails"`
	Scripts         []ScriptStats            `json:"scripts"`
	ScriptHistory   map[string][]ScriptPoint `json:"scriptHistory"`
}

// Averages are rolling means across all snapshots. A nil field had no
// finite input.
type Averages struct {
	Coverage    *float64 `json:"coverage"`
	Performance *float64 `json:"performance"`
	BundleSize  *float64 `json:"bundleSize"`
	PassRate    *float64 `json:"passRate"`
	LCP         *float64 `json:"lcp"`
	CLS         *float64 `json:"cls"`
	TBT         *float64 `json:"tbt"`
}

// SecurityPoint is one prior security scan.
type SecurityPoint struct {
	Timestamp     time.Time               `json:"timestamp"`
	File          string                  `json:"file"`
	Passed        bool                    `json:"passed"`
	Severity      artifact.SeverityCounts `json:"severity"`
	TotalFindings int                     `json:"totalFindings"`
}

// ScriptStats summarises the timing history of one script.
type ScriptStats struct {
	Script          string     `json:"script"`
	Runs            int        `json:"runs"`
	AverageDuration float64    `json:"averageDuration"`
	LastDuration    float64    `json:"lastDuration"`
	LastRun         *time.Time `json:"lastRun"`
}

// ScriptPoint is one run in a script's chart series.
type ScriptPoint struct {
	Timestamp *time.Time `json:"timestamp"`
	Duration  float64    `json:"duration"`
	ExitCode  int        `json:"exitCode"`
}

// ComputeAverages derives the rolling averages. Non-finite values are
// dropped from each series instead of counting as zero.
func ComputeAverages(snaps []snapshot.Snapshot) Averages {
	var cov, perf, bundle, pass, lcp, cls, tbt []float64
	for _, s := range snaps {
		m := s.Metrics
		if m.Coverage.Lines > 0 || m.Coverage.Statements > 0 {
			cov = append(cov, snapshot.CoverageComposite(m.Coverage, s.DataQuality.CoverageComplete))
		}
		perf = append(perf, m.Performance.PrimaryScore())
		bundle = append(bundle, positive(m.Performance.BundleSize))
		pass = append(pass, m.Tests.PassRate())
		if m.Performance.HasValidScores() {
			lcp = append(lcp, m.Performance.WebVitals.LCP)
			cls = append(cls, m.Performance.WebVitals.CLS)
			tbt = append(tbt, m.Performance.WebVitals.TBT)
		}
	}

	return Averages{
		Coverage:    mean(cov),
		Performance: mean(perf),
		BundleSize:  mean(bundle),
		PassRate:    mean(pass),
		LCP:         mean(lcp),
		CLS:         mean(cls),
		TBT:         mean(tbt),
	}
}

// positive maps a missing (zero) measurement to NaN so it is excluded.
func positive(v float64) float64 {
	if v <= 0 {
		return math.NaN()
	}
	return v
}

func mean(values []float64) *float64 {
	m := snapshot.Mean(values)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return nil
	}
	r := math.Round(m*100) / 100
	return &r
}
