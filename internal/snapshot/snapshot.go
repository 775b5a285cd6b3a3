package snapshot

import (
	"math"
	"time"
)

// Confidence rates how much of a snapshot was measured directly.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Source records where a snapshot came from.
type Source string

const (
	SourceStructured Source = "structured"
	SourceFreeform   Source = "freeform"
)

// Status is the stability status of the deployed app.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Trend tags the direction of coverage against the previous snapshot.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Snapshot is one point-in-time quality measurement tied to a commit
// ⭐ SSOT: 스냅샷 스키마는 여기서만 정의
type Snapshot struct {
	CommitHash      string      `json:"commitHash"`
	Branch          string      `json:"branch"`
	Timestamp       time.Time   `json:"timestamp"`
	HealthScore     int         `json:"healthScore"`
	ConfidenceLevel Confidence  `json:"confidenceLevel"`
	Source          Source      `json:"source"`
	DataQuality     DataQuality `json:"dataQuality"`
	Metrics         Metrics     `json:"metrics"`
	ReportFile      string      `json:"reportFile,omitempty"`
}

// DataQuality holds flags derived from Metrics. Never set by hand.
type DataQuality struct {
	LighthouseValid  bool `json:"lighthouseValid"`
	CoverageComplete bool `json:"coverageComplete"`
}

// Metrics groups the four measured categories.
type Metrics struct {
	Tests       TestMetrics        `json:"tests"`
	Coverage    CoverageMetrics    `json:"coverage"`
	Performance PerformanceMetrics `json:"performance"`
	Stability   StabilityMetrics   `json:"stability"`
}

// TestMetrics summarises one test run. Duration is in seconds.
type TestMetrics struct {
	Total    int         `json:"total"`
	Passed   int         `json:"passed"`
	Failed   int         `json:"failed"`
	Skipped  int         `json:"skipped"`
	Duration float64     `json:"duration"`
	Suites   []TestSuite `json:"suites"`
}

// TestSuite is one named suite of a test run.
type TestSuite struct {
	Name     string  `json:"name"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Duration float64 `json:"duration"`
	Status   string  `json:"status"`
}

// CoverageMetrics holds the four coverage percentages.
type CoverageMetrics struct {
	Lines      float64 `json:"lines"`
	Statements float64 `json:"statements"`
	Branches   float64 `json:"branches"`
	Functions  float64 `json:"functions"`
	Trend      Trend   `json:"trend"`
}

// ScoreSet is one set of lighthouse category scores, 0-100.
type ScoreSet struct {
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
	BestPractices int `json:"bestPractices"`
	SEO           int `json:"seo"`
}

// WebVitals are the timing values of the primary score set.
type WebVitals struct {
	LCP float64 `json:"lcp"` // ms
	CLS float64 `json:"cls"`
	TBT float64 `json:"tbt"` // ms
}

// PerformanceMetrics holds up to three score sets plus vitals and bundle size.
type PerformanceMetrics struct {
	Base        ScoreSet  `json:"base"`
	Home        *ScoreSet `json:"home,omitempty"`
	Feed        *ScoreSet `json:"feed,omitempty"`
	WebVitals   WebVitals `json:"webVitals"`
	BundleSize  float64   `json:"bundleSize"` // KB
	Regressions []string  `json:"regressions"`
}

// StabilityMetrics describes the deployed app's availability.
type StabilityMetrics struct {
	Uptime    float64   `json:"uptime"`
	Latency   float64   `json:"latency"`
	LastCheck time.Time `json:"lastCheck"`
	Status    Status    `json:"status"`
}

// Valid reports whether any category carries a real score.
func (s ScoreSet) Valid() bool {
	return s.Performance > 0 || s.Accessibility > 0 || s.BestPractices > 0 || s.SEO > 0
}

// Sets returns the present score sets in primary order: feed, home, base.
func (p PerformanceMetrics) Sets() []ScoreSet {
	sets := make([]ScoreSet, 0, 3)
	if p.Feed != nil {
		sets = append(sets, *p.Feed)
	}
	if p.Home != nil {
		sets = append(sets, *p.Home)
	}
	return append(sets, p.Base)
}

// HasValidScores reports whether any score set has a category > 0.
func (p PerformanceMetrics) HasValidScores() bool {
	for _, s := range p.Sets() {
		if s.Valid() {
			return true
		}
	}
	return false
}

// Primary returns the first valid score set among feed > home > base.
func (p PerformanceMetrics) Primary() (ScoreSet, bool) {
	for _, s := range p.Sets() {
		if s.Valid() {
			return s, true
		}
	}
	return ScoreSet{}, false
}

// PrimaryScore is the performance category of the primary set, NaN when none is valid.
func (p PerformanceMetrics) PrimaryScore() float64 {
	s, ok := p.Primary()
	if !ok {
		return math.NaN()
	}
	return float64(s.Performance)
}

// Complete reports whether branch and function coverage were measured.
func (c CoverageMetrics) Complete() bool {
	for _, v := range []float64{c.Lines, c.Statements, c.Branches, c.Functions} {
		if !finite(v) {
			return false
		}
	}
	return c.Branches > 0 && c.Functions > 0
}

// CoverageComposite blends the four percentages. Lines and statements are
// always averaged; branches and functions join only when complete is set
// or the value itself is positive, so uninstrumented projects are not
// scored as 0% branch coverage.
func CoverageComposite(c CoverageMetrics, complete bool) float64 {
	values := []float64{c.Lines, c.Statements}
	if complete || c.Branches > 0 {
		values = append(values, c.Branches)
	}
	if complete || c.Functions > 0 {
		values = append(values, c.Functions)
	}
	return Mean(values)
}

// PassRate is passed/total as a percentage, NaN when no tests ran.
func (t TestMetrics) PassRate() float64 {
	if t.Total <= 0 {
		return math.NaN()
	}
	return float64(t.Passed) / float64(t.Total) * 100
}

// DeriveDataQuality recomputes the cached quality flags from metrics.
func DeriveDataQuality(m Metrics) DataQuality {
	return DataQuality{
		LighthouseValid:  m.Performance.HasValidScores(),
		CoverageComplete: m.Coverage.Complete(),
	}
}

// Refresh recomputes DataQuality in place.
func (s *Snapshot) Refresh() {
	s.DataQuality = DeriveDataQuality(s.Metrics)
}

// Mean averages the finite values; non-finite entries are dropped from the
// denominator too. NaN when nothing remains.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if !finite(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// ClampScore rounds and bounds a score to [0,100].
func ClampScore(v float64) int {
	if !finite(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ByTimestampDesc sorts newest first, commit hash as tie-breaker.
func ByTimestampDesc(a, b Snapshot) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.CommitHash < b.CommitHash:
		return -1
	case a.CommitHash > b.CommitHash:
		return 1
	}
	return 0
}
