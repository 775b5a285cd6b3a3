package health

import (
	"math"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// WeightConfig defines category weights for the structured health score
type WeightConfig struct {
	Tests       float64 // pass rate (기본: 0.35)
	Coverage    float64 // composite coverage (기본: 0.25)
	Performance float64 // primary lighthouse score (기본: 0.25)
	Stability   float64 // uptime (기본: 0.15)
}

// DefaultWeightConfig returns the default weight table
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		Tests:       0.35,
		Coverage:    0.25,
		Performance: 0.25,
		Stability:   0.15,
	}
	// Total: 100%
}

// ValidateWeights checks if weights sum to 1.0
func (w WeightConfig) ValidateWeights() bool {
	sum := w.Tests + w.Coverage + w.Performance + w.Stability
	return sum >= 0.99 && sum <= 1.01
}

// Borrowed marks categories whose data was copied from a neighbouring snapshot.
type Borrowed struct {
	Tests       bool
	Coverage    bool
	Performance bool
	Stability   bool
}

// Any reports whether anything was borrowed.
func (b Borrowed) Any() bool {
	return b.Tests || b.Coverage || b.Performance || b.Stability
}

// Categories are the per-category scores, 0-100. NaN means not measured.
type Categories struct {
	Tests       float64
	Coverage    float64
	Performance float64
	Stability   float64
}

// Result is a computed health score.
type Result struct {
	Score      int
	Confidence snapshot.Confidence
	Categories Categories
}

// Calculator computes health scores
// ⭐ SSOT: 헬스 스코어 공식은 여기서만
type Calculator struct {
	weights WeightConfig
	logger  *logger.Logger
}

// NewCalculator creates a calculator; invalid weights fall back to defaults.
func NewCalculator(weights WeightConfig, log *logger.Logger) *Calculator {
	if log == nil {
		log = logger.Nop()
	}
	if !weights.ValidateWeights() {
		log.WithField("weights", weights).Warn("Health weights do not sum to 1, using defaults")
		weights = DefaultWeightConfig()
	}
	return &Calculator{weights: weights, logger: log}
}

// Structured scores a structured snapshot. Each category is clamped to
// [0,100]; unmeasured categories are dropped and the remaining weights
// renormalised.
func (c *Calculator) Structured(m snapshot.Metrics, borrowed Borrowed) Result {
	cat := CategoriesOf(m)

	type term struct {
		value    float64
		weight   float64
		borrowed bool
	}
	terms := []term{
		{cat.Tests, c.weights.Tests, borrowed.Tests},
		{cat.Coverage, c.weights.Coverage, borrowed.Coverage},
		{cat.Performance, c.weights.Performance, borrowed.Performance},
		{cat.Stability, c.weights.Stability, borrowed.Stability},
	}

	var sum, weight float64
	measured, placeholder := 0, 0
	for _, t := range terms {
		if math.IsNaN(t.value) {
			placeholder++
			continue
		}
		sum += t.value * t.weight
		weight += t.weight
		if !t.borrowed {
			measured++
		}
	}

	score := 0
	if weight > 0 {
		score = snapshot.ClampScore(sum / weight)
	}

	confidence := snapshot.ConfidenceMedium
	switch {
	case measured == len(terms):
		confidence = snapshot.ConfidenceHigh
	case placeholder >= 3:
		confidence = snapshot.ConfidenceLow
	}

	c.logger.WithFields(map[string]interface{}{
		"score":       score,
		"confidence":  confidence,
		"measured":    measured,
		"placeholder": placeholder,
	}).Debug("Computed structured health score")

	return Result{Score: score, Confidence: confidence, Categories: cat}
}

// Legacy scores a free-text report. This formula predates the weighted
// table and is kept as is; the two are not comparable.
func (c *Calculator) Legacy(passRate, performance float64, performanceValid bool) Result {
	return Legacy(passRate, performance, performanceValid)
}

// Legacy is passRate*0.5 + (performance or passRate)*0.3 + 20, capped at 100,
// always with high confidence.
func Legacy(passRate, performance float64, performanceValid bool) Result {
	passRate = clamp(passRate)
	if math.IsNaN(passRate) {
		passRate = 0
	}

	perf := math.NaN()
	if performanceValid {
		perf = clamp(performance)
	}

	second := passRate * 0.3
	if !math.IsNaN(perf) {
		second = perf * 0.3
	}

	return Result{
		Score:      snapshot.ClampScore(passRate*0.5 + second + 20),
		Confidence: snapshot.ConfidenceHigh,
		Categories: Categories{
			Tests:       passRate,
			Coverage:    math.NaN(),
			Performance: perf,
			Stability:   math.NaN(),
		},
	}
}

// CategoriesOf derives the four category scores from metrics.
func CategoriesOf(m snapshot.Metrics) Categories {
	cov := math.NaN()
	if m.Coverage.Lines > 0 || m.Coverage.Statements > 0 {
		cov = snapshot.CoverageComposite(m.Coverage, m.Coverage.Complete())
	}

	stab := math.NaN()
	if m.Stability.Uptime > 0 || !m.Stability.LastCheck.IsZero() {
		stab = m.Stability.Uptime
	}

	return Categories{
		Tests:       clamp(m.Tests.PassRate()),
		Coverage:    clamp(cov),
		Performance: clamp(m.Performance.PrimaryScore()),
		Stability:   clamp(stab),
	}
}

// Apply writes the structured score and confidence onto s.
func (c *Calculator) Apply(s *snapshot.Snapshot, borrowed Borrowed) Result {
	r := c.Structured(s.Metrics, borrowed)
	s.HealthScore = r.Score
	s.ConfidenceLevel = r.Confidence
	return r
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return math.Max(0, math.Min(100, v))
}
