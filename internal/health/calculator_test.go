package health

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

func fullMetrics() snapshot.Metrics {
	return snapshot.Metrics{
		Tests:    snapshot.TestMetrics{Total: 100, Passed: 90, Failed: 10},
		Coverage: snapshot.CoverageMetrics{Lines: 80, Statements: 80, Branches: 80, Functions: 80},
		Performance: snapshot.PerformanceMetrics{
			Base: snapshot.ScoreSet{Performance: 70, Accessibility: 90, BestPractices: 90, SEO: 90},
		},
		Stability: snapshot.StabilityMetrics{Uptime: 100, LastCheck: time.Now(), Status: snapshot.StatusOnline},
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.True(t, DefaultWeightConfig().ValidateWeights())
	assert.False(t, WeightConfig{Tests: 1, Coverage: 1}.ValidateWeights())
}

func TestStructuredAllMeasured(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)

	r := c.Structured(fullMetrics(), Borrowed{})

	// 90*.35 + 80*.25 + 70*.25 + 100*.15 = 84
	assert.Equal(t, 84, r.Score)
	assert.Equal(t, snapshot.ConfidenceHigh, r.Confidence)
}

func TestStructuredBorrowedIsMedium(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)

	r := c.Structured(fullMetrics(), Borrowed{Performance: true})

	assert.Equal(t, 84, r.Score)
	assert.Equal(t, snapshot.ConfidenceMedium, r.Confidence)
}

func TestStructuredRenormalisesMissingCategories(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)
	m := fullMetrics()
	m.Performance = snapshot.PerformanceMetrics{}

	r := c.Structured(m, Borrowed{})

	// (90*.35 + 80*.25 + 100*.15) / .75 = 88.67
	assert.Equal(t, 89, r.Score)
	assert.Equal(t, snapshot.ConfidenceMedium, r.Confidence)
	assert.True(t, math.IsNaN(r.Categories.Performance))
}

func TestStructuredMostlyPlaceholderIsLow(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)
	m := snapshot.Metrics{Tests: snapshot.TestMetrics{Total: 10, Passed: 10}}

	r := c.Structured(m, Borrowed{})

	assert.Equal(t, 100, r.Score)
	assert.Equal(t, snapshot.ConfidenceLow, r.Confidence)
}

func TestStructuredNothingMeasured(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)

	r := c.Structured(snapshot.Metrics{}, Borrowed{})

	assert.Equal(t, 0, r.Score)
	assert.Equal(t, snapshot.ConfidenceLow, r.Confidence)
}

func TestStructuredUsesCoverageComposite(t *testing.T) {
	m := snapshot.Metrics{Coverage: snapshot.CoverageMetrics{Lines: 80, Statements: 78}}

	assert.Equal(t, 79.0, CategoriesOf(m).Coverage)
}

func TestStructuredScoreStaysInRange(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)
	m := snapshot.Metrics{
		Tests:    snapshot.TestMetrics{Total: 1, Passed: 5},
		Coverage: snapshot.CoverageMetrics{Lines: 400, Statements: -20},
		Performance: snapshot.PerformanceMetrics{
			Base: snapshot.ScoreSet{Performance: 250},
		},
		Stability: snapshot.StabilityMetrics{Uptime: math.Inf(1)},
	}

	r := c.Structured(m, Borrowed{})

	assert.GreaterOrEqual(t, r.Score, 0)
	assert.LessOrEqual(t, r.Score, 100)
}

func TestLegacyFormula(t *testing.T) {
	tests := []struct {
		name     string
		passRate float64
		perf     float64
		valid    bool
		want     int
	}{
		{"with performance", 90, 70, true, 86},  // 45 + 21 + 20
		{"without performance", 90, 0, false, 92}, // 45 + 27 + 20
		{"capped at 100", 100, 100, true, 100},
		{"no tests", math.NaN(), 0, false, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Legacy(tt.passRate, tt.perf, tt.valid)
			assert.Equal(t, tt.want, r.Score)
			assert.Equal(t, snapshot.ConfidenceHigh, r.Confidence)
		})
	}
}

// The structured and legacy formulas disagree on identical inputs. Both are
// kept; legacy reports have never been rescored with the weighted table.
func TestFormulasAreDistinct(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)
	m := fullMetrics()

	structured := c.Structured(m, Borrowed{})
	legacy := c.Legacy(m.Tests.PassRate(), m.Performance.PrimaryScore(), true)

	assert.Equal(t, 84, structured.Score)
	assert.Equal(t, 86, legacy.Score)
	assert.NotEqual(t, structured.Score, legacy.Score)
}

func TestApplySetsScoreAndConfidence(t *testing.T) {
	c := NewCalculator(DefaultWeightConfig(), nil)
	s := &snapshot.Snapshot{Metrics: fullMetrics()}

	c.Apply(s, Borrowed{})

	assert.Equal(t, 84, s.HealthScore)
	assert.Equal(t, snapshot.ConfidenceHigh, s.ConfidenceLevel)
}

func TestInvalidWeightsFallBackToDefaults(t *testing.T) {
	c := NewCalculator(WeightConfig{Tests: 2}, nil)
	assert.Equal(t, DefaultWeightConfig(), c.weights)
}
