package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"path"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// jestReport is the JSON summary written by jest/vitest `--json`.
type jestReport struct {
	NumTotalTests   *int        `json:"numTotalTests"`
	NumPassedTests  int         `json:"numPassedTests"`
	NumFailedTests  int         `json:"numFailedTests"`
	NumPendingTests int         `json:"numPendingTests"`
	NumTodoTests    int         `json:"numTodoTests"`
	StartTime       int64       `json:"startTime"`
	TestResults     []jestSuite `json:"testResults"`
}

type jestSuite struct {
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	StartTime        int64           `json:"startTime"`
	EndTime          int64           `json:"endTime"`
	AssertionResults []jestAssertion `json:"assertionResults"`
}

type jestAssertion struct {
	Status string `json:"status"`
}

// ParseTestResults converts a jest/vitest JSON summary into test metrics.
// Durations are in seconds.
func ParseTestResults(data []byte) (snapshot.TestMetrics, error) {
	var r jestReport
	if err := json.Unmarshal(data, &r); err != nil {
		return snapshot.TestMetrics{}, fmt.Errorf("parse test results: %w", err)
	}
	if r.NumTotalTests == nil {
		return snapshot.TestMetrics{}, fmt.Errorf("parse test results: numTotalTests missing")
	}

	m := snapshot.TestMetrics{
		Total:   *r.NumTotalTests,
		Passed:  r.NumPassedTests,
		Failed:  r.NumFailedTests,
		Skipped: r.NumPendingTests + r.NumTodoTests,
		Suites:  make([]snapshot.TestSuite, 0, len(r.TestResults)),
	}

	var first, last int64
	for _, s := range r.TestResults {
		suite := snapshot.TestSuite{
			Name:   path.Base(s.Name),
			Total:  len(s.AssertionResults),
			Status: s.Status,
		}
		for _, a := range s.AssertionResults {
			switch a.Status {
			case "passed":
				suite.Passed++
			case "failed":
				suite.Failed++
			default:
				suite.Skipped++
			}
		}
		if s.EndTime > s.StartTime && s.StartTime > 0 {
			suite.Duration = roundSeconds(s.EndTime - s.StartTime)
			if first == 0 || s.StartTime < first {
				first = s.StartTime
			}
			if s.EndTime > last {
				last = s.EndTime
			}
		}
		m.Suites = append(m.Suites, suite)
	}

	if r.StartTime > 0 && (first == 0 || r.StartTime < first) {
		first = r.StartTime
	}
	if last > first && first > 0 {
		m.Duration = roundSeconds(last - first)
	}

	return m, nil
}

func roundSeconds(ms int64) float64 {
	return math.Round(float64(ms)/10) / 100
}
