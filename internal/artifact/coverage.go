package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Counter is a covered/total pair with its percentage.
type Counter struct {
	Total   int     `json:"total"`
	Covered int     `json:"covered"`
	Pct     float64 `json:"pct"`
}

func (c *Counter) add(total, covered int) {
	c.Total += total
	c.Covered += covered
}

func (c *Counter) finish() {
	if c.Total == 0 {
		// istanbul reports empty counters as fully covered
		c.Pct = 100
		return
	}
	c.Pct = roundPct(float64(c.Covered) / float64(c.Total) * 100)
}

// CoverageTotals is one statements/branches/functions/lines group.
type CoverageTotals struct {
	Statements Counter `json:"statements"`
	Branches   Counter `json:"branches"`
	Functions  Counter `json:"functions"`
	Lines      Counter `json:"lines"`
}

// FileCoverage is the derived coverage of one source file.
type FileCoverage struct {
	Path string `json:"path"`
	CoverageTotals
	UncoveredLines []int `json:"uncoveredLines"`
}

// CoverageDetail is the per-file and aggregate view of an instrumentation dump.
type CoverageDetail struct {
	Total CoverageTotals `json:"total"`
	Files []FileCoverage `json:"files"`
}

type location struct {
	Start struct {
		Line int `json:"line"`
	} `json:"start"`
}

type istanbulFile struct {
	Path         string              `json:"path"`
	S            map[string]int      `json:"s"`
	F            map[string]int      `json:"f"`
	B            map[string][]int    `json:"b"`
	StatementMap map[string]location `json:"statementMap"`
}

// ParseCoverageDump derives coverage from an istanbul coverage-final.json
// dump. Line coverage maps every statement to its start line and takes the
// highest hit count per line.
func ParseCoverageDump(data []byte) (*CoverageDetail, error) {
	var dump map[string]istanbulFile
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("decode coverage dump: %w", err)
	}

	paths := make([]string, 0, len(dump))
	for p := range dump {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	detail := &CoverageDetail{Files: make([]FileCoverage, 0, len(paths))}
	for _, p := range paths {
		fc := fileCoverage(p, dump[p])

		detail.Total.Statements.add(fc.Statements.Total, fc.Statements.Covered)
		detail.Total.Branches.add(fc.Branches.Total, fc.Branches.Covered)
		detail.Total.Functions.add(fc.Functions.Total, fc.Functions.Covered)
		detail.Total.Lines.add(fc.Lines.Total, fc.Lines.Covered)

		detail.Files = append(detail.Files, fc)
	}

	detail.Total.Statements.finish()
	detail.Total.Branches.finish()
	detail.Total.Functions.finish()
	detail.Total.Lines.finish()

	return detail, nil
}

func fileCoverage(key string, f istanbulFile) FileCoverage {
	fc := FileCoverage{Path: key, UncoveredLines: []int{}}
	if f.Path != "" {
		fc.Path = f.Path
	}

	lineHits := make(map[int]int)
	for id, hits := range f.S {
		fc.Statements.Total++
		if hits > 0 {
			fc.Statements.Covered++
		}

		loc, ok := f.StatementMap[id]
		if !ok || loc.Start.Line <= 0 {
			continue
		}
		if prev, seen := lineHits[loc.Start.Line]; !seen || hits > prev {
			lineHits[loc.Start.Line] = hits
		}
	}

	for _, hits := range f.F {
		fc.Functions.Total++
		if hits > 0 {
			fc.Functions.Covered++
		}
	}

	for _, arms := range f.B {
		for _, hits := range arms {
			fc.Branches.Total++
			if hits > 0 {
				fc.Branches.Covered++
			}
		}
	}

	for line, hits := range lineHits {
		fc.Lines.Total++
		if hits > 0 {
			fc.Lines.Covered++
		} else {
			fc.UncoveredLines = append(fc.UncoveredLines, line)
		}
	}
	sort.Ints(fc.UncoveredLines)

	fc.Statements.finish()
	fc.Branches.finish()
	fc.Functions.finish()
	fc.Lines.finish()
	return fc
}

// SummaryTotals holds the percentages from a coverage-summary.json total block.
type SummaryTotals struct {
	Lines      float64 `json:"lines"`
	Statements float64 `json:"statements"`
	Branches   float64 `json:"branches"`
	Functions  float64 `json:"functions"`
}

type summaryMetric struct {
	Total   int `json:"total"`
	Covered int `json:"covered"`
	Pct     any `json:"pct"` // number, or "Unknown" for empty groups
}

// ParseCoverageSummary reads the "total" block of coverage-summary.json.
func ParseCoverageSummary(data []byte) (*SummaryTotals, error) {
	var doc struct {
		Total map[string]summaryMetric `json:"total"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode coverage summary: %w", err)
	}
	if doc.Total == nil {
		return nil, fmt.Errorf("coverage summary has no total block")
	}

	pct := func(key string) float64 {
		m, ok := doc.Total[key]
		if !ok {
			return 0
		}
		if f, ok := m.Pct.(float64); ok {
			return f
		}
		if m.Total > 0 {
			return roundPct(float64(m.Covered) / float64(m.Total) * 100)
		}
		return 0
	}

	return &SummaryTotals{
		Lines:      pct("lines"),
		Statements: pct("statements"),
		Branches:   pct("branches"),
		Functions:  pct("functions"),
	}, nil
}

func roundPct(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
