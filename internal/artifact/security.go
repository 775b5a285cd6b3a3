package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SeverityCounts tallies findings by severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total sums every severity.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Moderate + c.Low + c.Info
}

func (c *SeverityCounts) add(severity string) {
	switch normalizeSeverity(severity) {
	case "critical":
		c.Critical++
	case "high":
		c.High++
	case "moderate":
		c.Moderate++
	case "low":
		c.Low++
	default:
		c.Info++
	}
}

// Finding is one reported vulnerability.
type Finding struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Severity     string `json:"severity"`
	Package      string `json:"package"`
	Path         string `json:"path,omitempty"`
	FixAvailable bool   `json:"fixAvailable"`
}

// SecurityReport is a parsed security-scan result.
type SecurityReport struct {
	Timestamp     time.Time      `json:"timestamp"`
	Passed        bool           `json:"passed"`
	Severity      SeverityCounts `json:"severity"`
	Findings      []Finding      `json:"findings"`
	Truncated     bool           `json:"truncated"`
	TotalFindings int            `json:"totalFindings"`
}

type scanDoc struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Passed    *bool           `json:"passed"`
	Summary   *SeverityCounts `json:"summary"`
	Findings  []Finding       `json:"findings"`

	// npm audit (auditReportVersion 2)
	Vulnerabilities map[string]struct {
		Name         string          `json:"name"`
		Severity     string          `json:"severity"`
		Via          json.RawMessage `json:"via"`
		Range        string          `json:"range"`
		FixAvailable json.RawMessage `json:"fixAvailable"`
	} `json:"vulnerabilities"`
	Metadata *struct {
		Vulnerabilities *SeverityCounts `json:"vulnerabilities"`
	} `json:"metadata"`
}

// ParseSecurityScan reads either the scanner's own report format or an
// npm audit v2 report. Findings are ordered by severity and capped at
// limit; TotalFindings keeps the real count.
func ParseSecurityScan(data []byte, limit int) (*SecurityReport, error) {
	var doc scanDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode security scan: %w", err)
	}

	findings := doc.Findings
	for key, v := range doc.Vulnerabilities {
		name := v.Name
		if name == "" {
			name = key
		}
		findings = append(findings, Finding{
			ID:           name + "@" + v.Range,
			Title:        viaTitle(v.Via, name),
			Severity:     normalizeSeverity(v.Severity),
			Package:      name,
			FixAvailable: len(v.FixAvailable) > 0 && string(v.FixAvailable) != "false",
		})
	}

	if doc.Summary == nil && doc.Metadata == nil && doc.Findings == nil && doc.Vulnerabilities == nil {
		return nil, fmt.Errorf("security scan has no findings or summary")
	}

	report := &SecurityReport{}
	switch {
	case doc.Summary != nil:
		report.Severity = *doc.Summary
	case doc.Metadata != nil && doc.Metadata.Vulnerabilities != nil:
		report.Severity = *doc.Metadata.Vulnerabilities
	default:
		for _, f := range findings {
			report.Severity.add(f.Severity)
		}
	}
	// Scanners may list only part of what their summary counts.
	report.TotalFindings = max(len(findings), report.Severity.Total())
	report.Timestamp = rawTimestamp(doc.Timestamp)

	if doc.Passed != nil {
		report.Passed = *doc.Passed
	} else {
		report.Passed = report.Severity.Critical == 0 && report.Severity.High == 0
	}

	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := severityRank(findings[i].Severity), severityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].Package != findings[j].Package {
			return findings[i].Package < findings[j].Package
		}
		return findings[i].ID < findings[j].ID
	})

	if limit > 0 && len(findings) > limit {
		findings = findings[:limit]
		report.Truncated = true
	}
	if findings == nil {
		findings = []Finding{}
	}
	report.Findings = findings
	return report, nil
}

func viaTitle(raw json.RawMessage, fallback string) string {
	var via []json.RawMessage
	if err := json.Unmarshal(raw, &via); err != nil {
		return fallback
	}
	for _, item := range via {
		var adv struct {
			Title string `json:"title"`
		}
		if json.Unmarshal(item, &adv) == nil && adv.Title != "" {
			return adv.Title
		}
	}
	return fallback
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return "critical"
	case "high":
		return "high"
	case "moderate", "medium":
		return "moderate"
	case "low":
		return "low"
	default:
		return "info"
	}
}

func severityRank(s string) int {
	switch normalizeSeverity(s) {
	case "critical":
		return 4
	case "high":
		return 3
	case "moderate":
		return 2
	case "low":
		return 1
	}
	return 0
}
