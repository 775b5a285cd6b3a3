package artifact

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecurityScanCapsFindings(t *testing.T) {
	findings := make([]Finding, 0, 60)
	for i := 0; i < 60; i++ {
		sev := "low"
		if i%20 == 0 {
			sev = "critical"
		}
		findings = append(findings, Finding{ID: fmt.Sprintf("GHSA-%02d", i), Severity: sev, Package: "pkg"})
	}
	body, err := json.Marshal(map[string]any{
		"timestamp": "2024-05-01T10:20:30Z",
		"findings":  findings,
	})
	require.NoError(t, err)

	r, err := ParseSecurityScan(body, 50)
	require.NoError(t, err)

	assert.Len(t, r.Findings, 50)
	assert.True(t, r.Truncated)
	assert.Equal(t, 60, r.TotalFindings)
	assert.Equal(t, 3, r.Severity.Critical)
	assert.Equal(t, 57, r.Severity.Low)
	assert.False(t, r.Passed)

	// most severe first
	for i := 0; i < 3; i++ {
		assert.Equal(t, "critical", r.Findings[i].Severity)
	}
}

func TestParseSecurityScanNpmAudit(t *testing.T) {
	body := `{
		"auditReportVersion": 2,
		"vulnerabilities": {
			"lodash": {"name": "lodash", "severity": "moderate", "range": "<4.17.21",
				"via": [{"title": "Prototype Pollution"}], "fixAvailable": true},
			"minimist": {"name": "minimist", "severity": "low", "range": "<1.2.6",
				"via": ["mkdirp"], "fixAvailable": false}
		},
		"metadata": {"vulnerabilities": {"info": 0, "low": 1, "moderate": 1, "high": 0, "critical": 0}}
	}`

	r, err := ParseSecurityScan([]byte(body), 50)
	require.NoError(t, err)

	assert.True(t, r.Passed)
	assert.False(t, r.Truncated)
	assert.Equal(t, 2, r.TotalFindings)
	assert.Equal(t, SeverityCounts{Low: 1, Moderate: 1}, r.Severity)
	require.Len(t, r.Findings, 2)
	assert.Equal(t, "lodash", r.Findings[0].Package)
	assert.Equal(t, "Prototype Pollution", r.Findings[0].Title)
	assert.True(t, r.Findings[0].FixAvailable)
	assert.Equal(t, "minimist", r.Findings[1].Title)
	assert.False(t, r.Findings[1].FixAvailable)
}

func TestParseSecurityScanExplicitPassed(t *testing.T) {
	body := `{"passed": true, "summary": {"critical": 0, "high": 2}, "findings": []}`
	r, err := ParseSecurityScan([]byte(body), 50)
	require.NoError(t, err)

	assert.True(t, r.Passed)
	assert.Equal(t, 2, r.Severity.High)
	assert.Equal(t, 2, r.TotalFindings)
	assert.NotNil(t, r.Findings)
}

func TestParseSecurityScanTotalFromSummary(t *testing.T) {
	body := `{"summary": {"critical": 1, "high": 2, "low": 3}, "findings": [
		{"id": "GHSA-1", "severity": "critical", "package": "lodash"}
	]}`
	r, err := ParseSecurityScan([]byte(body), 50)
	require.NoError(t, err)

	assert.Equal(t, 6, r.TotalFindings)
	assert.Len(t, r.Findings, 1)
	assert.False(t, r.Truncated)
	assert.False(t, r.Passed)

	r, err = ParseSecurityScan([]byte(`{"summary": {"critical": 1, "high": 2, "low": 3}, "findings": []}`), 50)
	require.NoError(t, err)
	assert.Equal(t, 6, r.TotalFindings)
	assert.Empty(t, r.Findings)
}

func TestParseSecurityScanRejectsUnknownShape(t *testing.T) {
	_, err := ParseSecurityScan([]byte(`{"hello": "world"}`), 50)
	assert.Error(t, err)

	_, err = ParseSecurityScan([]byte(`not json`), 50)
	assert.Error(t, err)
}
