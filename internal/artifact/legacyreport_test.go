package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const markdownReport = `# Test Report

Commit: A1B2C3D (main)

Coverage: 64.2%
Bundle size: 280 KB

<!-- METRICS_START -->
coverage: 81.5%
bundleSize: 312.4 KB
<!-- METRICS_END -->

## Test Results

| Suite | Status | Time |
|-------|--------|------|
| feed.test.ts | ✅ | 1.5s |
| modal.test.ts | ❌ | 0.5s |
| theme.test.ts | ✅ passed | 2s |

Total: 3 suites
`

func TestParseLegacyReportPrefersMetricsBlock(t *testing.T) {
	r := ParseLegacyReport([]byte(markdownReport), ReportMarkdown)

	assert.True(t, r.HasMetricsBlock)
	assert.Equal(t, "a1b2c3d", r.CommitHash)
	assert.Equal(t, 81.5, r.Coverage)
	assert.Equal(t, 312.4, r.BundleSize)
}

func TestParseLegacyReportResultsTable(t *testing.T) {
	r := ParseLegacyReport([]byte(markdownReport), ReportMarkdown)

	assert.True(t, r.HasResultsTable)
	assert.Equal(t, 3, r.Tests.Total)
	assert.Equal(t, 2, r.Tests.Passed)
	assert.Equal(t, 1, r.Tests.Failed)
	assert.InDelta(t, 4.0, r.Tests.Duration, 0.0001)
}

func TestParseLegacyReportLabelFallback(t *testing.T) {
	body := "# Informe\n\nCobertura de código: 72,5%\nTamaño del bundle: 198 KB\n\n## Resultados\n\n| Test | Estado |\n|---|---|\n| a | ✅ |\n"
	r := ParseLegacyReport([]byte(body), ReportMarkdown)

	assert.False(t, r.HasMetricsBlock)
	assert.Equal(t, 72.5, r.Coverage)
	assert.Equal(t, 198.0, r.BundleSize)
	assert.Equal(t, 1, r.Tests.Passed)
}

func TestParseLegacyReportNothingFound(t *testing.T) {
	r := ParseLegacyReport([]byte("just some notes"), ReportMarkdown)

	assert.Zero(t, r.Coverage)
	assert.Zero(t, r.BundleSize)
	assert.False(t, r.HasResultsTable)
	assert.Zero(t, r.Tests.Total)
	assert.NotNil(t, r.Tests.Suites)
}

func TestParseLegacyReportHTML(t *testing.T) {
	body := `<html><body>
<!-- METRICS_START -->
<pre>bundleSize: 250 KB</pre>
<!-- METRICS_END -->
<h1>Quality report</h1>
<p>Coverage: <b>77.3%</b></p>
<h2>Test Results</h2>
<table>
  <tr><th>Suite</th><th>Status</th><th>Time</th></tr>
  <tr><td>feed</td><td>✅</td><td>3s</td></tr>
  <tr><td>modal</td><td>❌</td><td>1.25s</td></tr>
</table>
</body></html>`

	r := ParseLegacyReport([]byte(body), ReportHTML)

	assert.True(t, r.HasMetricsBlock)
	assert.Equal(t, 250.0, r.BundleSize)
	assert.Equal(t, 77.3, r.Coverage)
	assert.Equal(t, 2, r.Tests.Total)
	assert.Equal(t, 1, r.Tests.Passed)
	assert.Equal(t, 1, r.Tests.Failed)
	assert.InDelta(t, 4.25, r.Tests.Duration, 0.0001)
}
