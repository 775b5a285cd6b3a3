package artifact

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// ReportKind is the legacy report body format.
type ReportKind string

const (
	ReportMarkdown ReportKind = "markdown"
	ReportHTML     ReportKind = "html"
)

const (
	metricsStart = "<!-- METRICS_START -->"
	metricsEnd   = "<!-- METRICS_END -->"
)

var (
	coverageLabel = regexp.MustCompile(`(?i)(?:coverage|cobertura)[^0-9\n]*?(\d+(?:[.,]\d+)?)\s*%`)
	bundleLabel   = regexp.MustCompile(`(?i)bundle[^0-9\n]*?(\d+(?:[.,]\d+)?)\s*KB`)
	resultsHeader = regexp.MustCompile(`(?i)^#{1,4}\s*(?:test results|resultados(?: de (?:los )?tests?)?)\s*$`)
	separatorRow  = regexp.MustCompile(`^\|?\s*:?-{3,}`)
	durationToken = regexp.MustCompile(`(\d+(?:\.\d+)?)s\b`)
	failIcon      = regexp.MustCompile(`❌|✗`)
	passIcon      = regexp.MustCompile(`✅|✓`)
	failMarker    = regexp.MustCompile(`(?i)\bfail(?:ed|ing)?\b|\bfallid[oa]\b`)
	passMarker    = regexp.MustCompile(`(?i)\bpass(?:ed|ing)?\b|\bok\b|\bexitos[oa]\b`)
	htmlTag       = regexp.MustCompile(`<[^>]+>`)
	commitLabel   = regexp.MustCompile(`(?i)\bcommit\b[^:\n]*:\s*\W?([0-9a-f]{7,40})\b`)
)

// LegacyReport holds what could be recovered from a free-text report.
// Zero values mean "not found"; the caller applies its own fallbacks.
type LegacyReport struct {
	CommitHash      string
	Coverage        float64
	BundleSize      float64 // KB
	Tests           snapshot.TestMetrics
	HasMetricsBlock bool
	HasResultsTable bool
}

// ParseLegacyReport extracts metrics from a legacy markdown or HTML report.
// The delimited metrics block wins over free-text labels.
func ParseLegacyReport(body []byte, kind ReportKind) LegacyReport {
	var r LegacyReport

	if block, ok := metricsBlock(string(body)); ok {
		r.HasMetricsBlock = true
		applyMetricsBlock(&r, block)
	}

	text := string(body)
	if kind == ReportHTML {
		text = htmlToText(body)
	}

	if r.Coverage == 0 {
		if m := coverageLabel.FindStringSubmatch(text); m != nil {
			r.Coverage = parseDecimal(m[1])
		}
	}
	if r.BundleSize == 0 {
		if m := bundleLabel.FindStringSubmatch(text); m != nil {
			r.BundleSize = parseDecimal(m[1])
		}
	}

	if m := commitLabel.FindStringSubmatch(text); m != nil {
		r.CommitHash = strings.ToLower(m[1])
	}

	r.Tests, r.HasResultsTable = resultsTable(text)
	return r
}

func metricsBlock(s string) (string, bool) {
	start := strings.Index(s, metricsStart)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(metricsStart):]
	end := strings.Index(rest, metricsEnd)
	if end < 0 {
		return "", false
	}
	return htmlTag.ReplaceAllString(rest[:end], "\n"), true
}

func applyMetricsBlock(r *LegacyReport, block string) {
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = normalizeKey(key)
		value = strings.TrimSpace(value)

		switch key {
		case "coverage", "cobertura", "coveragelines", "lines":
			if r.Coverage == 0 {
				r.Coverage = parseDecimal(value)
			}
		case "bundle", "bundlesize", "bundlekb":
			r.BundleSize = parseDecimal(value)
		}
	}
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.TrimLeft(k, "-* ")
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
}

var leadingNumber = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// parseDecimal reads the first number in s, accepting a decimal comma.
func parseDecimal(s string) float64 {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}

// resultsTable counts pass/fail rows of the pipe table under a results
// header and sums the <n>s durations found on its rows.
func resultsTable(text string) (snapshot.TestMetrics, bool) {
	var (
		t        snapshot.TestMetrics
		inHeader bool
		inTable  bool
		sawHead  bool
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if resultsHeader.MatchString(line) {
			inHeader, inTable, sawHead = true, false, false
			continue
		}
		if !inHeader {
			continue
		}

		if !strings.HasPrefix(line, "|") {
			if inTable {
				break
			}
			if strings.HasPrefix(line, "#") {
				inHeader = false
			}
			continue
		}

		inTable = true
		if separatorRow.MatchString(line) {
			continue
		}
		if !sawHead {
			sawHead = true
			continue
		}

		switch {
		case failIcon.MatchString(line):
			t.Failed++
		case passIcon.MatchString(line):
			t.Passed++
		case failMarker.MatchString(line):
			t.Failed++
		case passMarker.MatchString(line):
			t.Passed++
		default:
			t.Skipped++
		}
		for _, m := range durationToken.FindAllStringSubmatch(line, -1) {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				t.Duration += v
			}
		}
	}

	t.Total = t.Passed + t.Failed + t.Skipped
	t.Suites = []snapshot.TestSuite{}
	return t, sawHead
}

// htmlToText flattens an HTML report into the markdown-like text the
// label and table scanners understand.
func htmlToText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return htmlTag.ReplaceAllString(string(body), " ")
	}

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, tr, pre").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			b.WriteString("## " + collapse(s.Text()) + "\n")
		case "tr":
			cells := s.Find("th, td").Map(func(_ int, c *goquery.Selection) string {
				return collapse(c.Text())
			})
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		case "pre":
			b.WriteString(s.Text() + "\n")
		default:
			if s.ParentsFiltered("li, td, th").Length() > 0 {
				return
			}
			b.WriteString(collapse(s.Text()) + "\n")
		}
		// blank line ends a table
		if goquery.NodeName(s) != "tr" {
			b.WriteString("\n")
		}
	})
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
