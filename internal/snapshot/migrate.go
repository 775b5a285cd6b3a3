package snapshot

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrUnrecognized is returned when no decoder accepts the input.
var ErrUnrecognized = errors.New("unrecognized snapshot shape")

//go:embed schema/snapshot.schema.json
var schemaFS embed.FS

const schemaURL = "mem://schemas/snapshot.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func canonicalSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/snapshot.schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("read snapshot schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			schemaErr = fmt.Errorf("decode snapshot schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("register snapshot schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Decoder tries to read one historical snapshot layout.
type Decoder struct {
	Name      string
	TryDecode func(doc map[string]any) (*Snapshot, bool)
}

// Decoders are tried in order; the first match wins.
var Decoders = []Decoder{
	{Name: "canonical", TryDecode: decodeCanonical},
	{Name: "nested-health", TryDecode: decodeNestedHealth},
	{Name: "renamed-metrics", TryDecode: decodeRenamedMetrics},
	{Name: "flat", TryDecode: decodeFlat},
	{Name: "partial-metrics", TryDecode: decodePartialMetrics},
}

// Migrate converts any supported raw snapshot document into the canonical
// Snapshot. DataQuality is always recomputed from the resolved metrics.
func Migrate(raw []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return MigrateValue(v)
}

// MigrateValue is Migrate over an already decoded document.
func MigrateValue(v any) (s *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrUnrecognized, r)
		}
	}()

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, ErrUnrecognized
	}

	for _, d := range Decoders {
		if snap, ok := d.TryDecode(doc); ok {
			finalize(snap, doc)
			return snap, nil
		}
	}
	return nil, ErrUnrecognized
}

func decodeCanonical(doc map[string]any) (*Snapshot, bool) {
	sch, err := canonicalSchema()
	if err != nil {
		return nil, false
	}
	if err := sch.Validate(doc); err != nil {
		return nil, false
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// {health: {score, confidence}, metrics: {...}}
func decodeNestedHealth(doc map[string]any) (*Snapshot, bool) {
	health := mapAt(doc, "health")
	if health == nil {
		return nil, false
	}
	s, ok := identity(doc)
	if !ok {
		return nil, false
	}

	s.HealthScore = ClampScore(numAt(health, "score", "value", "healthScore"))
	s.ConfidenceLevel = parseConfidence(strAt(health, "confidence", "confidenceLevel", "level"))

	metrics := mapAt(doc, "metrics")
	if metrics == nil {
		metrics = doc
	}
	s.Metrics = decodeMetrics(metrics)
	return s, true
}

// {quality|results: {testResults, coverageReport, lighthouse, uptime}}
func decodeRenamedMetrics(doc map[string]any) (*Snapshot, bool) {
	q := mapAt(doc, "quality", "results")
	if q == nil {
		return nil, false
	}
	s, ok := identity(doc)
	if !ok {
		return nil, false
	}
	score(s, doc)

	s.Metrics = Metrics{
		Tests:       decodeTests(mapAt(q, "testResults", "tests", "unit")),
		Coverage:    decodeCoverage(mapAt(q, "coverageReport", "coverage")),
		Performance: decodePerformance(mapAt(q, "lighthouse", "performance", "perf")),
		Stability:   stabilityFrom(q),
	}
	return s, true
}

// tests/coverage/performance/stability at the top level
func decodeFlat(doc map[string]any) (*Snapshot, bool) {
	present := 0
	for _, k := range []string{"tests", "coverage", "performance", "stability"} {
		if mapAt(doc, k) != nil {
			present++
		}
	}
	if present < 2 {
		return nil, false
	}
	s, ok := identity(doc)
	if !ok {
		return nil, false
	}
	score(s, doc)
	s.Metrics = decodeMetrics(doc)
	return s, true
}

// a metrics block that fails the canonical schema (fields missing or mistyped)
func decodePartialMetrics(doc map[string]any) (*Snapshot, bool) {
	metrics := mapAt(doc, "metrics")
	if metrics == nil {
		return nil, false
	}
	s, ok := identity(doc)
	if !ok {
		return nil, false
	}
	score(s, doc)
	s.Metrics = decodeMetrics(metrics)
	return s, true
}

func identity(doc map[string]any) (*Snapshot, bool) {
	commit := strAt(doc, "commitHash", "commit", "sha", "hash")
	if commit == "" {
		return nil, false
	}
	ts, ok := timeAt(doc, "timestamp", "date", "createdAt", "generatedAt")
	if !ok {
		return nil, false
	}
	return &Snapshot{
		CommitHash: commit,
		Branch:     strAt(doc, "branch", "ref"),
		Timestamp:  ts,
		Source:     Source(strAt(doc, "source")),
		ReportFile: strAt(doc, "reportFile", "report"),
	}, true
}

func score(s *Snapshot, doc map[string]any) {
	s.HealthScore = ClampScore(numAt(doc, "healthScore", "score"))
	s.ConfidenceLevel = parseConfidence(strAt(doc, "confidenceLevel", "confidence"))
}

func decodeMetrics(m map[string]any) Metrics {
	return Metrics{
		Tests:       decodeTests(mapAt(m, "tests", "testResults")),
		Coverage:    decodeCoverage(mapAt(m, "coverage", "coverageReport")),
		Performance: decodePerformance(mapAt(m, "performance", "lighthouse")),
		Stability:   decodeStability(mapAt(m, "stability", "monitoring")),
	}
}

func decodeTests(m map[string]any) TestMetrics {
	if m == nil {
		return TestMetrics{}
	}
	t := TestMetrics{
		Total:    intAt(m, "total", "numTotalTests", "count"),
		Passed:   intAt(m, "passed", "numPassedTests", "passing"),
		Failed:   intAt(m, "failed", "numFailedTests", "failing"),
		Skipped:  intAt(m, "skipped", "pending", "numPendingTests"),
		Duration: numAt(m, "duration", "durationSeconds"),
	}
	if t.Duration == 0 && hasNum(m, "durationMs") {
		t.Duration = numAt(m, "durationMs") / 1000
	}
	if t.Total == 0 {
		t.Total = t.Passed + t.Failed + t.Skipped
	}

	for _, item := range listAt(m, "suites", "testSuites") {
		sm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		suite := TestSuite{
			Name:     strAt(sm, "name", "title", "file"),
			Total:    intAt(sm, "total", "tests"),
			Passed:   intAt(sm, "passed", "passing"),
			Failed:   intAt(sm, "failed", "failing"),
			Skipped:  intAt(sm, "skipped", "pending"),
			Duration: numAt(sm, "duration"),
			Status:   strAt(sm, "status"),
		}
		if suite.Status == "" {
			suite.Status = "passed"
			if suite.Failed > 0 {
				suite.Status = "failed"
			}
		}
		t.Suites = append(t.Suites, suite)
	}
	return t
}

func decodeCoverage(m map[string]any) CoverageMetrics {
	if m == nil {
		return CoverageMetrics{}
	}
	c := CoverageMetrics{
		Lines:      numAt(m, "lines", "line", "linesPct"),
		Statements: numAt(m, "statements", "stmts", "statementsPct"),
		Branches:   numAt(m, "branches", "branch", "branchesPct"),
		Functions:  numAt(m, "functions", "funcs", "functionsPct"),
		Trend:      Trend(strAt(m, "trend")),
	}
	if c.Statements == 0 && c.Lines > 0 && !hasNum(m, "statements", "stmts", "statementsPct") {
		c.Statements = c.Lines
	}
	return c
}

func decodeScoreSet(m map[string]any) (ScoreSet, bool) {
	if m == nil {
		return ScoreSet{}, false
	}
	perfKeys := []string{"performance", "perf"}
	a11yKeys := []string{"accessibility", "a11y"}
	bpKeys := []string{"bestPractices", "best-practices", "best_practices"}
	seoKeys := []string{"seo"}
	if !hasNum(m, perfKeys...) && !hasNum(m, a11yKeys...) && !hasNum(m, bpKeys...) && !hasNum(m, seoKeys...) {
		return ScoreSet{}, false
	}

	vals := []float64{numAt(m, perfKeys...), numAt(m, a11yKeys...), numAt(m, bpKeys...), numAt(m, seoKeys...)}

	// Early generations stored raw 0-1 lighthouse fractions. A set counts as
	// fractional only when every value is within [0,1] and at least one has a
	// fractional part, so a genuine 0-100 set such as 1/1/1/1 is kept as is.
	fractional, inRange := false, true
	for _, v := range vals {
		if v < 0 || v > 1 {
			inRange = false
		}
		if v != math.Trunc(v) {
			fractional = true
		}
	}
	scale := 1.0
	if fractional && inRange {
		scale = 100
	}

	return ScoreSet{
		Performance:   ClampScore(vals[0] * scale),
		Accessibility: ClampScore(vals[1] * scale),
		BestPractices: ClampScore(vals[2] * scale),
		SEO:           ClampScore(vals[3] * scale),
	}, true
}

func decodePerformance(m map[string]any) PerformanceMetrics {
	p := PerformanceMetrics{Regressions: []string{}}
	if m == nil {
		return p
	}

	if base, ok := decodeScoreSet(mapAt(m, "base", "scores", "lighthouse", "desktop")); ok {
		p.Base = base
	} else if flat, ok := decodeScoreSet(m); ok {
		p.Base = flat
	}
	if home, ok := decodeScoreSet(mapAt(m, "home")); ok {
		p.Home = &home
	}
	if feed, ok := decodeScoreSet(mapAt(m, "feed")); ok {
		p.Feed = &feed
	}

	vitals := mapAt(m, "webVitals", "vitals", "coreWebVitals")
	if vitals == nil {
		vitals = m
	}
	p.WebVitals = WebVitals{
		LCP: numAt(vitals, "lcp", "largestContentfulPaint"),
		CLS: numAt(vitals, "cls", "cumulativeLayoutShift"),
		TBT: numAt(vitals, "tbt", "totalBlockingTime"),
	}
	p.BundleSize = numAt(m, "bundleSize", "bundleSizeKB", "bundle")

	for _, r := range listAt(m, "regressions") {
		if label, ok := r.(string); ok {
			p.Regressions = append(p.Regressions, label)
		}
	}
	return p
}

func decodeStability(m map[string]any) StabilityMetrics {
	if m == nil {
		return StabilityMetrics{Status: StatusOffline}
	}
	s := StabilityMetrics{
		Uptime:  numAt(m, "uptime", "availability"),
		Latency: numAt(m, "latency", "responseTime", "latencyMs"),
		Status:  Status(strings.ToLower(strAt(m, "status"))),
	}
	if t, ok := timeAt(m, "lastCheck", "checkedAt"); ok {
		s.LastCheck = t
	}
	switch s.Status {
	case StatusOnline, StatusDegraded, StatusOffline:
	default:
		s.Status = StatusFromUptime(s.Uptime)
	}
	return s
}

func stabilityFrom(q map[string]any) StabilityMetrics {
	if m := mapAt(q, "stability", "monitoring", "uptime"); m != nil {
		return decodeStability(m)
	}
	if hasNum(q, "uptime") {
		return decodeStability(map[string]any{"uptime": q["uptime"], "latency": q["latency"]})
	}
	return decodeStability(nil)
}

// StatusFromUptime maps an uptime percentage to a status.
func StatusFromUptime(uptime float64) Status {
	switch {
	case uptime >= 99:
		return StatusOnline
	case uptime >= 90:
		return StatusDegraded
	default:
		return StatusOffline
	}
}

// finalize fills defaults. Branch defaults only when the document has no
// branch key at all; an explicit empty branch is kept.
func finalize(s *Snapshot, doc map[string]any) {
	if _, ok := lookup(doc, "branch", "ref"); !ok && s.Branch == "" {
		s.Branch = "main"
	}
	if s.Source == "" {
		s.Source = SourceStructured
	}
	if s.HealthScore < 0 {
		s.HealthScore = 0
	}
	if s.HealthScore > 100 {
		s.HealthScore = 100
	}
	if s.Metrics.Performance.Regressions == nil {
		s.Metrics.Performance.Regressions = []string{}
	}

	for _, f := range []*float64{
		&s.Metrics.Tests.Duration,
		&s.Metrics.Coverage.Lines, &s.Metrics.Coverage.Statements,
		&s.Metrics.Coverage.Branches, &s.Metrics.Coverage.Functions,
		&s.Metrics.Performance.WebVitals.LCP, &s.Metrics.Performance.WebVitals.CLS,
		&s.Metrics.Performance.WebVitals.TBT, &s.Metrics.Performance.BundleSize,
		&s.Metrics.Stability.Uptime, &s.Metrics.Stability.Latency,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}

	s.Refresh()
}
