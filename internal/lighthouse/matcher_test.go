package lighthouse

import (
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/workspace"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func auditBody(perf float64) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(fmt.Sprintf(`{"categories": {
		"performance":    {"score": %g}, "accessibility": {"score": 0.9},
		"best-practices": {"score": 0.9}, "seo": {"score": 0.9}},
		"audits": {"largest-contentful-paint": {"numericValue": 1500}}}`, perf))}
}

var brokenAudit = &fstest.MapFile{Data: []byte(`{"runtimeError": {"code": "NO_FCP"}}`)}

func name(prefix string, ts time.Time) string {
	return fmt.Sprintf("quality/lighthouse/lighthouse_%s_%s.json", prefix, artifact.FormatFilenameTimestamp(ts))
}

func newMatcher(files fstest.MapFS) *Matcher {
	return New(workspace.FromFS(files), "quality/lighthouse", nil)
}

func TestFindMatchPrefersClosest(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(10*time.Minute)): auditBody(0.70),
		name("desktop", base.Add(-5*time.Minute)): auditBody(0.95),
	})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 95, got.Audit.Scores.Performance)
	assert.Equal(t, 5*time.Minute, got.Distance)
}

func TestFindMatchTieGoesToNewest(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(-time.Hour)): auditBody(0.60),
		name("desktop", base.Add(time.Hour)):  auditBody(0.80),
	})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80, got.Audit.Scores.Performance)
}

func TestFindMatchRespectsThirtyDayCeiling(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(-31*24*time.Hour)): auditBody(0.90),
		name("desktop", base.Add(45*24*time.Hour)):  auditBody(0.90),
	})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceDesktop)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindMatchNeverExceedsCeilingAfterInvalidCandidates(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(time.Minute)):        brokenAudit,
		name("desktop", base.Add(40*24*time.Hour)):    auditBody(0.90),
		name("desktop", base.Add(29*24*time.Hour)):    brokenAudit,
		name("mobile", base.Add(2*time.Minute)):       auditBody(0.50),
		name("home_desktop", base.Add(3*time.Minute)): auditBody(0.50),
	})

	got, err := m.FindMatch(base, artifact.TargetDefault, artifact.DeviceDesktop)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindMatchSkipsInvalidAudits(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(time.Minute)):   brokenAudit,
		name("desktop", base.Add(2*time.Minute)): &fstest.MapFile{Data: []byte(`{"categories": {"performance": {"score": 0.9}}}`)},
		name("desktop", base.Add(3*time.Hour)):   auditBody(0.77),
	})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 77, got.Audit.Scores.Performance)
}

func TestFindMatchHomeFallsBackToDefault(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(time.Hour)):        auditBody(0.88),
		name("feed_desktop", base.Add(time.Minute)): auditBody(0.40),
		name("home_mobile", base.Add(time.Minute)):  auditBody(0.40),
	})

	got, err := m.FindMatch(base, artifact.TargetHome, artifact.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, artifact.TargetDefault, got.File.Target)
	assert.Equal(t, 88, got.Audit.Scores.Performance)
}

func TestFindMatchHomeNeverUsesFeed(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("feed_desktop", base.Add(time.Minute)): auditBody(0.90),
	})

	got, err := m.FindMatch(base, artifact.TargetHome, artifact.DeviceDesktop)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindMatchPrefersExactTarget(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(time.Minute)):      auditBody(0.50),
		name("home_desktop", base.Add(2*time.Hour)): auditBody(0.91),
	})

	got, err := m.FindMatch(base, artifact.TargetHome, artifact.DeviceDesktop)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, artifact.TargetHome, got.File.Target)
}

func TestFindMatchFiltersDevice(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		name("desktop", base.Add(time.Minute)): auditBody(0.50),
		name("mobile", base.Add(time.Hour)):    auditBody(0.66),
	})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceMobile)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, artifact.DeviceMobile, got.File.Device)
}

func TestFindMatchMissingDirectory(t *testing.T) {
	m := newMatcher(fstest.MapFS{})

	got, err := m.FindMatch(base, artifact.TargetAny, artifact.DeviceDesktop)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCandidatesIgnoreForeignFiles(t *testing.T) {
	m := newMatcher(fstest.MapFS{
		"quality/lighthouse/README.md":                     &fstest.MapFile{Data: []byte("#")},
		"quality/lighthouse/lighthouse_tv_1714558830.json": auditBody(0.9),
		name("desktop", base):                              auditBody(0.9),
	})

	files, err := m.Candidates()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, name("desktop", base), files[0].Path)
}
