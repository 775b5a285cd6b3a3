package store

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryJSON = `{"total": {"lines": {"pct": 81}, "statements": {"pct": 80},
	"branches": {"pct": 70}, "functions": {"pct": 75}}}`

func TestCoverageCacheKeyedByModTime(t *testing.T) {
	files := fstest.MapFS{
		"coverage/coverage-summary.json": &fstest.MapFile{Data: []byte(summaryJSON), ModTime: t0},
	}
	cache := NewCoverageCache()

	first := cache.Summary(files, "coverage/coverage-summary.json")
	require.NotNil(t, first)
	assert.Equal(t, 81.0, first.Lines)

	cache.Summary(files, "coverage/coverage-summary.json")
	assert.Equal(t, 1, cache.Reads())

	files["coverage/coverage-summary.json"] = &fstest.MapFile{
		Data:    []byte(`{"total": {"lines": {"pct": 90}}}`),
		ModTime: t0.Add(time.Minute),
	}
	second := cache.Summary(files, "coverage/coverage-summary.json")
	require.NotNil(t, second)
	assert.Equal(t, 90.0, second.Lines)
	assert.Equal(t, 2, cache.Reads())
}

func TestCoverageCacheMissingFile(t *testing.T) {
	cache := NewCoverageCache()
	assert.Nil(t, cache.Summary(fstest.MapFS{}, "coverage/coverage-summary.json"))
	assert.Equal(t, 0, cache.Reads())
}

func TestCoverageCacheMalformedFile(t *testing.T) {
	files := fstest.MapFS{"c.json": &fstest.MapFile{Data: []byte(`{`)}}
	cache := NewCoverageCache()
	assert.Nil(t, cache.Summary(files, "c.json"))
}
