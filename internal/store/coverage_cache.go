package store

import (
	"io/fs"
	"sync"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
)

// FileSource is the read surface CoverageCache needs.
type FileSource interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)
}

// CoverageCache memoises the parsed coverage summary keyed by file
// modification time and size. A changed file is re-read on next access.
type CoverageCache struct {
	mu      sync.Mutex
	name    string
	modTime time.Time
	size    int64
	totals  *artifact.SummaryTotals
	reads   int
}

// NewCoverageCache creates an empty cache.
func NewCoverageCache() *CoverageCache {
	return &CoverageCache{}
}

// Summary returns the totals of the coverage summary at name, or nil when
// the file is missing or unreadable.
func (c *CoverageCache) Summary(src FileSource, name string) *artifact.SummaryTotals {
	info, err := src.Stat(name)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.name == name && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.totals
	}

	c.name, c.modTime, c.size, c.totals = name, info.ModTime(), info.Size(), nil
	c.reads++

	data, err := src.ReadFile(name)
	if err != nil {
		return nil
	}
	totals, err := artifact.ParseCoverageSummary(data)
	if err != nil {
		return nil
	}
	c.totals = totals
	return totals
}

// Reads reports how many times the underlying file was parsed.
func (c *CoverageCache) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
