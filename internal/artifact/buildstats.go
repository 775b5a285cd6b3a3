package artifact

import (
	"encoding/json"
	"fmt"
)

// BuildStats are raw build output totals written next to a legacy report.
type BuildStats struct {
	JSBytes  int64   `json:"jsBytes"`
	CSSBytes int64   `json:"cssBytes"`
	TotalKB  float64 `json:"totalKB"`
}

// BundleKB is the bundle size in KB, preferring the explicit total.
func (b BuildStats) BundleKB() float64 {
	if b.TotalKB > 0 {
		return b.TotalKB
	}
	return BytesToKB(b.JSBytes + b.CSSBytes)
}

// ParseBuildStats reads a build totals document.
func ParseBuildStats(data []byte) (*BuildStats, error) {
	var b BuildStats
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode build stats: %w", err)
	}
	return &b, nil
}

// BytesToKB converts a byte count to KB rounded to two decimals.
func BytesToKB(n int64) float64 {
	return roundPct(float64(n) / 1024)
}
