package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScriptRun is one timed execution of a project script.
type ScriptRun struct {
	Script    string    `json:"script"`
	Duration  float64   `json:"duration"` // ms
	Timestamp time.Time `json:"timestamp"`
	ExitCode  int       `json:"exitCode"`
}

type scriptRunLine struct {
	Script     string          `json:"script"`
	Name       string          `json:"name"`
	Duration   *float64        `json:"duration"`
	DurationMs *float64        `json:"durationMs"`
	Timestamp  json.RawMessage `json:"timestamp"`
	ExitCode   int             `json:"exitCode"`
}

// ParseScriptTimings reads a JSON-lines timing log. Blank and malformed
// lines are skipped; an error is returned only when nothing was readable
// from a non-empty log.
func ParseScriptTimings(data []byte) ([]ScriptRun, error) {
	var (
		runs    []ScriptRun
		skipped int
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var l scriptRunLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			skipped++
			continue
		}

		run := ScriptRun{Script: l.Script, ExitCode: l.ExitCode}
		if run.Script == "" {
			run.Script = l.Name
		}
		switch {
		case l.DurationMs != nil:
			run.Duration = *l.DurationMs
		case l.Duration != nil:
			run.Duration = *l.Duration
		}
		if run.Script == "" || run.Duration < 0 {
			skipped++
			continue
		}
		run.Timestamp = rawTimestamp(l.Timestamp)

		runs = append(runs, run)
	}
	if err := sc.Err(); err != nil {
		return runs, fmt.Errorf("scan script timings: %w", err)
	}
	if len(runs) == 0 && skipped > 0 {
		return nil, fmt.Errorf("script timings: %d unreadable lines", skipped)
	}
	return runs, nil
}

func rawTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if t, err := ParseFilenameTimestamp(s); err == nil {
			return t
		}
		return time.Time{}
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if t, err := ParseFilenameTimestamp(n.String()); err == nil {
			return t
		}
	}
	return time.Time{}
}
