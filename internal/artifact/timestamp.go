package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 2024-05-01T10-20-30Z, 2024-05-01T10-20-30-123Z, 2024-05-01T10-20-30.123+02-00
var dashedISO = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2})-(\d{2})-(\d{2})(?:[-.](\d{3}))?(Z|[+-]\d{2}-?\d{2})?$`)

// ParseFilenameTimestamp decodes the timestamp segment of an artifact
// filename. It accepts a raw decimal epoch (milliseconds, or seconds when
// ten digits or fewer) or an ISO-8601 string whose time colons were
// replaced by dashes for filesystem safety.
func ParseFilenameTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse epoch %q: %w", s, err)
		}
		if len(s) <= 10 {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	m := dashedISO.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	restored := fmt.Sprintf("%sT%s:%s:%s", m[1], m[2], m[3], m[4])
	if m[5] != "" {
		restored += "." + m[5]
	}
	zone := m[6]
	switch {
	case zone == "" || zone == "Z":
		zone = "Z"
	case len(zone) == 6 && zone[3] == '-':
		zone = zone[:3] + ":" + zone[4:]
	case len(zone) == 5:
		zone = zone[:3] + ":" + zone[3:]
	}
	restored += zone

	t, err := time.Parse(time.RFC3339Nano, restored)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatFilenameTimestamp is the inverse used when writing artifacts.
func FormatFilenameTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
