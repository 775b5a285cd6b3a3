package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// ErrInvalidAudit marks a lighthouse report that must not be used.
var ErrInvalidAudit = errors.New("invalid lighthouse audit")

// Target is the logical page a lighthouse run measured.
type Target string

const (
	TargetDefault Target = "default"
	TargetHome    Target = "home"
	TargetFeed    Target = "feed"
	TargetAny     Target = "any"
)

// Device is the lighthouse form factor.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

var auditName = regexp.MustCompile(`^lighthouse_(?:(home|feed)_)?(desktop|mobile)_(.+)\.json$`)

// AuditFile is the metadata encoded in a lighthouse artifact filename.
type AuditFile struct {
	Name      string
	Path      string
	Target    Target
	Device    Device
	Timestamp time.Time
}

// ParseAuditFilename decodes lighthouse_[{home|feed}_]{desktop|mobile}_<ts>.json.
func ParseAuditFilename(name string) (AuditFile, bool) {
	m := auditName.FindStringSubmatch(name)
	if m == nil {
		return AuditFile{}, false
	}
	ts, err := ParseFilenameTimestamp(m[3])
	if err != nil {
		return AuditFile{}, false
	}

	target := TargetDefault
	if m[1] != "" {
		target = Target(m[1])
	}
	return AuditFile{
		Name:      name,
		Target:    target,
		Device:    Device(m[2]),
		Timestamp: ts,
	}, true
}

// Audit is a parsed, valid lighthouse report.
type Audit struct {
	Scores    snapshot.ScoreSet
	WebVitals snapshot.WebVitals
}

type lighthouseReport struct {
	RuntimeError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"runtimeError"`
	Categories map[string]*struct {
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits map[string]*struct {
		NumericValue *float64 `json:"numericValue"`
	} `json:"audits"`
}

// ParseAudit reads a lighthouse JSON report. Category scores are 0-1
// fractions scaled to 0-100. A populated runtimeError.code or a missing or
// non-numeric category score yields ErrInvalidAudit.
func ParseAudit(data []byte) (*Audit, error) {
	var r lighthouseReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudit, err)
	}
	if r.RuntimeError != nil && r.RuntimeError.Code != "" {
		return nil, fmt.Errorf("%w: runtime error %s", ErrInvalidAudit, r.RuntimeError.Code)
	}

	scores := make([]int, 0, 4)
	for _, key := range []string{"performance", "accessibility", "best-practices", "seo"} {
		cat := r.Categories[key]
		if cat == nil || cat.Score == nil || math.IsNaN(*cat.Score) {
			return nil, fmt.Errorf("%w: missing %s score", ErrInvalidAudit, key)
		}
		scores = append(scores, snapshot.ClampScore(*cat.Score*100))
	}

	return &Audit{
		Scores: snapshot.ScoreSet{
			Performance:   scores[0],
			Accessibility: scores[1],
			BestPractices: scores[2],
			SEO:           scores[3],
		},
		WebVitals: snapshot.WebVitals{
			LCP: r.numeric("largest-contentful-paint"),
			CLS: r.numeric("cumulative-layout-shift"),
			TBT: r.numeric("total-blocking-time"),
		},
	}, nil
}

func (r lighthouseReport) numeric(id string) float64 {
	a := r.Audits[id]
	if a == nil || a.NumericValue == nil {
		return 0
	}
	return *a.NumericValue
}
