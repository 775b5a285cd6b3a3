package lighthouse

import (
	"errors"
	"path"
	"sort"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// MaxDistance is the hard ceiling between a snapshot and its audit.
const MaxDistance = 30 * 24 * time.Hour

// Match is the audit selected for a snapshot.
type Match struct {
	File     artifact.AuditFile
	Audit    artifact.Audit
	Distance time.Duration
}

// Matcher pairs snapshots with lighthouse artifacts by time proximity.
type Matcher struct {
	files  workspace.Lister
	dir    string
	logger *logger.Logger
}

// New creates a matcher over the lighthouse artifacts in dir.
func New(files workspace.Lister, dir string, log *logger.Logger) *Matcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{files: files, dir: dir, logger: log}
}

// Candidates returns every parseable lighthouse artifact in the directory.
func (m *Matcher) Candidates() ([]artifact.AuditFile, error) {
	entries, err := m.files.List(m.dir)
	if err != nil {
		return nil, err
	}

	files := make([]artifact.AuditFile, 0, len(entries))
	for _, e := range entries {
		f, ok := artifact.ParseAuditFilename(e.Name)
		if !ok {
			continue
		}
		f.Path = path.Join(m.dir, e.Name)
		files = append(files, f)
	}
	return files, nil
}

// FindMatch selects the audit closest in time to ts for target and device.
// A specific target falls back only to default-target audits, never to a
// different specific target. Invalid audits are skipped and nothing
// farther than MaxDistance is accepted. Returns nil when nothing matches.
func (m *Matcher) FindMatch(ts time.Time, target artifact.Target, device artifact.Device) (*Match, error) {
	files, err := m.Candidates()
	if err != nil {
		return nil, err
	}
	return m.FindMatchIn(files, ts, target, device), nil
}

// FindMatchIn is FindMatch over an already listed candidate set, for
// callers matching many snapshots against one directory scan.
func (m *Matcher) FindMatchIn(files []artifact.AuditFile, ts time.Time, target artifact.Target, device artifact.Device) *Match {
	return m.match(Select(files, ts, target, device), ts)
}

// Select applies the device and target rules and ranks the survivors by
// distance to ts, newest file first on ties.
func Select(files []artifact.AuditFile, ts time.Time, target artifact.Target, device artifact.Device) []artifact.AuditFile {
	var sameDevice []artifact.AuditFile
	for _, f := range files {
		if f.Device == device {
			sameDevice = append(sameDevice, f)
		}
	}

	pool := sameDevice
	if target != artifact.TargetAny {
		pool = filterTarget(sameDevice, target)
		if len(pool) == 0 && target != artifact.TargetDefault {
			pool = filterTarget(sameDevice, artifact.TargetDefault)
		}
	}

	ranked := make([]artifact.AuditFile, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := distance(ranked[i].Timestamp, ts), distance(ranked[j].Timestamp, ts)
		if di != dj {
			return di < dj
		}
		return ranked[i].Timestamp.After(ranked[j].Timestamp)
	})
	return ranked
}

func (m *Matcher) match(ranked []artifact.AuditFile, ts time.Time) *Match {
	for _, f := range ranked {
		d := distance(f.Timestamp, ts)
		if d > MaxDistance {
			// ranked by distance, nothing after this can qualify
			return nil
		}

		data, err := m.files.ReadFile(f.Path)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"file":  f.Path,
				"error": err.Error(),
			}).Warn("Failed to read lighthouse audit")
			continue
		}

		audit, err := artifact.ParseAudit(data)
		if errors.Is(err, artifact.ErrInvalidAudit) {
			m.logger.WithField("file", f.Path).Debug("Skipping invalid lighthouse audit")
			continue
		}
		if err != nil {
			m.logger.WithError(err).Warn("Failed to parse lighthouse audit")
			continue
		}

		return &Match{File: f, Audit: *audit, Distance: d}
	}
	return nil
}

func filterTarget(files []artifact.AuditFile, target artifact.Target) []artifact.AuditFile {
	var out []artifact.AuditFile
	for _, f := range files {
		if f.Target == target {
			out = append(out, f)
		}
	}
	return out
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
