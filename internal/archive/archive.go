package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/wonny/newsdeck/backend/internal/archive/migrations"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Entry is one archived snapshot.
type Entry struct {
	ID         string            `json:"id"`
	ArchivedAt time.Time         `json:"archivedAt"`
	Snapshot   snapshot.Snapshot `json:"snapshot"`
}

// Archive keeps the history of structured snapshots outside the workspace
// ⭐ SSOT: 스냅샷 이력 저장은 이 인터페이스로만
type Archive interface {
	// Record stores snap. Recording the same commit and timestamp twice is a no-op.
	Record(ctx context.Context, snap snapshot.Snapshot) error
	// Recent returns up to limit entries, newest snapshot first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// DefaultLimit applies when Recent is called with a non-positive limit.
const DefaultLimit = 20

// Open connects the archive selected by cfg.Driver and applies migrations.
// Driver "none" yields an archive that records nothing.
func Open(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (Archive, error) {
	if log == nil {
		log = logger.Nop()
	}

	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "postgres":
		return OpenPostgres(ctx, cfg, log)
	case "sqlite":
		return OpenSQLite(ctx, cfg.URL, log)
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", cfg.Driver)
	}
}

// Noop is the archive used when archiving is disabled.
type Noop struct{}

func (Noop) Record(context.Context, snapshot.Snapshot) error { return nil }

func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (Noop) Close() error { return nil }

// migrate brings the schema up to date with the embedded migrations.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, log *logger.Logger) error {
	provider, err := goose.NewProvider(dialect, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply archive migrations: %w", err)
	}
	for _, r := range results {
		log.WithFields(map[string]interface{}{
			"version":  r.Source.Version,
			"duration": r.Duration,
		}).Info("Applied archive migration")
	}
	return nil
}

// row is the flattened form stored by every driver.
type row struct {
	id          string
	commitHash  string
	branch      string
	recordedAt  int64
	healthScore int
	confidence  string
	source      string
	payload     string
	archivedAt  int64
}

func newRow(snap snapshot.Snapshot, now time.Time) (row, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return row{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return row{
		id:          uuid.NewString(),
		commitHash:  snap.CommitHash,
		branch:      snap.Branch,
		recordedAt:  snap.Timestamp.UnixMilli(),
		healthScore: snap.HealthScore,
		confidence:  string(snap.ConfidenceLevel),
		source:      string(snap.Source),
		payload:     string(payload),
		archivedAt:  now.UnixMilli(),
	}, nil
}

func (r row) entry() (Entry, error) {
	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(r.payload), &snap); err != nil {
		return Entry{}, fmt.Errorf("decode archived snapshot %s: %w", r.id, err)
	}
	return Entry{
		ID:         r.id,
		ArchivedAt: time.UnixMilli(r.archivedAt).UTC(),
		Snapshot:   snap,
	}, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
