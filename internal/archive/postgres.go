package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/database"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Postgres archives snapshots through the shared pgx pool.
type Postgres struct {
	db     *database.DB
	logger *logger.Logger
}

// OpenPostgres connects, migrates and returns the postgres archive.
func OpenPostgres(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (*Postgres, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB := db.SQL()
	defer sqlDB.Close()

	if err := migrate(ctx, sqlDB, goose.DialectPostgres, log); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db, logger: log}, nil
}

// Record inserts snap unless the same commit and timestamp is already archived.
func (p *Postgres) Record(ctx context.Context, snap snapshot.Snapshot) error {
	r, err := newRow(snap, time.Now())
	if err != nil {
		return err
	}

	_, err = p.db.Pool.Exec(ctx, `
		INSERT INTO quality_snapshots
			(id, commit_hash, branch, recorded_at, health_score, confidence, source, payload, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (commit_hash, recorded_at) DO NOTHING`,
		r.id, r.commitHash, r.branch, r.recordedAt, r.healthScore, r.confidence, r.source, r.payload, r.archivedAt,
	)
	if err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// Recent returns the newest archived snapshots.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.Pool.Query(ctx, `
		SELECT id, payload, archived_at
		FROM quality_snapshots
		ORDER BY recorded_at DESC, archived_at DESC
		LIMIT $1`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload, &r.archivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		e, err := r.entry()
		if err != nil {
			p.logger.WithError(err).Warn("Skipping unreadable archive row")
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return entries, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
