package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// SQLite archives snapshots in a local database file.
type SQLite struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, log *logger.Logger) (*SQLite, error) {
	if log == nil {
		log = logger.Nop()
	}
	path = strings.TrimPrefix(path, "sqlite://")

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, log); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, logger: log}, nil
}

// Record inserts snap unless the same commit and timestamp is already archived.
func (s *SQLite) Record(ctx context.Context, snap snapshot.Snapshot) error {
	r, err := newRow(snap, time.Now())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quality_snapshots
			(id, commit_hash, branch, recorded_at, health_score, confidence, source, payload, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (commit_hash, recorded_at) DO NOTHING`,
		r.id, r.commitHash, r.branch, r.recordedAt, r.healthScore, r.confidence, r.source, r.payload, r.archivedAt,
	)
	if err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// Recent returns the newest archived snapshots.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, archived_at
		FROM quality_snapshots
		ORDER BY recorded_at DESC, archived_at DESC
		LIMIT ?`, limitOrDefault(limit))
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
			s.logger.WithError(err).Warn("Skipping unreadable archive row")
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
