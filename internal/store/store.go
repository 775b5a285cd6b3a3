package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/newsdeck/backend/internal/health"
	"github.com/wonny/newsdeck/backend/internal/lighthouse"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// ErrNotFound is returned when a named report does not exist.
var ErrNotFound = errors.New("not found")

// Store discovers, normalises and persists snapshots
// ⭐ SSOT: 스냅샷 목록은 여기서만 조립
type Store struct {
	ws       *workspace.Workspace
	paths    config.PathsConfig
	matcher  *lighthouse.Matcher
	health   *health.Calculator
	coverage *CoverageCache
	logger   *logger.Logger
}

// New creates a store. A nil coverage cache gets a fresh one.
func New(ws *workspace.Workspace, paths config.PathsConfig, calc *health.Calculator, coverage *CoverageCache, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	if calc == nil {
		calc = health.NewCalculator(health.DefaultWeightConfig(), log)
	}
	if coverage == nil {
		coverage = NewCoverageCache()
	}
	return &Store{
		ws:       ws,
		paths:    paths,
		matcher:  lighthouse.New(ws, paths.Rel(paths.Lighthouse), log),
		health:   calc,
		coverage: coverage,
		logger:   log,
	}
}

// Health exposes the calculator used for scoring.
func (s *Store) Health() *health.Calculator {
	return s.health
}

// Workspace exposes the underlying workspace.
func (s *Store) Workspace() *workspace.Workspace {
	return s.ws
}

// List returns every snapshot, newest first. The most recent snapshot has
// its gaps backfilled from older ones; older snapshots are returned as read.
func (s *Store) List(ctx context.Context) ([]snapshot.Snapshot, error) {
	var (
		structured []snapshot.Snapshot
		reports    [][]legacyFile
	)
	reports = make([][]legacyFile, len(legacySources))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		structured, err = s.loadStructured(gctx)
		return err
	})
	for i, src := range legacySources {
		g.Go(func() error {
			var err error
			reports[i], err = s.listLegacy(i, src)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	legacy, err := s.loadLegacy(ctx, structured, slices.Concat(reports...))
	if err != nil {
		return nil, err
	}

	all := slices.Concat(structured, legacy)
	slices.SortStableFunc(all, snapshot.ByTimestampDesc)

	if len(all) > 0 {
		borrowed := s.backfill(all)
		if borrowed.Any() {
			s.logger.WithFields(map[string]interface{}{
				"commit":      all[0].CommitHash,
				"performance": borrowed.Performance,
				"coverage":    borrowed.Coverage,
			}).Debug("Backfilled latest snapshot")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"structured": len(structured),
		"legacy":     len(legacy),
	}).Debug("Listed snapshots")

	return all, nil
}

// loadStructured reads every structured snapshot file. Unreadable or
// unrecognised files are logged and skipped.
func (s *Store) loadStructured(ctx context.Context) ([]snapshot.Snapshot, error) {
	dir := s.paths.Rel(s.paths.Snapshots)
	entries, err := s.ws.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]snapshot.Snapshot, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if path.Ext(e.Name) != ".json" {
			continue
		}

		data, err := s.ws.ReadFile(e.Path)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"file":  e.Path,
				"error": err.Error(),
			}).Warn("Failed to read snapshot")
			continue
		}

		snap, err := snapshot.Migrate(data)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"file":  e.Path,
				"error": err.Error(),
			}).Warn("Skipping unrecognised snapshot")
			continue
		}

		if snap.ConfidenceLevel == "" {
			r := s.health.Structured(snap.Metrics, health.Borrowed{})
			snap.ConfidenceLevel = r.Confidence
			if snap.HealthScore == 0 {
				snap.HealthScore = r.Score
			}
		}
		out = append(out, *snap)
	}
	return out, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName is the structured snapshot name, <commitHash>-<epochMillis>.json.
func FileName(snap snapshot.Snapshot) string {
	commit := unsafeName.ReplaceAllString(snap.CommitHash, "_")
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("%s-%d.json", commit, snap.Timestamp.UnixMilli())
}

// Save persists one structured snapshot and returns its workspace path.
func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	snap.Source = snapshot.SourceStructured
	snap.Refresh()
	if snap.Metrics.Performance.Regressions == nil {
		snap.Metrics.Performance.Regressions = []string{}
	}
	if snap.Metrics.Tests.Suites == nil {
		snap.Metrics.Tests.Suites = []snapshot.TestSuite{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	name := path.Join(s.paths.Rel(s.paths.Snapshots), FileName(snap))
	if err := s.ws.WriteFile(name, append(data, '\n')); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"file":   name,
		"commit": snap.CommitHash,
		"score":  snap.HealthScore,
	}).Info("Saved snapshot")

	return name, nil
}

// Report returns the raw text of a legacy report by file name.
func (s *Store) Report(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, src := range legacySources {
		if !src.matches(name) {
			continue
		}
		data, err := s.ws.ReadFile(path.Join(s.paths.Rel(src.dir(s.paths)), name))
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
