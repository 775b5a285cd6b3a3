package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/newsdeck/backend/internal/generate"
	"github.com/wonny/newsdeck/backend/internal/probe"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "새 품질 스냅샷 생성",
	Long: `현재 테스트/커버리지/Lighthouse/안정성 지표를 측정해
구조화 스냅샷을 저장합니다.

이 명령어는:
- test-results.json, coverage-summary.json 읽기
- 최신 Lighthouse 감사 매칭 (base/home/feed)
- 빌드 번들 크기 측정, 지연시간 프로브
- 헬스 스코어 계산 후 snapshots 디렉토리에 저장
- 설정된 경우 아카이브 기록 및 대시보드 캐시 재생성

저장 실패 시에만 0이 아닌 코드로 종료합니다.

Example:
  go run ./cmd/quality generate
  go run ./cmd/quality generate --rebuild-cache=false`,
	RunE: runGenerate,
}

var (
	generateRebuildCache bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().BoolVar(&generateRebuildCache, "rebuild-cache", true, "저장 후 대시보드 캐시 재생성")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []generate.Option{
		generate.WithIdentity(generate.GitIdentity(cfg.Paths.Root, cfg.GitCommit, cfg.GitBranch)),
	}

	arc, err := a.archive(ctx)
	if err != nil {
		log.WithError(err).Warn("Snapshot archive unavailable")
	} else {
		opts = append(opts, generate.WithArchive(arc))
	}

	if cfg.ProbeURL != "" {
		opts = append(opts, generate.WithProber(probe.New(cfg.ProbeTimeout, log), cfg.ProbeURL))
	}

	res, err := generate.New(a.store, cfg.Paths, log, opts...).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate snapshot: %w", err)
	}

	snap := res.Snapshot
	PrintHeader("Quality Snapshot")
	fmt.Printf("  Commit     : %s (%s)\n", shortHash(snap.CommitHash), snap.Branch)
	fmt.Printf("  Score      : %d\n", snap.HealthScore)
	fmt.Printf("  Confidence : %s\n", snap.ConfidenceLevel)
	fmt.Printf("  Trend      : %s\n", snap.Metrics.Coverage.Trend)
	if len(snap.Metrics.Performance.Regressions) > 0 {
		fmt.Printf("  Regressions: %s\n", strings.Join(snap.Metrics.Performance.Regressions, ", "))
	}
	fmt.Printf("  Saved      : %s\n", res.Path)
	fmt.Println("───────────────────────────────────────────────────────────")

	if generateRebuildCache {
		if _, err := a.builder(ctx).Rebuild(ctx); err != nil {
			log.WithError(err).Warn("Failed to rebuild dashboard cache")
		}
	}

	return nil
}
