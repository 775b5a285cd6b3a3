package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "대시보드 캐시 관리",
	Long: `대시보드 캐시(dashboard-cache.json)를 생성하거나 조회합니다.

Subcommands:
  build  - 캐시 재생성 (Redis 미러, S3/NATS 발행 포함)
  show   - 현재 캐시 출력

Example:
  go run ./cmd/quality cache build
  go run ./cmd/quality cache show --json`,
}

var (
	cacheBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "캐시 재생성",
		RunE:  runCacheBuild,
	}

	cacheShowCmd = &cobra.Command{
		Use:   "show",
		Short: "현재 캐시 출력",
		RunE:  runCacheShow,
	}

	cacheShowJSON bool
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheBuildCmd)
	cacheCmd.AddCommand(cacheShowCmd)

	cacheShowCmd.Flags().BoolVar(&cacheShowJSON, "json", false, "전체 페이로드를 JSON으로 출력")
}

func runCacheBuild(cmd *cobra.Command, args []string) error {
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

	p, err := a.builder(ctx).Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}

	PrintHeader("Dashboard Cache")
	PrintSummary(p)
	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
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

	p, err := a.builder(ctx).Read(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		return errors.New("no dashboard cache, run `quality cache build` first")
	}

	if cacheShowJSON {
		return PrintJSON(p)
	}
	PrintHeader("Dashboard Cache")
	PrintSummary(p)
	return nil
}
