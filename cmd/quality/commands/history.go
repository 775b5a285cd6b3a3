package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/newsdeck/backend/internal/archive"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "스냅샷 아카이브 조회",
	Long: `아카이브(postgres 또는 sqlite)에 기록된 스냅샷을 최신순으로 출력합니다.

ARCHIVE_DRIVER, ARCHIVE_URL 환경변수가 필요합니다.

Example:
  go run ./cmd/quality history
  go run ./cmd/quality history --limit 50 --json`,
	RunE: runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", archive.DefaultLimit, "최대 건수")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "JSON 출력")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Archive.Driver == "" || cfg.Archive.Driver == "none" {
		return fmt.Errorf("no archive configured (set ARCHIVE_DRIVER)")
	}

	arc, err := archive.Open(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arc.Close()

	entries, err := arc.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("query archive: %w", err)
	}

	if historyJSON {
		return PrintJSON(entries)
	}

	snaps := make([]snapshot.Snapshot, 0, len(entries))
	for _, e := range entries {
		snaps = append(snaps, e.Snapshot)
	}
	PrintSnapshots(os.Stdout, snaps)
	return nil
}
