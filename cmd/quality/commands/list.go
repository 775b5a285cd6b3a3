package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "스냅샷 목록 조회",
	Long: `정렬된 스냅샷 목록을 출력합니다 (최신순).

--refresh 를 주면 캐시를 무시하고 모든 소스에서 다시 수집합니다.

Example:
  go run ./cmd/quality list
  go run ./cmd/quality list --refresh --json`,
	RunE: runList,
}

var (
	listRefresh bool
	listJSON    bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listRefresh, "refresh", false, "캐시를 재생성")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "JSON 출력")
}

func runList(cmd *cobra.Command, args []string) error {
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

	p, err := a.builder(ctx).Load(ctx, listRefresh)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	if listJSON {
		return PrintJSON(p.Data)
	}

	PrintSnapshots(os.Stdout, p.Data)
	return nil
}
