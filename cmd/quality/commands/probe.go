package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/newsdeck/backend/internal/probe"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "지연시간 프로브 실행",
	Long: `URL에 한 번 요청을 보내 응답 여부와 지연시간을 측정합니다.
URL을 생략하면 QUALITY_PROBE_URL을 사용합니다.

Example:
  go run ./cmd/quality probe
  go run ./cmd/quality probe http://localhost:5173`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	url := cfg.ProbeURL
	if len(args) == 1 {
		url = args[0]
	}
	if url == "" {
		return errors.New("no probe URL (pass one or set QUALITY_PROBE_URL)")
	}

	res := probe.New(cfg.ProbeTimeout, log).Probe(cmd.Context(), url)
	stab := probe.Stability(res)

	PrintHeader("Latency Probe")
	fmt.Printf("  URL     : %s\n", url)
	fmt.Printf("  Success : %t\n", res.Success)
	fmt.Printf("  Latency : %.0f ms\n", res.Latency)
	if res.Status != 0 {
		fmt.Printf("  Status  : %d\n", res.Status)
	}
	fmt.Printf("  State   : %s\n", stab.Status)
	fmt.Println("───────────────────────────────────────────────────────────")
	return nil
}
