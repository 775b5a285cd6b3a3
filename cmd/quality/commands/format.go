package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted command header
func PrintHeader(title string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", title)
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintSnapshots prints one line per snapshot, newest first
func PrintSnapshots(w io.Writer, snaps []snapshot.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tCOMMIT\tBRANCH\tSCORE\tCONFIDENCE\tSOURCE")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Timestamp.Format(time.RFC3339),
			shortHash(s.CommitHash),
			s.Branch,
			s.HealthScore,
			s.ConfidenceLevel,
			s.Source,
		)
	}
	tw.Flush()
}

// PrintSummary prints the dashboard summary block
func PrintSummary(p *dashboard.Payload) {
	fmt.Printf("  Generated : %s\n", p.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("  Snapshots : %d\n", p.Summary.Count)
	if p.Summary.LatestTimestamp != nil {
		fmt.Printf("  Latest    : %s\n", p.Summary.LatestTimestamp.Format(time.RFC3339))
	}
	avg := p.Summary.Averages
	fmt.Printf("  Coverage  : %s\n", formatAvg(avg.Coverage, "%"))
	fmt.Printf("  Perf      : %s\n", formatAvg(avg.Performance, ""))
	fmt.Printf("  Pass rate : %s\n", formatAvg(avg.PassRate, "%"))
	fmt.Printf("  Bundle    : %s\n", formatAvg(avg.BundleSize, " KB"))
	if sec := p.Summary.Security; sec != nil {
		fmt.Printf("  Security  : passed=%t findings=%d\n", sec.Passed, sec.TotalFindings)
	}
	fmt.Println("───────────────────────────────────────────────────────────")
}

func formatAvg(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%s", *v, unit)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
