package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/mcpchat-go/internal/metrics"
)

// printRequestStats displays per-operation request statistics on stderr.
func printRequestStats(snap metrics.Snapshot) {
	if len(snap.Operations) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\nRequest Statistics (%.1f seconds)\n", snap.UptimeSeconds)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(os.Stderr, "\n%s:\n", op.Op)
		printOpStats(op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Fprintf(os.Stderr, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(os.Stderr, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
