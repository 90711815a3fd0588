package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"winch/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.StatusResponse
			if err := ctx.doJSON(http.MethodGet, "/api/status", nil, &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:    running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Database:  %s\n", status.DBPath)
			fmt.Fprintf(out, "Artifacts: %d file(s), %s\n", status.Disk.FileCount, formatBytes(status.Disk.TotalBytes))

			rows := make([][]string, 0, len(statusOrder))
			for _, name := range statusOrder {
				rows = append(rows, []string{name, strconv.Itoa(status.QueueCounts[name])})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"STATUS", "COUNT"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

var statusOrder = []string{"pending", "downloading", "completed", "failed", "cancelled", "total"}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
