package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/browsegate/browsegate/adapters/sqlite"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage log",
	Long: `View recent usage log entries.

Examples:
  browsegate usage tail
  browsegate usage tail --session=sess_123 --limit=20`,
}

var usageTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest usage entries",
	RunE:  runUsageTail,
}

var (
	usageSessionID string
	usageLimit     int
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageTailCmd)

	usageTailCmd.Flags().StringVar(&usageSessionID, "session", "", "filter by session id")
	usageTailCmd.Flags().IntVar(&usageLimit, "limit", 20, "number of entries to show")
}

func runUsageTail(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	log := sqlite.NewUsageLog(db)
	entries, err := log.Recent(context.Background(), usageSessionID, usageLimit)
	if err != nil {
		return fmt.Errorf("read usage log: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No usage entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tEVENT\tSESSION\tTARGET\tSTATUS\tBYTES\tLATENCY")
	fmt.Fprintln(w, "---------\t-----\t-------\t------\t------\t-----\t-------")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d ms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.EventType,
			e.SessionID,
			truncate(e.TargetURL, 48),
			e.StatusCode,
			e.BytesTransferred,
			e.ResponseTimeMs,
		)
	}

	w.Flush()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
