package main

import (
	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/monitoring"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health and country coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := monitoring.NewCollector(st).Collect(cmd.Context(), statusRuns)
		if err != nil {
			return err
		}

		cmd.Printf("runs: %d total (%d complete, %d failed, %d stopped, %d running)\n",
			snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsStopped, snap.RunsRunning)
		if snap.RunsTotal > 0 {
			cmd.Printf("fail rate: %.0f%%  avg duration: %dms\n",
				snap.RunFailRate*100, snap.AvgDurationMS)
		}
		if snap.LastRunID != "" {
			cmd.Printf("last run %s: %d processed, %d failures\n",
				snap.LastRunID, snap.LastRunProcessed, snap.LastRunFailures)
		}
		cmd.Printf("countries: %d stored, %d scored", snap.CountriesTotal, snap.CountriesScored)
		if snap.CountriesScored > 0 {
			cmd.Printf(", avg score %.2f", snap.AvgScore)
		}
		cmd.Println()
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 50, "number of recent runs to summarize")
	rootCmd.AddCommand(statusCmd)
}
