package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the fusion pipeline over the full country registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		// SIGINT/SIGTERM stop the run cooperatively between countries.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(st)
		if err != nil {
			return err
		}

		rc := pipeline.NewRunContext()
		run, err := o.Run(ctx, nil, rc)
		if err != nil {
			return err
		}

		printRunSummary(cmd, run)
		for _, p := range rc.Snapshot() {
			if p.State == pipeline.StateFailed {
				cmd.Printf("  %s  FAILED  %s\n", p.Code, p.Error)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
