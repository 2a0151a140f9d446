package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run CODE [CODE...]",
	Short: "Run the fusion pipeline for specific countries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codes := make([]string, 0, len(args))
		for _, arg := range args {
			code := strings.ToUpper(strings.TrimSpace(arg))
			if len(code) != 3 {
				return eris.Errorf("invalid country code %q", arg)
			}
			codes = append(codes, code)
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(st)
		if err != nil {
			return err
		}

		rc := pipeline.NewRunContext()
		run, err := o.Run(cmd.Context(), codes, rc)
		if err != nil {
			return err
		}

		printRunSummary(cmd, run)
		for _, p := range rc.Snapshot() {
			if p.State == pipeline.StateFailed {
				cmd.Printf("  %s  FAILED  %s\n", p.Code, p.Error)
				continue
			}
			cmd.Printf("  %s  %.1f  %s\n", p.Code, p.Score, p.Label)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func printRunSummary(cmd *cobra.Command, run *model.Run) {
	stats := run.Stats
	cmd.Printf("run %s: %s\n", run.ID, run.Status)
	if stats == nil {
		return
	}
	cmd.Printf("processed %d (created %d, updated %d), scored %d, failures %d in %s\n",
		stats.Processed, stats.Created, stats.Updated, stats.Scored,
		len(stats.Failures), time.Duration(stats.DurationMillis)*time.Millisecond,
	)
	if len(stats.SourceHits) > 0 {
		tags := make([]string, 0, len(stats.SourceHits))
		for tag := range stats.SourceHits {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		parts := make([]string, 0, len(tags))
		for _, tag := range tags {
			parts = append(parts, fmt.Sprintf("%s=%d", tag, stats.SourceHits[tag]))
		}
		cmd.Printf("source hits: %s\n", strings.Join(parts, " "))
	}
}
