package main

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/scoring"
)

var scoreWrite bool

var scoreCmd = &cobra.Command{
	Use:   "score CODE",
	Short: "Recompute the maturity score for one country from stored data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := strings.ToUpper(strings.TrimSpace(args[0]))
		if len(code) != 3 {
			return eris.Errorf("invalid country code %q", args[0])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		bundle, err := st.GetBundle(cmd.Context(), code)
		if err != nil {
			return err
		}

		res := scoring.Score(bundle)
		cmd.Printf("%s  %.1f  %s (%s)\n", code, res.Score, res.Label, res.Color)
		if res.Capped {
			cmd.Println("capped: fatality rate above high-risk threshold")
		}
		components := make([]string, 0, len(res.Components))
		for component := range res.Components {
			components = append(components, component)
		}
		sort.Strings(components)
		for _, component := range components {
			cmd.Printf("  +%.1f  %s\n", res.Components[component], component)
		}

		if scoreWrite {
			if err := st.SetMaturityScore(cmd.Context(), code, res.Score, res.Label); err != nil {
				return err
			}
			cmd.Println("score persisted")
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreWrite, "write", false, "persist the recomputed score")
	rootCmd.AddCommand(scoreCmd)
}
