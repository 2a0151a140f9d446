package main

import (
	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/registry"
)

var countriesStored bool

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List registry targets or stored countries with scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !countriesStored {
			reg, err := registry.Load()
			if err != nil {
				return err
			}
			for _, c := range reg.All() {
				cmd.Printf("%s  %s\n", c.Code, c.Name)
			}
			return nil
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		countries, err := st.ListCountries(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range countries {
			if c.MaturityScore != nil && c.MaturityLabel != nil {
				cmd.Printf("%s  %-30s  %.1f  %s\n", c.Code, c.Name, *c.MaturityScore, *c.MaturityLabel)
			} else {
				cmd.Printf("%s  %-30s  unscored\n", c.Code, c.Name)
			}
		}
		return nil
	},
}

func init() {
	countriesCmd.Flags().BoolVar(&countriesStored, "stored", false, "list stored countries instead of the registry")
	rootCmd.AddCommand(countriesCmd)
}
