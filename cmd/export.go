package main

import (
	"github.com/spf13/cobra"

	"github.com/worksafe-analytics/oshindex/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored scores and provenance to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := report.NewExporter(st).Export(cmd.Context(), exportOut)
		if err != nil {
			return err
		}
		cmd.Printf("exported %d countries to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "oshindex.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
