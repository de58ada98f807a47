package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmuoria/resume-parser/internal/export"
)

var (
	reportOut  string
	reportJSON bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write an XLSX report of all saved outputs",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "resume_report.xlsx", "Report file path")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON instead of writing a workbook")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.agent.GetReport()
	if err != nil {
		return err
	}

	if reportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if err := export.ExportToExcel(report, reportOut); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d artifacts to %s\n", report.Total, reportOut)
	return nil
}
