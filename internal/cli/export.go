package cli

import (
	"github.com/spf13/cobra"

	"weather-monitor/internal/app"
)

var (
	exportPNGPath    string
	exportCSVPath    string
	exportAlertsPath string
	exportLimit      int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived daily summaries (CSV/PNG) and alerts (CSV)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PNGPath:       exportPNGPath,
			CSVPath:       exportCSVPath,
			AlertsCSVPath: exportAlertsPath,
			Limit:         exportLimit,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportAlertsPath, "alerts-csv", "", "Path to write archived alerts as CSV")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Most recent days to export (defaults to config)")
}
