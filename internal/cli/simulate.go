package cli

import (
	"errors"
	"math"

	"github.com/spf13/cobra"

	"weather-monitor/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic reading through the alert evaluator and notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("temp") || math.IsNaN(simulateOpts.Temp) {
			return errors.New("--temp is required")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.City, "city", "", "City name for the synthetic reading")
	simulateCmd.Flags().Float64Var(&simulateOpts.Temp, "temp", 0, "Temperature in °C")
	simulateCmd.Flags().StringVar(&simulateOpts.Condition, "condition", "Clear", "Weather condition")
	_ = simulateCmd.MarkFlagRequired("city")
}
