package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"weather-monitor/internal/report"
	"weather-monitor/internal/storage"
	"weather-monitor/internal/weather"
)

// Export renders archived daily summaries as CSV and/or PNG, and archived alerts as CSV.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.AlertsCSVPath == "" {
		return errors.New("at least one of --csv, --png or --alerts-csv must be provided")
	}

	limit := a.Config.ResolveExportDays(opts.Limit)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.CSVPath != "" || opts.PNGPath != "" {
		if err := a.exportSummaries(ctx, store, limit, opts); err != nil {
			return err
		}
	}
	if opts.AlertsCSVPath != "" {
		if err := a.exportAlerts(ctx, store, opts.AlertsCSVPath); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) exportSummaries(ctx context.Context, store *storage.Store, limit int, opts ExportOptions) error {
	records, err := store.ListRecentSummaries(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no archived summaries to export")
		return nil
	}

	summaries := make([]weather.DailySummary, len(records))
	for i, rec := range records {
		summaries[i] = rec.Summary()
	}
	a.Logger.Info().Int("days", len(summaries)).Msg("exporting summaries")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(f *os.File) error {
			return report.WriteSummariesCSV(f, summaries)
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(f *os.File) error {
			return report.RenderTrendPNG(f, summaries)
		}); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
	}

	return nil
}

type alertLister interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error)
}

func (a *App) exportAlerts(ctx context.Context, store alertLister, path string) error {
	records, err := store.ListRecentAlerts(ctx, a.Config.History.MaxAlerts)
	if err != nil {
		return err
	}
	alerts := make([]weather.AlertEvent, len(records))
	for i, rec := range records {
		alerts[i] = rec.Event()
	}
	a.Logger.Info().Int("alerts", len(alerts)).Msg("exporting alerts")

	if err := writeFile(path, func(f *os.File) error {
		return report.WriteAlertsCSV(f, alerts)
	}); err != nil {
		return fmt.Errorf("write alerts csv: %w", err)
	}
	return nil
}

func writeFile(path string, render func(f *os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
