package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weather-monitor/internal/fetcher"
)

// SimulateAlert pushes one synthetic reading through the evaluator and notifier.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.City == "" {
		return errors.New("city is required")
	}
	if opts.Condition == "" {
		opts.Condition = "Clear"
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no alert channel configured; result is printed only")
	}

	now := time.Now().UTC()
	reading, err := fetcher.NewStatic(opts.City, opts.Condition, opts.Temp, now)
	if err != nil {
		return err
	}

	svc, err := a.newService(nil, reading, notifier, nil)
	if err != nil {
		return err
	}
	if err := svc.ProcessCycle(ctx, now); err != nil {
		return err
	}

	alerts := svc.State().Alerts
	if len(alerts) == 0 {
		cfg := svc.AlertConfig()
		fmt.Fprintf(a.out(), "no alert: %.1f°C is within [%.1f, %.1f] or below the %d-update streak\n", opts.Temp, cfg.LowTemp, cfg.HighTemp, cfg.ConsecutiveUpdates)
		return nil
	}
	for _, ev := range alerts {
		fmt.Fprintln(a.out(), ev.Message)
	}
	return nil
}
