package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"weather-monitor/internal/aggregator"
	"weather-monitor/internal/alerting"
	"weather-monitor/internal/config"
	"weather-monitor/internal/dashboard"
	"weather-monitor/internal/fetcher"
	"weather-monitor/internal/scheduler"
	"weather-monitor/internal/service"
	"weather-monitor/internal/storage"
)

const shutdownGrace = 10 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) newFetcher() fetcher.BatchFetcher {
	p := a.Config.Provider
	return fetcher.NewOpenWeather(fetcher.OpenWeatherOptions{
		BaseURL:   p.BaseURL,
		APIKey:    p.APIKey,
		Units:     p.Units,
		Country:   p.Country,
		UserAgent: p.UserAgent,
		Timeout:   p.RequestTimeout,
		Breaker: fetcher.BreakerOptions{
			MaxRequests: p.Breaker.MaxRequests,
			Interval:    p.Breaker.Interval,
			Timeout:     p.Breaker.Timeout,
			MaxFailures: p.Breaker.MaxFailures,
		},
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(sched *scheduler.Scheduler, f fetcher.BatchFetcher, notifier alerting.Notifier, archive service.Archive) (*service.Service, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	agg := aggregator.New(aggregator.Options{MaxDays: a.Config.History.MaxDays, Location: loc})

	return service.New(service.Options{
		Cities:       a.Config.Provider.Cities,
		MaxSnapshots: a.Config.History.MaxSnapshots,
		MaxAlerts:    a.Config.History.MaxAlerts,
		Recompute:    a.Config.History.Recompute,
		AlertConfig:  a.Config.Thresholds(),
	}, sched, f, agg, notifier, archive, a.Logger), nil
}

// Run executes the poller and serves the dashboard until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var archive service.Archive
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	} else {
		archive = store
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := a.newService(sched, a.newFetcher(), a.newNotifier(), archive)
	if err != nil {
		return err
	}

	web := dashboard.New(svc, dashboard.Options{
		AppName:      a.Config.App.Name,
		ReadTimeout:  a.Config.Dashboard.ReadTimeout,
		WriteTimeout: a.Config.Dashboard.WriteTimeout,
		RecentAlerts: a.Config.Dashboard.RecentAlerts,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("poller: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("listen", a.Config.Dashboard.Listen).Msg("dashboard listening")
		if err := web.Listen(a.Config.Dashboard.Listen); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return web.ShutdownWithContext(shutdownCtx)
	})

	a.Logger.Info().Strs("cities", a.Config.Provider.Cities).Dur("interval", a.Config.Scheduler.Interval).Msg("starting weather monitor")
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("weather monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("weather monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting archived summaries.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	// AlertsCSVPath receives archived alerts, newest first.
	AlertsCSVPath string
	// Limit caps how many of the most recent days are exported.
	Limit int
}

// SimulateOptions describe the synthetic reading pushed by SimulateAlert.
type SimulateOptions struct {
	City      string
	Temp      float64
	Condition string
}
