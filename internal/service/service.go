package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"weather-monitor/internal/aggregator"
	"weather-monitor/internal/alerting"
	"weather-monitor/internal/config"
	"weather-monitor/internal/fetcher"
	"weather-monitor/internal/scheduler"
	"weather-monitor/internal/weather"
)

// Archive persists summaries and fired alerts outside the session.
type Archive interface {
	UpsertDailySummary(ctx context.Context, summary weather.DailySummary) error
	InsertAlert(ctx context.Context, event weather.AlertEvent) error
}

// Options configure the orchestrator.
type Options struct {
	Cities       []string
	MaxSnapshots int
	MaxAlerts    int
	// Recompute is config.RecomputeCumulative (default) or config.RecomputeBatch.
	Recompute   string
	AlertConfig weather.AlertConfig
}

// Service runs poll cycles and publishes the resulting state.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.BatchFetcher
	aggregator *aggregator.Aggregator
	notifier   alerting.Notifier
	archive    Archive
	logger     zerolog.Logger
	opts       Options
	now        func() time.Time

	cycleMu sync.Mutex
	session Session

	state       atomic.Pointer[State]
	alertConfig atomic.Pointer[weather.AlertConfig]
}

// New constructs the orchestrator. sched, notifier and archive may be nil.
func New(opts Options, sched *scheduler.Scheduler, f fetcher.BatchFetcher, agg *aggregator.Aggregator, notifier alerting.Notifier, archive Archive, logger zerolog.Logger) *Service {
	if agg == nil {
		agg = aggregator.New(aggregator.Options{})
	}
	if opts.Recompute == "" {
		opts.Recompute = config.RecomputeCumulative
	}
	if opts.AlertConfig.ConsecutiveUpdates < 1 {
		opts.AlertConfig = weather.DefaultAlertConfig()
	}

	s := &Service{
		scheduler:  sched,
		fetcher:    f,
		aggregator: agg,
		notifier:   notifier,
		archive:    archive,
		logger:     logger.With().Str("component", "service").Logger(),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		session:    Session{Counters: map[string]int{}, Tallies: map[string]*aggregator.Tally{}},
	}
	cfg := opts.AlertConfig
	s.alertConfig.Store(&cfg)
	s.publish(PhaseIdle)
	return s
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// State returns the most recently published state.
func (s *Service) State() *State {
	return s.state.Load()
}

// AlertConfig returns the thresholds the next cycle will use.
func (s *Service) AlertConfig() weather.AlertConfig {
	return *s.alertConfig.Load()
}

// SetAlertConfig replaces the thresholds. The change applies from the next
// cycle; the published state reflects it immediately.
func (s *Service) SetAlertConfig(cfg weather.AlertConfig) error {
	if cfg.ConsecutiveUpdates < 1 {
		return fmt.Errorf("consecutive updates must be at least 1, got %d", cfg.ConsecutiveUpdates)
	}
	for _, v := range []float64{cfg.HighTemp, cfg.LowTemp} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("thresholds must be finite, got high=%v low=%v", cfg.HighTemp, cfg.LowTemp)
		}
	}
	s.alertConfig.Store(&cfg)

	for {
		cur := s.state.Load()
		next := *cur
		next.AlertConfig = cfg
		if s.state.CompareAndSwap(cur, &next) {
			break
		}
	}
	s.logger.Info().
		Float64("high_temp", cfg.HighTemp).
		Float64("low_temp", cfg.LowTemp).
		Int("consecutive_updates", cfg.ConsecutiveUpdates).
		Msg("alert config updated")
	return nil
}

// RecentAlerts returns up to n of the newest alerts, newest first.
func (s *Service) RecentAlerts(n int) []weather.AlertEvent {
	return s.State().RecentAlerts(n)
}

// ProcessCycle executes one poll: fetch, aggregate, evaluate, publish.
func (s *Service) ProcessCycle(ctx context.Context, at time.Time) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cfg := s.AlertConfig()
	s.publish(PhaseFetching)

	batch, err := s.fetcher.FetchBatch(ctx, s.opts.Cities)
	if err == nil && len(batch) == 0 {
		err = weather.ErrEmptyBatch
	}
	if err != nil {
		s.session.LastError = FetchFailedMessage
		s.publish(PhaseFailure)
		return fmt.Errorf("poll cycle at %s: %w", at.Format(time.RFC3339), err)
	}

	next, fired, err := s.Advance(s.session, batch, cfg, s.now())
	if err != nil {
		s.session.LastError = FetchFailedMessage
		s.publish(PhaseFailure)
		return fmt.Errorf("advance session: %w", err)
	}
	s.session = next
	s.publish(PhaseSuccess)

	latest := summaryFor(next.History, batch, s.aggregator)
	s.logger.Info().
		Int("snapshots", len(batch)).
		Str("date", latest.Date).
		Float64("avg_temp", latest.AvgTemp).
		Int("alerts_fired", len(fired)).
		Msg("cycle complete")

	s.deliver(ctx, latest, fired, cfg)
	return nil
}

// Advance folds a successful batch into a copy of prev and returns it along
// with the alerts fired by this batch. prev is not modified.
func (s *Service) Advance(prev Session, batch []weather.Snapshot, cfg weather.AlertConfig, now time.Time) (Session, []weather.AlertEvent, error) {
	date, err := s.aggregator.BucketOf(batch)
	if err != nil {
		return prev, nil, err
	}
	next := prev.clone()

	next.Snapshots = trimFront(append(next.Snapshots, batch...), s.opts.MaxSnapshots)

	var summary weather.DailySummary
	if s.opts.Recompute == config.RecomputeBatch {
		summary, err = s.aggregator.Summarize(batch)
		if err != nil {
			return prev, nil, err
		}
	} else {
		t, ok := next.Tallies[date]
		if !ok {
			t = &aggregator.Tally{}
			next.Tallies[date] = t
		}
		t.Add(batch...)
		summary = t.Summary(date)
	}
	next.History = s.aggregator.Merge(next.History, summary)
	next.Tallies = pruneTallies(next.Tallies, next.History)

	fired, counters := alerting.EvaluateBatch(batch, cfg, next.Counters, now)
	next.Counters = counters
	next.Alerts = trimFront(append(next.Alerts, fired...), s.opts.MaxAlerts)
	next.LastError = ""
	return next, fired, nil
}

func summaryFor(history []weather.DailySummary, batch []weather.Snapshot, agg *aggregator.Aggregator) weather.DailySummary {
	date, _ := agg.BucketOf(batch)
	for _, h := range history {
		if h.Date == date {
			return h
		}
	}
	return history[len(history)-1]
}

func pruneTallies(tallies map[string]*aggregator.Tally, history []weather.DailySummary) map[string]*aggregator.Tally {
	keep := make(map[string]*aggregator.Tally, len(history))
	for _, h := range history {
		if t, ok := tallies[h.Date]; ok {
			keep[h.Date] = t
		}
	}
	return keep
}

func (s *Service) deliver(ctx context.Context, summary weather.DailySummary, fired []weather.AlertEvent, cfg weather.AlertConfig) {
	if s.archive != nil {
		if err := s.archive.UpsertDailySummary(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("date", summary.Date).Msg("failed to archive summary")
		}
	}
	for _, ev := range fired {
		s.logger.Warn().Str("city", ev.City).Float64("temp", ev.Temp).Str("severity", string(ev.Severity)).Msg(ev.Message)
		if s.archive != nil {
			if err := s.archive.InsertAlert(ctx, ev); err != nil {
				s.logger.Error().Err(err).Str("alert_id", ev.ID).Msg("failed to archive alert")
			}
		}
		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, alerting.Notification{Event: ev, Config: cfg}); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("alert_id", ev.ID).Msg("failed to dispatch alert")
			}
		}
	}
}

func (s *Service) publish(phase Phase) {
	st := &State{
		Phase:           phase,
		RecentSnapshots: append([]weather.Snapshot{}, s.session.Snapshots...),
		History:         append([]weather.DailySummary{}, s.session.History...),
		Alerts:          append([]weather.AlertEvent{}, s.session.Alerts...),
		LastError:       s.session.LastError,
		AlertConfig:     s.AlertConfig(),
		UpdatedAt:       s.now(),
	}
	s.state.Store(st)
}
