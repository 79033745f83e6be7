package fetcher

import (
	"context"
	"time"

	"weather-monitor/internal/weather"
)

// BatchFetcher retrieves one snapshot per city. Any failed city fails the
// whole batch with a *weather.ProviderError; on success the result is in
// the same order as cities.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, cities []string) ([]weather.Snapshot, error)
}

// Static replays a fixed batch regardless of the requested cities.
type Static struct {
	batch []weather.Snapshot
}

// NewStatic builds a single-reading fetcher for simulations.
func NewStatic(city, condition string, temp float64, at time.Time) (*Static, error) {
	s, err := weather.NewSnapshot(city, condition, temp, temp, 0, 0, at)
	if err != nil {
		return nil, err
	}
	return &Static{batch: []weather.Snapshot{s}}, nil
}

// FetchBatch returns a copy of the fixed batch.
func (s *Static) FetchBatch(ctx context.Context, _ []string) ([]weather.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]weather.Snapshot(nil), s.batch...), nil
}

var (
	_ BatchFetcher = (*Static)(nil)
	_ BatchFetcher = (*OpenWeather)(nil)
)
