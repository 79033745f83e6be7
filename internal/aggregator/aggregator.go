// Package aggregator reduces snapshot batches into daily summaries and keeps
// the rolling history bounded.
package aggregator

import (
	"time"

	"weather-monitor/internal/weather"
)

// DefaultMaxDays is the rolling history length.
const DefaultMaxDays = 7

// Options tune the aggregator.
type Options struct {
	MaxDays  int
	Location *time.Location
}

// Aggregator buckets batches by calendar date in a fixed location.
type Aggregator struct {
	maxDays int
	loc     *time.Location
}

// New constructs an Aggregator, defaulting to seven days in UTC.
func New(opts Options) *Aggregator {
	if opts.MaxDays <= 0 {
		opts.MaxDays = DefaultMaxDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Aggregator{maxDays: opts.MaxDays, loc: opts.Location}
}

// MaxDays reports the history bound.
func (a *Aggregator) MaxDays() int {
	return a.maxDays
}

// BucketOf returns the date bucket of a batch, which is the date of its first snapshot.
func (a *Aggregator) BucketOf(batch []weather.Snapshot) (string, error) {
	if len(batch) == 0 {
		return "", weather.ErrEmptyBatch
	}
	return batch[0].Date(a.loc), nil
}

// Summarize reduces a batch to a single summary. Every snapshot counts towards
// the first snapshot's date, mixed-date batches are not split.
func (a *Aggregator) Summarize(batch []weather.Snapshot) (weather.DailySummary, error) {
	date, err := a.BucketOf(batch)
	if err != nil {
		return weather.DailySummary{}, err
	}
	var t Tally
	t.Add(batch...)
	return t.Summary(date), nil
}

// Merge returns a new history with summary replacing the entry of the same
// date in place, or appended, truncated to the most recent MaxDays entries.
func (a *Aggregator) Merge(history []weather.DailySummary, summary weather.DailySummary) []weather.DailySummary {
	out := make([]weather.DailySummary, 0, len(history)+1)
	replaced := false
	for _, s := range history {
		if s.Date == summary.Date {
			out = append(out, summary)
			replaced = true
			continue
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, summary)
	}
	if over := len(out) - a.maxDays; over > 0 {
		out = out[over:]
	}
	return out
}
