package service

import (
	"time"

	"weather-monitor/internal/aggregator"
	"weather-monitor/internal/weather"
)

// Phase is where the poll cycle currently stands.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseSuccess  Phase = "success"
	PhaseFailure  Phase = "failure"
)

// FetchFailedMessage is the user-facing text set when a cycle fails.
const FetchFailedMessage = "Failed to fetch weather data. Please check your API key and try again."

// State is the immutable view published to readers after every transition.
type State struct {
	Phase           Phase                  `json:"phase"`
	RecentSnapshots []weather.Snapshot     `json:"recentSnapshots"`
	History         []weather.DailySummary `json:"history"`
	Alerts          []weather.AlertEvent   `json:"alerts"`
	LastError       string                 `json:"lastError"`
	AlertConfig     weather.AlertConfig    `json:"alertConfig"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// LatestSnapshots returns up to n snapshots from the end of the log.
func (s *State) LatestSnapshots(n int) []weather.Snapshot {
	return tail(s.RecentSnapshots, n)
}

// RecentAlerts returns up to n of the newest alerts, newest first.
func (s *State) RecentAlerts(n int) []weather.AlertEvent {
	last := tail(s.Alerts, n)
	out := make([]weather.AlertEvent, len(last))
	for i, ev := range last {
		out[len(last)-1-i] = ev
	}
	return out
}

// Session is the mutable bookkeeping carried from one cycle to the next.
// Advance never modifies a Session in place.
type Session struct {
	Snapshots []weather.Snapshot
	History   []weather.DailySummary
	Alerts    []weather.AlertEvent
	Counters  map[string]int
	Tallies   map[string]*aggregator.Tally
	LastError string
}

func (s Session) clone() Session {
	out := Session{
		Snapshots: append([]weather.Snapshot(nil), s.Snapshots...),
		History:   append([]weather.DailySummary(nil), s.History...),
		Alerts:    append([]weather.AlertEvent(nil), s.Alerts...),
		Counters:  make(map[string]int, len(s.Counters)),
		Tallies:   make(map[string]*aggregator.Tally, len(s.Tallies)),
		LastError: s.LastError,
	}
	for k, v := range s.Counters {
		out.Counters[k] = v
	}
	for k, v := range s.Tallies {
		out.Tallies[k] = v.Clone()
	}
	return out
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return append([]T(nil), items...)
}

func trimFront[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return append([]T(nil), items[len(items)-limit:]...)
	}
	return items
}
