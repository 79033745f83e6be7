package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"weather-monitor/internal/weather"
)

// Decision is the outcome of evaluating one snapshot.
type Decision struct {
	Fires    bool
	Breached bool
	Severity weather.Severity
	// Streak is the city's consecutive breach count after this evaluation.
	Streak  int
	Message string
}

// Evaluate checks a snapshot against cfg. A breach is a temperature strictly
// above HighTemp (checked first) or strictly below LowTemp. Breaches extend
// the city's streak and fire once the streak reaches ConsecutiveUpdates;
// an in-range reading resets it. counters is left untouched, the updated
// copy is returned.
func Evaluate(s weather.Snapshot, cfg weather.AlertConfig, counters map[string]int) (Decision, map[string]int) {
	next := make(map[string]int, len(counters)+1)
	for k, v := range counters {
		next[k] = v
	}

	var sev weather.Severity
	switch {
	case s.Temp > cfg.HighTemp:
		sev = weather.SeverityHigh
	case s.Temp < cfg.LowTemp:
		sev = weather.SeverityLow
	default:
		next[s.City] = 0
		return Decision{}, next
	}

	next[s.City]++
	d := Decision{
		Breached: true,
		Severity: sev,
		Streak:   next[s.City],
		Fires:    next[s.City] >= cfg.ConsecutiveUpdates,
	}
	if d.Fires {
		d.Message = FormatMessage(sev, s.City, s.Temp)
	}
	return d, next
}

// EvaluateBatch runs Evaluate over a batch in order and collects fired events.
func EvaluateBatch(batch []weather.Snapshot, cfg weather.AlertConfig, counters map[string]int, now time.Time) ([]weather.AlertEvent, map[string]int) {
	var events []weather.AlertEvent
	for _, s := range batch {
		var d Decision
		d, counters = Evaluate(s, cfg, counters)
		if d.Fires {
			events = append(events, d.Event(s, now))
		}
	}
	if counters == nil {
		counters = map[string]int{}
	}
	return events, counters
}

// Event materialises a fired decision.
func (d Decision) Event(s weather.Snapshot, at time.Time) weather.AlertEvent {
	return weather.AlertEvent{
		ID:       uuid.NewString(),
		City:     s.City,
		Temp:     s.Temp,
		Severity: d.Severity,
		Message:  d.Message,
		RaisedAt: at,
	}
}

// FormatMessage renders the user-facing alert text with one decimal place.
func FormatMessage(sev weather.Severity, city string, temp float64) string {
	label := "High"
	if sev == weather.SeverityLow {
		label = "Low"
	}
	return fmt.Sprintf("%s temperature alert for %s: %s°C", label, city, decimal.NewFromFloat(temp).StringFixed(1))
}
