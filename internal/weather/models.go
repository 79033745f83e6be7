package weather

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the calendar-date key used for daily buckets.
const DateLayout = "2006-01-02"

// Condition is a normalised weather category.
type Condition string

const (
	ConditionClear  Condition = "Clear"
	ConditionClouds Condition = "Clouds"
	ConditionRain   Condition = "Rain"
	ConditionSnow   Condition = "Snow"
	ConditionOther  Condition = "Other"
)

// ParseCondition maps a provider condition onto its canonical form, ignoring case.
func ParseCondition(raw string) Condition {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "clear":
		return ConditionClear
	case "clouds", "cloudy":
		return ConditionClouds
	case "rain", "drizzle", "thunderstorm":
		return ConditionRain
	case "snow":
		return ConditionSnow
	default:
		return ConditionOther
	}
}

// Snapshot is one city's reading from a single fetch cycle. Values are
// copied, never modified after NewSnapshot returns.
type Snapshot struct {
	City       string    `json:"city"`
	Condition  Condition `json:"condition"`
	Temp       float64   `json:"temp"`
	FeelsLike  float64   `json:"feelsLike"`
	Humidity   float64   `json:"humidity"`
	WindSpeed  float64   `json:"windSpeed"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewSnapshot validates the reading and normalises its condition.
func NewSnapshot(city, condition string, temp, feelsLike, humidity, windSpeed float64, observedAt time.Time) (Snapshot, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Snapshot{}, fmt.Errorf("%w: city is empty", ErrInvalidSnapshot)
	}
	fields := []struct {
		name  string
		value float64
	}{{"temperature", temp}, {"humidity", humidity}, {"wind speed", windSpeed}}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return Snapshot{}, fmt.Errorf("%w: %s for %s is not finite", ErrInvalidSnapshot, f.name, city)
		}
	}

	return Snapshot{
		City:       city,
		Condition:  ParseCondition(condition),
		Temp:       temp,
		FeelsLike:  feelsLike,
		Humidity:   humidity,
		WindSpeed:  windSpeed,
		ObservedAt: observedAt,
	}, nil
}

// Date returns the calendar bucket of the observation in loc (UTC when nil).
func (s Snapshot) Date(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return s.ObservedAt.In(loc).Format(DateLayout)
}

// DailySummary aggregates one calendar date.
type DailySummary struct {
	Date              string    `json:"date"`
	AvgTemp           float64   `json:"avgTemp"`
	MaxTemp           float64   `json:"maxTemp"`
	MinTemp           float64   `json:"minTemp"`
	DominantCondition Condition `json:"dominantCondition"`
}

// AlertConfig holds the operator thresholds. HighTemp below LowTemp is accepted.
type AlertConfig struct {
	HighTemp           float64 `json:"highTemp" mapstructure:"high_temp"`
	LowTemp            float64 `json:"lowTemp" mapstructure:"low_temp"`
	ConsecutiveUpdates int     `json:"consecutiveUpdates" mapstructure:"consecutive_updates" validate:"min=1"`
}

// DefaultAlertConfig mirrors the dashboard's initial thresholds.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{HighTemp: 35, LowTemp: 10, ConsecutiveUpdates: 1}
}

// Severity tells which bound was breached.
type Severity string

const (
	SeverityHigh Severity = "high"
	SeverityLow  Severity = "low"
)

// AlertEvent is a fired threshold alert.
type AlertEvent struct {
	ID       string    `json:"id"`
	City     string    `json:"city"`
	Temp     float64   `json:"temp"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raisedAt"`
}
