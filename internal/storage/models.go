package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"weather-monitor/internal/weather"
)

// SummaryRecord is an archived daily summary.
type SummaryRecord struct {
	Date              string
	AvgTemp           decimal.Decimal
	MaxTemp           decimal.Decimal
	MinTemp           decimal.Decimal
	DominantCondition string
	UpdatedAt         time.Time
}

// Summary converts the record back into the domain type.
func (r SummaryRecord) Summary() weather.DailySummary {
	return weather.DailySummary{
		Date:              r.Date,
		AvgTemp:           r.AvgTemp.InexactFloat64(),
		MaxTemp:           r.MaxTemp.InexactFloat64(),
		MinTemp:           r.MinTemp.InexactFloat64(),
		DominantCondition: weather.Condition(r.DominantCondition),
	}
}

func summaryRecord(s weather.DailySummary) SummaryRecord {
	return SummaryRecord{
		Date:              s.Date,
		AvgTemp:           decimal.NewFromFloat(s.AvgTemp),
		MaxTemp:           decimal.NewFromFloat(s.MaxTemp),
		MinTemp:           decimal.NewFromFloat(s.MinTemp),
		DominantCondition: string(s.DominantCondition),
	}
}

// AlertRecord captures a fired alert for auditing.
type AlertRecord struct {
	ID        string
	City      string
	Temp      decimal.Decimal
	Severity  string
	Message   string
	RaisedAt  time.Time
	CreatedAt time.Time
}

// Event converts the record back into the domain type.
func (r AlertRecord) Event() weather.AlertEvent {
	return weather.AlertEvent{
		ID:       r.ID,
		City:     r.City,
		Temp:     r.Temp.InexactFloat64(),
		Severity: weather.Severity(r.Severity),
		Message:  r.Message,
		RaisedAt: r.RaisedAt,
	}
}
