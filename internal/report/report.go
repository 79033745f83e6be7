// Package report renders the rolling history as a trend chart or CSV.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"weather-monitor/internal/weather"
)

// ErrNotEnoughData is returned when a chart would have fewer than two points.
var ErrNotEnoughData = errors.New("at least two daily summaries are required")

// CSVHeader is the first row written by WriteSummariesCSV.
var CSVHeader = []string{"date", "avg_temp_c", "max_temp_c", "min_temp_c", "dominant_condition"}

// WriteSummariesCSV writes one row per summary, temperatures with one decimal.
func WriteSummariesCSV(w io.Writer, summaries []weather.DailySummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		record := []string{
			s.Date,
			fixed(s.AvgTemp),
			fixed(s.MaxTemp),
			fixed(s.MinTemp),
			string(s.DominantCondition),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// AlertsCSVHeader is the first row written by WriteAlertsCSV.
var AlertsCSVHeader = []string{"raised_at", "city", "temp_c", "severity", "message", "id"}

// WriteAlertsCSV writes one row per alert in the given order.
func WriteAlertsCSV(w io.Writer, alerts []weather.AlertEvent) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(AlertsCSVHeader); err != nil {
		return err
	}
	for _, ev := range alerts {
		record := []string{
			ev.RaisedAt.UTC().Format(time.RFC3339),
			ev.City,
			fixed(ev.Temp),
			string(ev.Severity),
			ev.Message,
			ev.ID,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderTrendPNG draws avg/max/min temperature lines over the summaries' dates.
func RenderTrendPNG(w io.Writer, summaries []weather.DailySummary) error {
	if len(summaries) < 2 {
		return ErrNotEnoughData
	}

	x := make([]time.Time, len(summaries))
	avg := make([]float64, len(summaries))
	high := make([]float64, len(summaries))
	low := make([]float64, len(summaries))

	lo, hi := summaries[0].MinTemp, summaries[0].MaxTemp
	for i, s := range summaries {
		day, err := time.Parse(weather.DateLayout, s.Date)
		if err != nil {
			return fmt.Errorf("parse summary date %q: %w", s.Date, err)
		}
		x[i] = day
		avg[i] = s.AvgTemp
		high[i] = s.MaxTemp
		low[i] = s.MinTemp
		lo = min(lo, s.MinTemp)
		hi = max(hi, s.MaxTemp)
	}

	tempFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1024,
		Height: 480,
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.TimeValueFormatterWithFormat(weather.DateLayout)(v)
			},
		},
		YAxis: chart.YAxis{
			Name:           "Temperature (°C)",
			ValueFormatter: tempFormatter,
			Range:          &chart.ContinuousRange{Min: lo - 1, Max: hi + 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Avg", XValues: x, YValues: avg},
			chart.TimeSeries{Name: "Max", XValues: x, YValues: high},
			chart.TimeSeries{Name: "Min", XValues: x, YValues: low},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}
