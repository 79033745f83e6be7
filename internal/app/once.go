package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"weather-monitor/internal/service"
)

// Once runs a single poll cycle and prints the resulting state as tables.
func (a *App) Once(ctx context.Context) error {
	svc, err := a.newService(nil, a.newFetcher(), nil, nil)
	if err != nil {
		return err
	}

	cycleErr := svc.ProcessCycle(ctx, time.Now().UTC())
	if err := printState(a.out(), svc.State()); err != nil {
		return err
	}
	return cycleErr
}

func printState(w io.Writer, st *service.State) error {
	if st.LastError != "" {
		fmt.Fprintf(w, "error: %s\n\n", sanitizeInline(st.LastError))
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(st.RecentSnapshots) == 0 {
		fmt.Fprintln(writer, "no snapshots")
	} else {
		fmt.Fprintln(writer, "City\tTemp °C\tFeels °C\tHumidity %\tWind m/s\tCondition\tObserved (UTC)")
		for _, s := range st.RecentSnapshots {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				sanitizeInline(s.City),
				formatTemp(s.Temp),
				formatTemp(s.FeelsLike),
				decimal.NewFromFloat(s.Humidity).StringFixed(0),
				formatTemp(s.WindSpeed),
				s.Condition,
				s.ObservedAt.UTC().Format(time.RFC3339),
			)
		}
	}
	fmt.Fprintln(writer)

	if len(st.History) > 0 {
		fmt.Fprintln(writer, "Date\tAvg °C\tMax °C\tMin °C\tDominant")
		for _, d := range st.History {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", d.Date, formatTemp(d.AvgTemp), formatTemp(d.MaxTemp), formatTemp(d.MinTemp), d.DominantCondition)
		}
		fmt.Fprintln(writer)
	}

	for _, ev := range st.Alerts {
		fmt.Fprintf(writer, "ALERT\t%s\t%s\n", ev.RaisedAt.UTC().Format(time.RFC3339), ev.Message)
	}

	return writer.Flush()
}

func formatTemp(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
