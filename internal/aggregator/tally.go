package aggregator

import (
	"github.com/shopspring/decimal"

	"weather-monitor/internal/weather"
)

// Tally accumulates temperatures and condition counts for one date bucket.
// The zero value is ready to use.
type Tally struct {
	count  int64
	sum    decimal.Decimal
	max    float64
	min    float64
	order  []weather.Condition
	counts map[weather.Condition]int
}

// Add folds snapshots into the tally.
func (t *Tally) Add(snaps ...weather.Snapshot) {
	if t.counts == nil {
		t.counts = make(map[weather.Condition]int)
	}
	for _, s := range snaps {
		if t.count == 0 || s.Temp > t.max {
			t.max = s.Temp
		}
		if t.count == 0 || s.Temp < t.min {
			t.min = s.Temp
		}
		t.count++
		t.sum = t.sum.Add(decimal.NewFromFloat(s.Temp))

		if _, seen := t.counts[s.Condition]; !seen {
			t.order = append(t.order, s.Condition)
		}
		t.counts[s.Condition]++
	}
}

// Count reports how many snapshots the tally has seen.
func (t *Tally) Count() int64 {
	return t.count
}

// Clone returns an independent copy.
func (t *Tally) Clone() *Tally {
	out := &Tally{
		count:  t.count,
		sum:    t.sum,
		max:    t.max,
		min:    t.min,
		order:  append([]weather.Condition(nil), t.order...),
		counts: make(map[weather.Condition]int, len(t.counts)),
	}
	for k, v := range t.counts {
		out.counts[k] = v
	}
	return out
}

// Summary renders the tally as the summary for date. The tally must not be empty.
func (t *Tally) Summary(date string) weather.DailySummary {
	return weather.DailySummary{
		Date:              date,
		AvgTemp:           t.average(),
		MaxTemp:           t.max,
		MinTemp:           t.min,
		DominantCondition: t.dominant(),
	}
}

// average is the mean rounded half away from zero to one decimal place,
// kept inside [min, max] so the rounded value never escapes the observed range.
func (t *Tally) average() float64 {
	if t.count == 0 {
		return 0
	}
	avg := t.sum.Div(decimal.NewFromInt(t.count)).Round(1).InexactFloat64()
	if avg > t.max {
		return t.max
	}
	if avg < t.min {
		return t.min
	}
	return avg
}

// dominant picks the most frequent condition; the first seen wins ties.
func (t *Tally) dominant() weather.Condition {
	var (
		best      weather.Condition
		bestCount int
	)
	for _, c := range t.order {
		if n := t.counts[c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
