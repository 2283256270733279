package series

import (
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
)

// Day truncates t to midnight UTC so observations can be keyed by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize returns the history sorted by date with same-day observations
// merged by summing their quantities. Negative quantities are treated as 0.
// The input slice is not modified.
func Normalize(history []domain.SalesObservation) []domain.SalesObservation {
	if len(history) == 0 {
		return nil
	}

	byDay := make(map[time.Time]int, len(history))
	sku := ""
	for _, obs := range history {
		q := obs.Quantity
		if q < 0 {
			q = 0
		}
		byDay[Day(obs.Date)] += q
		if sku == "" {
			sku = obs.SKU
		}
	}

	out := make([]domain.SalesObservation, 0, len(byDay))
	for day, qty := range byDay {
		out = append(out, domain.SalesObservation{SKU: sku, Date: day, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Quantities extracts the quantities as floats
func Quantities(history []domain.SalesObservation) []float64 {
	values := make([]float64, len(history))
	for i, obs := range history {
		values[i] = float64(obs.Quantity)
	}
	return values
}

// SpanDays is the number of calendar days covered by a sorted history, inclusive.
func SpanDays(sorted []domain.SalesObservation) int {
	if len(sorted) == 0 {
		return 0
	}
	first := Day(sorted[0].Date)
	last := Day(sorted[len(sorted)-1].Date)
	return int(last.Sub(first).Hours()/24) + 1
}

// Tail returns at most the last n values
func Tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// AggregateDaily sums several SKUs' histories into one total-demand series.
func AggregateDaily(histories map[string][]domain.SalesObservation) []domain.SalesObservation {
	var all []domain.SalesObservation
	for _, h := range histories {
		all = append(all, h...)
	}
	merged := Normalize(all)
	for i := range merged {
		merged[i].SKU = ""
	}
	return merged
}
