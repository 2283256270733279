package series

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNormalize_SortsAndMergesDuplicates(t *testing.T) {
	history := []domain.SalesObservation{
		{SKU: "A", Date: day(2), Quantity: 5},
		{SKU: "A", Date: day(0), Quantity: 1},
		{SKU: "A", Date: day(2).Add(3 * time.Hour), Quantity: 2},
		{SKU: "A", Date: day(1), Quantity: -4},
	}

	got := Normalize(history)

	require.Len(t, got, 3)
	assert.Equal(t, day(0), got[0].Date)
	assert.Equal(t, 0, got[1].Quantity)
	assert.Equal(t, 7, got[2].Quantity)
	assert.Equal(t, "A", got[2].SKU)
	assert.Equal(t, day(2), history[0].Date, "input must not be modified")
}

func TestNormalize_Empty(t *testing.T) {
	assert.Nil(t, Normalize(nil))
}

func TestSpanDays(t *testing.T) {
	h := []domain.SalesObservation{{Date: day(0)}, {Date: day(9)}}
	assert.Equal(t, 10, SpanDays(h))
	assert.Equal(t, 0, SpanDays(nil))
}

func TestStats(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(values), 1e-9)
	assert.InDelta(t, 2.0, StdDev(values), 1e-9)
	assert.InDelta(t, 0.4, CoefficientOfVariation(values), 1e-9)
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestLinearSlope(t *testing.T) {
	assert.InDelta(t, 2.0, LinearSlope([]float64{1, 3, 5, 7, 9}), 1e-9)
	assert.InDelta(t, 0.0, LinearSlope([]float64{4, 4, 4, 4}), 1e-9)
	assert.InDelta(t, -1.0, LinearSlope([]float64{3, 2, 1}), 1e-9)
	assert.Equal(t, 0.0, LinearSlope([]float64{1}))
}

func TestZeroFractionAndTail(t *testing.T) {
	assert.InDelta(t, 0.5, ZeroFraction([]float64{0, 1, 0, 2}), 1e-9)
	assert.Equal(t, []float64{3, 4}, Tail([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, Tail([]float64{1, 2}, 5))
}

func TestAggregateDaily(t *testing.T) {
	got := AggregateDaily(map[string][]domain.SalesObservation{
		"A": {{SKU: "A", Date: day(0), Quantity: 2}, {SKU: "A", Date: day(1), Quantity: 3}},
		"B": {{SKU: "B", Date: day(1), Quantity: 4}},
	})

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Quantity)
	assert.Equal(t, 7, got[1].Quantity)
	assert.Equal(t, "", got[1].SKU)
}

func TestRoundFloat(t *testing.T) {
	assert.Equal(t, 15.33, RoundFloat(15.3333, 2))
	assert.Equal(t, 3.0, RoundFloat(2.6, 0))
}
