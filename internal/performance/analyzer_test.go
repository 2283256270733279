package performance

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func history(quantities ...int) []domain.SalesObservation {
	h := make([]domain.SalesObservation, len(quantities))
	for i, q := range quantities {
		h[i] = domain.SalesObservation{SKU: "SKU-1", Date: start.AddDate(0, 0, i), Quantity: q}
	}
	return h
}

func product() domain.ProductRecord {
	return domain.ProductRecord{
		SKU:          "SKU-1",
		Stock:        50,
		SalesPerDay:  11,
		LeadTimeDays: 7,
		BuyPrice:     10,
		SellPrice:    15,
	}
}

func TestAnalyzeProductPerformance_ClassifiesDays(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	// mean 11, stdDev 7: 30 is a stockout day, 0 an overstock day
	r := a.AnalyzeProductPerformance(product(), history(10, 10, 10, 10, 30, 0, 10, 10, 10, 10))

	require.Len(t, r.Events, 10)
	assert.False(t, r.UsedFallback)
	assert.InDelta(t, 11.0, r.AvgDemand, 1e-9)
	assert.InDelta(t, 7.0, r.DemandStdDev, 1e-9)
	assert.InDelta(t, 0.1, r.StockoutRate, 1e-9)
	assert.InDelta(t, 0.1, r.OverstockRate, 1e-9)
	assert.InDelta(t, 0.8, r.OptimalRate, 1e-9)
	assert.Equal(t, domain.EventStockout, r.Events[4].Type)
	assert.Equal(t, domain.EventOverstock, r.Events[5].Type)

	// 1 stockout day × 11 avg demand × margin 5
	assert.InDelta(t, 55.0, r.StockoutCost, 1e-9)
	// 1 overstock day × 50 units × 1%
	assert.InDelta(t, 0.5, r.OverstockCost, 1e-9)
	assert.InDelta(t, 55.5, r.TotalCost(), 1e-9)

	assert.InDelta(t, 5.0, r.Events[0].DaysOfStock, 1e-9)
	assert.InDelta(t, 4.55, r.Events[5].DaysOfStock, 1e-9, "zero-demand days use the mean")
	assert.InDelta(t, 4.62, r.AvgCoverageTime, 0.01)
}

func TestAnalyzeProductPerformance_UnsortedInput(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())
	h := history(10, 10, 10, 10, 30, 0, 10, 10, 10, 10)
	h[0], h[9] = h[9], h[0]
	h[3], h[5] = h[5], h[3]

	r := a.AnalyzeProductPerformance(product(), h)

	for i := 1; i < len(r.Events); i++ {
		assert.True(t, r.Events[i-1].Date.Before(r.Events[i].Date))
	}
	assert.Equal(t, domain.EventOverstock, r.Events[5].Type)
}

func TestAnalyzeProductPerformance_FallbackSeries(t *testing.T) {
	now := time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC)
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())
	a.SetClock(func() time.Time { return now })

	r := a.AnalyzeProductPerformance(product(), nil)

	assert.True(t, r.UsedFallback)
	require.Len(t, r.Events, 30)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), r.Events[29].Date)
	assert.Equal(t, 1.0, r.OptimalRate, "flat demand has no outliers")
	assert.Equal(t, 0.0, r.StockoutCost+r.OverstockCost)

	long := product()
	long.LeadTimeDays = 44.5
	assert.Len(t, a.AnalyzeProductPerformance(long, nil).Events, 45)

	viaSales30d := product()
	viaSales30d.SalesPerDay = 0
	viaSales30d.Sales30d = 60
	assert.InDelta(t, 2.0, a.AnalyzeProductPerformance(viaSales30d, nil).AvgDemand, 1e-9)
}

func TestAnalyzeProductPerformance_NoDemandAtAll(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())
	p := product()
	p.SalesPerDay = 0

	r := a.AnalyzeProductPerformance(p, nil)

	assert.Equal(t, 0.0, r.StockoutRate)
	assert.Equal(t, 0.0, r.AvgCoverageTime)
}

func TestAnalyzeProductPerformance_OverstockDaysThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverstockDaysThreshold = 3
	a := NewAnalyzer(cfg, zerolog.Nop())

	// every 10-unit day covers 5 days of stock, above the threshold
	r := a.AnalyzeProductPerformance(product(), history(10, 10, 10, 10, 30, 0, 10, 10, 10, 10))

	assert.InDelta(t, 0.1, r.StockoutRate, 1e-9)
	assert.InDelta(t, 0.9, r.OverstockRate, 1e-9)
	assert.InDelta(t, 0.0, r.OptimalRate, 1e-9)
}

func TestAnalyzeProductPerformance_FlatDemandStillChecksThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverstockDaysThreshold = 3
	a := NewAnalyzer(cfg, zerolog.Nop())

	// 50 units at 10 a day is 5 days of stock
	r := a.AnalyzeProductPerformance(product(), history(10, 10, 10, 10, 10, 10))

	assert.InDelta(t, 1.0, r.OverstockRate, 1e-9)
	assert.InDelta(t, 0.0, r.StockoutRate, 1e-9)
	assert.InDelta(t, 0.0, r.OptimalRate, 1e-9)

	fallback := a.AnalyzeProductPerformance(product(), nil)
	assert.True(t, fallback.UsedFallback)
	assert.InDelta(t, 1.0, fallback.OverstockRate, 1e-9)
}

func records() map[string]domain.PerformanceRecord {
	return map[string]domain.PerformanceRecord{
		"A": {SKU: "A", StockoutRate: 0.1, OverstockRate: 0.1, OptimalRate: 0.8, StockoutCost: 400, OverstockCost: 100},
		"B": {SKU: "B", StockoutRate: 0, OverstockRate: 0.5, OptimalRate: 0.5, OverstockCost: 20},
		"C": {SKU: "C", OptimalRate: 1},
	}
}

func TestGetPerformanceSummary(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	s := a.GetPerformanceSummary(records())

	assert.Equal(t, 3, s.TotalProducts)
	assert.Equal(t, 400.0, s.TotalStockoutCost)
	assert.Equal(t, 120.0, s.TotalOverstockCost)
	assert.Equal(t, 520.0, s.TotalCost)
	assert.Equal(t, 1, s.ProductsWithStockouts)
	assert.Equal(t, 2, s.ProductsWithOverstock)
	assert.Equal(t, []string{"A", "B"}, s.ProblematicSKUs)
	assert.InDelta(t, 0.2, s.AvgOverstockRate, 1e-9)

	empty := a.GetPerformanceSummary(nil)
	assert.Equal(t, 0, empty.TotalProducts)
	assert.NotNil(t, empty.ProblematicSKUs)
}

func TestGetProblematicProducts(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), zerolog.Nop())

	ranked := a.GetProblematicProducts(records(), 2)

	require.Len(t, ranked, 2)
	// A: 10 + 5 + 5 = 20, B: 0 + 25 + 0.2 = 25.2
	assert.Equal(t, "B", ranked[0].SKU)
	assert.InDelta(t, 25.2, ranked[0].Score, 1e-9)
	assert.Equal(t, "A", ranked[1].SKU)
	assert.InDelta(t, 20.0, ranked[1].Score, 1e-9)

	assert.Len(t, a.GetProblematicProducts(records(), 0), 3)
	assert.Empty(t, a.GetProblematicProducts(nil, 5))
}
