package performance

import (
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/rs/zerolog"
)

type Config struct {
	// HoldingRate is the per-day carrying cost applied to overstocked units.
	HoldingRate       float64
	StockoutFlagRate  float64
	OverstockFlagRate float64
	MinFallbackDays   int
	// OverstockDaysThreshold additionally marks a day overstock when
	// days-of-stock exceeds it. 0 disables the rule.
	OverstockDaysThreshold float64
}

func DefaultConfig() Config {
	return Config{
		HoldingRate:       0.01,
		StockoutFlagRate:  0.05,
		OverstockFlagRate: 0.30,
		MinFallbackDays:   30,
	}
}

// Analyzer replays a SKU's demand against its current stock to measure how
// the existing inventory parameters are performing.
type Analyzer struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func NewAnalyzer(cfg Config, log zerolog.Logger) *Analyzer {
	def := DefaultConfig()
	if cfg.HoldingRate <= 0 {
		cfg.HoldingRate = def.HoldingRate
	}
	if cfg.StockoutFlagRate <= 0 {
		cfg.StockoutFlagRate = def.StockoutFlagRate
	}
	if cfg.OverstockFlagRate <= 0 {
		cfg.OverstockFlagRate = def.OverstockFlagRate
	}
	if cfg.MinFallbackDays <= 0 {
		cfg.MinFallbackDays = def.MinFallbackDays
	}
	return &Analyzer{cfg: cfg, log: log, now: time.Now}
}

func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

type demandDay struct {
	date   time.Time
	demand float64
}

// AnalyzeProductPerformance classifies every day of history as stockout,
// overstock or optimal and prices the bad days. Without history a flat series
// is synthesized from the product's sales rate.
func (a *Analyzer) AnalyzeProductPerformance(product domain.ProductRecord, history []domain.SalesObservation) domain.PerformanceRecord {
	days, usedFallback := a.demandSeries(product, history)

	values := make([]float64, len(days))
	for i, d := range days {
		values[i] = d.demand
	}
	mean := series.Mean(values)
	stdDev := series.StdDev(values)

	upper := mean + stdDev
	lower := math.Max(0, mean-stdDev)
	stock := float64(product.Stock)

	events := make([]domain.PerformanceEvent, 0, len(days))
	var stockouts, overstocks, optimal int
	var coverage float64
	for _, d := range days {
		dos := daysOfStock(stock, d.demand, mean)
		coverage += dos

		eventType := domain.EventOptimal
		switch {
		case stdDev > 0 && d.demand >= upper:
			eventType = domain.EventStockout
		case stdDev > 0 && d.demand <= lower:
			eventType = domain.EventOverstock
		case a.cfg.OverstockDaysThreshold > 0 && dos > a.cfg.OverstockDaysThreshold:
			eventType = domain.EventOverstock
		}

		switch eventType {
		case domain.EventStockout:
			stockouts++
		case domain.EventOverstock:
			overstocks++
		default:
			optimal++
		}

		events = append(events, domain.PerformanceEvent{
			Date:        d.date,
			Type:        eventType,
			StockLevel:  stock,
			DemandLevel: d.demand,
			DaysOfStock: series.RoundFloat(dos, 2),
		})
	}

	record := domain.PerformanceRecord{
		SKU:          product.SKU,
		AvgDemand:    series.RoundFloat(mean, 4),
		DemandStdDev: series.RoundFloat(stdDev, 4),
		UsedFallback: usedFallback,
		Events:       events,
	}

	total := float64(len(days))
	if total == 0 {
		return record
	}

	record.StockoutRate = float64(stockouts) / total
	record.OverstockRate = float64(overstocks) / total
	record.OptimalRate = float64(optimal) / total
	record.AvgCoverageTime = series.RoundFloat(coverage/total, 2)

	margin := math.Max(0, product.SellPrice-product.BuyPrice)
	record.StockoutCost = series.RoundFloat(float64(stockouts)*mean*margin, 2)
	record.OverstockCost = series.RoundFloat(float64(overstocks)*stock*a.cfg.HoldingRate, 2)

	return record
}

func (a *Analyzer) demandSeries(product domain.ProductRecord, history []domain.SalesObservation) ([]demandDay, bool) {
	sorted := series.Normalize(history)
	if len(sorted) > 0 {
		days := make([]demandDay, len(sorted))
		for i, obs := range sorted {
			days[i] = demandDay{date: obs.Date, demand: float64(obs.Quantity)}
		}
		return days, false
	}

	n := a.cfg.MinFallbackDays
	if lead := int(math.Ceil(product.LeadTimeDays)); lead > n {
		n = lead
	}

	demand := product.DailyDemand()
	first := series.Day(a.now()).AddDate(0, 0, -(n - 1))
	days := make([]demandDay, n)
	for i := range days {
		days[i] = demandDay{date: first.AddDate(0, 0, i), demand: demand}
	}

	a.log.Debug().
		Str("sku", product.SKU).
		Int("days", n).
		Float64("daily_demand", demand).
		Msg("no sales history, using flat fallback series")
	return days, true
}

func daysOfStock(stock, demand, mean float64) float64 {
	switch {
	case demand > 0:
		return stock / demand
	case mean > 0:
		return stock / mean
	default:
		return 0
	}
}

// GetPerformanceSummary aggregates records across SKUs and flags the ones
// whose stockout or overstock rate is above the configured limits.
func (a *Analyzer) GetPerformanceSummary(records map[string]domain.PerformanceRecord) domain.PerformanceSummary {
	summary := domain.PerformanceSummary{ProblematicSKUs: []string{}}
	if len(records) == 0 {
		return summary
	}

	var stockoutRates, overstockRates, optimalRates float64
	for sku, r := range records {
		summary.TotalProducts++
		summary.TotalStockoutCost += r.StockoutCost
		summary.TotalOverstockCost += r.OverstockCost
		stockoutRates += r.StockoutRate
		overstockRates += r.OverstockRate
		optimalRates += r.OptimalRate

		if r.StockoutRate > 0 {
			summary.ProductsWithStockouts++
		}
		if r.OverstockRate > 0 {
			summary.ProductsWithOverstock++
		}
		if a.isProblematic(r) {
			summary.ProblematicSKUs = append(summary.ProblematicSKUs, sku)
		}
	}
	sort.Strings(summary.ProblematicSKUs)

	n := float64(summary.TotalProducts)
	summary.TotalStockoutCost = series.RoundFloat(summary.TotalStockoutCost, 2)
	summary.TotalOverstockCost = series.RoundFloat(summary.TotalOverstockCost, 2)
	summary.TotalCost = series.RoundFloat(summary.TotalStockoutCost+summary.TotalOverstockCost, 2)
	summary.AvgStockoutRate = series.RoundFloat(stockoutRates/n, 4)
	summary.AvgOverstockRate = series.RoundFloat(overstockRates/n, 4)
	summary.AvgOptimalRate = series.RoundFloat(optimalRates/n, 4)
	return summary
}

func (a *Analyzer) isProblematic(r domain.PerformanceRecord) bool {
	return r.StockoutRate > a.cfg.StockoutFlagRate || r.OverstockRate > a.cfg.OverstockFlagRate
}

// ProblemScore ranks how urgently a SKU needs attention.
func ProblemScore(r domain.PerformanceRecord) float64 {
	return r.StockoutRate*100 + r.OverstockRate*50 + r.TotalCost()/100
}

// GetProblematicProducts returns the topN records by ProblemScore, highest
// first. topN <= 0 returns every record.
func (a *Analyzer) GetProblematicProducts(records map[string]domain.PerformanceRecord, topN int) []domain.ProblemProduct {
	ranked := make([]domain.ProblemProduct, 0, len(records))
	for sku, r := range records {
		ranked = append(ranked, domain.ProblemProduct{
			SKU:    sku,
			Score:  series.RoundFloat(ProblemScore(r), 2),
			Record: r,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].SKU < ranked[j].SKU
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
