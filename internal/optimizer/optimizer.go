package optimizer

import (
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/rs/zerolog"
)

const (
	ParamSecurityStock = "security_stock"
	ParamReorderPoint  = "reorder_point"
)

type Config struct {
	BaseSecurityFraction   float64
	TargetStockoutRate     float64
	TargetOverstockRate    float64
	MinSecurityStockDays   float64
	MaxSecurityStockDays   float64
	HoldingCostRate        float64
	MaterialityThreshold   float64
	MaxStockoutImprovement float64
	ReliabilityTarget      float64
}

func DefaultConfig() Config {
	return Config{
		BaseSecurityFraction:   0.2,
		TargetStockoutRate:     0.05,
		TargetOverstockRate:    0.20,
		MinSecurityStockDays:   3,
		MaxSecurityStockDays:   30,
		HoldingCostRate:        0.25,
		MaterialityThreshold:   5,
		MaxStockoutImprovement: 0.8,
		ReliabilityTarget:      0.9,
	}
}

// Optimizer proposes reorder points and security stock from a SKU's
// replayed performance.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Optimizer {
	def := DefaultConfig()
	if cfg.BaseSecurityFraction <= 0 {
		cfg.BaseSecurityFraction = def.BaseSecurityFraction
	}
	if cfg.TargetStockoutRate <= 0 {
		cfg.TargetStockoutRate = def.TargetStockoutRate
	}
	if cfg.TargetOverstockRate <= 0 {
		cfg.TargetOverstockRate = def.TargetOverstockRate
	}
	if cfg.MinSecurityStockDays <= 0 {
		cfg.MinSecurityStockDays = def.MinSecurityStockDays
	}
	if cfg.MaxSecurityStockDays < cfg.MinSecurityStockDays {
		cfg.MaxSecurityStockDays = math.Max(def.MaxSecurityStockDays, cfg.MinSecurityStockDays)
	}
	if cfg.HoldingCostRate <= 0 {
		cfg.HoldingCostRate = def.HoldingCostRate
	}
	if cfg.MaterialityThreshold <= 0 {
		cfg.MaterialityThreshold = def.MaterialityThreshold
	}
	if cfg.MaxStockoutImprovement <= 0 || cfg.MaxStockoutImprovement > 1 {
		cfg.MaxStockoutImprovement = def.MaxStockoutImprovement
	}
	if cfg.ReliabilityTarget <= 0 {
		cfg.ReliabilityTarget = def.ReliabilityTarget
	}
	return &Optimizer{cfg: cfg, log: log}
}

// OptimizeReorderPoint computes the recommended settings for one product.
// A nil record fails with domain.ErrNoPerformanceData.
func (o *Optimizer) OptimizeReorderPoint(product domain.ProductRecord, record *domain.PerformanceRecord) (domain.OptimizationResult, error) {
	if record == nil {
		return domain.OptimizationResult{}, domain.NewReasonError(domain.KindNoPerformanceData, "sku %s", product.SKU)
	}

	demandCV := series.CoefficientOfVariation(eventDemand(record.Events))
	dailyDemand := product.DailyDemand()
	lead := math.Max(0, product.LeadTimeDays)

	// 1. Security stock days = lead time share, scaled by how the SKU performed
	securityDays := lead * o.cfg.BaseSecurityFraction
	if record.StockoutRate > o.cfg.TargetStockoutRate {
		securityDays *= 1 + 0.5*overshoot(record.StockoutRate, o.cfg.TargetStockoutRate)
	}
	if record.OverstockRate > o.cfg.TargetOverstockRate {
		securityDays *= 1 - 0.3*overshoot(record.OverstockRate, o.cfg.TargetOverstockRate)
	}
	if demandCV > 0.3 {
		securityDays *= 1 + 0.5*math.Min(1, (demandCV-0.3)/0.7)
	}
	securityDays = series.Clamp(securityDays, o.cfg.MinSecurityStockDays, o.cfg.MaxSecurityStockDays)

	// 2. Security stock units, rounded up
	securityStock := ceilUnits(securityDays * dailyDemand)

	// 3. Reorder point = lead time demand + security stock
	reorderPoint := dailyDemand*product.DemandMultiplier()*lead + securityStock

	// 4. Inflate for unreliable supply
	reliability := o.reliability(record.StockoutRate)
	if reliability < o.cfg.ReliabilityTarget {
		reorderPoint *= 1 + 0.5*(o.cfg.ReliabilityTarget-reliability)/0.4
	}
	reorderPoint = ceilUnits(reorderPoint)

	current := domain.ReorderSettings{
		ReorderPoint:  product.ReorderPoint,
		SecurityStock: product.SecurityStock,
	}
	optimized := domain.ReorderSettings{
		ReorderPoint:  reorderPoint,
		SecurityStock: securityStock,
	}

	return domain.OptimizationResult{
		SKU:                 product.SKU,
		ReorderPoint:        int(reorderPoint),
		SecurityStock:       int(securityStock),
		Confidence:          o.confidence(record, demandCV),
		Reasoning:           o.reasoning(current, optimized, record, demandCV, reliability),
		CostAnalysis:        o.EstimateCostSavings(current, optimized, product, *record),
		CurrentSettings:     current,
		PerformanceAnalysis: *record,
	}, nil
}

// OptimizeAllProducts optimizes every product that has a performance record.
// Products without one, or whose optimization panics, are logged and left out.
func (o *Optimizer) OptimizeAllProducts(products []domain.ProductRecord, records map[string]domain.PerformanceRecord) map[string]domain.OptimizationResult {
	results := make(map[string]domain.OptimizationResult, len(products))

	for _, product := range products {
		record, ok := records[product.SKU]
		if !ok {
			metrics.SKUsSkipped.WithLabelValues(string(domain.KindNoPerformanceData)).Inc()
			o.log.Warn().Str("sku", product.SKU).Msg("no performance data, skipping")
			continue
		}

		result, err := o.optimizeSafely(product, &record)
		if err != nil {
			metrics.SKUsSkipped.WithLabelValues("error").Inc()
			o.log.Error().Err(err).Str("sku", product.SKU).Msg("optimization failed, skipping")
			continue
		}
		results[product.SKU] = result
	}

	return results
}

func (o *Optimizer) optimizeSafely(product domain.ProductRecord, record *domain.PerformanceRecord) (result domain.OptimizationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic optimizing %s: %v", product.SKU, r)
		}
	}()
	return o.OptimizeReorderPoint(product, record)
}

// reliability estimates supplier reliability from the stockout rate
func (o *Optimizer) reliability(stockoutRate float64) float64 {
	return math.Max(0.5, 1-2*stockoutRate)
}

func (o *Optimizer) balanced(record *domain.PerformanceRecord) bool {
	return record.StockoutRate <= o.cfg.TargetStockoutRate && record.OverstockRate <= o.cfg.TargetOverstockRate
}

func (o *Optimizer) confidence(record *domain.PerformanceRecord, demandCV float64) int {
	confidence := 100.0

	switch n := len(record.Events); {
	case n < 30:
		confidence -= 30
	case n < 60:
		confidence -= 15
	}
	if demandCV > 0.3 {
		confidence -= math.Min(20, 20*demandCV)
	}
	if o.balanced(record) {
		confidence += 10
	}

	return int(math.Round(series.Clamp(confidence, 0, 100)))
}

func (o *Optimizer) reasoning(current, optimized domain.ReorderSettings, record *domain.PerformanceRecord, demandCV, reliability float64) []domain.Reasoning {
	out := []domain.Reasoning{}

	if change := optimized.SecurityStock - current.SecurityStock; math.Abs(change) > o.cfg.MaterialityThreshold {
		out = append(out, o.explain(ParamSecurityStock, change, record, demandCV, reliability))
	}
	if change := optimized.ReorderPoint - current.ReorderPoint; math.Abs(change) > o.cfg.MaterialityThreshold {
		out = append(out, o.explain(ParamReorderPoint, change, record, demandCV, reliability))
	}

	if len(out) == 0 && o.balanced(record) {
		out = append(out, domain.Reasoning{
			Type:   domain.ReasoningOptimal,
			Reason: "inventory is balanced, no change needed",
		})
	}
	return out
}

func (o *Optimizer) explain(param string, change float64, record *domain.PerformanceRecord, demandCV, reliability float64) domain.Reasoning {
	r := domain.Reasoning{Parameter: param, Change: change}

	if change > 0 {
		r.Type = domain.ReasoningIncrease
		switch {
		case record.StockoutRate > o.cfg.TargetStockoutRate:
			r.Reason = "too many stockouts detected"
		case demandCV > 0.3:
			r.Reason = "protecting against high demand variability"
		case reliability < o.cfg.ReliabilityTarget:
			r.Reason = "compensating for unreliable supply"
		default:
			r.Reason = "current level is below lead time demand"
		}
		return r
	}

	r.Type = domain.ReasoningDecrease
	if record.OverstockRate > o.cfg.TargetOverstockRate {
		r.Reason = "reducing excess capital lock-up"
	} else {
		r.Reason = "current level exceeds what demand requires"
	}
	return r
}

func eventDemand(events []domain.PerformanceEvent) []float64 {
	values := make([]float64, len(events))
	for i, e := range events {
		values[i] = e.DemandLevel
	}
	return values
}

// ceilUnits rounds up to whole units, ignoring float noise below 1e-6
func ceilUnits(v float64) float64 {
	return math.Ceil(math.Max(0, series.RoundFloat(v, 6)))
}

// overshoot is how far rate is past target, relative to target, capped at 1
func overshoot(rate, target float64) float64 {
	return math.Min(1, (rate-target)/target)
}
