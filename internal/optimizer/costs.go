package optimizer

import (
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EstimateCostSavings compares the recorded cost of the current settings with
// the projected cost of the optimized ones. Savings never go below zero.
func (o *Optimizer) EstimateCostSavings(current, optimized domain.ReorderSettings, product domain.ProductRecord, record domain.PerformanceRecord) domain.CostAnalysis {
	currentStockout := money(record.StockoutCost)
	currentOverstock := money(record.OverstockCost)
	currentTotal := currentStockout.Add(currentOverstock)

	// stockouts shrink in proportion to the reorder point increase
	improvement := 0.0
	switch {
	case current.ReorderPoint > 0:
		improvement = (optimized.ReorderPoint - current.ReorderPoint) / current.ReorderPoint
	case optimized.ReorderPoint > 0:
		improvement = 1
	}
	if improvement < 0 {
		improvement = 0
	}
	if improvement > o.cfg.MaxStockoutImprovement {
		improvement = o.cfg.MaxStockoutImprovement
	}
	optimizedStockout := currentStockout.Mul(decimal.NewFromFloat(1 - improvement))

	// average stock sits at half the reorder point
	buyPrice := decimal.NewFromFloat(product.BuyPrice)
	optimizedOverstock := decimal.NewFromFloat(optimized.ReorderPoint).
		Div(decimal.NewFromInt(2)).
		Mul(buyPrice).
		Mul(decimal.NewFromFloat(o.cfg.HoldingCostRate))
	optimizedTotal := optimizedStockout.Add(optimizedOverstock)

	savings := currentTotal.Sub(optimizedTotal)
	if savings.IsNegative() {
		savings = decimal.Zero
	}

	percent := decimal.Zero
	if currentTotal.IsPositive() {
		percent = savings.Div(currentTotal).Mul(hundred)
	}

	roi := decimal.Zero
	extraUnits := decimal.NewFromFloat(optimized.ReorderPoint - current.ReorderPoint)
	if investment := extraUnits.Mul(buyPrice); investment.IsPositive() {
		roi = savings.Div(investment).Mul(hundred)
	}

	return domain.CostAnalysis{
		Current:   breakdown(currentStockout, currentOverstock),
		Optimized: breakdown(optimizedStockout, optimizedOverstock),
		Savings: domain.Savings{
			PerYear: savings.Round(2).InexactFloat64(),
			Percent: percent.Round(2).InexactFloat64(),
			ROI:     roi.Round(2).InexactFloat64(),
		},
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func breakdown(stockout, overstock decimal.Decimal) domain.CostBreakdown {
	return domain.CostBreakdown{
		StockoutCost:  stockout.Round(2).InexactFloat64(),
		OverstockCost: overstock.Round(2).InexactFloat64(),
		Total:         stockout.Add(overstock).Round(2).InexactFloat64(),
	}
}
