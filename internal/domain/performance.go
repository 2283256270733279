package domain

import "time"

// EventType classifies a replayed day
type EventType string

const (
	EventStockout  EventType = "stockout"
	EventOverstock EventType = "overstock"
	EventOptimal   EventType = "optimal"
)

// PerformanceEvent is one replayed day in a SKU's timeline
type PerformanceEvent struct {
	Date        time.Time `json:"date"`
	Type        EventType `json:"type"`
	StockLevel  float64   `json:"stock_level"`
	DemandLevel float64   `json:"demand_level"`
	DaysOfStock float64   `json:"days_of_stock"`
}

// PerformanceRecord summarizes how current inventory parameters would have fared
type PerformanceRecord struct {
	SKU             string             `json:"sku"`
	StockoutRate    float64            `json:"stockout_rate"`
	OverstockRate   float64            `json:"overstock_rate"`
	OptimalRate     float64            `json:"optimal_rate"`
	AvgCoverageTime float64            `json:"avg_coverage_time"`
	StockoutCost    float64            `json:"stockout_cost"`
	OverstockCost   float64            `json:"overstock_cost"`
	AvgDemand       float64            `json:"avg_demand"`
	DemandStdDev    float64            `json:"demand_std_dev"`
	UsedFallback    bool               `json:"used_fallback"`
	Events          []PerformanceEvent `json:"events"`
}

// TotalCost is the combined stockout and overstock cost
func (r PerformanceRecord) TotalCost() float64 {
	return r.StockoutCost + r.OverstockCost
}

// PerformanceSummary aggregates performance records across the catalog
type PerformanceSummary struct {
	TotalProducts         int      `json:"total_products"`
	TotalStockoutCost     float64  `json:"total_stockout_cost"`
	TotalOverstockCost    float64  `json:"total_overstock_cost"`
	TotalCost             float64  `json:"total_cost"`
	AvgStockoutRate       float64  `json:"avg_stockout_rate"`
	AvgOverstockRate      float64  `json:"avg_overstock_rate"`
	AvgOptimalRate        float64  `json:"avg_optimal_rate"`
	ProductsWithStockouts int      `json:"products_with_stockouts"`
	ProductsWithOverstock int      `json:"products_with_overstock"`
	ProblematicSKUs       []string `json:"problematic_skus"`
}

// ProblemProduct is a ranked entry in the "most problematic" list
type ProblemProduct struct {
	SKU    string            `json:"sku"`
	Score  float64           `json:"score"`
	Record PerformanceRecord `json:"record"`
}
