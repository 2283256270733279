package domain

// ReasoningType tags the direction of a recommended change
type ReasoningType string

const (
	ReasoningIncrease ReasoningType = "increase"
	ReasoningDecrease ReasoningType = "decrease"
	ReasoningOptimal  ReasoningType = "optimal"
)

// Reasoning explains one recommended change
type Reasoning struct {
	Type      ReasoningType `json:"type"`
	Parameter string        `json:"parameter"`
	Change    float64       `json:"change"`
	Reason    string        `json:"reason"`
}

type Savings struct {
	PerYear float64 `json:"per_year"`
	Percent float64 `json:"percent"`
	ROI     float64 `json:"roi"`
}

type CostBreakdown struct {
	StockoutCost  float64 `json:"stockout_cost"`
	OverstockCost float64 `json:"overstock_cost"`
	Total         float64 `json:"total"`
}

// CostAnalysis compares current and optimized inventory cost
type CostAnalysis struct {
	Current   CostBreakdown `json:"current"`
	Optimized CostBreakdown `json:"optimized"`
	Savings   Savings       `json:"savings"`
}

// OptimizationResult is the proposed reorder configuration for one SKU
type OptimizationResult struct {
	SKU                 string            `json:"sku"`
	ReorderPoint        int               `json:"reorder_point"`
	SecurityStock       int               `json:"security_stock"`
	Confidence          int               `json:"confidence"`
	Reasoning           []Reasoning       `json:"reasoning"`
	CostAnalysis        CostAnalysis      `json:"cost_analysis"`
	CurrentSettings     ReorderSettings   `json:"current_settings"`
	PerformanceAnalysis PerformanceRecord `json:"performance_analysis"`
}
