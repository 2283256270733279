package domain

import "time"

// Trend directions
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Volatility levels
const (
	VolatilityUnknown = "unknown"
	VolatilityZero    = "zero"
	VolatilityLow     = "low"
	VolatilityMedium  = "medium"
	VolatilityHigh    = "high"
)

// Data quality issues
const (
	IssueNoData           = "no_data"
	IssueInsufficientData = "insufficient_data"
	IssueMissingDays      = "missing_days"
	IssueHighZeroRatio    = "high_zero_ratio"
)

type BasicFeatures struct {
	StockLevel     int     `json:"stock_level"`
	AvgSalesPerDay float64 `json:"avg_sales_per_day"`
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	SampleSize     int     `json:"sample_size"`
}

type SeasonalityFeatures struct {
	Detected       bool        `json:"detected"`
	MonthlyFactors [12]float64 `json:"monthly_factors"`
	PeakMonth      int         `json:"peak_month,omitempty"`
}

type TrendFeatures struct {
	Detected      bool    `json:"detected"`
	Direction     string  `json:"direction"`
	ChangePercent float64 `json:"change_percent"`
}

type VolatilityFeatures struct {
	Level                  string  `json:"level"`
	StdDev                 float64 `json:"std_dev"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

type PatternFeatures struct {
	Detected       bool       `json:"detected"`
	WeekdayFactors [7]float64 `json:"weekday_factors"`
	WeekendFactor  float64    `json:"weekend_factor"`
}

type DataQuality struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

// FeatureBundle holds the derived statistics for one SKU
type FeatureBundle struct {
	SKU         string              `json:"sku"`
	Basic       BasicFeatures       `json:"basic"`
	Seasonality SeasonalityFeatures `json:"seasonality"`
	Trend       TrendFeatures       `json:"trend"`
	Volatility  VolatilityFeatures  `json:"volatility"`
	Patterns    PatternFeatures     `json:"patterns"`
	DataQuality DataQuality         `json:"data_quality"`
	ComputedAt  time.Time           `json:"computed_at"`
}
