// backend-go/internal/domain/models.go
package domain

import "time"

// SalesObservation is a single day of sales for one SKU
type SalesObservation struct {
	SKU      string    `json:"sku" db:"sku"`
	Date     time.Time `json:"date" db:"sale_date"`
	Quantity int       `json:"quantity" db:"quantity"`
}

// ProductRecord is the catalog view of a product that the engine reads.
// The engine never mutates it; it proposes new ReorderPoint/SecurityStock values.
type ProductRecord struct {
	SKU           string  `json:"sku" db:"sku"`
	Name          string  `json:"name" db:"name"`
	Stock         int     `json:"stock" db:"stock"`
	SalesPerDay   float64 `json:"sales_per_day" db:"sales_per_day"`
	Sales30d      float64 `json:"sales_30d" db:"sales_30d"`
	LeadTimeDays  float64 `json:"lead_time_days" db:"lead_time_days"`
	ReorderPoint  float64 `json:"reorder_point" db:"reorder_point"`
	SecurityStock float64 `json:"security_stock" db:"security_stock"`
	BuyPrice      float64 `json:"buy_price" db:"buy_price"`
	SellPrice     float64 `json:"sell_price" db:"sell_price"`
	Multiplier    float64 `json:"multiplier" db:"multiplier"`
	Category      string  `json:"category" db:"category"`
}

// DemandMultiplier returns the demand adjustment factor, defaulting to 1
func (p ProductRecord) DemandMultiplier() float64 {
	if p.Multiplier <= 0 {
		return 1
	}
	return p.Multiplier
}

// DailyDemand returns the best available average daily demand for the product
func (p ProductRecord) DailyDemand() float64 {
	if p.SalesPerDay > 0 {
		return p.SalesPerDay
	}
	if p.Sales30d > 0 {
		return p.Sales30d / 30
	}
	return 0
}

// ForecastInterval is the prediction band around a forecast value
type ForecastInterval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ForecastBreakdown exposes the components that produced a forecast value
type ForecastBreakdown struct {
	BaseWMA               float64 `json:"base_wma"`
	TrendAdjustment       float64 `json:"trend_adjustment"`
	SeasonalityMultiplier float64 `json:"seasonality_multiplier"`
	DayOfWeekMultiplier   float64 `json:"day_of_week_multiplier"`
}

// ForecastMetadata carries warnings and context about a forecast
type ForecastMetadata struct {
	Warning          string   `json:"warning,omitempty"`
	SampleSize       int      `json:"sample_size"`
	DataQualityScore *float64 `json:"data_quality_score,omitempty"`
}

// ForecastResult is a single-day demand forecast
type ForecastResult struct {
	Date       time.Time         `json:"date"`
	Value      float64           `json:"value"`
	Confidence float64           `json:"confidence"`
	Interval   ForecastInterval  `json:"interval"`
	Breakdown  ForecastBreakdown `json:"breakdown"`
	Metadata   ForecastMetadata  `json:"metadata"`
}

// ReorderSettings is the pair of parameters the optimizer proposes
type ReorderSettings struct {
	ReorderPoint  float64 `json:"reorder_point"`
	SecurityStock float64 `json:"security_stock"`
}
