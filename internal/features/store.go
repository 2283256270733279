package features

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/rs/zerolog"
)

// Config holds the staleness threshold and per-statistic history minimums.
type Config struct {
	StaleAfter         time.Duration
	MinSeasonalityDays int
	MinTrendDays       int
	MinVolatilityDays  int
	MinPatternDays     int
	MinQualityDays     int
}

func DefaultConfig() Config {
	return Config{
		StaleAfter:         time.Hour,
		MinSeasonalityDays: 30,
		MinTrendDays:       14,
		MinVolatilityDays:  7,
		MinPatternDays:     14,
		MinQualityDays:     30,
	}
}

// ComputeAllResult reports what a batch computation did
type ComputeAllResult struct {
	Computed int `json:"computed"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// Store computes and caches per-SKU feature bundles
type Store struct {
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	bundles map[string]domain.FeatureBundle
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewStore(cfg Config, log zerolog.Logger) *Store {
	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.MinSeasonalityDays <= 0 {
		cfg.MinSeasonalityDays = def.MinSeasonalityDays
	}
	if cfg.MinTrendDays <= 0 {
		cfg.MinTrendDays = def.MinTrendDays
	}
	if cfg.MinVolatilityDays <= 0 {
		cfg.MinVolatilityDays = def.MinVolatilityDays
	}
	if cfg.MinPatternDays <= 0 {
		cfg.MinPatternDays = def.MinPatternDays
	}
	if cfg.MinQualityDays <= 0 {
		cfg.MinQualityDays = def.MinQualityDays
	}

	return &Store{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		bundles: make(map[string]domain.FeatureBundle),
	}
}

// SetClock replaces the time source; used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Compute always recomputes the bundle for sku and overwrites the cached one.
func (s *Store) Compute(sku string, product domain.ProductRecord, history []domain.SalesObservation) domain.FeatureBundle {
	sorted := series.Normalize(history)
	values := series.Quantities(sorted)

	bundle := domain.FeatureBundle{
		SKU:         sku,
		Basic:       s.basic(product, values),
		Seasonality: s.seasonality(sorted, values),
		Trend:       s.trend(values),
		Volatility:  s.volatility(values),
		Patterns:    s.patterns(sorted, values),
		DataQuality: s.dataQuality(sorted, values),
		ComputedAt:  s.now(),
	}

	s.mu.Lock()
	s.bundles[sku] = bundle
	s.mu.Unlock()

	s.log.Debug().
		Str("sku", sku).
		Int("samples", len(values)).
		Float64("quality", bundle.DataQuality.Score).
		Msg("features computed")

	return bundle
}

// Get reads the cached bundle without computing anything.
func (s *Store) Get(sku string) (domain.FeatureBundle, bool) {
	s.mu.RLock()
	bundle, ok := s.bundles[sku]
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return bundle, ok
}

// ComputeAll recomputes every product whose bundle is missing or stale.
func (s *Store) ComputeAll(products []domain.ProductRecord, historyBySKU map[string][]domain.SalesObservation) ComputeAllResult {
	result := ComputeAllResult{Total: len(products)}

	for _, product := range products {
		if s.isFresh(product.SKU) {
			result.Skipped++
			continue
		}
		s.Compute(product.SKU, product, historyBySKU[product.SKU])
		result.Computed++
	}

	s.log.Info().
		Int("computed", result.Computed).
		Int("skipped", result.Skipped).
		Int("total", result.Total).
		Msg("feature store refresh complete")

	return result
}

func (s *Store) Invalidate(sku string) {
	s.mu.Lock()
	delete(s.bundles, sku)
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.bundles = make(map[string]domain.FeatureBundle)
	s.mu.Unlock()
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	size := len(s.bundles)
	s.mu.RUnlock()
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Size: size}
}

func (s *Store) isFresh(sku string) bool {
	s.mu.RLock()
	bundle, ok := s.bundles[sku]
	s.mu.RUnlock()
	return ok && s.now().Sub(bundle.ComputedAt) < s.cfg.StaleAfter
}

func (s *Store) basic(product domain.ProductRecord, values []float64) domain.BasicFeatures {
	avg := product.DailyDemand()
	if len(values) > 0 {
		avg = series.Mean(values)
	}
	return domain.BasicFeatures{
		StockLevel:     product.Stock,
		AvgSalesPerDay: series.RoundFloat(avg, 2),
		Price:          product.SellPrice,
		Category:       product.Category,
		SampleSize:     len(values),
	}
}

func (s *Store) seasonality(sorted []domain.SalesObservation, values []float64) domain.SeasonalityFeatures {
	out := domain.SeasonalityFeatures{}
	for i := range out.MonthlyFactors {
		out.MonthlyFactors[i] = 1
	}
	if len(values) < s.cfg.MinSeasonalityDays {
		return out
	}

	overall := series.Mean(values)
	if overall == 0 {
		return out
	}

	var sums, counts [12]float64
	for _, obs := range sorted {
		m := int(obs.Date.Month()) - 1
		sums[m] += float64(obs.Quantity)
		counts[m]++
	}

	observed := 0
	maxDeviation := 0.0
	peak := 0.0
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		observed++
		factor := (sums[m] / counts[m]) / overall
		out.MonthlyFactors[m] = series.RoundFloat(factor, 3)
		maxDeviation = math.Max(maxDeviation, math.Abs(factor-1))
		if factor > peak {
			peak = factor
			out.PeakMonth = m + 1
		}
	}

	out.Detected = observed >= 2 && maxDeviation > 0.2
	return out
}

func (s *Store) trend(values []float64) domain.TrendFeatures {
	out := domain.TrendFeatures{Direction: domain.TrendStable}
	if len(values) < s.cfg.MinTrendDays {
		return out
	}

	window := series.Tail(values, 28)
	half := len(window) / 2
	older := series.Mean(window[:half])
	recent := series.Mean(window[half:])

	var change float64
	switch {
	case older > 0:
		change = (recent - older) / older * 100
	case recent > 0:
		change = 100
	}

	out.Detected = true
	out.ChangePercent = series.RoundFloat(change, 2)
	switch {
	case change > 10:
		out.Direction = domain.TrendIncreasing
	case change < -10:
		out.Direction = domain.TrendDecreasing
	}
	return out
}

func (s *Store) volatility(values []float64) domain.VolatilityFeatures {
	out := domain.VolatilityFeatures{Level: domain.VolatilityUnknown}
	if len(values) < s.cfg.MinVolatilityDays {
		return out
	}

	mean := series.Mean(values)
	std := series.StdDev(values)
	out.StdDev = series.RoundFloat(std, 3)
	if mean == 0 {
		out.Level = domain.VolatilityZero
		return out
	}

	cv := std / mean
	out.CoefficientOfVariation = series.RoundFloat(cv, 3)
	switch {
	case cv < 0.3:
		out.Level = domain.VolatilityLow
	case cv < 0.7:
		out.Level = domain.VolatilityMedium
	default:
		out.Level = domain.VolatilityHigh
	}
	return out
}

func (s *Store) patterns(sorted []domain.SalesObservation, values []float64) domain.PatternFeatures {
	out := domain.PatternFeatures{WeekendFactor: 1}
	for i := range out.WeekdayFactors {
		out.WeekdayFactors[i] = 1
	}
	if len(values) < s.cfg.MinPatternDays {
		return out
	}

	overall := series.Mean(values)
	if overall == 0 {
		return out
	}

	var sums, counts [7]float64
	var weekendSum, weekendCount float64
	for _, obs := range sorted {
		wd := obs.Date.Weekday()
		sums[wd] += float64(obs.Quantity)
		counts[wd]++
		if wd == time.Saturday || wd == time.Sunday {
			weekendSum += float64(obs.Quantity)
			weekendCount++
		}
	}

	for wd := 0; wd < 7; wd++ {
		if counts[wd] == 0 {
			continue
		}
		factor := (sums[wd] / counts[wd]) / overall
		out.WeekdayFactors[wd] = series.RoundFloat(factor, 3)
		if math.Abs(factor-1) > 0.15 {
			out.Detected = true
		}
	}
	if weekendCount > 0 {
		out.WeekendFactor = series.RoundFloat((weekendSum/weekendCount)/overall, 3)
	}
	return out
}

func (s *Store) dataQuality(sorted []domain.SalesObservation, values []float64) domain.DataQuality {
	if len(values) == 0 {
		return domain.DataQuality{Score: 0, Issues: []string{domain.IssueNoData}}
	}

	score := 100.0
	issues := []string{}

	if len(values) < s.cfg.MinQualityDays {
		score -= 30
		issues = append(issues, domain.IssueInsufficientData)
	}

	if span := series.SpanDays(sorted); span > 0 {
		missing := 1 - float64(len(sorted))/float64(span)
		if missing > 0.1 {
			score -= 30 * missing
			issues = append(issues, domain.IssueMissingDays)
		}
	}

	if series.ZeroFraction(values) > 0.5 {
		score -= 20
		issues = append(issues, domain.IssueHighZeroRatio)
	}

	return domain.DataQuality{
		Score:  series.RoundFloat(math.Max(0, score), 1),
		Issues: issues,
	}
}
