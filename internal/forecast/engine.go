package forecast

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/features"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/rs/zerolog"
)

const (
	WarningNoData              = "no_data"
	WarningInsufficientHistory = "insufficient_history"

	minMultiplier = 0.5
	maxMultiplier = 2.0

	recentWindow        = 30
	lowQualityScore     = 50
	lowQualityPenalty   = 0.1
	minBacktestTraining = 7
)

type Config struct {
	WMAWindow          int
	TrendWindow        int
	MinTrendDays       int
	MaxTrendAdjustment float64
	MinHistoryDays     int
	MinSeasonalityDays int
	MinDayOfWeekDays   int
	MAPETestDays       int
	MinMAPEDays        int
	CacheTTL           time.Duration
}

func DefaultConfig() Config {
	return Config{
		WMAWindow:          7,
		TrendWindow:        28,
		MinTrendDays:       14,
		MaxTrendAdjustment: 0.5,
		MinHistoryDays:     30,
		MinSeasonalityDays: 365,
		MinDayOfWeekDays:   28,
		MAPETestDays:       30,
		MinMAPEDays:        60,
		CacheTTL:           10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WMAWindow <= 0 {
		c.WMAWindow = def.WMAWindow
	}
	if c.TrendWindow <= 0 {
		c.TrendWindow = def.TrendWindow
	}
	if c.MinTrendDays <= 0 {
		c.MinTrendDays = def.MinTrendDays
	}
	if c.TrendWindow < c.MinTrendDays {
		c.TrendWindow = c.MinTrendDays
	}
	if c.MaxTrendAdjustment <= 0 {
		c.MaxTrendAdjustment = def.MaxTrendAdjustment
	}
	if c.MinHistoryDays <= 0 {
		c.MinHistoryDays = def.MinHistoryDays
	}
	if c.MinSeasonalityDays <= 0 {
		c.MinSeasonalityDays = def.MinSeasonalityDays
	}
	if c.MinDayOfWeekDays <= 0 {
		c.MinDayOfWeekDays = def.MinDayOfWeekDays
	}
	if c.MAPETestDays <= 0 {
		c.MAPETestDays = def.MAPETestDays
	}
	if c.MinMAPEDays <= 0 {
		c.MinMAPEDays = def.MinMAPEDays
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	return c
}

// Coefficients are the tunable parts of the model that calibration recomputes
type Coefficients struct {
	WMAWindow    int       `json:"wma_window"`
	TrendDamping float64   `json:"trend_damping"`
	Version      int       `json:"version"`
	CalibratedAt time.Time `json:"calibrated_at,omitempty"`
}

// Engine produces demand forecasts from raw daily sales history.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	cache    *cache.MemoryCache
	features *features.Store

	mu   sync.RWMutex
	coef Coefficients
}

type Option func(*Engine)

// WithCache memoizes Predict results
func WithCache(c *cache.MemoryCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithFeatureStore lets forecasts take the SKU's data quality into account
func WithFeatureStore(fs *features.Store) Option {
	return func(e *Engine) { e.features = fs }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg: cfg,
		log: zerolog.Nop(),
		coef: Coefficients{
			WMAWindow:    cfg.WMAWindow,
			TrendDamping: 1,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Coefficients() Coefficients {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coef
}

// SetCoefficients installs coefficients, e.g. ones restored from a previous calibration.
func (e *Engine) SetCoefficients(c Coefficients) {
	if c.WMAWindow <= 0 {
		c.WMAWindow = e.cfg.WMAWindow
	}
	if c.TrendDamping <= 0 {
		c.TrendDamping = 1
	}
	e.mu.Lock()
	e.coef = c
	e.mu.Unlock()
}

// Predict forecasts demand for target. A zero target means the day after the
// last observation.
func (e *Engine) Predict(history []domain.SalesObservation, target time.Time) domain.ForecastResult {
	sorted := series.Normalize(history)
	if len(sorted) == 0 {
		if target.IsZero() {
			target = series.Day(time.Now()).AddDate(0, 0, 1)
		}
		return emptyForecast(target)
	}

	last := sorted[len(sorted)-1]
	if target.IsZero() {
		target = last.Date.AddDate(0, 0, 1)
	}
	target = series.Day(target)
	coef := e.Coefficients()

	params := map[string]any{
		"sku":     last.SKU,
		"samples": len(sorted),
		"series":  fingerprint(sorted),
		"last":    last.Date,
		"lastQty": last.Quantity,
		"target":  target,
		"version": coef.Version,
	}
	result, _ := cache.Cached(e.cache, "forecast.predict", params, e.cfg.CacheTTL, func() (domain.ForecastResult, error) {
		res := e.predict(sorted, target, coef)
		e.applyFeatures(last.SKU, &res)
		return res, nil
	})

	metrics.ForecastConfidence.Observe(result.Confidence)
	return result
}

// fingerprint digests every date and quantity so that edits anywhere in the
// history produce a different cache key.
func fingerprint(sorted []domain.SalesObservation) string {
	h := sha1.New()
	var buf [16]byte
	for _, obs := range sorted {
		binary.BigEndian.PutUint64(buf[:8], uint64(obs.Date.Unix()))
		binary.BigEndian.PutUint64(buf[8:], uint64(obs.Quantity))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PredictMultipleDays returns one forecast per day for the next days days.
func (e *Engine) PredictMultipleDays(history []domain.SalesObservation, days int) []domain.ForecastResult {
	if days <= 0 {
		return []domain.ForecastResult{}
	}

	sorted := series.Normalize(history)
	base := series.Day(time.Now())
	if len(sorted) > 0 {
		base = sorted[len(sorted)-1].Date
	}

	results := make([]domain.ForecastResult, 0, days)
	for i := 1; i <= days; i++ {
		results = append(results, e.Predict(sorted, base.AddDate(0, 0, i)))
	}
	return results
}

func (e *Engine) predict(sorted []domain.SalesObservation, target time.Time, coef Coefficients) domain.ForecastResult {
	values := series.Quantities(sorted)
	last := sorted[len(sorted)-1].Date

	horizon := math.Max(1, math.Round(target.Sub(last).Hours()/24))

	wma := WeightedMovingAverage(values, coef.WMAWindow)
	trend := e.trendAdjustment(values, wma, coef, horizon)
	season := e.seasonalityMultiplier(sorted, values, target)
	dow := e.dayOfWeekMultiplier(sorted, values, target)

	value := series.RoundFloat(math.Max(0, wma*(1+trend)*season*dow), 2)
	confidence, warning := e.confidence(values)

	return domain.ForecastResult{
		Date:       target,
		Value:      value,
		Confidence: confidence,
		Interval:   interval(value, confidence),
		Breakdown: domain.ForecastBreakdown{
			BaseWMA:               series.RoundFloat(wma, 4),
			TrendAdjustment:       series.RoundFloat(trend, 4),
			SeasonalityMultiplier: series.RoundFloat(season, 4),
			DayOfWeekMultiplier:   series.RoundFloat(dow, 4),
		},
		Metadata: domain.ForecastMetadata{
			Warning:    warning,
			SampleSize: len(values),
		},
	}
}

// WeightedMovingAverage weights the last window values linearly, oldest=1 … newest=n.
func WeightedMovingAverage(values []float64, window int) float64 {
	n := window
	if n <= 0 || n > len(values) {
		n = len(values)
	}
	if n == 0 {
		return 0
	}

	recent := values[len(values)-n:]
	var weighted, weights float64
	for i, v := range recent {
		w := float64(i + 1)
		weighted += v * w
		weights += w
	}
	return weighted / weights
}

// trendAdjustment projects the fitted slope from the WMA's effective lag to
// the target, as a fraction of the WMA baseline.
func (e *Engine) trendAdjustment(values []float64, wma float64, coef Coefficients, horizon float64) float64 {
	if len(values) < e.cfg.MinTrendDays || wma <= 0 {
		return 0
	}

	slope := series.LinearSlope(series.Tail(values, e.cfg.TrendWindow))

	window := coef.WMAWindow
	if window > len(values) {
		window = len(values)
	}
	lag := float64(window-1) / 3

	adj := slope * coef.TrendDamping * (lag + horizon) / wma
	return series.Clamp(adj, -e.cfg.MaxTrendAdjustment, e.cfg.MaxTrendAdjustment)
}

func (e *Engine) seasonalityMultiplier(sorted []domain.SalesObservation, values []float64, target time.Time) float64 {
	if series.SpanDays(sorted) < e.cfg.MinSeasonalityDays {
		return 1
	}
	overall := series.Mean(values)
	if overall == 0 {
		return 1
	}

	var sum, count float64
	for _, obs := range sorted {
		if obs.Date.Month() == target.Month() {
			sum += float64(obs.Quantity)
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return series.Clamp((sum/count)/overall, minMultiplier, maxMultiplier)
}

func (e *Engine) dayOfWeekMultiplier(sorted []domain.SalesObservation, values []float64, target time.Time) float64 {
	if len(values) < e.cfg.MinDayOfWeekDays {
		return 1
	}
	overall := series.Mean(values)
	if overall == 0 {
		return 1
	}

	var sum, count float64
	for _, obs := range sorted {
		if obs.Date.Weekday() == target.Weekday() {
			sum += float64(obs.Quantity)
			count++
		}
	}
	if count < 2 {
		return 1
	}
	return series.Clamp((sum/count)/overall, minMultiplier, maxMultiplier)
}

func (e *Engine) confidence(values []float64) (float64, string) {
	n := len(values)

	var base float64
	switch {
	case n >= 90:
		base = 0.9
	case n >= e.cfg.MinHistoryDays:
		base = 0.75
	default:
		base = 0.3 + 0.15*float64(n)/float64(e.cfg.MinHistoryDays)
	}

	recent := series.Tail(values, recentWindow)
	conf := base -
		0.3*series.ZeroFraction(recent) -
		0.2*math.Min(series.CoefficientOfVariation(recent), 1.5)
	conf = series.Clamp(conf, 0, 1)

	if n < e.cfg.MinHistoryDays {
		return series.RoundFloat(math.Min(conf, 0.49), 3), WarningInsufficientHistory
	}
	return series.RoundFloat(conf, 3), ""
}

func (e *Engine) applyFeatures(sku string, res *domain.ForecastResult) {
	if e.features == nil || sku == "" {
		return
	}
	bundle, ok := e.features.Get(sku)
	if !ok {
		return
	}

	score := bundle.DataQuality.Score
	res.Metadata.DataQualityScore = &score
	if score < lowQualityScore {
		res.Confidence = series.RoundFloat(math.Max(0, res.Confidence-lowQualityPenalty), 3)
		res.Interval = interval(res.Value, res.Confidence)
	}
}

// interval widens as confidence drops; min is floored at 0.
func interval(value, confidence float64) domain.ForecastInterval {
	margin := value * (0.1 + (1 - confidence))
	return domain.ForecastInterval{
		Min: series.RoundFloat(math.Max(0, value-margin), 2),
		Max: series.RoundFloat(value+margin, 2),
	}
}

func emptyForecast(target time.Time) domain.ForecastResult {
	return domain.ForecastResult{
		Date: series.Day(target),
		Breakdown: domain.ForecastBreakdown{
			SeasonalityMultiplier: 1,
			DayOfWeekMultiplier:   1,
		},
		Metadata: domain.ForecastMetadata{Warning: WarningNoData},
	}
}
