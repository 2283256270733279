package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/features"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func history(quantities ...int) []domain.SalesObservation {
	h := make([]domain.SalesObservation, len(quantities))
	for i, q := range quantities {
		h[i] = domain.SalesObservation{SKU: "SKU-1", Date: start.AddDate(0, 0, i), Quantity: q}
	}
	return h
}

func constant(n, q int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = q
	}
	return out
}

func growth(n int, base, rate float64) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(math.Round(base * math.Pow(1+rate, float64(i))))
	}
	return out
}

func engineWithWindow(window int) *Engine {
	cfg := DefaultConfig()
	cfg.WMAWindow = window
	return NewEngine(cfg)
}

func TestWeightedMovingAverage(t *testing.T) {
	assert.InDelta(t, 15.33, WeightedMovingAverage([]float64{10, 12, 14, 16, 18}, 5), 0.1)
	assert.Equal(t, 0.0, WeightedMovingAverage(nil, 5))
	assert.InDelta(t, 15.33, WeightedMovingAverage([]float64{10, 12, 14, 16, 18}, 50), 0.1, "window larger than the series uses all of it")
}

func TestPredict_WMAExactness(t *testing.T) {
	res := engineWithWindow(5).Predict(history(10, 12, 14, 16, 18), time.Time{})

	assert.InDelta(t, 15.33, res.Breakdown.BaseWMA, 0.1)
	assert.InDelta(t, 15.33, res.Value, 0.1)
	assert.Equal(t, start.AddDate(0, 0, 5), res.Date, "defaults to the day after the last observation")
}

func TestPredict_RecencyWeighting(t *testing.T) {
	res := engineWithWindow(10).Predict(history(10, 10, 10, 10, 10, 10, 10, 10, 10, 100), time.Time{})

	assert.Greater(t, res.Breakdown.BaseWMA, 19.0)
}

func TestPredict_TrendSign(t *testing.T) {
	e := NewEngine(DefaultConfig())

	up := e.Predict(history(growth(28, 10, 0.05)...), time.Time{})
	assert.Greater(t, up.Breakdown.TrendAdjustment, 0.0)

	down := e.Predict(history(growth(28, 100, -0.03)...), time.Time{})
	assert.Less(t, down.Breakdown.TrendAdjustment, 0.0)

	flat := e.Predict(history(constant(28, 10)...), time.Time{})
	assert.InDelta(t, 0.0, flat.Breakdown.TrendAdjustment, 1e-9)
}

func TestPredict_TrendClamp(t *testing.T) {
	step := append(constant(14, 1), constant(14, 100)...)

	for _, window := range []int{3, 7, 14} {
		res := engineWithWindow(window).Predict(history(step...), time.Time{})
		assert.GreaterOrEqual(t, res.Breakdown.TrendAdjustment, -0.5)
		assert.LessOrEqual(t, res.Breakdown.TrendAdjustment, 0.5)
	}

	reversed := append(constant(14, 100), constant(14, 1)...)
	res := engineWithWindow(14).Predict(history(reversed...), time.Time{})
	assert.GreaterOrEqual(t, res.Breakdown.TrendAdjustment, -0.5)
	assert.GreaterOrEqual(t, res.Value, 0.0)
}

func TestPredict_TrendNeedsFourteenDays(t *testing.T) {
	res := NewEngine(DefaultConfig()).Predict(history(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), time.Time{})

	assert.Equal(t, 0.0, res.Breakdown.TrendAdjustment)
}

func TestPredict_ConfidenceGrowsWithHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())

	short := e.Predict(history(constant(20, 10)...), time.Time{})
	long := e.Predict(history(constant(120, 10)...), time.Time{})

	assert.Less(t, short.Confidence, 0.5)
	assert.Equal(t, WarningInsufficientHistory, short.Metadata.Warning)
	assert.Greater(t, long.Confidence, short.Confidence)
	assert.Empty(t, long.Metadata.Warning)

	for _, res := range []domain.ForecastResult{short, long} {
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestPredict_ZeroHeavyHistoryLowersConfidence(t *testing.T) {
	e := NewEngine(DefaultConfig())

	steady := e.Predict(history(constant(60, 10)...), time.Time{})

	sparse := constant(60, 0)
	for i := 0; i < len(sparse); i += 4 {
		sparse[i] = 40
	}
	bursty := e.Predict(history(sparse...), time.Time{})

	assert.Less(t, bursty.Confidence, steady.Confidence)
}

func TestPredict_IntervalContainment(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cases := [][]int{
		constant(5, 3),
		constant(45, 0),
		growth(40, 5, 0.04),
		append(constant(14, 1), constant(14, 100)...),
		{0, 0, 0, 50, 0, 0, 2, 0, 90, 0, 0, 0, 1, 0, 0},
	}

	for _, quantities := range cases {
		res := e.Predict(history(quantities...), time.Time{})
		assert.GreaterOrEqual(t, res.Interval.Min, 0.0)
		assert.LessOrEqual(t, res.Interval.Min, res.Value)
		assert.GreaterOrEqual(t, res.Interval.Max, res.Value)
	}
}

func TestPredict_LowerConfidenceWidensInterval(t *testing.T) {
	e := NewEngine(DefaultConfig())

	low := e.Predict(history(constant(20, 10)...), time.Time{})
	high := e.Predict(history(constant(120, 10)...), time.Time{})
	require.Equal(t, low.Value, high.Value)

	lowWidth := low.Interval.Max - low.Interval.Min
	highWidth := high.Interval.Max - high.Interval.Min
	assert.Greater(t, lowWidth, highWidth)
}

func TestPredict_EmptyHistory(t *testing.T) {
	target := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	res := NewEngine(DefaultConfig()).Predict(nil, target)

	assert.Equal(t, 0.0, res.Value)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, WarningNoData, res.Metadata.Warning)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.Date)
}

func TestPredict_DayOfWeekMultiplier(t *testing.T) {
	// 2024-01-01 is a Monday; Saturdays and Sundays sell double.
	quantities := make([]int, 56)
	for i := range quantities {
		quantities[i] = 10
		if wd := start.AddDate(0, 0, i).Weekday(); wd == time.Saturday || wd == time.Sunday {
			quantities[i] = 20
		}
	}
	e := NewEngine(DefaultConfig())

	saturday := e.Predict(history(quantities...), time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	wednesday := e.Predict(history(quantities...), time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC))

	assert.Greater(t, saturday.Breakdown.DayOfWeekMultiplier, 1.0)
	assert.Less(t, wednesday.Breakdown.DayOfWeekMultiplier, 1.0)
	assert.Greater(t, saturday.Value, wednesday.Value)
}

func TestPredict_SeasonalityNeedsAYear(t *testing.T) {
	e := NewEngine(DefaultConfig())

	res := e.Predict(history(constant(200, 10)...), time.Time{})
	assert.Equal(t, 1.0, res.Breakdown.SeasonalityMultiplier)

	quantities := make([]int, 400)
	for i := range quantities {
		quantities[i] = 10
		if start.AddDate(0, 0, i).Month() == time.December {
			quantities[i] = 30
		}
	}
	december := e.Predict(history(quantities...), time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC))
	assert.Greater(t, december.Breakdown.SeasonalityMultiplier, 1.0)
	assert.LessOrEqual(t, december.Breakdown.SeasonalityMultiplier, 2.0)
}

func TestPredictMultipleDays(t *testing.T) {
	e := NewEngine(DefaultConfig())

	results := e.PredictMultipleDays(history(constant(30, 10)...), 7)

	require.Len(t, results, 7)
	for i, res := range results {
		assert.Equal(t, start.AddDate(0, 0, 30+i), res.Date)
	}
	assert.Empty(t, e.PredictMultipleDays(history(1, 2, 3), 0))
}

func TestPredict_UsesCache(t *testing.T) {
	c := cache.NewMemoryCache(cache.Options{Name: "forecast-test"})
	e := NewEngine(DefaultConfig(), WithCache(c))
	h := history(constant(30, 10)...)

	first := e.Predict(h, time.Time{})
	second := e.Predict(h, time.Time{})

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), c.Stats().Hits)

	e.SetCoefficients(Coefficients{WMAWindow: 5, TrendDamping: 1, Version: 9})
	e.Predict(h, time.Time{})
	assert.Equal(t, int64(2), c.Stats().Misses, "a new coefficient version bypasses stale entries")
}

func TestPredict_CacheKeyCoversWholeHistory(t *testing.T) {
	c := cache.NewMemoryCache(cache.Options{Name: "forecast-test"})
	e := NewEngine(DefaultConfig(), WithCache(c))

	flat := e.Predict(history(10, 10, 10, 10, 10), time.Time{})
	// same length, last date and last quantity, different earlier days
	spiked := e.Predict(history(100, 100, 100, 100, 10), time.Time{})

	assert.Equal(t, int64(0), c.Stats().Hits)
	assert.Equal(t, int64(2), c.Stats().Misses)
	assert.NotEqual(t, flat.Value, spiked.Value)
}

func TestPredict_LowDataQualityPenalty(t *testing.T) {
	// every fourth day only: short and gappy, quality score below 50
	var h []domain.SalesObservation
	for i := 0; i < 10; i++ {
		h = append(h, domain.SalesObservation{SKU: "GAPPY", Date: start.AddDate(0, 0, 4*i), Quantity: 5})
	}

	store := features.NewStore(features.DefaultConfig(), zerolog.Nop())
	bundle := store.Compute("GAPPY", domain.ProductRecord{SKU: "GAPPY"}, h)
	require.Less(t, bundle.DataQuality.Score, 50.0)

	plain := NewEngine(DefaultConfig()).Predict(h, time.Time{})
	withFeatures := NewEngine(DefaultConfig(), WithFeatureStore(store)).Predict(h, time.Time{})

	require.NotNil(t, withFeatures.Metadata.DataQualityScore)
	assert.Equal(t, bundle.DataQuality.Score, *withFeatures.Metadata.DataQualityScore)
	assert.InDelta(t, plain.Confidence-0.1, withFeatures.Confidence, 1e-9)
}

func TestCalculateMAPE_PerfectModel(t *testing.T) {
	acc, ok := NewEngine(DefaultConfig()).CalculateMAPE(history(constant(90, 10)...))

	require.True(t, ok)
	assert.Equal(t, 0.0, acc.MAPE)
	assert.Equal(t, 100.0, acc.Accuracy)
	assert.Equal(t, 30, acc.Tested)
}

func TestCalculateMAPE_AbsentForShortHistory(t *testing.T) {
	_, ok := NewEngine(DefaultConfig()).CalculateMAPE(history(constant(59, 10)...))
	assert.False(t, ok)
}

func TestBacktest_SkipsZeroActuals(t *testing.T) {
	quantities := constant(40, 10)
	quantities[35] = 0

	acc, ok := NewEngine(DefaultConfig()).Backtest(history(quantities...), 10)

	require.True(t, ok)
	assert.Equal(t, 9, acc.Tested)
	assert.Greater(t, acc.MAE, 0.0)

	_, ok = NewEngine(DefaultConfig()).Backtest(history(constant(40, 0)...), 10)
	assert.False(t, ok, "no testable days")
}

func TestCalibrate(t *testing.T) {
	e := NewEngine(DefaultConfig())

	_, err := e.Calibrate(history(constant(30, 10)...))
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
	assert.Equal(t, 0, e.Coefficients().Version)

	cal, err := e.Calibrate(history(growth(90, 10, 0.02)...))
	require.NoError(t, err)
	assert.Equal(t, 1, cal.Coefficients.Version)
	assert.Equal(t, cal.Coefficients, e.Coefficients())
	assert.LessOrEqual(t, cal.MAPE, cal.BaselineMAPE)
	assert.Equal(t, len(calibrationWindows)*len(calibrationDampings), cal.Candidates)
	assert.False(t, cal.Coefficients.CalibratedAt.IsZero())
}
