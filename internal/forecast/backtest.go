package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
)

var (
	calibrationWindows  = []int{5, 7, 10, 14}
	calibrationDampings = []float64{0.5, 0.75, 1.0}
)

// Accuracy summarizes a walk-forward backtest over the last Tested days.
type Accuracy struct {
	MAPE     float64 `json:"mape"`
	Accuracy float64 `json:"accuracy"`
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	Tested   int     `json:"tested"`
}

type Calibration struct {
	Previous     Coefficients `json:"previous"`
	Coefficients Coefficients `json:"coefficients"`
	BaselineMAPE float64      `json:"baseline_mape"`
	MAPE         float64      `json:"mape"`
	Candidates   int          `json:"candidates"`
	SampleSize   int          `json:"sample_size"`
}

// Improved reports whether the installed coefficients beat the previous ones.
func (c Calibration) Improved() bool {
	return c.MAPE < c.BaselineMAPE
}

// Backtest predicts each of the last holdout days from the days before it.
// Days with zero actual sales are left out of MAPE but count toward MAE/RMSE.
func (e *Engine) Backtest(history []domain.SalesObservation, holdout int) (Accuracy, bool) {
	return e.backtest(series.Normalize(history), holdout, e.Coefficients())
}

// CalculateMAPE backtests the last MAPETestDays days. It reports false when
// there are fewer than MinMAPEDays observations.
func (e *Engine) CalculateMAPE(history []domain.SalesObservation) (Accuracy, bool) {
	sorted := series.Normalize(history)
	if len(sorted) < e.cfg.MinMAPEDays {
		return Accuracy{}, false
	}
	return e.backtest(sorted, e.cfg.MAPETestDays, e.Coefficients())
}

func (e *Engine) backtest(sorted []domain.SalesObservation, holdout int, coef Coefficients) (Accuracy, bool) {
	if holdout <= 0 || len(sorted) < holdout+minBacktestTraining {
		return Accuracy{}, false
	}

	var apeSum, absSum, sqSum float64
	tested := 0
	for i := len(sorted) - holdout; i < len(sorted); i++ {
		predicted := e.predict(sorted[:i], sorted[i].Date, coef).Value
		actual := float64(sorted[i].Quantity)

		diff := predicted - actual
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual > 0 {
			apeSum += math.Abs(diff) / actual
			tested++
		}
	}
	if tested == 0 {
		return Accuracy{}, false
	}

	mape := apeSum / float64(tested) * 100
	return Accuracy{
		MAPE:     series.RoundFloat(mape, 2),
		Accuracy: series.RoundFloat(series.Clamp(100-mape, 0, 100), 2),
		MAE:      series.RoundFloat(absSum/float64(holdout), 4),
		RMSE:     series.RoundFloat(math.Sqrt(sqSum/float64(holdout)), 4),
		Tested:   tested,
	}, true
}

// Calibrate grid-searches the WMA window and trend damping against the
// MAPETestDays holdout and installs the best pair as a new coefficient version.
func (e *Engine) Calibrate(history []domain.SalesObservation) (Calibration, error) {
	sorted := series.Normalize(history)
	if len(sorted) < e.cfg.MinMAPEDays {
		return Calibration{}, domain.NewReasonError(domain.KindInsufficientData,
			"calibration needs %d observations, got %d", e.cfg.MinMAPEDays, len(sorted))
	}

	previous := e.Coefficients()
	baseline, ok := e.backtest(sorted, e.cfg.MAPETestDays, previous)
	if !ok {
		return Calibration{}, domain.NewReasonError(domain.KindInsufficientData, "no non-zero sales in the holdout window")
	}

	best := previous
	bestMAPE := baseline.MAPE
	candidates := 0
	for _, window := range calibrationWindows {
		for _, damping := range calibrationDampings {
			candidate := Coefficients{WMAWindow: window, TrendDamping: damping}
			acc, ok := e.backtest(sorted, e.cfg.MAPETestDays, candidate)
			if !ok {
				continue
			}
			candidates++
			if acc.MAPE < bestMAPE {
				best = candidate
				bestMAPE = acc.MAPE
			}
		}
	}

	best.Version = previous.Version + 1
	best.CalibratedAt = time.Now().UTC()

	e.mu.Lock()
	e.coef = best
	e.mu.Unlock()

	e.log.Info().
		Int("wma_window", best.WMAWindow).
		Float64("trend_damping", best.TrendDamping).
		Float64("baseline_mape", baseline.MAPE).
		Float64("mape", bestMAPE).
		Int("version", best.Version).
		Msg("forecast coefficients calibrated")

	return Calibration{
		Previous:     previous,
		Coefficients: best,
		BaselineMAPE: baseline.MAPE,
		MAPE:         bestMAPE,
		Candidates:   candidates,
		SampleSize:   len(sorted),
	}, nil
}
