package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopo_cache_operations_total",
			Help: "Cache operations by cache name and outcome",
		},
		[]string{"cache", "op"},
	)

	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autopo_analysis_duration_seconds",
			Help:    "Duration of full optimization passes",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopo_analysis_runs_total",
			Help: "Optimization passes by outcome",
		},
		[]string{"status"},
	)

	SKUsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopo_skus_skipped_total",
			Help: "SKUs excluded from a batch by reason",
		},
		[]string{"reason"},
	)

	ForecastConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autopo_forecast_confidence",
			Help:    "Forecast confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ModelMAPE = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autopo_model_mape_percent",
			Help: "Most recent forecast MAPE from the retraining service",
		},
	)

	RetrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopo_retraining_runs_total",
			Help: "Evaluate and retrain attempts by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	ProjectedSavings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autopo_projected_savings_per_year",
			Help: "Total projected yearly savings of the latest optimization pass",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CacheOperations,
		AnalysisDuration,
		AnalysisRuns,
		SKUsSkipped,
		ForecastConfidence,
		ModelMAPE,
		RetrainingRuns,
		ProjectedSavings,
	)
}

// Handler exposes the default registry for gin
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
