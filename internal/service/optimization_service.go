// backend-go/internal/service/optimization_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/features"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/optimizer"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/performance"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/report"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/repository"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/retraining"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = 90
)

// Dependencies are the collaborators an OptimizationService is built from.
// Exporter is optional.
type Dependencies struct {
	Products   repository.ProductRepository
	History    repository.SalesHistoryRepository
	Features   *features.Store
	Engine     *forecast.Engine
	Analyzer   *performance.Analyzer
	Optimizer  *optimizer.Optimizer
	Retraining *retraining.Service
	Exporter   *report.Exporter
}

type Options struct {
	AnalysisTimeout time.Duration
	ExportReports   bool
}

// AnalysisReport is the outcome of one full optimization pass.
type AnalysisReport struct {
	Optimizations map[string]domain.OptimizationResult `json:"optimizations"`
	Summary       domain.PerformanceSummary            `json:"summary"`
	TotalSavings  float64                              `json:"total_savings"`
	Features      features.ComputeAllResult            `json:"features"`
	Skipped       int                                  `json:"skipped"`
	ReportKey     string                               `json:"report_key,omitempty"`
	GeneratedAt   time.Time                            `json:"generated_at"`
	Duration      time.Duration                        `json:"duration"`

	records map[string]domain.PerformanceRecord
}

type ApplyResult struct {
	Applied int      `json:"applied"`
	SKUs    []string `json:"skus"`
}

// OptimizationService is the entry point callers use: it runs analysis passes
// and commits the recommendations a caller chooses to apply.
type OptimizationService struct {
	deps Dependencies
	opts Options

	inFlight *semaphore.Weighted

	mu      sync.RWMutex
	last    *AnalysisReport
	pending map[string]domain.OptimizationResult
	// generation bumps each time Analyze replaces pending
	generation uint64
}

func NewOptimizationService(deps Dependencies, opts Options) *OptimizationService {
	return &OptimizationService{
		deps:     deps,
		opts:     opts,
		inFlight: semaphore.NewWeighted(1),
		pending:  map[string]domain.OptimizationResult{},
	}
}

// Analyze runs performance analysis and optimization over the whole catalog.
// Only one pass runs at a time; a concurrent call fails with domain.ErrBusy.
func (s *OptimizationService) Analyze(ctx context.Context) (*AnalysisReport, error) {
	if !s.inFlight.TryAcquire(1) {
		metrics.AnalysisRuns.WithLabelValues(string(domain.KindBusy)).Inc()
		return nil, domain.NewReasonError(domain.KindBusy, "an analysis is already running")
	}
	defer s.inFlight.Release(1)

	if s.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AnalysisTimeout)
		defer cancel()
	}

	started := time.Now()
	rep, err := s.analyze(ctx)
	if err != nil {
		metrics.AnalysisRuns.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("analysis failed")
		return nil, err
	}

	rep.GeneratedAt = started
	rep.Duration = time.Since(started)
	metrics.AnalysisRuns.WithLabelValues("success").Inc()
	metrics.AnalysisDuration.Observe(rep.Duration.Seconds())
	metrics.ProjectedSavings.Set(rep.TotalSavings)

	if s.opts.ExportReports && s.deps.Exporter != nil {
		key, err := s.deps.Exporter.ExportOptimizations(ctx, rep.Optimizations)
		if err != nil {
			log.Warn().Err(err).Msg("failed to export optimization report")
		} else {
			rep.ReportKey = key
		}
	}

	pending := make(map[string]domain.OptimizationResult, len(rep.Optimizations))
	for sku, opt := range rep.Optimizations {
		pending[sku] = opt
	}

	s.mu.Lock()
	s.last = rep
	s.pending = pending
	s.generation++
	s.mu.Unlock()

	log.Info().
		Int("products", rep.Summary.TotalProducts).
		Int("optimized", len(rep.Optimizations)).
		Int("skipped", rep.Skipped).
		Float64("total_savings", rep.TotalSavings).
		Dur("duration", rep.Duration).
		Msg("analysis completed")

	return rep, nil
}

func (s *OptimizationService) analyze(ctx context.Context) (*AnalysisReport, error) {
	// 1. Catalog and history
	products, err := s.deps.Products.GetAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	histories, err := s.deps.History.GetSalesHistoryBySKU(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales history: %w", err)
	}

	// 2. Refresh stale feature bundles
	featureResult := s.deps.Features.ComputeAll(products, histories)

	// 3. Replay each SKU's history
	records := make(map[string]domain.PerformanceRecord, len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis interrupted: %w", err)
		}
		records[p.SKU] = s.deps.Analyzer.AnalyzeProductPerformance(p, histories[p.SKU])
	}

	// 4. Summarize and optimize
	summary := s.deps.Analyzer.GetPerformanceSummary(records)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}
	optimizations := s.deps.Optimizer.OptimizeAllProducts(products, records)

	total := decimal.Zero
	for _, opt := range optimizations {
		total = total.Add(decimal.NewFromFloat(opt.CostAnalysis.Savings.PerYear))
	}

	return &AnalysisReport{
		Optimizations: optimizations,
		Summary:       summary,
		TotalSavings:  total.Round(2).InexactFloat64(),
		Features:      featureResult,
		Skipped:       len(products) - len(optimizations),
		records:       records,
	}, nil
}

// LastReport returns the most recent analysis, if any.
func (s *OptimizationService) LastReport() (*AnalysisReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}

// ApplyOptimization writes one pending recommendation to the catalog.
func (s *OptimizationService) ApplyOptimization(ctx context.Context, sku string) (domain.ReorderSettings, error) {
	s.mu.RLock()
	opt, ok := s.pending[sku]
	gen := s.generation
	s.mu.RUnlock()
	if !ok {
		return domain.ReorderSettings{}, domain.NewReasonError(domain.KindNotFound, "no pending optimization for %s", sku)
	}

	settings := settingsOf(opt)
	if err := s.deps.Products.UpdateReorderSettings(ctx, map[string]domain.ReorderSettings{sku: settings}); err != nil {
		return domain.ReorderSettings{}, fmt.Errorf("failed to apply optimization for %s: %w", sku, err)
	}

	s.mu.Lock()
	if s.generation == gen {
		delete(s.pending, sku)
	}
	s.mu.Unlock()
	s.deps.Features.Invalidate(sku)

	log.Info().
		Str("sku", sku).
		Float64("reorder_point", settings.ReorderPoint).
		Float64("security_stock", settings.SecurityStock).
		Msg("optimization applied")
	return settings, nil
}

// ApplyAll writes every pending recommendation in one batch.
func (s *OptimizationService) ApplyAll(ctx context.Context) (ApplyResult, error) {
	s.mu.RLock()
	updates := make(map[string]domain.ReorderSettings, len(s.pending))
	for sku, opt := range s.pending {
		updates[sku] = settingsOf(opt)
	}
	gen := s.generation
	s.mu.RUnlock()

	if len(updates) == 0 {
		return ApplyResult{}, domain.NewReasonError(domain.KindNotFound, "no pending optimizations")
	}

	if err := s.deps.Products.UpdateReorderSettings(ctx, updates); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to apply optimizations: %w", err)
	}

	skus := make([]string, 0, len(updates))
	s.mu.Lock()
	for sku := range updates {
		if s.generation == gen {
			delete(s.pending, sku)
		}
		skus = append(skus, sku)
	}
	s.mu.Unlock()

	sort.Strings(skus)
	for _, sku := range skus {
		s.deps.Features.Invalidate(sku)
	}

	log.Info().Int("applied", len(skus)).Msg("optimizations applied")
	return ApplyResult{Applied: len(skus), SKUs: skus}, nil
}

// PendingOptimizations returns recommendations not applied yet
func (s *OptimizationService) PendingOptimizations() map[string]domain.OptimizationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.OptimizationResult, len(s.pending))
	for sku, opt := range s.pending {
		out[sku] = opt
	}
	return out
}

// GetTopProblems ranks the SKUs of the last analysis by how problematic they are.
func (s *OptimizationService) GetTopProblems(n int) ([]domain.ProblemProduct, error) {
	rep, ok := s.LastReport()
	if !ok {
		return nil, domain.NewReasonError(domain.KindNotFound, "no analysis has run yet")
	}
	return s.deps.Analyzer.GetProblematicProducts(rep.records, n), nil
}

// Forecast predicts the next days days of demand for sku.
func (s *OptimizationService) Forecast(ctx context.Context, sku string, days int) ([]domain.ForecastResult, error) {
	if days <= 0 {
		days = defaultForecastDays
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	history, err := s.deps.History.GetSalesHistory(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales history for %s: %w", sku, err)
	}
	s.ensureFeatures(ctx, sku, history)

	return s.deps.Engine.PredictMultipleDays(history, days), nil
}

// ForecastAccuracy backtests the engine on sku's history.
func (s *OptimizationService) ForecastAccuracy(ctx context.Context, sku string) (forecast.Accuracy, error) {
	history, err := s.deps.History.GetSalesHistory(ctx, sku)
	if err != nil {
		return forecast.Accuracy{}, fmt.Errorf("failed to load sales history for %s: %w", sku, err)
	}

	acc, ok := s.deps.Engine.CalculateMAPE(history)
	if !ok {
		return forecast.Accuracy{}, domain.NewReasonError(domain.KindInsufficientData,
			"accuracy needs %d days of history, got %d", s.deps.Engine.Config().MinMAPEDays, len(series.Normalize(history)))
	}
	return acc, nil
}

// Features returns sku's feature bundle, computing it when missing or stale.
func (s *OptimizationService) Features(ctx context.Context, sku string) (domain.FeatureBundle, error) {
	if bundle, ok := s.deps.Features.Get(sku); ok {
		return bundle, nil
	}

	history, err := s.deps.History.GetSalesHistory(ctx, sku)
	if err != nil {
		return domain.FeatureBundle{}, fmt.Errorf("failed to load sales history for %s: %w", sku, err)
	}
	return s.computeFeatures(ctx, sku, history), nil
}

func (s *OptimizationService) ensureFeatures(ctx context.Context, sku string, history []domain.SalesObservation) {
	if _, ok := s.deps.Features.Get(sku); ok {
		return
	}
	s.computeFeatures(ctx, sku, history)
}

func (s *OptimizationService) computeFeatures(ctx context.Context, sku string, history []domain.SalesObservation) domain.FeatureBundle {
	product := domain.ProductRecord{SKU: sku}
	if p, err := s.deps.Products.GetProduct(ctx, sku); err == nil {
		product = *p
	} else {
		log.Debug().Err(err).Str("sku", sku).Msg("computing features without catalog data")
	}
	return s.deps.Features.Compute(sku, product, history)
}

// Retraining exposes the retraining service for status and history reads
func (s *OptimizationService) Retraining() *retraining.Service {
	return s.deps.Retraining
}

// RunRetrainingWorkflow evaluates the engine on sku's history and retrains it
// if needed. An empty sku uses total daily demand across the catalog.
func (s *OptimizationService) RunRetrainingWorkflow(ctx context.Context, sku string, opts retraining.WorkflowOptions) (retraining.WorkflowResult, error) {
	history, err := s.trainingHistory(ctx, sku)
	if err != nil {
		return retraining.WorkflowResult{}, err
	}
	return s.deps.Retraining.RunWorkflow(ctx, s.deps.Engine, history, opts)
}

// EvaluateModel scores the engine on sku's history (or total demand).
func (s *OptimizationService) EvaluateModel(ctx context.Context, sku string) (retraining.EvaluationResult, error) {
	history, err := s.trainingHistory(ctx, sku)
	if err != nil {
		return retraining.EvaluationResult{}, err
	}
	return s.deps.Retraining.EvaluateModel(ctx, s.deps.Engine, history)
}

// Retrain recalibrates the engine on sku's history (or total demand).
func (s *OptimizationService) Retrain(ctx context.Context, sku string, opts retraining.RetrainOptions) (retraining.RetrainResult, error) {
	history, err := s.trainingHistory(ctx, sku)
	if err != nil {
		return retraining.RetrainResult{}, err
	}
	return s.deps.Retraining.Retrain(ctx, s.deps.Engine, history, opts)
}

func (s *OptimizationService) trainingHistory(ctx context.Context, sku string) ([]domain.SalesObservation, error) {
	if sku != "" {
		history, err := s.deps.History.GetSalesHistory(ctx, sku)
		if err != nil {
			return nil, fmt.Errorf("failed to load sales history for %s: %w", sku, err)
		}
		return history, nil
	}

	bySKU, err := s.deps.History.GetSalesHistoryBySKU(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales history: %w", err)
	}
	return series.AggregateDaily(bySKU), nil
}

func settingsOf(opt domain.OptimizationResult) domain.ReorderSettings {
	return domain.ReorderSettings{
		ReorderPoint:  float64(opt.ReorderPoint),
		SecurityStock: float64(opt.SecurityStock),
	}
}
