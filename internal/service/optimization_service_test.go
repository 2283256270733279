package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/features"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/optimizer"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/performance"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/report"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/retraining"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeProducts struct {
	mu       sync.Mutex
	products []domain.ProductRecord
	updates  []map[string]domain.ReorderSettings
	err      error
	// onUpdate runs once after an update is recorded, outside mu
	onUpdate func()
}

func (f *fakeProducts) GetAllProducts(context.Context) ([]domain.ProductRecord, error) {
	return f.products, f.err
}

func (f *fakeProducts) GetProduct(_ context.Context, sku string) (*domain.ProductRecord, error) {
	for _, p := range f.products {
		if p.SKU == sku {
			p := p
			return &p, nil
		}
	}
	return nil, domain.NewReasonError(domain.KindNotFound, "product %s", sku)
}

func (f *fakeProducts) UpdateReorderSettings(_ context.Context, updates map[string]domain.ReorderSettings) error {
	f.mu.Lock()
	f.updates = append(f.updates, updates)
	hook := f.onUpdate
	f.onUpdate = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

type fakeHistory struct {
	bySKU map[string][]domain.SalesObservation
}

func (f *fakeHistory) GetSalesHistory(_ context.Context, sku string) ([]domain.SalesObservation, error) {
	return f.bySKU[sku], nil
}

func (f *fakeHistory) GetSalesHistoryBySKU(context.Context) (map[string][]domain.SalesObservation, error) {
	return f.bySKU, nil
}

func sales(sku string, qty ...int) []domain.SalesObservation {
	out := make([]domain.SalesObservation, len(qty))
	for i, q := range qty {
		out[i] = domain.SalesObservation{SKU: sku, Date: start.AddDate(0, 0, i), Quantity: q}
	}
	return out
}

func flatSales(sku string, n, qty int) []domain.SalesObservation {
	q := make([]int, n)
	for i := range q {
		q[i] = qty
	}
	return sales(sku, q...)
}

type fixture struct {
	svc      *OptimizationService
	products *fakeProducts
	history  *fakeHistory
	features *features.Store
}

func newFixture(t *testing.T, opts Options, exporter *report.Exporter) fixture {
	t.Helper()

	products := &fakeProducts{products: []domain.ProductRecord{
		{SKU: "A", Stock: 50, SalesPerDay: 10, LeadTimeDays: 7, ReorderPoint: 60, SecurityStock: 10, BuyPrice: 5, SellPrice: 8},
		{SKU: "B", Stock: 400, SalesPerDay: 4, LeadTimeDays: 14, ReorderPoint: 200, SecurityStock: 80, BuyPrice: 20, SellPrice: 30},
	}}
	history := &fakeHistory{bySKU: map[string][]domain.SalesObservation{
		"A": sales("A", 10, 10, 10, 10, 30, 0, 10, 10, 10, 10),
		"B": flatSales("B", 120, 4),
	}}

	fs := features.NewStore(features.DefaultConfig(), zerolog.Nop())
	engine := forecast.NewEngine(forecast.DefaultConfig(), forecast.WithFeatureStore(fs), forecast.WithLogger(zerolog.Nop()))
	retrainer, err := retraining.NewService(context.Background(), retraining.DefaultConfig(), cache.NewMemoryDurableStore(), zerolog.Nop())
	require.NoError(t, err)

	svc := NewOptimizationService(Dependencies{
		Products:   products,
		History:    history,
		Features:   fs,
		Engine:     engine,
		Analyzer:   performance.NewAnalyzer(performance.DefaultConfig(), zerolog.Nop()),
		Optimizer:  optimizer.New(optimizer.DefaultConfig(), zerolog.Nop()),
		Retraining: retrainer,
		Exporter:   exporter,
	}, opts)

	return fixture{svc: svc, products: products, history: history, features: fs}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, Options{AnalysisTimeout: time.Minute}, nil)

	rep, err := f.svc.Analyze(context.Background())
	require.NoError(t, err)

	assert.Len(t, rep.Optimizations, 2)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 2, rep.Summary.TotalProducts)
	assert.Equal(t, 2, rep.Features.Total)
	assert.Empty(t, rep.ReportKey)

	var want float64
	for _, opt := range rep.Optimizations {
		want += opt.CostAnalysis.Savings.PerYear
	}
	assert.InDelta(t, want, rep.TotalSavings, 0.01)

	last, ok := f.svc.LastReport()
	require.True(t, ok)
	assert.Same(t, rep, last)
	assert.Len(t, f.svc.PendingOptimizations(), 2)

	_, ok = f.features.Get("A")
	assert.True(t, ok, "analysis should refresh feature bundles")
}

func TestAnalyze_Busy(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	require.True(t, f.svc.inFlight.TryAcquire(1))
	defer f.svc.inFlight.Release(1)

	_, err := f.svc.Analyze(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestAnalyze_RepositoryError(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.products.err = errors.New("connection refused")

	_, err := f.svc.Analyze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load products")

	_, ok := f.svc.LastReport()
	assert.False(t, ok)
}

func TestAnalyze_Cancelled(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Analyze(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_ExportsReport(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	exporter := report.NewExporter(store, "reports")
	exporter.SetClock(func() time.Time { return start })

	f := newFixture(t, Options{ExportReports: true}, exporter)

	rep, err := f.svc.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reports/20240101T000000Z-optimizations.csv", rep.ReportKey)

	objects, err := exporter.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, rep.ReportKey, objects[0].Key)
}

func TestApplyOptimization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	_, err := f.svc.ApplyOptimization(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing is pending before an analysis")

	rep, err := f.svc.Analyze(ctx)
	require.NoError(t, err)

	settings, err := f.svc.ApplyOptimization(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, float64(rep.Optimizations["A"].ReorderPoint), settings.ReorderPoint)
	assert.Equal(t, float64(rep.Optimizations["A"].SecurityStock), settings.SecurityStock)

	require.Len(t, f.products.updates, 1)
	assert.Equal(t, settings, f.products.updates[0]["A"])

	_, ok := f.features.Get("A")
	assert.False(t, ok, "applying invalidates the feature bundle")

	_, err = f.svc.ApplyOptimization(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrNotFound, "an applied optimization is no longer pending")
	assert.Len(t, f.svc.PendingOptimizations(), 1)
}

func TestApplyOptimization_KeepsEntryFromNewerAnalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	_, err := f.svc.Analyze(ctx)
	require.NoError(t, err)

	f.products.onUpdate = func() {
		_, err := f.svc.Analyze(ctx)
		require.NoError(t, err)
	}
	_, err = f.svc.ApplyOptimization(ctx, "A")
	require.NoError(t, err)

	pending := f.svc.PendingOptimizations()
	assert.Contains(t, pending, "A", "a recommendation from the newer analysis stays pending")
	assert.Len(t, pending, 2)
}

func TestApplyAll_KeepsEntriesFromNewerAnalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	_, err := f.svc.Analyze(ctx)
	require.NoError(t, err)

	f.products.onUpdate = func() {
		_, err := f.svc.Analyze(ctx)
		require.NoError(t, err)
	}
	res, err := f.svc.ApplyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Len(t, f.svc.PendingOptimizations(), 2)
}

func TestApplyAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	_, err := f.svc.ApplyAll(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Analyze(ctx)
	require.NoError(t, err)

	res, err := f.svc.ApplyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, []string{"A", "B"}, res.SKUs)

	require.Len(t, f.products.updates, 1)
	assert.Len(t, f.products.updates[0], 2)
	assert.Empty(t, f.svc.PendingOptimizations())
}

func TestGetTopProblems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	_, err := f.svc.GetTopProblems(5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Analyze(ctx)
	require.NoError(t, err)

	top, err := f.svc.GetTopProblems(1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	// B's demand is flat, so only A has stockout and overstock days
	assert.Equal(t, "A", top[0].SKU)
	assert.Greater(t, top[0].Score, 0.0)
}

func TestForecast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	results, err := f.svc.Forecast(ctx, "B", 0)
	require.NoError(t, err)
	assert.Len(t, results, defaultForecastDays)
	for _, r := range results {
		assert.InDelta(t, 4, r.Value, 0.01)
		require.NotNil(t, r.Metadata.DataQualityScore)
	}

	results, err = f.svc.Forecast(ctx, "B", 500)
	require.NoError(t, err)
	assert.Len(t, results, maxForecastDays)
}

func TestForecastAccuracy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	acc, err := f.svc.ForecastAccuracy(ctx, "B")
	require.NoError(t, err)
	assert.InDelta(t, 0, acc.MAPE, 0.001)
	assert.InDelta(t, 100, acc.Accuracy, 0.001)

	_, err = f.svc.ForecastAccuracy(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFeatures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	bundle, err := f.svc.Features(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", bundle.SKU)

	cached, ok := f.features.Get("B")
	require.True(t, ok)
	assert.Equal(t, bundle.ComputedAt, cached.ComputedAt)
}

func TestRunRetrainingWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	t.Run("single SKU with flat demand needs no retraining", func(t *testing.T) {
		res, err := f.svc.RunRetrainingWorkflow(ctx, "B", retraining.WorkflowOptions{})
		require.NoError(t, err)
		require.NotNil(t, res.Evaluation)
		assert.InDelta(t, 0, res.Evaluation.MAPE, 0.001)
		assert.Nil(t, res.Retrain)
	})

	t.Run("empty SKU aggregates the catalog", func(t *testing.T) {
		res, err := f.svc.EvaluateModel(ctx, "")
		require.NoError(t, err)
		// A's ten days fold into B's first ten
		assert.Equal(t, 120, res.SampleSize)
	})

	t.Run("short history", func(t *testing.T) {
		_, err := f.svc.Retrain(ctx, "A", retraining.RetrainOptions{Force: true})
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
	})
}
