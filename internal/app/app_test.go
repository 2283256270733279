package app

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/config"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyProducts struct{}

func (emptyProducts) GetAllProducts(context.Context) ([]domain.ProductRecord, error) { return nil, nil }
func (emptyProducts) GetProduct(_ context.Context, sku string) (*domain.ProductRecord, error) {
	return nil, domain.NewReasonError(domain.KindNotFound, "product %s", sku)
}
func (emptyProducts) UpdateReorderSettings(context.Context, map[string]domain.ReorderSettings) error {
	return nil
}

type emptyHistory struct{}

func (emptyHistory) GetSalesHistory(context.Context, string) ([]domain.SalesObservation, error) {
	return nil, nil
}
func (emptyHistory) GetSalesHistoryBySKU(context.Context) (map[string][]domain.SalesObservation, error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		App:     config.AppConfig{AnalysisTimeout: time.Minute, ExportReports: true},
		Cache:   config.CacheConfig{MaxEntries: 10, DefaultTTL: time.Minute, FeatureStaleness: time.Hour},
		Storage: config.StorageConfig{LocalDir: t.TempDir(), ReportPrefix: "reports"},
		Forecast: config.ForecastConfig{
			WMAWindow:   10,
			MinMAPEDays: 45,
		},
		Retraining: config.RetrainingConfig{Enabled: true, Cooldown: time.Hour},
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), Repositories{Products: emptyProducts{}, History: emptyHistory{}})
	require.NoError(t, err)

	cfg := a.Engine.Config()
	assert.Equal(t, 10, cfg.WMAWindow)
	assert.Equal(t, 45, cfg.MinMAPEDays)
	assert.Equal(t, forecast.DefaultConfig().TrendWindow, cfg.TrendWindow)
	assert.True(t, a.Retraining.IsEnabled())

	rep, err := a.Service.Analyze(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Optimizations)
	assert.NotEmpty(t, rep.ReportKey, "reports export to the local directory")

	reports, err := a.Reports.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRetrainingConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retraining.Enabled = false
	cfg.Retraining.StateKey = "custom:key"

	rc := retrainingConfig(cfg)
	assert.False(t, rc.Enabled)
	assert.Equal(t, "custom:key", rc.StateKey)
	assert.Equal(t, time.Hour, rc.Cooldown)
	assert.Equal(t, 100, rc.MinTrainingSamples)
}
