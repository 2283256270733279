package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/storage"
)

var optimizationHeader = []string{
	"SKU",
	"Current Reorder Point",
	"Optimized Reorder Point",
	"Current Security Stock",
	"Optimized Security Stock",
	"Confidence",
	"Stockout Rate",
	"Overstock Rate",
	"Current Cost",
	"Optimized Cost",
	"Savings Per Year",
	"Savings Percent",
	"Reasoning",
}

// WriteOptimizationsCSV writes one row per SKU, sorted by SKU.
func WriteOptimizationsCSV(w io.Writer, results map[string]domain.OptimizationResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(optimizationHeader); err != nil {
		return err
	}

	skus := make([]string, 0, len(results))
	for sku := range results {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		r := results[sku]
		record := []string{
			r.SKU,
			fmt.Sprintf("%.0f", r.CurrentSettings.ReorderPoint),
			fmt.Sprintf("%d", r.ReorderPoint),
			fmt.Sprintf("%.0f", r.CurrentSettings.SecurityStock),
			fmt.Sprintf("%d", r.SecurityStock),
			fmt.Sprintf("%d", r.Confidence),
			fmt.Sprintf("%.1f%%", r.PerformanceAnalysis.StockoutRate*100),
			fmt.Sprintf("%.1f%%", r.PerformanceAnalysis.OverstockRate*100),
			fmt.Sprintf("%.2f", r.CostAnalysis.Current.Total),
			fmt.Sprintf("%.2f", r.CostAnalysis.Optimized.Total),
			fmt.Sprintf("%.2f", r.CostAnalysis.Savings.PerYear),
			fmt.Sprintf("%.1f", r.CostAnalysis.Savings.Percent),
			reasons(r.Reasoning),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func reasons(rs []domain.Reasoning) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Parameter == "" {
			parts = append(parts, r.Reason)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %+.0f: %s", r.Parameter, r.Type, r.Change, r.Reason))
	}
	return strings.Join(parts, "; ")
}

// Exporter uploads optimization reports to object storage.
type Exporter struct {
	store  storage.ObjectStorage
	prefix string
	now    func() time.Time
}

func NewExporter(store storage.ObjectStorage, prefix string) *Exporter {
	return &Exporter{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// ExportOptimizations uploads a timestamped CSV and returns its key.
func (e *Exporter) ExportOptimizations(ctx context.Context, results map[string]domain.OptimizationResult) (string, error) {
	var buf bytes.Buffer
	if err := WriteOptimizationsCSV(&buf, results); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	key := path.Join(e.prefix, e.now().UTC().Format("20060102T150405Z")+"-optimizations.csv")
	if err := e.store.UploadObject(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return key, nil
}

// ListReports lists exported reports, newest first.
func (e *Exporter) ListReports(ctx context.Context) ([]storage.ObjectInfo, error) {
	prefix := e.prefix
	if prefix != "" {
		prefix += "/"
	}

	objects, err := e.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}
