// backend-go/internal/repository/repository.go
package repository

import (
	"context"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
)

// SalesHistoryRepository is the history source the engine reads from.
type SalesHistoryRepository interface {
	// GetSalesHistory returns one SKU's daily sales ordered by date. An empty
	// sku returns every SKU's rows.
	GetSalesHistory(ctx context.Context, sku string) ([]domain.SalesObservation, error)
	GetSalesHistoryBySKU(ctx context.Context) (map[string][]domain.SalesObservation, error)
}

// ProductRepository is the catalog source. The engine only writes reorder
// settings back, and only when a caller applies an optimization.
type ProductRepository interface {
	GetAllProducts(ctx context.Context) ([]domain.ProductRecord, error)
	GetProduct(ctx context.Context, sku string) (*domain.ProductRecord, error)
	UpdateReorderSettings(ctx context.Context, updates map[string]domain.ReorderSettings) error
}

// IngestRepository loads catalog and sales data, e.g. from CSV exports.
type IngestRepository interface {
	UpsertProducts(ctx context.Context, products []domain.ProductRecord) (int, error)
	UpsertSales(ctx context.Context, observations []domain.SalesObservation) (int, error)
}
