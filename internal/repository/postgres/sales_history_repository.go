package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/jmoiron/sqlx"
)

type salesHistoryRepository struct {
	db *DB
}

func NewSalesHistoryRepository(db *DB) *salesHistoryRepository {
	return &salesHistoryRepository{db: db}
}

func (r *salesHistoryRepository) GetSalesHistory(ctx context.Context, sku string) ([]domain.SalesObservation, error) {
	query := `
		SELECT sku, sale_date, quantity
		FROM sales_history
		WHERE ($1 = '' OR sku = $1)
		ORDER BY sku, sale_date
	`

	var rows []domain.SalesObservation
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, sku); err != nil {
		return nil, fmt.Errorf("failed to get sales history: %w", err)
	}

	return rows, nil
}

func (r *salesHistoryRepository) GetSalesHistoryBySKU(ctx context.Context) (map[string][]domain.SalesObservation, error) {
	rows, err := r.GetSalesHistory(ctx, "")
	if err != nil {
		return nil, err
	}
	return groupBySKU(rows), nil
}

func groupBySKU(rows []domain.SalesObservation) map[string][]domain.SalesObservation {
	out := make(map[string][]domain.SalesObservation)
	for _, row := range rows {
		out[row.SKU] = append(out[row.SKU], row)
	}
	return out
}
