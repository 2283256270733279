package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/jmoiron/sqlx"
)

const productColumns = `
	sku, name, category, stock, sales_per_day, sales_30d, lead_time_days,
	reorder_point, security_stock, buy_price, sell_price, multiplier
`

type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *productRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetAllProducts(ctx context.Context) ([]domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY sku`

	var products []domain.ProductRecord
	if err := sqlx.SelectContext(ctx, r.db, &products, query); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	return products, nil
}

func (r *productRepository) GetProduct(ctx context.Context, sku string) (*domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	var product domain.ProductRecord
	err := sqlx.GetContext(ctx, r.db, &product, query, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewReasonError(domain.KindNotFound, "product %s", sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", sku, err)
	}

	return &product, nil
}

// UpdateReorderSettings writes all updates in one transaction. An unknown SKU
// rolls the whole batch back.
func (r *productRepository) UpdateReorderSettings(ctx context.Context, updates map[string]domain.ReorderSettings) error {
	if len(updates) == 0 {
		return nil
	}

	skus := make([]string, 0, len(updates))
	for sku := range updates {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE products
			SET reorder_point = $2,
				security_stock = $3,
				updated_at = NOW()
			WHERE sku = $1
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, sku := range skus {
			s := updates[sku]
			res, err := stmt.ExecContext(ctx, sku, s.ReorderPoint, s.SecurityStock)
			if err != nil {
				return fmt.Errorf("failed to update reorder settings for %s: %w", sku, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return domain.NewReasonError(domain.KindNotFound, "product %s", sku)
			}
		}

		return nil
	})
}
