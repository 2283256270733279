package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
)

type ingestRepository struct {
	db *DB
}

func NewIngestRepository(db *DB) *ingestRepository {
	return &ingestRepository{db: db}
}

func (r *ingestRepository) UpsertProducts(ctx context.Context, products []domain.ProductRecord) (int, error) {
	count := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO products (
				sku, name, category, stock, sales_per_day, sales_30d, lead_time_days,
				reorder_point, security_stock, buy_price, sell_price, multiplier, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (sku)
			DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				stock = EXCLUDED.stock,
				sales_per_day = EXCLUDED.sales_per_day,
				sales_30d = EXCLUDED.sales_30d,
				lead_time_days = EXCLUDED.lead_time_days,
				buy_price = EXCLUDED.buy_price,
				sell_price = EXCLUDED.sell_price,
				multiplier = EXCLUDED.multiplier,
				updated_at = NOW()
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range products {
			_, err := stmt.ExecContext(ctx,
				p.SKU, p.Name, p.Category, p.Stock, p.SalesPerDay, p.Sales30d, p.LeadTimeDays,
				p.ReorderPoint, p.SecurityStock, p.BuyPrice, p.SellPrice, p.DemandMultiplier(),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert product %s: %w", p.SKU, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertSales replaces the quantity of each (sku, day) pair.
func (r *ingestRepository) UpsertSales(ctx context.Context, observations []domain.SalesObservation) (int, error) {
	count := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO sales_history (sku, sale_date, quantity, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (sku, sale_date)
			DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, obs := range observations {
			if _, err := stmt.ExecContext(ctx, obs.SKU, series.Day(obs.Date), obs.Quantity); err != nil {
				return fmt.Errorf("failed to upsert sales for %s: %w", obs.SKU, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
