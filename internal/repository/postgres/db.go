package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const maxConcurrentTx = 10

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB creates a new database connection pool
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

		var db *sqlx.DB
		db, err = sqlx.Connect("postgres", connStr)
		if err != nil {
			return
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		dbInstance = &DB{
			DB:  db,
			sem: semaphore.NewWeighted(maxConcurrentTx),
		}
	})

	return dbInstance, err
}

// FromSQL wraps an already opened *sql.DB, e.g. one from the pgx stdlib driver.
func FromSQL(db *sql.DB, driverName string) *DB {
	return &DB{
		DB:  sqlx.NewDb(db, driverName),
		sem: semaphore.NewWeighted(maxConcurrentTx),
	}
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	// Acquire semaphore
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx.Tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// EnsureSchema creates the tables the engine reads and writes
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		sku             TEXT PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT '',
		stock           INTEGER NOT NULL DEFAULT 0,
		sales_per_day   DOUBLE PRECISION NOT NULL DEFAULT 0,
		sales_30d       DOUBLE PRECISION NOT NULL DEFAULT 0,
		lead_time_days  DOUBLE PRECISION NOT NULL DEFAULT 0,
		reorder_point   DOUBLE PRECISION NOT NULL DEFAULT 0,
		security_stock  DOUBLE PRECISION NOT NULL DEFAULT 0,
		buy_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
		sell_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
		multiplier      DOUBLE PRECISION NOT NULL DEFAULT 1,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sales_history (
		sku        TEXT NOT NULL,
		sale_date  DATE NOT NULL,
		quantity   INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (sku, sale_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_history_sale_date ON sales_history (sale_date)`,
}
