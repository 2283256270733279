package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/app"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/config"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/backend-go/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

type dbKey struct{}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func newSKUFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: "sku", Usage: usage}
}

func initDB(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey{}, postgres.FromSQL(db, "pgx"))
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey{}).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) (*postgres.DB, error) {
	db, ok := c.Context.Value(dbKey{}).(*postgres.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database is not initialized")
	}
	return db, nil
}

// withApp builds the services on top of the command's database connection
func withApp(fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		db, err := dbFrom(c)
		if err != nil {
			return err
		}

		cfg := config.Load()
		if c.IsSet("export") {
			cfg.App.ExportReports = c.Bool("export")
		}

		a, err := app.New(c.Context, cfg, app.PostgresRepositories(db))
		if err != nil {
			return err
		}
		return fn(c, a)
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debug().Err(err).Msg("could not load .env file")
	}
	logger.SetLevel(config.Load().Server.LogLevel)

	cliApp := &cli.App{
		Name:  "optimizer",
		Usage: "Forecast demand and optimize reorder points",
		Flags: []cli.Flag{
			newDBURLFlag(),
		},
		Before: initDB,
		After:  closeDB,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the products and sales_history tables",
				Action: runMigrate,
			},
			{
				Name:  "import",
				Usage: "Load products and daily sales from CSV files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "products",
						Usage:   "Product catalog CSV",
						EnvVars: []string{"IMPORT_PRODUCTS_FILE"},
					},
					&cli.StringFlag{
						Name:    "sales",
						Usage:   "Daily sales CSV (sku,date,quantity)",
						EnvVars: []string{"IMPORT_SALES_FILE"},
					},
				},
				Action: runImport,
			},
			{
				Name:  "analyze",
				Usage: "Analyze inventory performance and propose reorder settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "export", Usage: "Upload the CSV report to object storage"},
					&cli.BoolFlag{Name: "apply", Usage: "Write every proposal back to the catalog"},
					&cli.IntFlag{Name: "top", Usage: "Number of problematic products to list", Value: 10},
				},
				Action: withApp(runAnalyze),
			},
			{
				Name:  "forecast",
				Usage: "Forecast daily demand for a SKU",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku", Usage: "SKU to forecast", Required: true},
					&cli.IntFlag{Name: "days", Usage: "Days ahead", Value: 7},
				},
				Action: withApp(runForecast),
			},
			{
				Name:   "evaluate",
				Usage:  "Backtest the forecast engine",
				Flags:  []cli.Flag{newSKUFlag("SKU to evaluate on; empty uses total demand")},
				Action: withApp(runEvaluate),
			},
			{
				Name:  "retrain",
				Usage: "Recalibrate the forecast engine",
				Flags: []cli.Flag{
					newSKUFlag("SKU to train on; empty uses total demand"),
					&cli.BoolFlag{Name: "force", Usage: "Ignore the retraining cooldown"},
				},
				Action: withApp(runRetrain),
			},
			{
				Name:   "reports",
				Usage:  "List exported optimization reports",
				Action: withApp(runReports),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("command failed")
	}
}
