package main

import (
	"fmt"
	"os"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/app"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/ingest"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/retraining"
	"github.com/andresuchdata/autopo-forecast/backend-go/pkg/logger"
	"github.com/urfave/cli/v2"
)

func runMigrate(c *cli.Context) error {
	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	if err := db.EnsureSchema(c.Context); err != nil {
		return err
	}
	logger.Log.Info().Msg("schema is up to date")
	return nil
}

func runImport(c *cli.Context) error {
	productsFile, salesFile := c.String("products"), c.String("sales")
	if productsFile == "" && salesFile == "" {
		return fmt.Errorf("nothing to import: pass --products and/or --sales")
	}

	db, err := dbFrom(c)
	if err != nil {
		return err
	}
	repos := app.PostgresRepositories(db)

	if productsFile != "" {
		file, err := os.Open(productsFile)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", productsFile, err)
		}
		defer file.Close()

		products, err := ingest.ReadProducts(file)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", productsFile, err)
		}
		n, err := repos.Ingest.UpsertProducts(c.Context, products)
		if err != nil {
			return err
		}
		logger.Log.Info().Str("file", productsFile).Int("rows", n).Msg("products imported")
	}

	if salesFile != "" {
		file, err := os.Open(salesFile)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", salesFile, err)
		}
		defer file.Close()

		sales, err := ingest.ReadSales(file)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", salesFile, err)
		}
		n, err := repos.Ingest.UpsertSales(c.Context, sales)
		if err != nil {
			return err
		}
		logger.Log.Info().Str("file", salesFile).Int("rows", n).Msg("sales imported")
	}

	return nil
}

func runAnalyze(c *cli.Context, a *app.App) error {
	report, err := a.Service.Analyze(c.Context)
	if err != nil {
		return err
	}

	problems, err := a.Service.GetTopProblems(c.Int("top"))
	if err != nil {
		return err
	}

	out := map[string]any{
		"summary":       report.Summary,
		"optimized":     len(report.Optimizations),
		"skipped":       report.Skipped,
		"total_savings": report.TotalSavings,
		"problems":      problems,
	}
	if report.ReportKey != "" {
		out["report_key"] = report.ReportKey
	}

	if c.Bool("apply") && len(report.Optimizations) > 0 {
		applied, err := a.Service.ApplyAll(c.Context)
		if err != nil {
			return err
		}
		out["applied"] = applied.Applied
	}

	return printJSON(c, out)
}

func runForecast(c *cli.Context, a *app.App) error {
	forecasts, err := a.Service.Forecast(c.Context, c.String("sku"), c.Int("days"))
	if err != nil {
		return err
	}
	return printJSON(c, forecasts)
}

func runEvaluate(c *cli.Context, a *app.App) error {
	result, err := a.Service.EvaluateModel(c.Context, c.String("sku"))
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func runRetrain(c *cli.Context, a *app.App) error {
	result, err := a.Service.Retrain(c.Context, c.String("sku"), retraining.RetrainOptions{
		Force:         c.Bool("force"),
		ValidateAfter: true,
	})
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func runReports(c *cli.Context, a *app.App) error {
	reports, err := a.Reports.ListReports(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, reports)
}
