// Package ingest parses catalog and sales CSV exports.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
)

const dateLayout = "2006-01-02"

var (
	productColumns = []string{"sku", "name", "stock", "sales_per_day", "sales_30d", "lead_time_days",
		"reorder_point", "security_stock", "buy_price", "sell_price", "multiplier", "category"}
	salesColumns = []string{"sku", "date", "quantity"}
)

// header maps lower-cased column names to their index
type header map[string]int

func readHeader(reader *csv.Reader, required ...string) (header, error) {
	row, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}
	return h, nil
}

func (h header) get(record []string, col string) string {
	idx, ok := h[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (h header) float(record []string, col string, line int) (float64, error) {
	v := h.get(record, col)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q", line, col, v)
	}
	return f, nil
}

// ReadProducts parses a product catalog CSV. Only sku is required; missing
// numeric columns read as zero.
func ReadProducts(r io.Reader) ([]domain.ProductRecord, error) {
	reader := csv.NewReader(r)
	h, err := readHeader(reader, "sku")
	if err != nil {
		return nil, err
	}

	var products []domain.ProductRecord
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		sku := h.get(record, "sku")
		if sku == "" {
			return nil, fmt.Errorf("line %d: empty sku", line)
		}

		var nums [9]float64
		for i, col := range productColumns[2:11] {
			if nums[i], err = h.float(record, col, line); err != nil {
				return nil, err
			}
		}

		products = append(products, domain.ProductRecord{
			SKU:           sku,
			Name:          h.get(record, "name"),
			Stock:         int(nums[0]),
			SalesPerDay:   nums[1],
			Sales30d:      nums[2],
			LeadTimeDays:  nums[3],
			ReorderPoint:  nums[4],
			SecurityStock: nums[5],
			BuyPrice:      nums[6],
			SellPrice:     nums[7],
			Multiplier:    nums[8],
			Category:      h.get(record, "category"),
		})
	}
	return products, nil
}

// ReadSales parses a daily sales CSV with sku, date (YYYY-MM-DD) and quantity.
func ReadSales(r io.Reader) ([]domain.SalesObservation, error) {
	reader := csv.NewReader(r)
	h, err := readHeader(reader, salesColumns...)
	if err != nil {
		return nil, err
	}

	var sales []domain.SalesObservation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		sku := h.get(record, "sku")
		if sku == "" {
			return nil, fmt.Errorf("line %d: empty sku", line)
		}
		date, err := time.Parse(dateLayout, h.get(record, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, h.get(record, "date"))
		}
		qty, err := strconv.Atoi(h.get(record, "quantity"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid quantity %q", line, h.get(record, "quantity"))
		}
		if qty < 0 {
			qty = 0
		}

		sales = append(sales, domain.SalesObservation{SKU: sku, Date: date, Quantity: qty})
	}
	return sales, nil
}
