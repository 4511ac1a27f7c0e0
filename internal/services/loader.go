package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-dashboard/internal/models"
)

const (
	loadBatchSize  = 5000
	defaultWorkers = 8
)

const (
	colSaleDate        = "sale_date"
	colCountry         = "country"
	colRegion          = "region"
	colCity            = "city"
	colCategory        = "category"
	colProduct         = "product_name"
	colIs5G            = "is_5g"
	colUnitPrice       = "unit_price_usd"
	colDiscount        = "discount_pct"
	colUnitsSold       = "units_sold"
	colDiscountedPrice = "discounted_price_usd"
	colRevenue         = "revenue_usd"
	colRevenueLocal    = "revenue_local"
	colLocalCurrency   = "local_currency"
	colAgeGroup        = "customer_age_group"
	colSegment         = "customer_segment"
	colPreviousOS      = "previous_device_os"
	colRating          = "customer_rating"
	colChannel         = "sales_channel"
	colPayment         = "payment_method"
	colReturnStatus    = "return_status"
)

var requiredColumns = []string{
	colSaleDate, colCountry, colRegion, colCity, colCategory, colProduct,
	colUnitPrice, colDiscount, colUnitsSold, colRevenue,
	colAgeGroup, colSegment, colChannel, colPayment,
}

// ExportColumns is the canonical column order used when writing records back out.
var ExportColumns = []string{
	colSaleDate, "year", "quarter", "month",
	colCountry, colRegion, colCity, colCategory, colProduct, colIs5G,
	colUnitPrice, colDiscount, colUnitsSold, colDiscountedPrice, colRevenue,
	colRevenueLocal, colLocalCurrency,
	colAgeGroup, colSegment, colPreviousOS, colRating,
	colChannel, colPayment, colReturnStatus,
}

var dateLayouts = []string{models.DateLayout, "2006-01-02 15:04:05", time.RFC3339}

var (
	ErrEmptyFile     = errors.New("empty file")
	ErrMissingColumn = errors.New("missing required column")
	ErrNoRecords     = errors.New("no records found")
	ErrMissingValue  = errors.New("missing required value")
)

// LoadError describes why the dataset could not be loaded. Line is 0 for
// file-level failures.
type LoadError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("load ")
	b.WriteString(e.Source)
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": value %q", e.Value)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type Loader struct {
	workers int
	logger  *slog.Logger
}

func NewLoader(workers int, logger *slog.Logger) *Loader {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{workers: workers, logger: logger}
}

func (l *Loader) LoadFile(ctx context.Context, filename string) (*models.Dataset, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &LoadError{Source: filename, Err: err}
	}
	defer file.Close()

	return l.Load(ctx, file, filename)
}

// Load reads every row, coerces it into a SalesRecord and fails with the
// first malformed row in file order. Row order is preserved.
func (l *Loader) Load(ctx context.Context, r io.Reader, source string) (*models.Dataset, error) {
	start := time.Now()
	l.logger.Info("loading dataset", "source", source)

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &LoadError{Source: source, Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &LoadError{Source: source, Line: 1, Err: err}
	}

	index, err := newColumnIndex(header)
	if err != nil {
		return nil, &LoadError{Source: source, Line: 1, Err: err}
	}

	var (
		rows  [][]string
		lines []int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: source, Err: err}
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}

	if len(rows) == 0 {
		return nil, &LoadError{Source: source, Err: ErrNoRecords}
	}

	records := make([]models.SalesRecord, len(rows))

	// Each batch stops at its own first bad row. Batches past the lowest
	// failure seen so far give up early, so the reported row is always the
	// first bad one in the file.
	failures := make([]*LoadError, (len(rows)+loadBatchSize-1)/loadBatchSize)
	var firstBad atomic.Int64
	firstBad.Store(int64(len(rows)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for lo := 0; lo < len(rows); lo += loadBatchSize {
		hi := min(lo+loadBatchSize, len(rows))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if int64(i) > firstBad.Load() {
					return nil
				}
				rec, err := index.parse(rows[i])
				if err != nil {
					failures[lo/loadBatchSize] = newRowError(source, lines[i], err)
					lowerFirstBad(&firstBad, int64(i))
					return nil
				}
				records[i] = rec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, f := range failures {
		if f != nil {
			return nil, f
		}
	}

	l.logger.Info("dataset loaded",
		"source", source,
		"records", len(records),
		"duration", time.Since(start),
	)

	return models.NewDataset(records, source, time.Now()), nil
}

func newRowError(source string, line int, err error) *LoadError {
	loadErr := &LoadError{Source: source, Line: line, Err: err}
	var fe *fieldError
	if errors.As(err, &fe) {
		loadErr.Column, loadErr.Value, loadErr.Err = fe.column, fe.value, fe.err
	}
	return loadErr
}

func lowerFirstBad(first *atomic.Int64, i int64) {
	for {
		cur := first.Load()
		if i >= cur || first.CompareAndSwap(cur, i) {
			return
		}
	}
}

type fieldError struct {
	column string
	value  string
	err    error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("column %q value %q: %v", e.column, e.value, e.err)
}

func (e *fieldError) Unwrap() error {
	return e.err
}

type columnIndex map[string]int

func newColumnIndex(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func (idx columnIndex) get(row []string, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (idx columnIndex) parse(row []string) (models.SalesRecord, error) {
	var rec models.SalesRecord
	var err error

	raw := idx.get(row, colSaleDate)
	if rec.SaleDate, err = parseDate(raw); err != nil {
		return rec, &fieldError{colSaleDate, raw, err}
	}
	rec.Year = rec.SaleDate.Year()
	rec.Month = int(rec.SaleDate.Month())
	rec.Quarter = (rec.Month-1)/3 + 1

	for _, f := range []struct {
		col      string
		dst      *string
		required bool
	}{
		{colCountry, &rec.Country, true},
		{colRegion, &rec.Region, true},
		{colCity, &rec.City, true},
		{colCategory, &rec.Category, true},
		{colProduct, &rec.Product, true},
		{colAgeGroup, &rec.AgeGroup, true},
		{colSegment, &rec.Segment, true},
		{colChannel, &rec.Channel, true},
		{colPayment, &rec.PaymentMethod, true},
		{colPreviousOS, &rec.PreviousOS, false},
		{colLocalCurrency, &rec.LocalCurrency, false},
		{colReturnStatus, &rec.ReturnStatus, false},
	} {
		*f.dst = idx.get(row, f.col)
		if f.required && *f.dst == "" {
			return rec, &fieldError{f.col, "", ErrMissingValue}
		}
	}

	for _, f := range []struct {
		col string
		dst *float64
	}{
		{colUnitPrice, &rec.UnitPriceUSD},
		{colDiscount, &rec.DiscountPct},
		{colRevenue, &rec.RevenueUSD},
	} {
		raw := idx.get(row, f.col)
		if raw == "" {
			return rec, &fieldError{f.col, "", ErrMissingValue}
		}
		v, err := parseFinite(raw)
		if err != nil {
			return rec, &fieldError{f.col, raw, err}
		}
		*f.dst = v
	}

	for _, f := range []struct {
		col string
		dst **float64
	}{
		{colDiscountedPrice, &rec.DiscountedPriceUSD},
		{colRevenueLocal, &rec.RevenueLocal},
	} {
		raw := idx.get(row, f.col)
		if *f.dst, err = parseOptional(raw); err != nil {
			return rec, &fieldError{f.col, raw, err}
		}
	}

	raw = idx.get(row, colUnitsSold)
	if raw == "" {
		return rec, &fieldError{colUnitsSold, "", ErrMissingValue}
	}
	if rec.UnitsSold, err = parseCount(raw); err != nil {
		return rec, &fieldError{colUnitsSold, raw, err}
	}

	raw = idx.get(row, colIs5G)
	if rec.Is5G, err = parseFlag(raw); err != nil {
		return rec, &fieldError{colIs5G, raw, err}
	}

	raw = idx.get(row, colRating)
	if rec.Rating, err = parseOptional(raw); err != nil {
		return rec, &fieldError{colRating, raw, err}
	}

	return rec, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrMissingValue
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognised date format")
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("value is not finite")
	}
	return v, nil
}

// parseOptional treats an empty cell or NaN as missing.
func parseOptional(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := parseFinite(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Exported spreadsheets often write whole counts as "2.0".
	v, err := parseFinite(s)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, errors.New("not a whole number")
	}
	return int(v), nil
}

// parseFlag returns nil for an empty cell.
func parseFlag(s string) (*bool, error) {
	var v bool
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "no", "n":
		v = false
	case "yes", "y":
		v = true
	default:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		v = b
	}
	return &v, nil
}
