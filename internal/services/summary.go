package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
)

const (
	SectionOverview = "overview"
	SectionProduct  = "product"
	SectionRegional = "regional"
	SectionCustomer = "customer"
	SectionChannels = "channels"
	SectionQuality  = "quality"
)

// Sections lists the dashboard sections in navigation order.
var Sections = []string{
	SectionOverview,
	SectionProduct,
	SectionRegional,
	SectionCustomer,
	SectionChannels,
	SectionQuality,
}

const returnedStatus = "Returned"

var ErrUnknownTable = errors.New("unknown summary table")

var describedMeasures = []models.Measure{
	models.MeasureUnitPrice,
	models.MeasureDiscount,
	models.MeasureUnitsSold,
	models.MeasureRevenue,
	models.MeasureRating,
}

var correlatedMeasures = []models.Measure{
	models.MeasureUnitPrice,
	models.MeasureDiscount,
	models.MeasureUnitsSold,
	models.MeasureDiscountedPrice,
	models.MeasureRevenue,
	models.MeasureRating,
}

type buildFunc func(records []models.SalesRecord) ([]models.SummaryRow, error)

// tableBuilder pairs a table's metadata with the function that fills it.
type tableBuilder struct {
	meta  models.SummaryTable
	build buildFunc

	// emptyNote replaces the "no data" note when the input has records
	// but the table legitimately has no rows.
	emptyNote string
}

func grouped(spec GroupSpec) buildFunc {
	return func(records []models.SalesRecord) ([]models.SummaryRow, error) {
		return GroupAndAggregate(records, spec)
	}
}

func table(name, title, section string, kind models.TableKind, agg models.Aggregation, keyLabel, valueLabel string) models.SummaryTable {
	return models.SummaryTable{
		Name:        name,
		Title:       title,
		Section:     section,
		Kind:        kind,
		Aggregation: agg,
		KeyLabel:    keyLabel,
		ValueLabel:  valueLabel,
	}
}

func revenueBy(name, title, section string, kind models.TableKind, keyLabel string, sort SortOrder, limit int, keys ...models.Dimension) tableBuilder {
	return tableBuilder{
		meta: table(name, title, section, kind, models.AggSum, keyLabel, "Revenue (USD)"),
		build: grouped(GroupSpec{
			Keys: keys, Measure: models.MeasureRevenue, Agg: models.AggSum, Sort: sort, Limit: limit,
		}),
	}
}

func countBy(name, title, section, keyLabel string, dim models.Dimension, skipBlank bool) tableBuilder {
	return tableBuilder{
		meta: table(name, title, section, models.KindCategory, models.AggCount, keyLabel, "Transactions"),
		build: grouped(GroupSpec{
			Keys: []models.Dimension{dim}, Agg: models.AggCount, Sort: SortValueDesc, SkipBlank: skipBlank,
		}),
	}
}

// defaultBuilders is the full dashboard in build order.
var defaultBuilders = []tableBuilder{
	// overview
	revenueBy("revenue_by_year", "Revenue by Year", SectionOverview, models.KindCategory, "Year", SortKeyAsc, 0, models.DimYear),
	revenueBy("revenue_by_quarter", "Revenue by Quarter", SectionOverview, models.KindCategory, "Quarter", SortKeyAsc, 0, models.DimQuarter),
	revenueBy("monthly_revenue", "Monthly Revenue Trend", SectionOverview, models.KindSeries, "Month", SortKeyAsc, 0, models.DimPeriod, models.DimYear),
	revenueBy("revenue_year_quarter", "Revenue Heatmap: Year x Quarter", SectionOverview, models.KindMatrix, "Year", SortKeyAsc, 0, models.DimYear, models.DimQuarter),
	{
		meta: table("numeric_summary", "Descriptive Statistics", SectionOverview, models.KindStats, "", "Column", "Value"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return describeTable(records, describedMeasures), nil
		},
	},

	// product
	revenueBy("revenue_by_category", "Revenue by Category", SectionProduct, models.KindCategory, "Category", SortValueAsc, 0, models.DimCategory),
	countBy("transactions_by_category", "Transactions by Category", SectionProduct, "Category", models.DimCategory, false),
	revenueBy("top_products", "Top 15 Products by Revenue", SectionProduct, models.KindCategory, "Product", SortValueDesc, 15, models.DimProduct),
	revenueBy("revenue_by_network", "5G vs Non-5G Revenue", SectionProduct, models.KindCategory, "Network", SortValueDesc, 0, models.DimNetwork),
	{
		meta: table("rating_by_category", "Average Rating by Category", SectionProduct, models.KindCategory, models.AggMean, "Category", "Average Rating"),
		build: grouped(GroupSpec{
			Keys: []models.Dimension{models.DimCategory}, Measure: models.MeasureRating, Agg: models.AggMean, Sort: SortValueAsc,
		}),
	},
	{
		meta: table("discount_by_category", "Discount Distribution by Category", SectionProduct, models.KindStats, "", "Category", "Discount (%)"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return spreadTable(records, models.DimCategory, models.MeasureDiscount), nil
		},
	},

	// regional
	revenueBy("revenue_by_region", "Revenue by Region", SectionRegional, models.KindCategory, "Region", SortValueAsc, 0, models.DimRegion),
	revenueBy("top_countries", "Top 20 Countries by Revenue", SectionRegional, models.KindCategory, "Country", SortValueDesc, 20, models.DimCountry),
	revenueBy("revenue_region_category", "Revenue by Region and Category", SectionRegional, models.KindMatrix, "Region", SortKeyAsc, 0, models.DimRegion, models.DimCategory),
	revenueBy("revenue_region_year", "Regional Revenue by Year", SectionRegional, models.KindSeries, "Region", SortKeyAsc, 0, models.DimRegion, models.DimYear),

	// customer
	countBy("segments", "Customer Segments", SectionCustomer, "Segment", models.DimSegment, false),
	countBy("age_groups", "Age Group Distribution", SectionCustomer, "Age Group", models.DimAgeGroup, false),
	revenueBy("revenue_segment_year", "Revenue by Segment and Year", SectionCustomer, models.KindSeries, "Segment", SortKeyAsc, 0, models.DimSegment, models.DimYear),
	countBy("return_status", "Return Status Breakdown", SectionCustomer, "Status", models.DimReturnStatus, true),
	{
		meta: table("rating_distribution", "Customer Rating Distribution", SectionCustomer, models.KindHistogram, models.AggCount, "Rating", "Transactions"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return histogram(measureValues(records, models.MeasureRating), 20), nil
		},
	},
	countBy("previous_os", "Previous Device OS", SectionCustomer, "OS", models.DimPreviousOS, true),
	{
		meta: table("rating_age_category", "Average Rating: Age Group x Category", SectionCustomer, models.KindMatrix, models.AggMean, "Age Group", "Average Rating"),
		build: grouped(GroupSpec{
			Keys: []models.Dimension{models.DimAgeGroup, models.DimCategory}, Measure: models.MeasureRating, Agg: models.AggMean, Sort: SortKeyAsc,
		}),
	},
	{
		meta: table("distinct_products_by_segment", "Distinct Products by Segment", SectionCustomer, models.KindCategory, models.AggDistinctCount, "Segment", "Products"),
		build: grouped(GroupSpec{
			Keys: []models.Dimension{models.DimSegment}, Agg: models.AggDistinctCount, Distinct: models.DimProduct, Sort: SortValueDesc,
		}),
	},

	// channels
	revenueBy("revenue_by_channel", "Revenue by Sales Channel", SectionChannels, models.KindCategory, "Channel", SortValueAsc, 0, models.DimChannel),
	countBy("payment_methods", "Payment Methods", SectionChannels, "Payment Method", models.DimPaymentMethod, false),
	revenueBy("revenue_channel_category", "Channel Revenue by Category", SectionChannels, models.KindMatrix, "Channel", SortKeyAsc, 0, models.DimChannel, models.DimCategory),
	revenueBy("revenue_channel_year", "Channel Revenue by Year", SectionChannels, models.KindSeries, "Channel", SortKeyAsc, 0, models.DimChannel, models.DimYear),
	{
		meta: table("order_value_by_channel", "Average Order Value by Channel", SectionChannels, models.KindCategory, models.AggMean, "Channel", "Average Order (USD)"),
		build: grouped(GroupSpec{
			Keys: []models.Dimension{models.DimChannel}, Measure: models.MeasureRevenue, Agg: models.AggMean, Sort: SortValueAsc,
		}),
	},
	revenueBy("revenue_payment_segment", "Payment Method Revenue by Segment", SectionChannels, models.KindMatrix, "Payment Method", SortKeyAsc, 0, models.DimPaymentMethod, models.DimSegment),

	// quality
	{
		meta: table("missing_values", "Missing Values", SectionQuality, models.KindCategory, models.AggCount, "Column", "Missing (%)"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return missingTable(records), nil
		},
		emptyNote: "no missing values",
	},
	{
		meta: table("correlation", "Correlation Matrix", SectionQuality, models.KindMatrix, "", "Column", "Pearson r"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return correlationTable(records, correlatedMeasures), nil
		},
	},
	{
		meta: table("revenue_spread_by_category", "Revenue Spread by Category", SectionQuality, models.KindStats, "", "Category", "Revenue (USD)"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return spreadTable(records, models.DimCategory, models.MeasureRevenue), nil
		},
	},
	{
		meta: table("revenue_distribution", "Revenue Distribution", SectionQuality, models.KindHistogram, models.AggCount, "Revenue (USD)", "Transactions"),
		build: func(records []models.SalesRecord) ([]models.SummaryRow, error) {
			return histogram(measureValues(records, models.MeasureRevenue), 50), nil
		},
	},
}

// TableNames returns every table name in build order.
func TableNames() []string {
	names := make([]string, len(defaultBuilders))
	for i, b := range defaultBuilders {
		names[i] = b.meta.Name
	}
	return names
}

// BuildSummaries computes the KPI block and every summary table for an
// already filtered record set. total is the size of the unfiltered dataset. A table that fails is replaced by its
// placeholder and its error recorded; the others are unaffected. The only
// error returned is the context's.
func BuildSummaries(ctx context.Context, records []models.SalesRecord, total int) (*models.Summaries, error) {
	return buildSummaries(ctx, records, total, defaultBuilders)
}

func buildSummaries(ctx context.Context, records []models.SalesRecord, total int, builders []tableBuilder) (*models.Summaries, error) {
	out := &models.Summaries{
		Matched:     len(records),
		Total:       total,
		KPIs:        computeKPIs(records),
		Tables:      make([]models.SummaryTable, 0, len(builders)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, b := range builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := buildTable(b, records)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", b.meta.Name, err))
		}
		out.Tables = append(out.Tables, t)
	}

	return out, nil
}

// BuildTable computes a single named table. On failure it returns the
// placeholder together with the error.
func BuildTable(records []models.SalesRecord, name string) (models.SummaryTable, error) {
	for _, b := range defaultBuilders {
		if b.meta.Name == name {
			return buildTable(b, records)
		}
	}
	return models.SummaryTable{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

func buildTable(b tableBuilder, records []models.SalesRecord) (models.SummaryTable, error) {
	if len(records) == 0 {
		return b.meta.Placeholder(), nil
	}

	rows, err := safeBuild(b.build, records)
	if err != nil {
		return b.meta.Placeholder(), err
	}

	t := b.meta
	t.Rows = rows
	if len(rows) == 0 {
		t = t.Placeholder()
		if b.emptyNote != "" {
			t.Note = b.emptyNote
		}
	}
	return t, nil
}

// safeBuild runs one builder, turning a panic or a non-finite value into an error.
func safeBuild(build buildFunc, records []models.SalesRecord) (rows []models.SummaryRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	rows, err = build(records)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if math.IsNaN(row.Value) || math.IsInf(row.Value, 0) {
			return nil, fmt.Errorf("non-finite value for %q", row.Key)
		}
	}
	if rows == nil {
		rows = []models.SummaryRow{}
	}
	return rows, nil
}

func computeKPIs(records []models.SalesRecord) models.KPIs {
	if len(records) == 0 {
		return models.KPIs{NoData: true}
	}

	revenue := decimal.Zero
	var (
		returned, units int
		years           = make(map[int]struct{})
		regions         = make(map[string]struct{})
		categories      = make(map[string]struct{})
	)
	for i := range records {
		r := &records[i]
		revenue = revenue.Add(decimal.NewFromFloat(r.RevenueUSD))
		units += r.UnitsSold
		if strings.EqualFold(r.ReturnStatus, returnedStatus) {
			returned++
		}
		years[r.Year] = struct{}{}
		regions[r.Region] = struct{}{}
		categories[r.Category] = struct{}{}
	}

	n := len(records)
	avgRating, rated := Aggregate(records, models.MeasureRating, models.AggMean)
	avgDiscount, _ := Aggregate(records, models.MeasureDiscount, models.AggMean)

	return models.KPIs{
		TotalRevenue:    revenue.InexactFloat64(),
		Transactions:    n,
		AvgOrderValue:   revenue.Div(decimal.NewFromInt(int64(n))).InexactFloat64(),
		ReturnRatePct:   float64(returned) / float64(n) * 100,
		AvgRating:       avgRating,
		NoRating:        !rated,
		AvgDiscountPct:  avgDiscount,
		UnitsSold:       units,
		DistinctYears:   len(years),
		DistinctRegions: len(regions),
		DistinctCats:    len(categories),
	}
}
