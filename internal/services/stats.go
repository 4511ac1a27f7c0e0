package services

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"sales-dashboard/internal/models"
)

var describeStats = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

var boxStats = []string{"min", "q1", "median", "q3", "max"}

// measureValues collects the non-missing values of m in record order.
func measureValues(records []models.SalesRecord, m models.Measure) []float64 {
	values := make([]float64, 0, len(records))
	for i := range records {
		if v, ok := records[i].Measure(m); ok {
			values = append(values, v)
		}
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation; it is 0 below two values.
func stddev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// quantile uses linear interpolation between closest ranks. sorted must be
// in ascending order and non-empty.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// describe returns count, mean, std, min, quartiles and max in describeStats order.
func describe(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return []float64{
		float64(len(sorted)),
		mean(sorted),
		stddev(sorted),
		sorted[0],
		quantile(sorted, 0.25),
		quantile(sorted, 0.5),
		quantile(sorted, 0.75),
		sorted[len(sorted)-1],
	}
}

func fiveNumber(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return []float64{
		sorted[0],
		quantile(sorted, 0.25),
		quantile(sorted, 0.5),
		quantile(sorted, 0.75),
		sorted[len(sorted)-1],
	}
}

// describeTable builds one row per (measure, statistic).
func describeTable(records []models.SalesRecord, measures []models.Measure) []models.SummaryRow {
	var rows []models.SummaryRow
	for _, m := range measures {
		values := measureValues(records, m)
		stats := describe(values)
		for i, v := range stats {
			rows = append(rows, models.SummaryRow{
				Key:    string(m),
				Series: describeStats[i],
				Value:  v,
				Count:  len(values),
			})
		}
	}
	return rows
}

// spreadTable builds the five-number summary of m for each value of dim,
// keyed in first-seen order.
func spreadTable(records []models.SalesRecord, dim models.Dimension, m models.Measure) []models.SummaryRow {
	byKey := make(map[string][]float64)
	var order []string
	for i := range records {
		v, ok := records[i].Measure(m)
		if !ok {
			continue
		}
		k := records[i].Dimension(dim)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], v)
	}

	var rows []models.SummaryRow
	for _, k := range order {
		for i, v := range fiveNumber(byKey[k]) {
			rows = append(rows, models.SummaryRow{
				Key:    k,
				Series: boxStats[i],
				Value:  v,
				Count:  len(byKey[k]),
			})
		}
	}
	return rows
}

// histogram splits [min, max] into equal-width bins. The last bin is closed
// on the right. A constant input produces a single bin.
func histogram(values []float64, bins int) []models.SummaryRow {
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	lo, hi := slices.Min(values), slices.Max(values)
	if lo == hi {
		return []models.SummaryRow{{
			Key:   binLabel(lo, hi),
			Value: float64(len(values)),
			Count: len(values),
		}}
	}

	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}

	rows := make([]models.SummaryRow, bins)
	for i, c := range counts {
		start := lo + float64(i)*width
		rows[i] = models.SummaryRow{
			Key:   binLabel(start, start+width),
			Value: float64(c),
			Count: c,
		}
	}
	return rows
}

func binLabel(lo, hi float64) string {
	return fmt.Sprintf("%.2f-%.2f", lo, hi)
}

// pearson returns the correlation coefficient of x and y. ok is false when
// either side has no variance.
func pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0, false
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	r := sxy / math.Sqrt(sxx*syy)
	return math.Max(-1, math.Min(1, r)), true
}

// correlationTable computes the pairwise matrix over records that have a
// value for every measure. Undefined pairs are left out.
func correlationTable(records []models.SalesRecord, measures []models.Measure) []models.SummaryRow {
	columns := make([][]float64, len(measures))
	for i := range records {
		row := make([]float64, len(measures))
		complete := true
		for j, m := range measures {
			v, ok := records[i].Measure(m)
			if !ok {
				complete = false
				break
			}
			row[j] = v
		}
		if !complete {
			continue
		}
		for j := range measures {
			columns[j] = append(columns[j], row[j])
		}
	}

	var rows []models.SummaryRow
	for i, a := range measures {
		for j, b := range measures {
			r, ok := pearson(columns[i], columns[j])
			if !ok {
				continue
			}
			if i == j {
				r = 1
			}
			rows = append(rows, models.SummaryRow{
				Key:    string(a),
				Series: string(b),
				Value:  r,
				Count:  len(columns[i]),
			})
		}
	}
	return rows
}

type missingCheck struct {
	column  string
	missing func(r *models.SalesRecord) bool
}

func blankText(get func(r *models.SalesRecord) string) func(r *models.SalesRecord) bool {
	return func(r *models.SalesRecord) bool { return strings.TrimSpace(get(r)) == "" }
}

// missingChecks covers every column the loader reads that can hold a blank.
// Required columns are rejected at load, so they only show up here for
// records built some other way.
var missingChecks = []missingCheck{
	{colSaleDate, func(r *models.SalesRecord) bool { return r.SaleDate.IsZero() }},
	{colCountry, blankText(func(r *models.SalesRecord) string { return r.Country })},
	{colRegion, blankText(func(r *models.SalesRecord) string { return r.Region })},
	{colCity, blankText(func(r *models.SalesRecord) string { return r.City })},
	{colCategory, blankText(func(r *models.SalesRecord) string { return r.Category })},
	{colProduct, blankText(func(r *models.SalesRecord) string { return r.Product })},
	{colIs5G, func(r *models.SalesRecord) bool { return r.Is5G == nil }},
	{colDiscountedPrice, func(r *models.SalesRecord) bool { return r.DiscountedPriceUSD == nil }},
	{colRevenueLocal, func(r *models.SalesRecord) bool { return r.RevenueLocal == nil }},
	{colLocalCurrency, blankText(func(r *models.SalesRecord) string { return r.LocalCurrency })},
	{colAgeGroup, blankText(func(r *models.SalesRecord) string { return r.AgeGroup })},
	{colSegment, blankText(func(r *models.SalesRecord) string { return r.Segment })},
	{colPreviousOS, blankText(func(r *models.SalesRecord) string { return r.PreviousOS })},
	{colRating, func(r *models.SalesRecord) bool { return r.Rating == nil }},
	{colChannel, blankText(func(r *models.SalesRecord) string { return r.Channel })},
	{colPayment, blankText(func(r *models.SalesRecord) string { return r.PaymentMethod })},
	{colReturnStatus, blankText(func(r *models.SalesRecord) string { return r.ReturnStatus })},
}

// missingTable reports columns with at least one missing value, most missing
// first. Value is the percentage of records, Count the absolute number.
func missingTable(records []models.SalesRecord) []models.SummaryRow {
	if len(records) == 0 {
		return nil
	}
	var rows []models.SummaryRow
	for _, check := range missingChecks {
		n := 0
		for i := range records {
			if check.missing(&records[i]) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		rows = append(rows, models.SummaryRow{
			Key:   check.column,
			Value: math.Round(float64(n)/float64(len(records))*10000) / 100,
			Count: n,
		})
	}
	slices.SortStableFunc(rows, func(a, b models.SummaryRow) int { return b.Count - a.Count })
	return rows
}
