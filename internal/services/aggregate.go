package services

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"sales-dashboard/internal/models"
)

type SortOrder string

const (
	SortNone      SortOrder = ""
	SortValueAsc  SortOrder = "value_asc"
	SortValueDesc SortOrder = "value_desc"
	SortKeyAsc    SortOrder = "key_asc"
)

// GroupSpec describes one group-by-and-reduce over the filtered records.
type GroupSpec struct {
	Keys     []models.Dimension
	Measure  models.Measure
	Agg      models.Aggregation
	Distinct models.Dimension
	Sort     SortOrder
	Limit    int

	// SkipBlank drops records whose first key is empty, which is how a
	// missing categorical value shows up after loading.
	SkipBlank bool
}

type group struct {
	key     string
	series  string
	indices []int
}

// GroupAndAggregate runs group, aggregate, sort and limit. Groups come out
// in first-seen order unless a sort is requested; sorting is stable so ties
// keep that order.
func GroupAndAggregate(records []models.SalesRecord, spec GroupSpec) ([]models.SummaryRow, error) {
	if len(spec.Keys) == 0 || len(spec.Keys) > 2 {
		return nil, fmt.Errorf("group by %d keys: want 1 or 2", len(spec.Keys))
	}
	if spec.Agg == models.AggDistinctCount && spec.Distinct == "" {
		return nil, fmt.Errorf("distinct count without a dimension")
	}

	groups := groupRecords(records, spec)

	rows := make([]models.SummaryRow, 0, len(groups))
	for _, g := range groups {
		value, count, ok := reduce(records, g.indices, spec)
		if !ok {
			continue
		}
		rows = append(rows, models.SummaryRow{
			Key:    g.key,
			Series: g.series,
			Value:  value,
			Count:  count,
		})
	}

	sortRows(rows, spec.Sort)

	if spec.Limit > 0 && len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}
	return rows, nil
}

func groupRecords(records []models.SalesRecord, spec GroupSpec) []group {
	index := make(map[[2]string]int)
	var groups []group

	for i := range records {
		rec := &records[i]
		var k [2]string
		k[0] = rec.Dimension(spec.Keys[0])
		if spec.SkipBlank && k[0] == "" {
			continue
		}
		if len(spec.Keys) == 2 {
			k[1] = rec.Dimension(spec.Keys[1])
		}

		pos, ok := index[k]
		if !ok {
			pos = len(groups)
			index[k] = pos
			groups = append(groups, group{key: k[0], series: k[1]})
		}
		groups[pos].indices = append(groups[pos].indices, i)
	}
	return groups
}

// reduce returns ok=false when the group has no usable values, which only
// happens for a mean over a nullable measure.
func reduce(records []models.SalesRecord, indices []int, spec GroupSpec) (float64, int, bool) {
	switch spec.Agg {
	case models.AggCount:
		return float64(len(indices)), len(indices), true

	case models.AggDistinctCount:
		seen := make(map[string]struct{})
		for _, i := range indices {
			seen[records[i].Dimension(spec.Distinct)] = struct{}{}
		}
		return float64(len(seen)), len(indices), true

	case models.AggSum, models.AggMean:
		sum, n := sumMeasure(records, indices, spec.Measure)
		if spec.Agg == models.AggSum {
			return sum.InexactFloat64(), len(indices), true
		}
		if n == 0 {
			return 0, 0, false
		}
		return sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64(), n, true
	}
	return 0, 0, false
}

func sumMeasure(records []models.SalesRecord, indices []int, m models.Measure) (decimal.Decimal, int) {
	total := decimal.Zero
	n := 0
	for _, i := range indices {
		v, ok := records[i].Measure(m)
		if !ok {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
		n++
	}
	return total, n
}

func sortRows(rows []models.SummaryRow, order SortOrder) {
	switch order {
	case SortValueAsc:
		slices.SortStableFunc(rows, func(a, b models.SummaryRow) int { return cmp.Compare(a.Value, b.Value) })
	case SortValueDesc:
		slices.SortStableFunc(rows, func(a, b models.SummaryRow) int { return cmp.Compare(b.Value, a.Value) })
	case SortKeyAsc:
		slices.SortStableFunc(rows, func(a, b models.SummaryRow) int {
			return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Series, b.Series))
		})
	}
}

// Aggregate reduces every record to a single value. ok is false when there
// is nothing to reduce.
func Aggregate(records []models.SalesRecord, m models.Measure, agg models.Aggregation) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	indices := make([]int, len(records))
	for i := range indices {
		indices[i] = i
	}
	value, _, ok := reduce(records, indices, GroupSpec{Measure: m, Agg: agg})
	return value, ok
}
