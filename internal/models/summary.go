package models

import "time"

type Aggregation string

const (
	AggSum           Aggregation = "sum"
	AggMean          Aggregation = "mean"
	AggCount         Aggregation = "count"
	AggDistinctCount Aggregation = "distinct_count"
)

type TableKind string

const (
	KindCategory  TableKind = "category"
	KindSeries    TableKind = "series"
	KindMatrix    TableKind = "matrix"
	KindHistogram TableKind = "histogram"
	KindStats     TableKind = "stats"
)

const NoDataNote = "no data"

type SummaryRow struct {
	Key    string  `json:"key"`
	Series string  `json:"series,omitempty"`
	Value  float64 `json:"value"`
	Count  int     `json:"count"`
}

// SummaryTable is one chart-ready grouping of the filtered records.
type SummaryTable struct {
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	Section     string       `json:"section"`
	Kind        TableKind    `json:"kind"`
	Aggregation Aggregation  `json:"aggregation,omitempty"`
	KeyLabel    string       `json:"key_label"`
	ValueLabel  string       `json:"value_label"`
	Rows        []SummaryRow `json:"rows"`
	Empty       bool         `json:"empty"`
	Note        string       `json:"note,omitempty"`
}

// Placeholder turns t into the "no data" form used for empty input and for
// tables whose computation failed.
func (t SummaryTable) Placeholder() SummaryTable {
	t.Rows = []SummaryRow{}
	t.Empty = true
	t.Note = NoDataNote
	return t
}

// SeriesNames returns the distinct series values in first-seen order.
func (t SummaryTable) SeriesNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range t.Rows {
		if !seen[r.Series] {
			seen[r.Series] = true
			names = append(names, r.Series)
		}
	}
	return names
}

type KPIs struct {
	TotalRevenue    float64 `json:"total_revenue"`
	Transactions    int     `json:"transactions"`
	AvgOrderValue   float64 `json:"avg_order_value"`
	ReturnRatePct   float64 `json:"return_rate_pct"`
	AvgRating       float64 `json:"avg_rating"`
	AvgDiscountPct  float64 `json:"avg_discount_pct"`
	UnitsSold       int     `json:"units_sold"`
	DistinctYears   int     `json:"distinct_years"`
	DistinctRegions int     `json:"distinct_regions"`
	DistinctCats    int     `json:"distinct_categories"`
	NoData          bool    `json:"no_data"`

	// NoRating is set when no matched record has a rating.
	NoRating bool `json:"no_rating"`
}

// Summaries is the full output of one render cycle.
type Summaries struct {
	Matched     int            `json:"matched"`
	Total       int            `json:"total"`
	KPIs        KPIs           `json:"kpis"`
	Tables      []SummaryTable `json:"tables"`
	Errors      []string       `json:"errors,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Table looks up a table by name.
func (s *Summaries) Table(name string) (SummaryTable, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return SummaryTable{}, false
}

// Section returns the tables of one dashboard section in build order.
func (s *Summaries) Section(section string) []SummaryTable {
	var out []SummaryTable
	for _, t := range s.Tables {
		if t.Section == section {
			out = append(out, t)
		}
	}
	return out
}

// FilterOptions lists the selectable values for each filter control.
type FilterOptions struct {
	Dimensions map[Dimension][]string `json:"dimensions"`
	FirstDate  string                 `json:"first_date,omitempty"`
	LastDate   string                 `json:"last_date,omitempty"`
	Records    int                    `json:"records"`
}
