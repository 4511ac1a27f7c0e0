package models

import (
	"strconv"
	"time"
)

// SalesRecord is one row of the sales dataset. Values are never mutated
// after the loader builds them.
type SalesRecord struct {
	SaleDate time.Time `json:"sale_date"`
	Year     int       `json:"year"`
	Quarter  int       `json:"quarter"`
	Month    int       `json:"month"`

	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`

	Category string `json:"category"`
	Product  string `json:"product_name"`
	Is5G     *bool  `json:"is_5g"`

	UnitPriceUSD       float64  `json:"unit_price_usd"`
	DiscountPct        float64  `json:"discount_pct"`
	UnitsSold          int      `json:"units_sold"`
	DiscountedPriceUSD *float64 `json:"discounted_price_usd"`
	RevenueUSD         float64  `json:"revenue_usd"`
	RevenueLocal       *float64 `json:"revenue_local"`
	LocalCurrency      string   `json:"local_currency"`

	AgeGroup   string   `json:"customer_age_group"`
	Segment    string   `json:"customer_segment"`
	PreviousOS string   `json:"previous_device_os"`
	Rating     *float64 `json:"customer_rating"`

	Channel       string `json:"sales_channel"`
	PaymentMethod string `json:"payment_method"`
	ReturnStatus  string `json:"return_status"`
}

// Dimension names a categorical attribute that records can be filtered and
// grouped on.
type Dimension string

const (
	DimYear          Dimension = "year"
	DimQuarter       Dimension = "quarter"
	DimPeriod        Dimension = "period"
	DimCountry       Dimension = "country"
	DimRegion        Dimension = "region"
	DimCity          Dimension = "city"
	DimCategory      Dimension = "category"
	DimProduct       Dimension = "product"
	DimNetwork       Dimension = "network"
	DimSegment       Dimension = "segment"
	DimAgeGroup      Dimension = "age_group"
	DimPreviousOS    Dimension = "previous_os"
	DimChannel       Dimension = "channel"
	DimPaymentMethod Dimension = "payment_method"
	DimReturnStatus  Dimension = "return_status"
)

// FilterDimensions lists the dimensions exposed as filter controls, in
// display order.
var FilterDimensions = []Dimension{
	DimYear,
	DimQuarter,
	DimRegion,
	DimCountry,
	DimCity,
	DimCategory,
	DimProduct,
	DimNetwork,
	DimSegment,
	DimAgeGroup,
	DimChannel,
	DimPaymentMethod,
	DimReturnStatus,
}

func (d Dimension) Filterable() bool {
	for _, f := range FilterDimensions {
		if f == d {
			return true
		}
	}
	return false
}

// Dimension returns the string value of a categorical attribute. Year,
// quarter and period are derived from the sale date.
func (r *SalesRecord) Dimension(d Dimension) string {
	switch d {
	case DimYear:
		return strconv.Itoa(r.Year)
	case DimQuarter:
		return "Q" + strconv.Itoa(r.Quarter)
	case DimPeriod:
		return r.SaleDate.Format("2006-01")
	case DimCountry:
		return r.Country
	case DimRegion:
		return r.Region
	case DimCity:
		return r.City
	case DimCategory:
		return r.Category
	case DimProduct:
		return r.Product
	case DimNetwork:
		if r.FiveG() {
			return "5G"
		}
		return "Non-5G"
	case DimSegment:
		return r.Segment
	case DimAgeGroup:
		return r.AgeGroup
	case DimPreviousOS:
		return r.PreviousOS
	case DimChannel:
		return r.Channel
	case DimPaymentMethod:
		return r.PaymentMethod
	case DimReturnStatus:
		return r.ReturnStatus
	default:
		return ""
	}
}

// FiveG reports the network flag. A blank cell counts as Non-5G.
func (r *SalesRecord) FiveG() bool {
	return r.Is5G != nil && *r.Is5G
}

// Measure names a numeric attribute.
type Measure string

const (
	MeasureUnitPrice       Measure = "unit_price_usd"
	MeasureDiscount        Measure = "discount_pct"
	MeasureUnitsSold       Measure = "units_sold"
	MeasureDiscountedPrice Measure = "discounted_price_usd"
	MeasureRevenue         Measure = "revenue_usd"
	MeasureRevenueLocal    Measure = "revenue_local"
	MeasureRating          Measure = "customer_rating"
)

// Measure returns a numeric attribute. ok is false when the value is
// missing, which can only happen for the optional columns.
func (r *SalesRecord) Measure(m Measure) (value float64, ok bool) {
	switch m {
	case MeasureUnitPrice:
		return r.UnitPriceUSD, true
	case MeasureDiscount:
		return r.DiscountPct, true
	case MeasureUnitsSold:
		return float64(r.UnitsSold), true
	case MeasureDiscountedPrice:
		return optional(r.DiscountedPriceUSD)
	case MeasureRevenue:
		return r.RevenueUSD, true
	case MeasureRevenueLocal:
		return optional(r.RevenueLocal)
	case MeasureRating:
		return optional(r.Rating)
	default:
		return 0, false
	}
}

func optional(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Dataset is the read-only record set loaded once at startup.
type Dataset struct {
	records  []SalesRecord
	source   string
	loadedAt time.Time
}

func NewDataset(records []SalesRecord, source string, loadedAt time.Time) *Dataset {
	return &Dataset{
		records:  records,
		source:   source,
		loadedAt: loadedAt,
	}
}

// Records returns the backing slice in file order. Callers must not modify it.
func (d *Dataset) Records() []SalesRecord {
	if d == nil {
		return nil
	}
	return d.records
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

func (d *Dataset) Source() string      { return d.source }
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Span returns the first and last sale dates. ok is false for an empty dataset.
func (d *Dataset) Span() (first, last time.Time, ok bool) {
	for i := range d.Records() {
		date := d.records[i].SaleDate
		if !ok || date.Before(first) {
			first = date
		}
		if !ok || date.After(last) {
			last = date
		}
		ok = true
	}
	return first, last, ok
}
