package handlers

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

// FilterRequest is the wire form of a constraint set. The same field names
// are used for query parameters and for the datastar "filters" signal.
type FilterRequest struct {
	Start         string   `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End           string   `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Year          []string `json:"year" validate:"dive,numeric,len=4"`
	Quarter       []string `json:"quarter" validate:"dive,oneof=Q1 Q2 Q3 Q4 q1 q2 q3 q4 1 2 3 4"`
	Country       []string `json:"country" validate:"dive,max=128"`
	Region        []string `json:"region" validate:"dive,max=128"`
	City          []string `json:"city" validate:"dive,max=128"`
	Category      []string `json:"category" validate:"dive,max=128"`
	Product       []string `json:"product" validate:"dive,max=128"`
	Network       []string `json:"network" validate:"dive,max=16"`
	Segment       []string `json:"segment" validate:"dive,max=128"`
	AgeGroup      []string `json:"age_group" validate:"dive,max=128"`
	Channel       []string `json:"channel" validate:"dive,max=128"`
	PaymentMethod []string `json:"payment_method" validate:"dive,max=128"`
	ReturnStatus  []string `json:"return_status" validate:"dive,max=128"`
}

// FilterSignals is the datastar signal envelope sent by the dashboard page.
type FilterSignals struct {
	Filters FilterRequest `json:"filters"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (f *FilterRequest) dimensions() map[models.Dimension]*[]string {
	return map[models.Dimension]*[]string{
		models.DimYear:          &f.Year,
		models.DimQuarter:       &f.Quarter,
		models.DimCountry:       &f.Country,
		models.DimRegion:        &f.Region,
		models.DimCity:          &f.City,
		models.DimCategory:      &f.Category,
		models.DimProduct:       &f.Product,
		models.DimNetwork:       &f.Network,
		models.DimSegment:       &f.Segment,
		models.DimAgeGroup:      &f.AgeGroup,
		models.DimChannel:       &f.Channel,
		models.DimPaymentMethod: &f.PaymentMethod,
		models.DimReturnStatus:  &f.ReturnStatus,
	}
}

// FilterRequestFromQuery reads repeated parameters (year=2023&year=2024).
// Values are not split on commas since product names may contain them.
func FilterRequestFromQuery(q url.Values) FilterRequest {
	var f FilterRequest
	f.Start = strings.TrimSpace(q.Get("start"))
	f.End = strings.TrimSpace(q.Get("end"))
	for dim, dst := range f.dimensions() {
		*dst = cleanValues(q[string(dim)])
	}
	return f
}

func cleanValues(raw []string) []string {
	var out []string
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Constraints validates f and converts it. Validation failures come back as
// an *errors.AppError with per-field details.
func (f FilterRequest) Constraints() (models.ConstraintSet, error) {
	for _, dst := range f.dimensions() {
		*dst = cleanValues(*dst)
	}
	if err := validate.Struct(f); err != nil {
		return models.ConstraintSet{}, errors.FromValidation(err)
	}

	var c models.ConstraintSet
	if f.Start != "" {
		t, _ := time.Parse(models.DateLayout, f.Start)
		c.Start = &t
	}
	if f.End != "" {
		t, _ := time.Parse(models.DateLayout, f.End)
		c.End = &t
	}

	for dim, values := range f.dimensions() {
		if len(*values) == 0 {
			continue
		}
		if c.Dimensions == nil {
			c.Dimensions = make(map[models.Dimension][]string)
		}
		if dim == models.DimQuarter {
			c.Dimensions[dim] = normalizeQuarters(*values)
			continue
		}
		c.Dimensions[dim] = *values
	}
	return c, nil
}

func normalizeQuarters(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = "Q" + strings.TrimPrefix(strings.ToUpper(v), "Q")
	}
	return out
}

// ConstraintsFromRequest parses the query string of r.
func ConstraintsFromRequest(r *http.Request) (models.ConstraintSet, error) {
	return FilterRequestFromQuery(r.URL.Query()).Constraints()
}

// ConstraintsFromSignals parses the datastar "filters" signal of r.
func ConstraintsFromSignals(r *http.Request) (models.ConstraintSet, error) {
	var signals FilterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		return models.ConstraintSet{}, errors.BadRequestWrap(err, "Invalid signals")
	}
	return signals.Filters.Constraints()
}
