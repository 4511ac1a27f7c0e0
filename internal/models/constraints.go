package models

import (
	"net/url"
	"slices"
	"time"
)

const DateLayout = "2006-01-02"

// ConstraintSet holds the user's current filter selections. OR within a
// dimension, AND across dimensions. An absent or empty dimension, and a nil
// date bound, accept every record.
type ConstraintSet struct {
	Start      *time.Time
	End        *time.Time
	Dimensions map[Dimension][]string
}

func (c ConstraintSet) IsEmpty() bool {
	if c.Start != nil || c.End != nil {
		return false
	}
	for _, vals := range c.Dimensions {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

func (c ConstraintSet) HasFilter(d Dimension) bool {
	return len(c.Dimensions[d]) > 0
}

// With returns a copy of c that also accepts values for d.
func (c ConstraintSet) With(d Dimension, values ...string) ConstraintSet {
	dims := make(map[Dimension][]string, len(c.Dimensions)+1)
	for k, v := range c.Dimensions {
		dims[k] = slices.Clone(v)
	}
	dims[d] = append(dims[d], values...)
	c.Dimensions = dims
	return c
}

// Between returns a copy of c limited to the inclusive day range.
func (c ConstraintSet) Between(start, end time.Time) ConstraintSet {
	c.Start = &start
	c.End = &end
	return c
}

// Query encodes the constraint set with the same parameter names the API
// handlers parse, so rendered links reproduce the current selection.
func (c ConstraintSet) Query() url.Values {
	q := url.Values{}
	if c.Start != nil {
		q.Set("start", c.Start.Format(DateLayout))
	}
	if c.End != nil {
		q.Set("end", c.End.Format(DateLayout))
	}
	for _, d := range FilterDimensions {
		for _, v := range c.Dimensions[d] {
			q.Add(string(d), v)
		}
	}
	return q
}
