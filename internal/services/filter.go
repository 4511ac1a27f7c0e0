package services

import (
	"strings"
	"time"

	"sales-dashboard/internal/models"
)

// Filter returns the records that satisfy every active constraint.
// Dimensions are AND-combined; values within a dimension are OR-combined.
// Matching ignores case and surrounding whitespace. The result keeps the
// input order and never aliases a record the input does not contain.
func Filter(records []models.SalesRecord, c models.ConstraintSet) []models.SalesRecord {
	if c.IsEmpty() {
		return records
	}

	sets := make(map[models.Dimension]map[string]bool)
	for dim, allowed := range c.Dimensions {
		if len(allowed) > 0 {
			sets[dim] = toLowerSet(allowed)
		}
	}

	var lo, hi int
	hasStart, hasEnd := c.Start != nil, c.End != nil
	if hasStart {
		lo = dayKey(*c.Start)
	}
	if hasEnd {
		hi = dayKey(*c.End)
	}
	if hasStart && hasEnd && lo > hi {
		return []models.SalesRecord{}
	}

	out := make([]models.SalesRecord, 0, len(records)/4)
	for i := range records {
		rec := &records[i]

		if hasStart || hasEnd {
			day := dayKey(rec.SaleDate)
			if (hasStart && day < lo) || (hasEnd && day > hi) {
				continue
			}
		}

		pass := true
		for dim, set := range sets {
			if !set[normalize(rec.Dimension(dim))] {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, *rec)
		}
	}
	return out
}

func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[normalize(item)] = true
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// dayKey orders dates at day granularity regardless of time of day or zone.
func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
