package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
)

// PreviewLimit caps the raw rows shown on the data quality page.
const PreviewLimit = 500

// Dashboard serves summaries over a read-only dataset. It holds no mutable
// state besides counters, so one instance is shared by every request.
type Dashboard struct {
	dataset *models.Dataset
	options models.FilterOptions
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	renders  atomic.Int64
	failures atomic.Int64
}

func NewDashboard(ds *models.Dataset, logger *slog.Logger, metrics *observability.Metrics) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics != nil {
		metrics.DatasetRecords.Set(float64(ds.Len()))
	}
	return &Dashboard{
		dataset: ds,
		options: buildOptions(ds),
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Render filters the dataset and builds every summary. It only fails when
// ctx is done.
func (d *Dashboard) Render(ctx context.Context, c models.ConstraintSet) (*models.Summaries, error) {
	ctx, span := d.tracer.Start(ctx, "dashboard.render")
	defer span.End()

	start := time.Now()
	subset := d.filter(ctx, c)

	summaries, err := BuildSummaries(ctx, subset, d.dataset.Len())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	elapsed := time.Since(start)
	d.renders.Add(1)
	d.failures.Add(int64(len(summaries.Errors)))

	if d.metrics != nil {
		d.metrics.RenderDuration.Observe(elapsed.Seconds())
		d.metrics.MatchedRecords.Observe(float64(len(subset)))
		for _, msg := range summaries.Errors {
			name, _, _ := strings.Cut(msg, ": ")
			d.metrics.SummaryFailures.WithLabelValues(name).Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("dashboard.matched", summaries.Matched),
		attribute.Int("dashboard.tables", len(summaries.Tables)),
		attribute.Int("dashboard.failures", len(summaries.Errors)),
	)

	for _, msg := range summaries.Errors {
		d.logger.WarnContext(ctx, "summary table failed", "error", msg)
	}
	d.logger.DebugContext(ctx, "render complete",
		"matched", summaries.Matched,
		"total", summaries.Total,
		"duration", elapsed,
	)

	return summaries, nil
}

// Table builds a single summary table for the given constraints.
func (d *Dashboard) Table(ctx context.Context, c models.ConstraintSet, name string) (models.SummaryTable, error) {
	ctx, span := d.tracer.Start(ctx, "dashboard.table", trace.WithAttributes(attribute.String("table", name)))
	defer span.End()

	t, err := BuildTable(d.filter(ctx, c), name)
	if errors.Is(err, ErrUnknownTable) {
		return t, err
	}
	if err != nil {
		d.logger.WarnContext(ctx, "summary table failed", "table", name, "error", err)
		if d.metrics != nil {
			d.metrics.SummaryFailures.WithLabelValues(name).Inc()
		}
	}
	return t, nil
}

// Records returns the filtered rows in dataset order.
func (d *Dashboard) Records(ctx context.Context, c models.ConstraintSet) []models.SalesRecord {
	return d.filter(ctx, c)
}

// Preview returns at most limit filtered rows.
func (d *Dashboard) Preview(ctx context.Context, c models.ConstraintSet, limit int) []models.SalesRecord {
	rows := d.filter(ctx, c)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (d *Dashboard) Options() models.FilterOptions {
	return d.options
}

func (d *Dashboard) Dataset() *models.Dataset {
	return d.dataset
}

func (d *Dashboard) Stats() map[string]any {
	return map[string]any{
		"record_count":    d.dataset.Len(),
		"source":          d.dataset.Source(),
		"loaded_at":       d.dataset.LoadedAt(),
		"first_date":      d.options.FirstDate,
		"last_date":       d.options.LastDate,
		"countries":       len(d.options.Dimensions[models.DimCountry]),
		"products":        len(d.options.Dimensions[models.DimProduct]),
		"regions":         len(d.options.Dimensions[models.DimRegion]),
		"tables":          len(defaultBuilders),
		"renders":         d.renders.Load(),
		"table_failures":  d.failures.Load(),
		"filter_controls": len(models.FilterDimensions),
	}
}

func (d *Dashboard) filter(ctx context.Context, c models.ConstraintSet) []models.SalesRecord {
	_, span := d.tracer.Start(ctx, "dashboard.filter")
	defer span.End()

	subset := Filter(d.dataset.Records(), c)
	span.SetAttributes(attribute.Int("dashboard.matched", len(subset)))
	return subset
}

func buildOptions(ds *models.Dataset) models.FilterOptions {
	sets := make(map[models.Dimension]map[string]struct{}, len(models.FilterDimensions))
	for _, dim := range models.FilterDimensions {
		sets[dim] = make(map[string]struct{})
	}

	records := ds.Records()
	for i := range records {
		for _, dim := range models.FilterDimensions {
			if v := records[i].Dimension(dim); v != "" {
				sets[dim][v] = struct{}{}
			}
		}
	}

	opts := models.FilterOptions{
		Dimensions: make(map[models.Dimension][]string, len(sets)),
		Records:    ds.Len(),
	}
	for dim, set := range sets {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		slices.Sort(values)
		opts.Dimensions[dim] = values
	}

	if first, last, ok := ds.Span(); ok {
		opts.FirstDate = first.Format(models.DateLayout)
		opts.LastDate = last.Format(models.DateLayout)
	}
	return opts
}
