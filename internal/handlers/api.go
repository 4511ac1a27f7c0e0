package handlers

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sales-dashboard/internal/charts"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

const exportBaseName = "sales_filtered"

type APIHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, r, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleSummaries(w http.ResponseWriter, r *http.Request) {
	c, err := ConstraintsFromRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summaries, err := h.dashboard.Render(r.Context(), c)
	if err != nil {
		h.fail(w, r, errors.ServiceUnavailable("Request cancelled before the summaries were built"))
		return
	}

	headers := map[string]string{
		"Cache-Control": "public, max-age=300",
	}

	errors.WriteSuccessWithHeaders(w, summaries, headers)
}

func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	headers := map[string]string{
		"Cache-Control": "public, max-age=300",
	}

	errors.WriteSuccessWithHeaders(w, h.dashboard.Options(), headers)
}

// HandlePreview returns the first filtered rows, at most services.PreviewLimit.
func (h *APIHandlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	c, err := ConstraintsFromRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	limit := services.PreviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.fail(w, r, errors.Validation(fmt.Sprintf("limit must be a positive integer, got %q", raw)))
			return
		}
		limit = min(n, services.PreviewLimit)
	}

	rows := h.dashboard.Preview(r.Context(), c, limit)
	errors.WriteSuccess(w, map[string]any{
		"rows":  rows,
		"count": len(rows),
		"limit": limit,
	})
}

func (h *APIHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	c, err := ConstraintsFromRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records := h.dashboard.Records(r.Context(), c)
	setDownloadHeaders(w, services.CSVContentType, exportBaseName+".csv")

	// Headers are already sent, so a failure here can only be logged.
	if err := services.WriteCSV(w, records); err != nil {
		h.logger.ErrorContext(r.Context(), "csv export failed",
			"error", err,
			"rows", len(records),
			"request_id", observability.GetRequestID(r.Context()),
		)
	}
}

func (h *APIHandlers) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	c, err := ConstraintsFromRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records := h.dashboard.Records(r.Context(), c)

	var buf bytes.Buffer
	if err := services.WriteXLSX(&buf, records); err != nil {
		h.fail(w, r, errors.InternalWrap(err, "Failed to build the workbook"))
		return
	}

	setDownloadHeaders(w, services.XLSXContentType, exportBaseName+".xlsx")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "xlsx export interrupted", "error", err)
	}
}

// HandleChart renders GET /charts/{name} for the query-string constraints.
func (h *APIHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	c, err := ConstraintsFromRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	table, err := h.dashboard.Table(r.Context(), c, name)
	if stderrors.Is(err, services.ErrUnknownTable) {
		h.fail(w, r, errors.NotFound(fmt.Sprintf("No summary table named %q", name)))
		return
	}

	var buf bytes.Buffer
	err = charts.Render(&buf, table)
	switch {
	case stderrors.Is(err, charts.ErrNoData):
		h.fail(w, r, errors.NotFound(fmt.Sprintf("No data for %q with the current filters", name)))
		return
	case err != nil:
		h.fail(w, r, errors.InternalWrap(err, "Failed to render chart"))
		return
	}

	w.Header().Set("Content-Type", charts.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   observability.ServiceVersion,
		"records":   h.dashboard.Dataset().Len(),
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.dashboard.Stats())
}

func setDownloadHeaders(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
}
