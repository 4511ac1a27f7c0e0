package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

func refreshRequest(signals string) *http.Request {
	target := "/sse/refresh"
	if signals != "" {
		target += "?datastar=" + url.QueryEscape(signals)
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Datastar-Request", "true")
	return req
}

func TestNewSSEHandlers(t *testing.T) {
	dashboard := createTestDashboard()
	logger := quietLogger()

	handlers := NewSSEHandlers(dashboard, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}

	if handlers.dashboard != dashboard {
		t.Error("NewSSEHandlers() should set dashboard field")
	}

	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func TestRenderSection(t *testing.T) {
	s := &models.Summaries{
		Tables: []models.SummaryTable{
			{
				Name: "revenue_by_region", Title: "Revenue by Region", Section: services.SectionRegional,
				KeyLabel: "Region", ValueLabel: "Revenue (USD)",
				Rows: []models.SummaryRow{{Key: "Europe", Value: 1234.5, Count: 2}},
			},
			models.SummaryTable{
				Name: "top_countries", Title: "Top Countries", Section: services.SectionRegional,
			}.Placeholder(),
			{
				Name: "revenue_by_year", Title: "Revenue by Year", Section: services.SectionOverview,
			},
		},
	}
	q := url.Values{"region": {"Europe"}, "year": {"2024"}}

	html, err := renderSection(services.SectionRegional, s, q)
	if err != nil {
		t.Fatalf("renderSection() failed: %v", err)
	}

	expectedContent := []string{
		`id="section-regional"`,
		`id="table-revenue_by_region"`,
		"<th>Region</th>",
		"<th>Revenue (USD)</th>",
		"Europe",
		"1,234.50",
		"/charts/revenue_by_region?region=Europe&amp;year=2024",
		`id="table-top_countries"`,
		models.NoDataNote,
	}

	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}

	if strings.Contains(html, "revenue_by_year") {
		t.Error("section should only contain its own tables")
	}

	if strings.Contains(html, "/charts/top_countries") {
		t.Error("empty tables should not link a chart")
	}

	if strings.Contains(html, "<th>Series</th>") {
		t.Error("single-key tables should not show a series column")
	}
}

func TestRenderSection_LimitsRows(t *testing.T) {
	rows := make([]models.SummaryRow, 75)
	for i := range rows {
		rows[i] = models.SummaryRow{Key: fmt.Sprintf("Product %d", i), Series: "2024", Value: float64(i), Count: 1}
	}
	s := &models.Summaries{Tables: []models.SummaryTable{{
		Name: "top_products", Title: "Top Products", Section: services.SectionProduct, Rows: rows,
	}}}

	html, err := renderSection(services.SectionProduct, s, url.Values{})
	if err != nil {
		t.Fatalf("renderSection() failed: %v", err)
	}

	rowCount := strings.Count(html, "<tr>") - 1
	if rowCount != maxTableRows {
		t.Errorf("expected %d rows, got %d", maxTableRows, rowCount)
	}

	if !strings.Contains(html, "<th>Series</th>") {
		t.Error("expected a series column")
	}
}

func TestRenderKPIs(t *testing.T) {
	html, err := renderKPIs(&models.Summaries{KPIs: models.KPIs{TotalRevenue: 1509.97, Transactions: 3}})
	if err != nil {
		t.Fatalf("renderKPIs() failed: %v", err)
	}
	if !strings.Contains(html, "$1,509.97") {
		t.Errorf("expected formatted revenue, got %s", html)
	}

	html, err = renderKPIs(&models.Summaries{KPIs: models.KPIs{TotalRevenue: 10, Transactions: 1, NoRating: true}})
	if err != nil {
		t.Fatalf("renderKPIs() failed: %v", err)
	}
	if !strings.Contains(html, `<span class="kpi-value">no data</span>`) {
		t.Errorf("expected the rating KPI to show no data, got %s", html)
	}

	html, err = renderKPIs(&models.Summaries{KPIs: models.KPIs{NoData: true}})
	if err != nil {
		t.Fatalf("renderKPIs() failed: %v", err)
	}
	if !strings.Contains(html, "No records match") {
		t.Error("expected the no-data message")
	}
}

func TestSSEHandlers_HandleRefresh(t *testing.T) {
	handlers := NewSSEHandlers(createTestDashboard(), quietLogger())

	req := refreshRequest(`{"filters":{"region":["Europe"]}}`)
	w := httptest.NewRecorder()

	handlers.HandleRefresh(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}

	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected cache-control 'no-cache', got %q", cc)
	}

	body := w.Body.String()

	expected := []string{
		"datastar-patch-elements",
		`id="kpis"`,
		`id="preview"`,
		"Showing 1 of 1 matching records.",
		"datastar-patch-signals",
		`"matched":1`,
		`"total":3`,
		"/charts/revenue_by_region?region=Europe",
	}
	for _, section := range services.Sections {
		expected = append(expected, `id="section-`+section+`"`)
	}

	for _, content := range expected {
		if !strings.Contains(body, content) {
			t.Errorf("expected SSE stream to contain %q", content)
		}
	}
}

func TestSSEHandlers_HandleRefresh_NoSignals(t *testing.T) {
	handlers := NewSSEHandlers(createTestDashboard(), quietLogger())

	w := httptest.NewRecorder()
	handlers.HandleRefresh(w, refreshRequest(""))

	body := w.Body.String()
	if !strings.Contains(body, `"matched":3`) {
		t.Error("no filters should match every record")
	}
}

func TestSSEHandlers_HandleRefresh_InvalidFilters(t *testing.T) {
	handlers := NewSSEHandlers(createTestDashboard(), quietLogger())

	w := httptest.NewRecorder()
	handlers.HandleRefresh(w, refreshRequest(`{"filters":{"start":"not-a-date"}}`))

	body := w.Body.String()

	if !strings.Contains(body, "datastar-patch-signals") {
		t.Fatal("expected a status signal patch")
	}

	if !strings.Contains(body, "Invalid filter parameters") {
		t.Errorf("expected the validation message in the status signal, got %s", body)
	}

	if strings.Contains(body, `id="kpis"`) {
		t.Error("invalid filters should not patch the dashboard")
	}
}
