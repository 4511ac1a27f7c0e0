package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

func sale(date, country, region, category, product string, revenue float64) models.SalesRecord {
	d, _ := time.Parse(models.DateLayout, date)
	return models.SalesRecord{
		SaleDate:      d,
		Year:          d.Year(),
		Quarter:       (int(d.Month())-1)/3 + 1,
		Month:         int(d.Month()),
		Country:       country,
		Region:        region,
		Category:      category,
		Product:       product,
		UnitPriceUSD:  revenue,
		UnitsSold:     1,
		RevenueUSD:    revenue,
		Segment:       "Consumer",
		AgeGroup:      "25-34",
		Channel:       "Online",
		PaymentMethod: "Card",
		ReturnStatus:  "Not Returned",
	}
}

// Test helper to create a dashboard with test data
func newTestDashboard(metrics *observability.Metrics) *services.Dashboard {
	records := []models.SalesRecord{
		sale("2023-01-15", "USA", "North America", "Smartphone", "Galaxy S23", 999.99),
		sale("2023-02-10", "Canada", "North America", "Tablet", "Galaxy Tab S9", 59.98),
		sale("2023-03-05", "UK", "Europe", "Wearable", "Galaxy Watch6", 79.99),
	}
	ds := models.NewDataset(records, "test.csv", time.Now())
	return services.NewDashboard(ds, quietLogger(), metrics)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    1000,
			RateLimitBurst:  1000,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

func newTestHandler() (http.Handler, *observability.Metrics) {
	cfg := testConfig()
	metrics := observability.NewMetrics()
	dashboard := newTestDashboard(metrics)
	limiter := middleware.NewRateLimiter(cfg.Security)
	return newHandler(cfg, dashboard, metrics, limiter, quietLogger()), metrics
}

// Integration tests for HTTP routes
func TestServer_Routes(t *testing.T) {
	handler, _ := newTestHandler()

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/api/summaries", http.StatusOK, "application/json"},
		{"/api/summaries?region=Europe", http.StatusOK, "application/json"},
		{"/api/options", http.StatusOK, "application/json"},
		{"/api/preview?limit=2", http.StatusOK, "application/json"},
		{"/api/export.csv", http.StatusOK, "text/csv"},
		{"/api/export.xlsx", http.StatusOK, "spreadsheetml"},
		{"/charts/revenue_by_category", http.StatusOK, "image/png"},
		{"/charts/unknown", http.StatusNotFound, "application/json"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
		{"/metrics", http.StatusOK, "text/plain"},
		{"/api/summaries?year=twenty", http.StatusBadRequest, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			if w.Header().Get("X-Request-ID") == "" {
				t.Error("every response should carry a request id")
			}

			// Validate JSON responses
			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

// Test JSON API responses
func TestServer_SummariesResponse(t *testing.T) {
	handler, _ := newTestHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/summaries?region=north+america", nil)
	handler.ServeHTTP(w, r)

	var response struct {
		Data    models.Summaries `json:"data"`
		Success bool             `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if !response.Success {
		t.Error("expected success=true in response")
	}

	if response.Data.Matched != 2 || response.Data.Total != 3 {
		t.Errorf("matched/total = %d/%d, want 2/3", response.Data.Matched, response.Data.Total)
	}

	table, ok := response.Data.Table("revenue_by_region")
	if !ok {
		t.Fatal("expected revenue_by_region table")
	}
	if len(table.Rows) != 1 || table.Rows[0].Key != "North America" {
		t.Errorf("unexpected revenue_by_region rows %+v", table.Rows)
	}
	if got := table.Rows[0].Value; got < 1059.96 || got > 1059.98 {
		t.Errorf("revenue = %v, want 1059.97", got)
	}
}

// Test Server-Sent Events routes
func TestServer_SSERoutes(t *testing.T) {
	handler, _ := newTestHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/sse/refresh", nil)

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// Check for SSE headers
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q, should contain 'text/event-stream'", ct)
	}

	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache-control = %q, want 'no-cache'", cc)
	}

	if !strings.Contains(w.Body.String(), `id="kpis"`) {
		t.Error("refresh should patch the KPI row")
	}
}

// Test error handling for invalid methods
func TestServer_ErrorHandling(t *testing.T) {
	handler, _ := newTestHandler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"POST", "/api/summaries", http.StatusMethodNotAllowed},
		{"PUT", "/", http.StatusMethodNotAllowed},
		{"DELETE", "/health", http.StatusMethodNotAllowed},
		{"PATCH", "/charts/revenue_by_year", http.StatusMethodNotAllowed},
		{"GET", "/no/such/page", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestServer_RecordsHTTPMetrics(t *testing.T) {
	handler, metrics := newTestHandler()

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/options", nil))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	want := `sales_dashboard_http_requests_total{method="GET",route="GET /api/options",status="200"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q", want)
	}

	if !strings.Contains(body, "sales_dashboard_dataset_records 3") {
		t.Error("metrics output should report the dataset size")
	}

	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "GET /metrics", "200")); got != 1 {
		t.Errorf("scrape requests = %v, want 1", got)
	}
}

// Test dashboard template rendering
func TestDashboardTemplate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	// Test the template handler directly
	newDashboardHandler(newTestDashboard(nil))(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, "Sales Performance Dashboard") {
		t.Error("dashboard should contain title")
	}

	// Check for key dashboard components
	expectedComponents := []string{
		"Overview",
		"Product Analysis",
		"Regional Performance",
		"Customer Insights",
		"Sales Channels",
		"Data Quality",
		"Download CSV",
		`<option value="Europe">Europe</option>`,
	}

	for _, component := range expectedComponents {
		if !strings.Contains(body, component) {
			t.Errorf("dashboard should contain '%s'", component)
		}
	}
}
