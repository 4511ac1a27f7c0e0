package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

const (
	maxTableRows   = 50
	maxPreviewRows = services.PreviewLimit
)

var printer = message.NewPrinter(language.English)

var templateFuncs = template.FuncMap{
	"num": func(v float64) string { return printer.Sprintf("%.2f", v) },
	"hasSeries": func(rows []models.SummaryRow) bool {
		for _, r := range rows {
			if r.Series != "" {
				return true
			}
		}
		return false
	},
	"chartURL": func(name string, q url.Values) string {
		u := url.URL{Path: "/charts/" + name, RawQuery: q.Encode()}
		return u.String()
	},
}

var kpiTemplate = template.Must(template.New("kpis").Funcs(templateFuncs).Parse(`
<div id="kpis" class="kpi-row">
{{if .KPIs.NoData}}<div class="kpi-empty">No records match the current filters.</div>{{else}}
<div class="kpi"><span class="kpi-label">Total Revenue</span><span class="kpi-value">${{num .KPIs.TotalRevenue}}</span></div>
<div class="kpi"><span class="kpi-label">Transactions</span><span class="kpi-value">{{.KPIs.Transactions}}</span></div>
<div class="kpi"><span class="kpi-label">Avg Order Value</span><span class="kpi-value">${{num .KPIs.AvgOrderValue}}</span></div>
<div class="kpi"><span class="kpi-label">Return Rate</span><span class="kpi-value">{{num .KPIs.ReturnRatePct}}%</span></div>
<div class="kpi"><span class="kpi-label">Avg Rating</span><span class="kpi-value">{{if .KPIs.NoRating}}no data{{else}}{{num .KPIs.AvgRating}}{{end}}</span></div>
<div class="kpi"><span class="kpi-label">Avg Discount</span><span class="kpi-value">{{num .KPIs.AvgDiscountPct}}%</span></div>
<div class="kpi"><span class="kpi-label">Units Sold</span><span class="kpi-value">{{.KPIs.UnitsSold}}</span></div>
<div class="kpi"><span class="kpi-label">Years / Regions / Categories</span><span class="kpi-value">{{.KPIs.DistinctYears}} / {{.KPIs.DistinctRegions}} / {{.KPIs.DistinctCats}}</span></div>
{{end}}
</div>`))

var sectionTemplate = template.Must(template.New("section").Funcs(templateFuncs).Parse(`
<div id="section-{{.Section}}" class="section-grid">
{{range .Tables}}<article class="card" id="table-{{.Name}}">
<h3>{{.Title}}</h3>
{{if .Empty}}<p class="no-data">{{.Note}}</p>{{else}}
<img class="chart" loading="lazy" alt="{{.Title}}" src="{{chartURL .Name $.Query}}">
<details><summary>Data</summary>
<table class="modern-table">
{{$series := hasSeries .Rows}}<thead><tr><th>{{.KeyLabel}}</th>{{if $series}}<th>Series</th>{{end}}<th>{{.ValueLabel}}</th><th>Count</th></tr></thead>
<tbody>
{{range $i, $row := .Rows}}{{if lt $i $.MaxRows}}<tr>
<td>{{$row.Key}}</td>{{if $series}}<td>{{$row.Series}}</td>{{end}}
<td><strong>{{num $row.Value}}</strong></td>
<td>{{$row.Count}}</td>
</tr>{{end}}{{end}}
</tbody>
</table>
</details>{{end}}
</article>{{end}}
</div>`))

var previewTemplate = template.Must(template.New("preview").Funcs(templateFuncs).Parse(`
<div id="preview">
<p class="muted">Showing {{len .Rows}} of {{.Matched}} matching records.</p>
<table class="modern-table">
<thead><tr><th>Date</th><th>Country</th><th>Region</th><th>Category</th><th>Product</th><th>Units</th><th>Revenue (USD)</th><th>Channel</th><th>Return</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.SaleDate.Format "2006-01-02"}}</td>
<td>{{.Country}}</td>
<td>{{.Region}}</td>
<td><span class="category-badge">{{.Category}}</span></td>
<td>{{.Product}}</td>
<td>{{.UnitsSold}}</td>
<td>${{num .RevenueUSD}}</td>
<td>{{.Channel}}</td>
<td>{{.ReturnStatus}}</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

// StatusSignal is patched into the page's "status" signal after each refresh.
type StatusSignal struct {
	Matched int    `json:"matched"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	Error   string `json:"error"`
	Loading bool   `json:"loading"`
}

type sectionData struct {
	Section string
	Tables  []models.SummaryTable
	Query   url.Values
	MaxRows int
}

type previewData struct {
	Rows    []models.SalesRecord
	Matched int
}

func renderKPIs(s *models.Summaries) (string, error) {
	var buf strings.Builder
	err := kpiTemplate.Execute(&buf, s)
	return buf.String(), err
}

func renderSection(section string, s *models.Summaries, q url.Values) (string, error) {
	var buf strings.Builder
	err := sectionTemplate.Execute(&buf, sectionData{
		Section: section,
		Tables:  s.Section(section),
		Query:   q,
		MaxRows: maxTableRows,
	})
	return buf.String(), err
}

func renderPreview(rows []models.SalesRecord, matched int) (string, error) {
	var buf strings.Builder
	err := previewTemplate.Execute(&buf, previewData{Rows: rows, Matched: matched})
	return buf.String(), err
}

func (h *SSEHandlers) patchStatus(sse *datastar.ServerSentEventGenerator, status StatusSignal) {
	jsonData, err := json.Marshal(map[string]any{"status": status})
	if err != nil {
		h.logger.Error("marshal status signal", "error", err)
		return
	}
	sse.PatchSignals(jsonData)
}

// HandleRefresh rebuilds every section for the "filters" signal and patches
// the KPI row, each section, the data preview and the status signal.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	c, cerr := ConstraintsFromSignals(r)

	sse := datastar.NewSSE(w, r)

	if cerr != nil {
		msg := cerr.Error()
		var appErr *errors.AppError
		if stderrors.As(cerr, &appErr) {
			msg = appErr.Message
			if appErr.Details != "" {
				msg += ": " + appErr.Details
			}
		}
		h.logger.WarnContext(r.Context(), "invalid filters",
			"error", cerr,
			"request_id", observability.GetRequestID(r.Context()),
		)
		h.patchStatus(sse, StatusSignal{Error: msg, Total: h.dashboard.Dataset().Len()})
		return
	}

	summaries, err := h.dashboard.Render(r.Context(), c)
	if err != nil {
		// The client went away; nothing left to patch.
		h.logger.DebugContext(r.Context(), "refresh cancelled", "error", err)
		return
	}

	html, err := renderKPIs(summaries)
	if err != nil {
		h.logger.Error("render kpis", "error", err)
		return
	}
	sse.PatchElements(html)

	q := c.Query()
	for _, section := range services.Sections {
		html, err := renderSection(section, summaries, q)
		if err != nil {
			h.logger.Error("render section", "section", section, "error", err)
			return
		}
		sse.PatchElements(html)
	}

	rows := h.dashboard.Preview(r.Context(), c, maxPreviewRows)
	html, err = renderPreview(rows, summaries.Matched)
	if err != nil {
		h.logger.Error("render preview", "error", err)
		return
	}
	sse.PatchElements(html)

	h.patchStatus(sse, StatusSignal{
		Matched: summaries.Matched,
		Total:   summaries.Total,
		Failed:  len(summaries.Errors),
	})

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
