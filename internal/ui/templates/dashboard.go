// Package templates holds the server-rendered page shell. Section bodies are
// filled in afterwards by the /sse/refresh stream.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

const (
	Title          = "Sales Performance Dashboard"
	Subtitle       = "Filter the sales dataset and every chart, table and KPI follows."
	datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0-RC.5/bundles/datastar.js"
	refreshAction  = "@get('/sse/refresh')"
)

// Section is one navigable page area.
type Section struct {
	ID    string
	Title string
}

var Sections = []Section{
	{ID: services.SectionOverview, Title: "Overview"},
	{ID: services.SectionProduct, Title: "Product Analysis"},
	{ID: services.SectionRegional, Title: "Regional Performance"},
	{ID: services.SectionCustomer, Title: "Customer Insights"},
	{ID: services.SectionChannels, Title: "Sales Channels"},
	{ID: services.SectionQuality, Title: "Data Quality"},
}

var dimensionLabels = map[models.Dimension]string{
	models.DimYear:          "Year",
	models.DimQuarter:       "Quarter",
	models.DimRegion:        "Region",
	models.DimCountry:       "Country",
	models.DimCity:          "City",
	models.DimCategory:      "Category",
	models.DimProduct:       "Product",
	models.DimNetwork:       "5G",
	models.DimSegment:       "Customer Segment",
	models.DimAgeGroup:      "Age Group",
	models.DimChannel:       "Sales Channel",
	models.DimPaymentMethod: "Payment Method",
	models.DimReturnStatus:  "Return Status",
}

// Dashboard renders the full page for the given filter options.
func Dashboard(opts models.FilterOptions) templ.Component {
	return layout(Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		signals, err := initialSignals(opts)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, `<div class="app" data-signals="%s" data-on-load="%s">`,
			templ.EscapeString(signals), refreshAction); err != nil {
			return err
		}
		if err := sidebar(opts).Render(ctx, w); err != nil {
			return err
		}
		if err := content().Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</div>`)
		return err
	}))
}

func initialSignals(opts models.FilterOptions) (string, error) {
	filters := map[string]any{"start": "", "end": ""}
	for _, dim := range models.FilterDimensions {
		filters[string(dim)] = []string{}
	}
	return templ.JSONString(map[string]any{
		"filters": filters,
		"status": map[string]any{
			"matched": opts.Records,
			"total":   opts.Records,
			"failed":  0,
			"error":   "",
			"loading": true,
		},
	})
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<script type="module" src="%s"></script>
<style>%s</style>
</head>
<body>
`, templ.EscapeString(title), datastarScript, stylesheet); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}

// sidebar is a plain GET form as well as a datastar-bound control panel, so
// the export buttons submit the same selection the charts show.
func sidebar(opts models.FilterOptions) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString(`<aside class="sidebar"><form id="filters" method="get" action="/api/export.csv">`)
		fmt.Fprintf(&b, `<h2>Filters</h2><p class="muted">%d records`, opts.Records)
		if opts.FirstDate != "" {
			fmt.Fprintf(&b, ` from %s to %s`, templ.EscapeString(opts.FirstDate), templ.EscapeString(opts.LastDate))
		}
		b.WriteString(`</p>`)

		fmt.Fprintf(&b, `<label>From <input type="date" name="start" min="%[1]s" max="%[2]s" data-bind="filters.start" data-on-change="%[3]s"></label>`,
			templ.EscapeString(opts.FirstDate), templ.EscapeString(opts.LastDate), refreshAction)
		fmt.Fprintf(&b, `<label>To <input type="date" name="end" min="%[1]s" max="%[2]s" data-bind="filters.end" data-on-change="%[3]s"></label>`,
			templ.EscapeString(opts.FirstDate), templ.EscapeString(opts.LastDate), refreshAction)

		for _, dim := range models.FilterDimensions {
			values := opts.Dimensions[dim]
			if len(values) == 0 {
				continue
			}
			name := templ.EscapeString(string(dim))
			fmt.Fprintf(&b, `<label>%s <select multiple name="%s" size="%d" data-bind="filters.%s" data-on-change="%s">`,
				templ.EscapeString(dimensionLabels[dim]), name, min(len(values), 6), name, refreshAction)
			for _, v := range values {
				ev := templ.EscapeString(v)
				fmt.Fprintf(&b, `<option value="%s">%s</option>`, ev, ev)
			}
			b.WriteString(`</select></label>`)
		}

		b.WriteString(`<div class="actions">`)
		b.WriteString(`<a class="button" href="/">Reset filters</a>`)
		b.WriteString(`<button type="submit" formaction="/api/export.csv">Download CSV</button>`)
		b.WriteString(`<button type="submit" formaction="/api/export.xlsx">Download Excel</button>`)
		b.WriteString(`</div></form></aside>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func content() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		fmt.Fprintf(&b, `<main class="content"><header><h1>%s</h1><p class="muted">%s</p>`,
			templ.EscapeString(Title), templ.EscapeString(Subtitle))
		b.WriteString(`<p class="status" data-text="$status.matched + ' of ' + $status.total + ' records match'"></p>`)
		b.WriteString(`<p class="status-error" data-show="$status.error != ''" data-text="$status.error"></p>`)
		b.WriteString(`<p class="status-warn" data-show="$status.failed > 0" data-text="$status.failed + ' table(s) could not be computed'"></p>`)
		b.WriteString(`<nav class="tabs">`)
		for _, s := range Sections {
			fmt.Fprintf(&b, `<a href="#%s">%s</a>`, s.ID, templ.EscapeString(s.Title))
		}
		b.WriteString(`</nav></header>`)

		for _, s := range Sections {
			fmt.Fprintf(&b, `<section id="%s"><h2>%s</h2>`, s.ID, templ.EscapeString(s.Title))
			if s.ID == services.SectionOverview {
				b.WriteString(`<div id="kpis" class="kpi-row"></div>`)
			}
			fmt.Fprintf(&b, `<div id="section-%s" class="section-grid"><p class="muted">Loading…</p></div>`, s.ID)
			if s.ID == services.SectionQuality {
				b.WriteString(`<h3>Raw data preview</h3><div id="preview"></div>`)
			}
			b.WriteString(`</section>`)
		}
		b.WriteString(`</main>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

const stylesheet = `
*{box-sizing:border-box}
body{margin:0;font-family:system-ui,-apple-system,sans-serif;color:#1f2933;background:#f5f7fa}
.app{display:flex;min-height:100vh}
.sidebar{width:300px;padding:1rem;background:#fff;border-right:1px solid #e4e7eb;overflow-y:auto;position:sticky;top:0;height:100vh}
.sidebar label{display:block;margin:.75rem 0;font-size:.85rem;font-weight:600}
.sidebar select,.sidebar input{display:block;width:100%;margin-top:.25rem}
.actions{display:flex;flex-direction:column;gap:.5rem;margin-top:1rem}
.button,button{padding:.5rem;border:1px solid #1428a0;border-radius:4px;background:#1428a0;color:#fff;text-align:center;text-decoration:none;cursor:pointer}
.content{flex:1;padding:1.5rem;min-width:0}
.tabs{display:flex;gap:1rem;flex-wrap:wrap;margin:1rem 0}
.tabs a{color:#1428a0;text-decoration:none;font-weight:600}
.muted{color:#7b8794}
.status-error{color:#c81e1e}
.status-warn{color:#b7791f}
.kpi-row{display:grid;grid-template-columns:repeat(auto-fit,minmax(180px,1fr));gap:1rem;margin-bottom:1rem}
.kpi{background:#fff;border-radius:6px;padding:1rem;box-shadow:0 1px 2px rgba(0,0,0,.08)}
.kpi-label{display:block;font-size:.8rem;color:#7b8794}
.kpi-value{font-size:1.4rem;font-weight:700}
.section-grid{display:grid;grid-template-columns:repeat(auto-fit,minmax(480px,1fr));gap:1rem}
.card{background:#fff;border-radius:6px;padding:1rem;box-shadow:0 1px 2px rgba(0,0,0,.08);overflow-x:auto}
.chart{width:100%;height:auto}
.no-data{color:#7b8794;font-style:italic}
.modern-table{width:100%;border-collapse:collapse;font-size:.85rem}
.modern-table th,.modern-table td{padding:.35rem .5rem;border-bottom:1px solid #e4e7eb;text-align:left}
.category-badge{background:#e0e8f9;border-radius:10px;padding:0 .5rem}
`
