package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
)

const (
	CSVContentType  = "text/csv; charset=utf-8"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportSheet = "Sales"
)

// WriteCSV writes the records with the ExportColumns header.
func WriteCSV(w io.Writer, records []models.SalesRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(ExportColumns))
	for i := range records {
		for j, v := range exportValues(&records[i]) {
			row[j] = formatCell(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the records as a single-sheet workbook with a frozen,
// bold header row. Rows are streamed so large exports stay flat in memory.
func WriteXLSX(w io.Writer, records []models.SalesRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1565FF"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := sw.SetColWidth(1, len(ExportColumns), 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	header := make([]any, len(ExportColumns))
	for i, name := range ExportColumns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: name}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, exportValues(&records[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// exportValues returns the typed cell values in ExportColumns order. Missing
// values are nil so they stay blank in both formats.
func exportValues(r *models.SalesRecord) []any {
	return []any{
		r.SaleDate.Format(models.DateLayout),
		r.Year,
		r.Quarter,
		r.Month,
		r.Country,
		r.Region,
		r.City,
		r.Category,
		r.Product,
		deref(r.Is5G),
		r.UnitPriceUSD,
		r.DiscountPct,
		r.UnitsSold,
		deref(r.DiscountedPriceUSD),
		r.RevenueUSD,
		deref(r.RevenueLocal),
		r.LocalCurrency,
		r.AgeGroup,
		r.Segment,
		r.PreviousOS,
		deref(r.Rating),
		r.Channel,
		r.PaymentMethod,
		r.ReturnStatus,
	}
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
