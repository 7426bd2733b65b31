package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

const (
	fontName    = "Helvetica"
	pageWidth   = 267.0
	itemWidth   = 95.0
	minColWidth = 18.0

	maxDepthIndent = 8
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the evaluation as a landscape summary: every table with
// its items, per-firm subtotals and the grand total.
func (g *Generator) Generate(ev *model.TenderEvaluation) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	firms := evaluation.FirmTotals(ev)
	names := make([]string, 0, len(firms)+1)
	for _, firm := range firms {
		names = append(names, tr(ev.FirmName(firm.FirmID)))
	}
	names = append(names, "Total")
	widths := columnWidths(len(names))

	pdf.SetFont(fontName, "B", 14)
	pdf.CellFormat(0, 10, "Tender Price Evaluation", "", 1, "C", false, 0, "")

	pdf.SetFont(fontName, "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Project: %s", ev.ProjectID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Discipline: %s", ev.DisciplineID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Updated: %s", formatDate(ev.UpdatedAt)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, table := range ev.Tables {
		pdf.SetFont(fontName, "B", 12)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("%d. %s", table.TableNumber, table.TableName)), "", 1, "L", false, 0, "")

		drawRow(pdf, 0, "Item", names, widths, true)
		evaluation.Walk(table, func(item *model.LineItem, depth int) {
			drawRow(pdf, depth, tr(item.Description), itemCells(item, firms), widths, item.IsCategory)
		})

		subtotals := totalsByFirm(evaluation.TableFirmTotals(table))
		cells := make([]string, 0, len(firms)+1)
		for _, firm := range firms {
			cells = append(cells, formatAmount(subtotals[firm.FirmID]))
		}
		cells = append(cells, formatAmount(table.SubTotal))
		drawRow(pdf, 0, "Subtotal", cells, widths, true)
		pdf.Ln(4)
	}

	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, "Totals by firm", "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	for i, firm := range firms {
		pdf.CellFormat(itemWidth, 6, names[i], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, formatAmount(firm.Total), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(itemWidth, 7, "Grand total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, formatAmount(ev.GrandTotal), "1", 1, "R", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func itemCells(item *model.LineItem, firms []model.FirmTotal) []string {
	cells := make([]string, 0, len(firms)+1)
	if item.IsCategory {
		totals := totalsByFirm(evaluation.ItemFirmTotals(item))
		for _, firm := range firms {
			cells = append(cells, formatAmount(totals[firm.FirmID]))
		}
		subtotal := decimal.Zero
		if item.CategorySubtotal != nil {
			subtotal = *item.CategorySubtotal
		}
		return append(cells, formatAmount(subtotal))
	}

	prices := make(map[uuid.UUID]decimal.Decimal, len(item.Prices))
	total := decimal.Zero
	for _, price := range item.Prices {
		prices[price.FirmID] = price.Amount
		total = total.Add(price.Amount)
	}
	for _, firm := range firms {
		amount, ok := prices[firm.FirmID]
		if !ok {
			cells = append(cells, "")
			continue
		}
		cells = append(cells, formatAmount(amount))
	}
	return append(cells, formatAmount(total))
}

func columnWidths(columns int) []float64 {
	width := (pageWidth - itemWidth) / float64(columns)
	if width < minColWidth {
		width = minColWidth
	}
	widths := make([]float64, 0, columns+1)
	widths = append(widths, itemWidth)
	for i := 0; i < columns; i++ {
		widths = append(widths, width)
	}
	return widths
}

func drawRow(pdf *gofpdf.Fpdf, depth int, label string, cols []string, widths []float64, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont(fontName, style, 9)

	if depth > maxDepthIndent {
		depth = maxDepthIndent
	}
	label = strings.Repeat("   ", depth) + label
	pdf.CellFormat(widths[0], 7, truncate(pdf, label, widths[0]-2), "1", 0, "L", false, 0, "")
	for i, col := range cols {
		pdf.CellFormat(widths[i+1], 7, truncate(pdf, col, widths[i+1]-2), "1", 0, "R", false, 0, "")
	}
	pdf.Ln(-1)
}

// truncate shortens single-byte encoded text to fit width.
func truncate(pdf *gofpdf.Fpdf, value string, width float64) string {
	if pdf.GetStringWidth(value) <= width {
		return value
	}
	for len(value) > 0 && pdf.GetStringWidth(value+"...") > width {
		value = value[:len(value)-1]
	}
	return value + "..."
}

func totalsByFirm(totals []model.FirmTotal) map[uuid.UUID]decimal.Decimal {
	result := make(map[uuid.UUID]decimal.Decimal, len(totals))
	for _, total := range totals {
		result[total.FirmID] = total.Total
	}
	return result
}

func formatAmount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02.01.2006")
}
