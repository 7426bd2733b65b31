package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

const (
	summarySheet = "Summary"
	maxIndent    = 10
	amountFormat = 4 // #,##0.00
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders a summary sheet followed by one sheet per evaluation table,
// with a price column per firm.
func (g *Generator) Generate(ev *model.TenderEvaluation) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	styles := newStyleCache(file)
	columns := firmColumns(ev)

	if err := g.writeSummary(file, summarySheet, ev, columns, styles); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, table := range ev.Tables {
		sheetName := buildSheetName(table, usedNames)
		usedNames[sheetName] = struct{}{}

		if _, err := file.NewSheet(sheetName); err != nil {
			return nil, err
		}
		if err := g.writeTable(file, sheetName, table, columns, styles); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type firmColumn struct {
	id   uuid.UUID
	name string
}

// firmColumns lists shortlisted firms first, then any other firm that holds a
// price in the evaluation.
func firmColumns(ev *model.TenderEvaluation) []firmColumn {
	totals := evaluation.FirmTotals(ev)
	columns := make([]firmColumn, 0, len(totals))
	for _, total := range totals {
		columns = append(columns, firmColumn{id: total.FirmID, name: ev.FirmName(total.FirmID)})
	}
	return columns
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, ev *model.TenderEvaluation, columns []firmColumn, styles *styleCache) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Project")
	set("B1", ev.ProjectID.String())
	set("A2", "Discipline")
	set("B2", ev.DisciplineID.String())
	cardLabel, cardID := cardReference(ev)
	set("A3", cardLabel)
	set("B3", cardID)
	set("A4", "Updated")
	set("B4", formatDateTime(ev.UpdatedAt))

	tableRow := 6
	set(fmt.Sprintf("A%d", tableRow), "Table")
	set(fmt.Sprintf("B%d", tableRow), "Subtotal")
	for i, table := range ev.Tables {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), fmt.Sprintf("%d. %s", table.TableNumber, table.TableName))
		if err := setAmount(file, sheet, 2, row, table.SubTotal, styles.amount(false)); err != nil {
			return err
		}
	}
	grandRow := tableRow + 1 + len(ev.Tables)
	set(fmt.Sprintf("A%d", grandRow), "Grand total")
	if err := setAmount(file, sheet, 2, grandRow, ev.GrandTotal, styles.amount(true)); err != nil {
		return err
	}

	firmRow := grandRow + 2
	set(fmt.Sprintf("A%d", firmRow), "Firm")
	set(fmt.Sprintf("B%d", firmRow), "Total")
	totals := totalsByFirm(evaluation.FirmTotals(ev))
	for i, column := range columns {
		row := firmRow + 1 + i
		set(fmt.Sprintf("A%d", row), column.name)
		if err := setAmount(file, sheet, 2, row, totals[column.id], styles.amount(false)); err != nil {
			return err
		}
	}

	_ = file.SetColWidth(sheet, "A", "A", 45)
	_ = file.SetColWidth(sheet, "B", "B", 40)
	return nil
}

func (g *Generator) writeTable(file *excelize.File, sheet string, table *model.EvaluationTable, columns []firmColumn, styles *styleCache) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Table")
	set("B1", fmt.Sprintf("%d. %s", table.TableNumber, table.TableName))

	headerRow := 3
	headers := []string{"Item"}
	for _, column := range columns {
		headers = append(headers, column.name)
	}
	headers = append(headers, "Total")
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		set(cell, header)
	}
	totalCol := len(columns) + 2

	row := headerRow
	var writeErr error
	evaluation.Walk(table, func(item *model.LineItem, depth int) {
		if writeErr != nil {
			return
		}
		row++
		cell, _ := excelize.CoordinatesToCellName(1, row)
		set(cell, item.Description)
		if err := file.SetCellStyle(sheet, cell, cell, styles.label(depth, item.IsCategory)); err != nil {
			writeErr = err
			return
		}

		var amounts map[uuid.UUID]decimal.Decimal
		total := decimal.Zero
		if item.IsCategory {
			amounts = totalsByFirm(evaluation.ItemFirmTotals(item))
			if item.CategorySubtotal != nil {
				total = *item.CategorySubtotal
			}
		} else {
			amounts = make(map[uuid.UUID]decimal.Decimal, len(item.Prices))
			for _, price := range item.Prices {
				amounts[price.FirmID] = price.Amount
				total = total.Add(price.Amount)
			}
		}
		for i, column := range columns {
			value, ok := amounts[column.id]
			if !ok && !item.IsCategory {
				continue
			}
			if err := setAmount(file, sheet, i+2, row, value, styles.amount(item.IsCategory)); err != nil {
				writeErr = err
				return
			}
		}
		writeErr = setAmount(file, sheet, totalCol, row, total, styles.amount(item.IsCategory))
	})
	if writeErr != nil {
		return writeErr
	}

	row += 2
	set(fmt.Sprintf("A%d", row), "Subtotal")
	totals := totalsByFirm(evaluation.TableFirmTotals(table))
	for i, column := range columns {
		if err := setAmount(file, sheet, i+2, row, totals[column.id], styles.amount(true)); err != nil {
			return err
		}
	}
	if err := setAmount(file, sheet, totalCol, row, table.SubTotal, styles.amount(true)); err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(totalCol)
	_ = file.SetColWidth(sheet, "A", "A", 50)
	_ = file.SetColWidth(sheet, "B", lastCol, 18)
	return nil
}

type styleKey struct {
	indent int
	bold   bool
	amount bool
}

type styleCache struct {
	file   *excelize.File
	styles map[styleKey]int
}

func newStyleCache(file *excelize.File) *styleCache {
	return &styleCache{file: file, styles: make(map[styleKey]int)}
}

func (c *styleCache) label(depth int, bold bool) int {
	if depth > maxIndent {
		depth = maxIndent
	}
	return c.get(styleKey{indent: depth, bold: bold})
}

func (c *styleCache) amount(bold bool) int {
	return c.get(styleKey{bold: bold, amount: true})
}

func (c *styleCache) get(key styleKey) int {
	if id, ok := c.styles[key]; ok {
		return id
	}
	style := &excelize.Style{Font: &excelize.Font{Bold: key.bold}}
	if key.amount {
		style.NumFmt = amountFormat
	} else {
		style.Alignment = &excelize.Alignment{Indent: key.indent}
	}
	id, err := c.file.NewStyle(style)
	if err != nil {
		return 0
	}
	c.styles[key] = id
	return id
}

func setAmount(file *excelize.File, sheet string, col, row int, value decimal.Decimal, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := file.SetCellValue(sheet, cell, value.Round(2).InexactFloat64()); err != nil {
		return err
	}
	return file.SetCellStyle(sheet, cell, cell, style)
}

func totalsByFirm(totals []model.FirmTotal) map[uuid.UUID]decimal.Decimal {
	result := make(map[uuid.UUID]decimal.Decimal, len(totals))
	for _, total := range totals {
		result[total.FirmID] = total.Total
	}
	return result
}

func cardReference(ev *model.TenderEvaluation) (string, string) {
	switch {
	case ev.ConsultantCardID != nil:
		return "Consultant card", ev.ConsultantCardID.String()
	case ev.ContractorCardID != nil:
		return "Contractor card", ev.ContractorCardID.String()
	default:
		return "Card", ""
	}
}

func buildSheetName(table *model.EvaluationTable, used map[string]struct{}) string {
	name := strings.TrimSpace(table.TableName)
	base := fmt.Sprintf("%d - %s", table.TableNumber, name)
	if name == "" {
		base = fmt.Sprintf("%d - %s", table.TableNumber, table.ID.String())
	}
	base = truncateRunes(sanitizeSheetName(base), 31)

	nameCandidate := base
	counter := 2
	for {
		if _, exists := used[nameCandidate]; !exists {
			return nameCandidate
		}
		suffix := fmt.Sprintf("-%d", counter)
		nameCandidate = truncateRunes(base, 31-len(suffix)) + suffix
		counter++
	}
}

func sanitizeSheetName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Sheet"
	}

	replacer := strings.NewReplacer(
		"[", "-",
		"]", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"/", "-",
		"\\", "-",
	)
	value = replacer.Replace(value)
	value = strings.Trim(strings.TrimSpace(value), "'")
	if value == "" {
		return "Sheet"
	}
	return value
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
