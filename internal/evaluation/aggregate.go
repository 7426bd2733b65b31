package evaluation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// RecalculateAll recomputes every table and the grand total.
func RecalculateAll(ev *model.TenderEvaluation) {
	for _, table := range ev.Tables {
		RecalculateTable(table)
	}
	ev.GrandTotal = sumTables(ev)
}

// RecalculateTable walks the whole tree post-order. A leaf contributes the sum
// of its prices across all firms; a category contributes its subtotal.
func RecalculateTable(table *model.EvaluationTable) {
	total := decimal.Zero
	for _, item := range table.RootItems {
		total = total.Add(contribution(item))
	}
	table.SubTotal = total
}

func refresh(ev *model.TenderEvaluation, table *model.EvaluationTable) {
	RecalculateTable(table)
	ev.GrandTotal = sumTables(ev)
}

func contribution(item *model.LineItem) decimal.Decimal {
	if !item.IsCategory {
		item.CategorySubtotal = nil
		sum := decimal.Zero
		for _, price := range item.Prices {
			sum = sum.Add(price.Amount)
		}
		return sum
	}
	subtotal := decimal.Zero
	for _, child := range item.Children {
		subtotal = subtotal.Add(contribution(child))
	}
	item.CategorySubtotal = &subtotal
	return subtotal
}

func sumTables(ev *model.TenderEvaluation) decimal.Decimal {
	total := decimal.Zero
	for _, table := range ev.Tables {
		total = total.Add(table.SubTotal)
	}
	return total
}

// ItemFirmTotals breaks an item's contribution down by firm. Firms are ordered
// by first appearance in a pre-order walk.
func ItemFirmTotals(item *model.LineItem) []model.FirmTotal {
	acc := newFirmAccumulator()
	acc.addItem(item)
	return acc.totals()
}

func TableFirmTotals(table *model.EvaluationTable) []model.FirmTotal {
	acc := newFirmAccumulator()
	for _, item := range table.RootItems {
		acc.addItem(item)
	}
	return acc.totals()
}

// FirmTotals is the per-firm view of the grand total. Shortlisted firms come
// first in shortlist order, even when they have no prices.
func FirmTotals(ev *model.TenderEvaluation) []model.FirmTotal {
	acc := newFirmAccumulator()
	for _, firm := range ev.ShortlistedFirms {
		acc.touch(firm.ID)
	}
	for _, table := range ev.Tables {
		for _, item := range table.RootItems {
			acc.addItem(item)
		}
	}
	return acc.totals()
}

type firmAccumulator struct {
	order []uuid.UUID
	sums  map[uuid.UUID]decimal.Decimal
}

func newFirmAccumulator() *firmAccumulator {
	return &firmAccumulator{sums: make(map[uuid.UUID]decimal.Decimal)}
}

func (a *firmAccumulator) touch(id uuid.UUID) {
	if _, ok := a.sums[id]; !ok {
		a.order = append(a.order, id)
		a.sums[id] = decimal.Zero
	}
}

func (a *firmAccumulator) addItem(item *model.LineItem) {
	for _, price := range item.Prices {
		a.touch(price.FirmID)
		a.sums[price.FirmID] = a.sums[price.FirmID].Add(price.Amount)
	}
	for _, child := range item.Children {
		a.addItem(child)
	}
}

func (a *firmAccumulator) totals() []model.FirmTotal {
	result := make([]model.FirmTotal, 0, len(a.order))
	for _, id := range a.order {
		result = append(result, model.FirmTotal{FirmID: id, Total: a.sums[id]})
	}
	return result
}
