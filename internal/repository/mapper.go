package repository

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// Flatten turns the aggregate into rows keyed by evaluationID. Items are emitted
// parents first so that parent rows always precede their children.
func Flatten(ev *model.TenderEvaluation, evaluationID uuid.UUID) EvaluationRows {
	rows := EvaluationRows{
		Evaluation: EvaluationRow{
			ID:               evaluationID,
			ProjectID:        ev.ProjectID,
			DisciplineID:     ev.DisciplineID,
			ConsultantCardID: copyUUID(ev.ConsultantCardID),
			ContractorCardID: copyUUID(ev.ContractorCardID),
			GrandTotal:       ev.GrandTotal,
			UpdatedAt:        ev.UpdatedAt,
		},
		Tables: make([]TableRow, 0, len(ev.Tables)),
	}

	for _, table := range ev.Tables {
		rows.Tables = append(rows.Tables, TableRow{
			ID:           table.ID,
			EvaluationID: evaluationID,
			TableNumber:  table.TableNumber,
			Name:         table.TableName,
			SortOrder:    table.SortOrder,
			SubTotal:     table.SubTotal,
		})
		flattenItems(&rows, table.ID, nil, table.RootItems)
	}
	return rows
}

func flattenItems(rows *EvaluationRows, tableID uuid.UUID, parentID *uuid.UUID, items []*model.LineItem) {
	for _, item := range items {
		row := LineItemRow{
			ID:               item.ID,
			TableID:          tableID,
			ParentCategoryID: parentID,
			Description:      item.Description,
			IsCategory:       item.IsCategory,
			SortOrder:        item.SortOrder,
			SourceRef:        item.SourceRef,
		}
		if item.IsCategory && item.CategorySubtotal != nil {
			row.CategorySubtotal = decimal.NewNullDecimal(*item.CategorySubtotal)
		}
		rows.Items = append(rows.Items, row)

		for position, price := range item.Prices {
			rows.Prices = append(rows.Prices, PriceRow{
				LineItemID: item.ID,
				FirmID:     price.FirmID,
				Amount:     price.Amount,
				Position:   position,
			})
		}

		id := item.ID
		flattenItems(rows, tableID, &id, item.Children)
	}
}

// Rebuild reconstructs the nested aggregate from its flat rows. Stored
// subtotals are taken as they are; nothing is recomputed. Rows that do not
// form a tree under their table are reported as an error.
func Rebuild(rows EvaluationRows) (*model.TenderEvaluation, error) {
	ev := &model.TenderEvaluation{
		ID:               rows.Evaluation.ID,
		ProjectID:        rows.Evaluation.ProjectID,
		DisciplineID:     rows.Evaluation.DisciplineID,
		ConsultantCardID: copyUUID(rows.Evaluation.ConsultantCardID),
		ContractorCardID: copyUUID(rows.Evaluation.ContractorCardID),
		GrandTotal:       rows.Evaluation.GrandTotal,
		UpdatedAt:        rows.Evaluation.UpdatedAt,
		Tables:           make([]*model.EvaluationTable, 0, len(rows.Tables)),
		ShortlistedFirms: []model.Firm{},
	}

	tables := make(map[uuid.UUID]*model.EvaluationTable, len(rows.Tables))
	for _, row := range rows.Tables {
		table := &model.EvaluationTable{
			ID:          row.ID,
			TableNumber: row.TableNumber,
			TableName:   row.Name,
			SortOrder:   row.SortOrder,
			RootItems:   []*model.LineItem{},
			SubTotal:    row.SubTotal,
		}
		tables[row.ID] = table
		ev.Tables = append(ev.Tables, table)
	}
	sort.SliceStable(ev.Tables, func(i, j int) bool {
		return ev.Tables[i].SortOrder < ev.Tables[j].SortOrder
	})

	nodes := make(map[uuid.UUID]*model.LineItem, len(rows.Items))
	owner := make(map[uuid.UUID]uuid.UUID, len(rows.Items))
	for _, row := range rows.Items {
		if _, ok := tables[row.TableID]; !ok {
			return nil, fmt.Errorf("line item %s references unknown table %s", row.ID, row.TableID)
		}
		if _, dup := nodes[row.ID]; dup {
			return nil, fmt.Errorf("duplicate line item %s", row.ID)
		}
		node := &model.LineItem{
			ID:          row.ID,
			Description: row.Description,
			IsCategory:  row.IsCategory,
			SortOrder:   row.SortOrder,
			SourceRef:   row.SourceRef,
			Prices:      []model.PriceEntry{},
			Children:    []*model.LineItem{},
		}
		if row.ParentCategoryID != nil {
			parent := *row.ParentCategoryID
			node.ParentID = &parent
		}
		if row.IsCategory && row.CategorySubtotal.Valid {
			subtotal := row.CategorySubtotal.Decimal
			node.CategorySubtotal = &subtotal
		}
		nodes[row.ID] = node
		owner[row.ID] = row.TableID
	}

	prices := append([]PriceRow{}, rows.Prices...)
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].Position < prices[j].Position
	})
	for _, row := range prices {
		node, ok := nodes[row.LineItemID]
		if !ok {
			return nil, fmt.Errorf("price for firm %s references unknown line item %s", row.FirmID, row.LineItemID)
		}
		if node.IsCategory {
			return nil, fmt.Errorf("price for firm %s is attached to category %s", row.FirmID, row.LineItemID)
		}
		node.Prices = append(node.Prices, model.PriceEntry{FirmID: row.FirmID, Amount: row.Amount})
	}

	for _, row := range rows.Items {
		node := nodes[row.ID]
		if node.ParentID == nil {
			table := tables[row.TableID]
			table.RootItems = append(table.RootItems, node)
			continue
		}
		parent, ok := nodes[*node.ParentID]
		if !ok || owner[*node.ParentID] != row.TableID {
			return nil, fmt.Errorf("line item %s references unknown parent %s", row.ID, *node.ParentID)
		}
		if !parent.IsCategory {
			return nil, fmt.Errorf("line item %s is a child of leaf %s", row.ID, parent.ID)
		}
		parent.Children = append(parent.Children, node)
	}

	reachable := 0
	for _, table := range ev.Tables {
		reachable += sortTree(table.RootItems)
	}
	if reachable != len(nodes) {
		return nil, fmt.Errorf("%d line items are not reachable from a table root", len(nodes)-reachable)
	}
	return ev, nil
}

func sortTree(items []*model.LineItem) int {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortOrder < items[j].SortOrder
	})
	count := len(items)
	for _, item := range items {
		count += sortTree(item.Children)
	}
	return count
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
