package evaluation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// Table returns the table with the given id.
func Table(ev *model.TenderEvaluation, tableID uuid.UUID) (*model.EvaluationTable, error) {
	for _, table := range ev.Tables {
		if table.ID == tableID {
			return table, nil
		}
	}
	return nil, fmt.Errorf("%w: table %s", ErrNotFound, tableID)
}

// AddTable appends an empty table with the next table number and sort order.
func AddTable(ev *model.TenderEvaluation, name string) (*model.EvaluationTable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrValidation)
	}
	table := newTable(ev, name)
	ev.Tables = append(ev.Tables, table)
	ev.GrandTotal = sumTables(ev)
	return table, nil
}

func RenameTable(ev *model.TenderEvaluation, tableID uuid.UUID, name string) (*model.EvaluationTable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrValidation)
	}
	table, err := Table(ev, tableID)
	if err != nil {
		return nil, err
	}
	table.TableName = name
	return table, nil
}

// RemoveTable drops the table with its whole tree and recomputes the grand total.
func RemoveTable(ev *model.TenderEvaluation, tableID uuid.UUID) error {
	for i, table := range ev.Tables {
		if table.ID != tableID {
			continue
		}
		ev.Tables = append(ev.Tables[:i], ev.Tables[i+1:]...)
		ev.GrandTotal = sumTables(ev)
		return nil
	}
	return fmt.Errorf("%w: table %s", ErrNotFound, tableID)
}

func newTable(ev *model.TenderEvaluation, name string) *model.EvaluationTable {
	number, order := 1, 0
	for _, table := range ev.Tables {
		if table.TableNumber >= number {
			number = table.TableNumber + 1
		}
		if table.SortOrder >= order {
			order = table.SortOrder + 1
		}
	}
	return &model.EvaluationTable{
		ID:          uuid.New(),
		TableNumber: number,
		TableName:   strings.TrimSpace(name),
		SortOrder:   order,
		RootItems:   []*model.LineItem{},
		SubTotal:    decimal.Zero,
	}
}
