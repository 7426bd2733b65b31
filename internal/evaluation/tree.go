package evaluation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// ItemPatch carries the fields of a line item that may be replaced in place.
// Nil fields are left unchanged.
type ItemPatch struct {
	Description *string
	IsCategory  *bool
	SortOrder   *int
}

type location struct {
	node     *model.LineItem
	siblings *[]*model.LineItem
	index    int
}

// AddItem inserts a copy of item as a root of the table, or as the last child of
// the category parentID. The stored node is returned.
func AddItem(ev *model.TenderEvaluation, tableID uuid.UUID, item model.LineItem, parentID *uuid.UUID) (*model.LineItem, error) {
	table, err := Table(ev, tableID)
	if err != nil {
		return nil, err
	}
	if err := validateNewItem(item); err != nil {
		return nil, err
	}
	if item.ID != uuid.Nil {
		for _, other := range ev.Tables {
			if _, ok := locate(other, item.ID); ok {
				return nil, fmt.Errorf("%w: item %s already exists in table %d", ErrInvalidState, item.ID, other.TableNumber)
			}
		}
	}
	added := decimal.Zero
	for _, price := range item.Prices {
		added = added.Add(price.Amount)
	}
	if err := checkGrandTotal(ev, added); err != nil {
		return nil, err
	}

	siblings := &table.RootItems
	var parentRef *uuid.UUID
	if parentID != nil {
		loc, ok := locate(table, *parentID)
		if !ok || !loc.node.IsCategory {
			return nil, fmt.Errorf("%w: category %s", ErrNotFound, *parentID)
		}
		siblings = &loc.node.Children
		id := loc.node.ID
		parentRef = &id
	}

	node := &model.LineItem{
		ID:          item.ID,
		Description: item.Description,
		IsCategory:  item.IsCategory,
		SortOrder:   nextSortOrder(*siblings),
		ParentID:    parentRef,
		SourceRef:   item.SourceRef,
		Prices:      append([]model.PriceEntry{}, item.Prices...),
		Children:    []*model.LineItem{},
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	*siblings = append(*siblings, node)

	refresh(ev, table)
	return node, nil
}

// UpdateItem replaces description, category flag and sort order of a node.
// A category with children cannot become a leaf, and a leaf holding non-zero
// prices cannot become a category.
func UpdateItem(ev *model.TenderEvaluation, tableID, itemID uuid.UUID, patch ItemPatch) (*model.LineItem, error) {
	table, err := Table(ev, tableID)
	if err != nil {
		return nil, err
	}
	loc, ok := locate(table, itemID)
	if !ok {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	node := loc.node

	if patch.IsCategory != nil && *patch.IsCategory != node.IsCategory {
		if node.IsCategory && len(node.Children) > 0 {
			return nil, fmt.Errorf("%w: category %s has children", ErrInvalidState, itemID)
		}
		if !node.IsCategory && hasNonZeroPrice(node) {
			return nil, fmt.Errorf("%w: item %s has recorded prices", ErrInvalidState, itemID)
		}
	}
	if patch.SortOrder != nil && *patch.SortOrder != node.SortOrder {
		for _, sibling := range *loc.siblings {
			if sibling.ID != node.ID && sibling.SortOrder == *patch.SortOrder {
				return nil, fmt.Errorf("%w: sort order %d is taken", ErrInvalidState, *patch.SortOrder)
			}
		}
	}

	if patch.Description != nil {
		node.Description = *patch.Description
	}
	if patch.IsCategory != nil && *patch.IsCategory != node.IsCategory {
		node.IsCategory = *patch.IsCategory
		node.Prices = []model.PriceEntry{}
		node.Children = []*model.LineItem{}
		node.CategorySubtotal = nil
	}
	if patch.SortOrder != nil && *patch.SortOrder != node.SortOrder {
		node.SortOrder = *patch.SortOrder
		sortItems(*loc.siblings)
	}

	refresh(ev, table)
	return node, nil
}

// DeleteItem removes the node together with its entire subtree.
func DeleteItem(ev *model.TenderEvaluation, tableID, itemID uuid.UUID) error {
	table, err := Table(ev, tableID)
	if err != nil {
		return err
	}
	loc, ok := locate(table, itemID)
	if !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	list := *loc.siblings
	*loc.siblings = append(list[:loc.index], list[loc.index+1:]...)

	refresh(ev, table)
	return nil
}

// FindPath returns the ancestor chain from the table root down to the item.
func FindPath(ev *model.TenderEvaluation, tableID, itemID uuid.UUID) ([]*model.LineItem, error) {
	table, err := Table(ev, tableID)
	if err != nil {
		return nil, err
	}
	path := findPath(table.RootItems, itemID, nil)
	if path == nil {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return path, nil
}

// FindItem returns the node with the given id in the table.
func FindItem(ev *model.TenderEvaluation, tableID, itemID uuid.UUID) (*model.LineItem, error) {
	table, err := Table(ev, tableID)
	if err != nil {
		return nil, err
	}
	loc, ok := locate(table, itemID)
	if !ok {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return loc.node, nil
}

// Walk visits every node of the table in pre-order, siblings by sort order.
func Walk(table *model.EvaluationTable, fn func(item *model.LineItem, depth int)) {
	walk(table.RootItems, 0, fn)
}

func walk(items []*model.LineItem, depth int, fn func(item *model.LineItem, depth int)) {
	for _, item := range items {
		fn(item, depth)
		walk(item.Children, depth+1, fn)
	}
}

func findPath(items []*model.LineItem, id uuid.UUID, prefix []*model.LineItem) []*model.LineItem {
	for _, item := range items {
		current := append(append([]*model.LineItem{}, prefix...), item)
		if item.ID == id {
			return current
		}
		if found := findPath(item.Children, id, current); found != nil {
			return found
		}
	}
	return nil
}

func locate(table *model.EvaluationTable, id uuid.UUID) (location, bool) {
	return locateIn(&table.RootItems, id)
}

func locateIn(siblings *[]*model.LineItem, id uuid.UUID) (location, bool) {
	for i, item := range *siblings {
		if item.ID == id {
			return location{node: item, siblings: siblings, index: i}, true
		}
		if loc, ok := locateIn(&item.Children, id); ok {
			return loc, true
		}
	}
	return location{}, false
}

func validateNewItem(item model.LineItem) error {
	if len(item.Children) > 0 {
		return fmt.Errorf("%w: items are added without children", ErrInvalidState)
	}
	if item.IsCategory && len(item.Prices) > 0 {
		return fmt.Errorf("%w: a category cannot carry prices", ErrInvalidState)
	}
	return validatePrices(item.Prices)
}

func validatePrices(prices []model.PriceEntry) error {
	seen := make(map[uuid.UUID]struct{}, len(prices))
	for _, price := range prices {
		if price.FirmID == uuid.Nil {
			return fmt.Errorf("%w: firm_id is required", ErrValidation)
		}
		if err := ValidateAmount(price.Amount); err != nil {
			return fmt.Errorf("firm %s: %w", price.FirmID, err)
		}
		if _, dup := seen[price.FirmID]; dup {
			return fmt.Errorf("%w: duplicate price for firm %s", ErrValidation, price.FirmID)
		}
		seen[price.FirmID] = struct{}{}
	}
	return nil
}

func hasNonZeroPrice(item *model.LineItem) bool {
	for _, price := range item.Prices {
		if !price.Amount.IsZero() {
			return true
		}
	}
	return false
}

func nextSortOrder(siblings []*model.LineItem) int {
	next := 0
	for _, sibling := range siblings {
		if sibling.SortOrder >= next {
			next = sibling.SortOrder + 1
		}
	}
	return next
}

func sortItems(items []*model.LineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortOrder < items[j].SortOrder
	})
}

func zeroPrices(firmIDs []uuid.UUID) []model.PriceEntry {
	prices := make([]model.PriceEntry, 0, len(firmIDs))
	for _, id := range firmIDs {
		prices = append(prices, model.PriceEntry{FirmID: id, Amount: decimal.Zero})
	}
	return prices
}
