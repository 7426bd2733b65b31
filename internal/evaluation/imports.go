package evaluation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// ImportReport summarises a price import.
type ImportReport struct {
	MatchedItems  int      `json:"matched_items"`
	AppliedPrices int      `json:"applied_prices"`
	UnmatchedRefs []string `json:"unmatched_refs"`
}

// ImportStructureFromFeeSchedule replaces the table's root items with the fee
// schedule tree, keeping hierarchy and order. Every leaf starts with one zero
// price per firm. A fee node with children is imported as a category.
func ImportStructureFromFeeSchedule(ev *model.TenderEvaluation, tableID uuid.UUID, items []model.FeeScheduleItem, firmIDs []uuid.UUID) error {
	table, err := Table(ev, tableID)
	if err != nil {
		return err
	}
	seen := make(map[uuid.UUID]struct{}, len(firmIDs))
	for _, id := range firmIDs {
		if id == uuid.Nil {
			return fmt.Errorf("%w: firm id is required", ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate firm %s", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}

	roots := make([]*model.LineItem, 0, len(items))
	for i, item := range items {
		roots = append(roots, buildFeeNode(item, nil, i, firmIDs))
	}
	table.RootItems = roots

	refresh(ev, table)
	return nil
}

func buildFeeNode(item model.FeeScheduleItem, parentID *uuid.UUID, order int, firmIDs []uuid.UUID) *model.LineItem {
	node := &model.LineItem{
		ID:          uuid.New(),
		Description: item.Description,
		IsCategory:  item.IsCategory || len(item.Children) > 0,
		SortOrder:   order,
		ParentID:    parentID,
		SourceRef:   item.ID,
		Prices:      []model.PriceEntry{},
		Children:    []*model.LineItem{},
	}
	if !node.IsCategory {
		node.Prices = zeroPrices(firmIDs)
		return node
	}
	id := node.ID
	for i, child := range item.Children {
		node.Children = append(node.Children, buildFeeNode(child, &id, i, firmIDs))
	}
	return node
}

// ImportPricesFromSubmissions writes submitted amounts onto matching leaf items
// of the table. An item ref matches the item id, then the fee structure ref,
// then the trimmed case-insensitive description when that description is
// unique among leaves. Firms without a submitted amount keep their prior entry;
// the tree structure is never altered.
func ImportPricesFromSubmissions(ev *model.TenderEvaluation, tableID uuid.UUID, submissions []model.SubmittedPrice) (ImportReport, error) {
	table, err := Table(ev, tableID)
	if err != nil {
		return ImportReport{}, err
	}
	for _, sub := range submissions {
		if strings.TrimSpace(sub.ItemRef) == "" {
			return ImportReport{}, fmt.Errorf("%w: item_ref is required", ErrValidation)
		}
		if sub.FirmID == uuid.Nil {
			return ImportReport{}, fmt.Errorf("%w: firm_id is required for %q", ErrValidation, sub.ItemRef)
		}
		if err := ValidateAmount(sub.Amount); err != nil {
			return ImportReport{}, fmt.Errorf("%q: %w", sub.ItemRef, err)
		}
	}

	index := newLeafIndex(table)
	type pending struct {
		item   *model.LineItem
		firmID uuid.UUID
		amount decimal.Decimal
	}
	var updates []pending
	report := ImportReport{UnmatchedRefs: []string{}}
	matched := make(map[uuid.UUID]struct{})
	unmatched := make(map[string]struct{})
	for _, sub := range submissions {
		item := index.resolve(sub.ItemRef)
		if item == nil {
			if _, ok := unmatched[sub.ItemRef]; !ok {
				unmatched[sub.ItemRef] = struct{}{}
				report.UnmatchedRefs = append(report.UnmatchedRefs, sub.ItemRef)
			}
			continue
		}
		matched[item.ID] = struct{}{}
		updates = append(updates, pending{item: item, firmID: sub.FirmID, amount: sub.Amount})
	}

	type cell struct {
		item   uuid.UUID
		firmID uuid.UUID
	}
	final := make(map[cell]pending, len(updates))
	for _, u := range updates {
		final[cell{item: u.item.ID, firmID: u.firmID}] = u
	}
	delta := decimal.Zero
	for _, u := range final {
		existing, _ := priceOf(u.item, u.firmID)
		delta = delta.Add(u.amount.Sub(existing))
	}
	if err := checkGrandTotal(ev, delta); err != nil {
		return ImportReport{}, err
	}

	for _, u := range updates {
		upsertPrice(u.item, u.firmID, u.amount)
	}
	report.MatchedItems = len(matched)
	report.AppliedPrices = len(updates)

	refresh(ev, table)
	return report, nil
}

type leafIndex struct {
	byID          map[string]*model.LineItem
	bySourceRef   map[string]*model.LineItem
	byDescription map[string]*model.LineItem
	ambiguous     map[string]struct{}
}

func newLeafIndex(table *model.EvaluationTable) *leafIndex {
	idx := &leafIndex{
		byID:          make(map[string]*model.LineItem),
		bySourceRef:   make(map[string]*model.LineItem),
		byDescription: make(map[string]*model.LineItem),
		ambiguous:     make(map[string]struct{}),
	}
	Walk(table, func(item *model.LineItem, _ int) {
		if item.IsCategory {
			return
		}
		idx.byID[item.ID.String()] = item
		if item.SourceRef != "" {
			if _, exists := idx.bySourceRef[item.SourceRef]; !exists {
				idx.bySourceRef[item.SourceRef] = item
			}
		}
		key := normalizeDescription(item.Description)
		if key == "" {
			return
		}
		if _, exists := idx.byDescription[key]; exists {
			idx.ambiguous[key] = struct{}{}
			return
		}
		idx.byDescription[key] = item
	})
	return idx
}

func (idx *leafIndex) resolve(ref string) *model.LineItem {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		if item, ok := idx.byID[id.String()]; ok {
			return item
		}
	}
	if item, ok := idx.bySourceRef[ref]; ok {
		return item
	}
	key := normalizeDescription(ref)
	if _, ambiguous := idx.ambiguous[key]; ambiguous {
		return nil
	}
	return idx.byDescription[key]
}

func normalizeDescription(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
