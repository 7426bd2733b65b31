package evaluation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// Amounts are stored as NUMERIC(18,2).
const amountScale = 2

var maxAmount = decimal.New(1, 16)

// ValidateAmount accepts non-negative amounts with at most two decimal places
// and at most 16 integer digits.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if !amount.Equal(amount.Round(amountScale)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrValidation, amount, amountScale)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: amount %s is too large", ErrValidation, amount)
	}
	return nil
}

// SetPrice upserts the firm's amount on a leaf item and recomputes the owning
// table and the grand total before returning.
func SetPrice(ev *model.TenderEvaluation, tableID, itemID, firmID uuid.UUID, amount decimal.Decimal) error {
	table, err := Table(ev, tableID)
	if err != nil {
		return err
	}
	loc, ok := locate(table, itemID)
	if !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	item := loc.node
	if item.IsCategory {
		return fmt.Errorf("%w: item %s is a category", ErrInvalidOperation, itemID)
	}
	if firmID == uuid.Nil {
		return fmt.Errorf("%w: firm_id is required", ErrValidation)
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	delta := amount
	if existing, ok := priceOf(item, firmID); ok {
		delta = amount.Sub(existing)
	}
	if err := checkGrandTotal(ev, delta); err != nil {
		return err
	}

	upsertPrice(item, firmID, amount)
	refresh(ev, table)
	return nil
}

// GetPrices returns a copy of the sparse price list. Firms without an entry
// are absent, not zero.
func GetPrices(ev *model.TenderEvaluation, tableID, itemID uuid.UUID) ([]model.PriceEntry, error) {
	item, err := FindItem(ev, tableID, itemID)
	if err != nil {
		return nil, err
	}
	return append([]model.PriceEntry{}, item.Prices...), nil
}

// checkGrandTotal rejects a change that would push the grand total, and with it
// every subtotal below it, past the stored column range.
func checkGrandTotal(ev *model.TenderEvaluation, delta decimal.Decimal) error {
	if ev.GrandTotal.Add(delta).GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: grand total would exceed %s", ErrValidation, maxAmount)
	}
	return nil
}

func priceOf(item *model.LineItem, firmID uuid.UUID) (decimal.Decimal, bool) {
	for _, price := range item.Prices {
		if price.FirmID == firmID {
			return price.Amount, true
		}
	}
	return decimal.Zero, false
}

func upsertPrice(item *model.LineItem, firmID uuid.UUID, amount decimal.Decimal) {
	for i := range item.Prices {
		if item.Prices[i].FirmID == firmID {
			item.Prices[i].Amount = amount
			return
		}
	}
	item.Prices = append(item.Prices, model.PriceEntry{FirmID: firmID, Amount: amount})
}
