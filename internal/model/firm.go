package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Firm is a reference to a firm in the project firm registry.
type Firm struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FeeScheduleItem is one node of the fee structure owned by the fee structure service.
type FeeScheduleItem struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	IsCategory  bool              `json:"is_category"`
	Children    []FeeScheduleItem `json:"children,omitempty"`
}

// SubmittedPrice is a single amount parsed from a firm's tender submission.
type SubmittedPrice struct {
	ItemRef string          `json:"item_ref"`
	FirmID  uuid.UUID       `json:"firm_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// FirmTotal is the per-firm share of a table or evaluation total.
type FirmTotal struct {
	FirmID uuid.UUID       `json:"firm_id"`
	Total  decimal.Decimal `json:"total"`
}
