package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TableNameOriginal    = "Original"
	TableNameAddsAndSubs = "Adds and Subs"
)

type PriceEntry struct {
	FirmID uuid.UUID       `json:"firm_id"`
	Amount decimal.Decimal `json:"amount"`
}

// LineItem is either a category (children, no prices) or a priced leaf (prices, no children).
type LineItem struct {
	ID               uuid.UUID        `json:"id"`
	Description      string           `json:"description"`
	IsCategory       bool             `json:"is_category"`
	SortOrder        int              `json:"sort_order"`
	ParentID         *uuid.UUID       `json:"parent_id,omitempty"`
	SourceRef        string           `json:"source_ref,omitempty"` // fee structure item id for imported nodes
	Prices           []PriceEntry     `json:"prices"`
	Children         []*LineItem      `json:"children"`
	CategorySubtotal *decimal.Decimal `json:"category_subtotal,omitempty"`
}

type EvaluationTable struct {
	ID          uuid.UUID       `json:"id"`
	TableNumber int             `json:"table_number"`
	TableName   string          `json:"table_name"`
	SortOrder   int             `json:"sort_order"`
	RootItems   []*LineItem     `json:"root_items"`
	SubTotal    decimal.Decimal `json:"sub_total"`
}

// EvaluationKey identifies an evaluation. Exactly one card id is set.
type EvaluationKey struct {
	ProjectID        uuid.UUID
	DisciplineID     uuid.UUID
	ConsultantCardID *uuid.UUID
	ContractorCardID *uuid.UUID
}

// TenderEvaluation is the aggregate root and the unit of load/save.
// ID is uuid.Nil until the first successful save.
type TenderEvaluation struct {
	ID               uuid.UUID          `json:"id"`
	ProjectID        uuid.UUID          `json:"project_id"`
	DisciplineID     uuid.UUID          `json:"discipline_id"`
	ConsultantCardID *uuid.UUID         `json:"consultant_card_id,omitempty"`
	ContractorCardID *uuid.UUID         `json:"contractor_card_id,omitempty"`
	Tables           []*EvaluationTable `json:"tables"`
	GrandTotal       decimal.Decimal    `json:"grand_total"`
	ShortlistedFirms []Firm             `json:"shortlisted_firms"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (e *TenderEvaluation) Key() EvaluationKey {
	return EvaluationKey{
		ProjectID:        e.ProjectID,
		DisciplineID:     e.DisciplineID,
		ConsultantCardID: e.ConsultantCardID,
		ContractorCardID: e.ContractorCardID,
	}
}

// FirmIDs returns the ids of the cached shortlisted firms in display order.
func (e *TenderEvaluation) FirmIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.ShortlistedFirms))
	for _, firm := range e.ShortlistedFirms {
		ids = append(ids, firm.ID)
	}
	return ids
}

// FirmName returns the cached display name of a firm, or its id when the firm
// is no longer shortlisted.
func (e *TenderEvaluation) FirmName(id uuid.UUID) string {
	for _, firm := range e.ShortlistedFirms {
		if firm.ID == id && strings.TrimSpace(firm.Name) != "" {
			return firm.Name
		}
	}
	return id.String()
}
