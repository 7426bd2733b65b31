package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EvaluationRow struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProjectID        uuid.UUID       `gorm:"type:uuid;not null"`
	DisciplineID     uuid.UUID       `gorm:"type:uuid;not null"`
	ConsultantCardID *uuid.UUID      `gorm:"type:uuid"`
	ContractorCardID *uuid.UUID      `gorm:"type:uuid"`
	GrandTotal       decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (EvaluationRow) TableName() string {
	return "tender_evaluations"
}

type TableRow struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EvaluationID uuid.UUID       `gorm:"type:uuid;not null"`
	TableNumber  int             `gorm:"not null"`
	Name         string          `gorm:"column:table_name;not null"`
	SortOrder    int             `gorm:"not null"`
	SubTotal     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
}

func (TableRow) TableName() string {
	return "tender_evaluation_tables"
}

type LineItemRow struct {
	ID               uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TableID          uuid.UUID           `gorm:"type:uuid;not null"`
	ParentCategoryID *uuid.UUID          `gorm:"type:uuid"`
	Description      string              `gorm:"not null"`
	IsCategory       bool                `gorm:"not null"`
	SortOrder        int                 `gorm:"not null"`
	SourceRef        string              `gorm:"size:128"`
	CategorySubtotal decimal.NullDecimal `gorm:"type:numeric(18,2)"`
}

func (LineItemRow) TableName() string {
	return "tender_line_items"
}

type PriceRow struct {
	LineItemID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	FirmID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Position   int             `gorm:"not null"`
}

func (PriceRow) TableName() string {
	return "tender_firm_prices"
}

// EvaluationRows is the flat form of one evaluation.
type EvaluationRows struct {
	Evaluation EvaluationRow
	Tables     []TableRow
	Items      []LineItemRow
	Prices     []PriceRow
}
