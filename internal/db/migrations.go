package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS tender_evaluations (
		id UUID PRIMARY KEY,
		project_id UUID NOT NULL,
		discipline_id UUID NOT NULL,
		consultant_card_id UUID,
		contractor_card_id UUID,
		grand_total NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_tender_evaluations_card
			CHECK ((consultant_card_id IS NULL) <> (contractor_card_id IS NULL))
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_tender_evaluations_key ON tender_evaluations (
		project_id,
		discipline_id,
		COALESCE(consultant_card_id, '00000000-0000-0000-0000-000000000000'::uuid),
		COALESCE(contractor_card_id, '00000000-0000-0000-0000-000000000000'::uuid)
	);`,
	`CREATE TABLE IF NOT EXISTS tender_evaluation_tables (
		id UUID PRIMARY KEY,
		evaluation_id UUID NOT NULL REFERENCES tender_evaluations(id) ON DELETE CASCADE,
		table_number INT NOT NULL,
		table_name VARCHAR(255) NOT NULL,
		sort_order INT NOT NULL,
		sub_total NUMERIC(18,2) NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tender_evaluation_tables_evaluation_id ON tender_evaluation_tables (evaluation_id);`,
	`CREATE TABLE IF NOT EXISTS tender_line_items (
		id UUID PRIMARY KEY,
		table_id UUID NOT NULL REFERENCES tender_evaluation_tables(id) ON DELETE CASCADE,
		parent_category_id UUID REFERENCES tender_line_items(id) ON DELETE CASCADE,
		description TEXT NOT NULL DEFAULT '',
		is_category BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INT NOT NULL,
		source_ref VARCHAR(128) NOT NULL DEFAULT '',
		category_subtotal NUMERIC(18,2)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tender_line_items_table_id ON tender_line_items (table_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tender_line_items_parent ON tender_line_items (parent_category_id) WHERE parent_category_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS tender_firm_prices (
		line_item_id UUID NOT NULL REFERENCES tender_line_items(id) ON DELETE CASCADE,
		firm_id UUID NOT NULL,
		amount NUMERIC(18,2) NOT NULL CHECK (amount >= 0),
		position INT NOT NULL DEFAULT 0,
		PRIMARY KEY (line_item_id, firm_id)
	);`,
}

// Migrate applies the idempotent schema statements in order.
func Migrate(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
