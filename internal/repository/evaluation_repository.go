package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

const insertBatchSize = 500

// EvaluationRepository stores whole evaluations. Save replaces every table,
// item and price row of the evaluation in one transaction, so concurrent
// writers resolve as last writer wins per evaluation.
type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Load returns the evaluation for the key, or nil when none exists yet.
func (r *EvaluationRepository) Load(ctx context.Context, key model.EvaluationKey) (*model.TenderEvaluation, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ? AND discipline_id = ?", key.ProjectID, key.DisciplineID)
	if key.ConsultantCardID != nil {
		query = query.Where("consultant_card_id = ?", *key.ConsultantCardID)
	} else {
		query = query.Where("consultant_card_id IS NULL")
	}
	if key.ContractorCardID != nil {
		query = query.Where("contractor_card_id = ?", *key.ContractorCardID)
	} else {
		query = query.Where("contractor_card_id IS NULL")
	}

	var row EvaluationRow
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, persistenceError(err, "load evaluation")
	}
	return r.loadTree(ctx, row)
}

func (r *EvaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TenderEvaluation, error) {
	var row EvaluationRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: evaluation %s", evaluation.ErrNotFound, id)
		}
		return nil, persistenceError(err, "get evaluation")
	}
	return r.loadTree(ctx, row)
}

func (r *EvaluationRepository) loadTree(ctx context.Context, row EvaluationRow) (*model.TenderEvaluation, error) {
	rows := EvaluationRows{Evaluation: row}
	db := r.db.WithContext(ctx)

	if err := db.Where("evaluation_id = ?", row.ID).Order("sort_order ASC").Find(&rows.Tables).Error; err != nil {
		return nil, persistenceError(err, "load evaluation tables")
	}
	if len(rows.Tables) > 0 {
		tableIDs := make([]uuid.UUID, 0, len(rows.Tables))
		for _, table := range rows.Tables {
			tableIDs = append(tableIDs, table.ID)
		}
		if err := db.Where("table_id IN ?", tableIDs).Order("sort_order ASC").Find(&rows.Items).Error; err != nil {
			return nil, persistenceError(err, "load line items")
		}
	}
	if len(rows.Items) > 0 {
		itemIDs := make([]uuid.UUID, 0, len(rows.Items))
		for _, item := range rows.Items {
			itemIDs = append(itemIDs, item.ID)
		}
		if err := db.Where("line_item_id IN ?", itemIDs).Order("position ASC").Find(&rows.Prices).Error; err != nil {
			return nil, persistenceError(err, "load firm prices")
		}
	}

	ev, err := Rebuild(rows)
	if err != nil {
		return nil, persistenceError(err, "rebuild evaluation")
	}
	return ev, nil
}

// Save writes the full tree atomically. Denormalized subtotals are refreshed
// first. On failure ev keeps its previous id and timestamp.
func (r *EvaluationRepository) Save(ctx context.Context, ev *model.TenderEvaluation) (*model.TenderEvaluation, error) {
	if err := evaluation.ValidateKey(ev.Key()); err != nil {
		return nil, err
	}
	evaluation.RecalculateAll(ev)

	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	rows := Flatten(ev, id)
	rows.Evaluation.CreatedAt = now
	rows.Evaluation.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"project_id",
				"discipline_id",
				"consultant_card_id",
				"contractor_card_id",
				"grand_total",
				"updated_at",
			}),
		}).Create(&rows.Evaluation).Error
		if err != nil {
			return err
		}

		if err := tx.Exec(`
			DELETE FROM tender_evaluation_tables
			WHERE evaluation_id = ?
		`, id).Error; err != nil {
			return err
		}

		if len(rows.Tables) > 0 {
			if err := tx.CreateInBatches(&rows.Tables, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(rows.Items) > 0 {
			if err := tx.CreateInBatches(&rows.Items, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(rows.Prices) > 0 {
			if err := tx.CreateInBatches(&rows.Prices, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "save evaluation")
	}

	ev.ID = id
	ev.UpdatedAt = now
	return ev, nil
}
