package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tender-eval/internal/model"
)

// SubmissionRepository reads amounts parsed from firm tender submissions.
type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) GetSubmittedPrices(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.SubmittedPrice, error) {
	var prices []model.SubmittedPrice
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			sp.item_ref,
			sp.firm_id,
			sp.amount
		FROM tender_submission_prices sp
		JOIN tender_submissions s ON s.id = sp.submission_id
		WHERE s.project_id = ?
			AND s.discipline_id = ?
		ORDER BY s.submitted_at ASC, sp.item_ref ASC
	`, projectID, disciplineID).Scan(&prices).Error
	if err != nil {
		return nil, persistenceError(err, "load submitted prices")
	}
	return prices, nil
}
