package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tender-eval/internal/model"
)

// FirmRepository reads the project firm registry owned by the projects service.
type FirmRepository struct {
	db *gorm.DB
}

func NewFirmRepository(db *gorm.DB) *FirmRepository {
	return &FirmRepository{db: db}
}

func (r *FirmRepository) ListShortlistedFirms(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.Firm, error) {
	var firms []model.Firm
	err := r.db.WithContext(ctx).Raw(`
		SELECT f.id, f.name
		FROM project_firms pf
		JOIN firms f ON f.id = pf.firm_id
		WHERE pf.project_id = ?
			AND pf.discipline_id = ?
			AND pf.shortlisted = TRUE
		ORDER BY pf.sort_order ASC, f.name ASC
	`, projectID, disciplineID).Scan(&firms).Error
	if err != nil {
		return nil, persistenceError(err, "list shortlisted firms")
	}
	return firms, nil
}
