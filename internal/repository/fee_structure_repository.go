package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/tender-eval/internal/model"
)

// FeeStructureRepository reads fee structure items maintained by the fee
// structure service.
type FeeStructureRepository struct {
	db *gorm.DB
}

func NewFeeStructureRepository(db *gorm.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

type FeeStructureRow struct {
	ID          string
	ParentID    *string
	Description string
	IsCategory  bool
	SortOrder   int
}

func (r *FeeStructureRepository) GetFeeStructure(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.FeeScheduleItem, error) {
	var rows []FeeStructureRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id::text AS id,
			parent_id::text AS parent_id,
			COALESCE(description, '') AS description,
			is_category,
			sort_order
		FROM fee_structure_items
		WHERE project_id = ?
			AND discipline_id = ?
		ORDER BY sort_order ASC
	`, projectID, disciplineID).Scan(&rows).Error
	if err != nil {
		return nil, persistenceError(err, "load fee structure")
	}
	return BuildFeeTree(rows), nil
}

// BuildFeeTree nests flat fee structure rows by parent id, ordered by sort
// order at every level. Rows whose parent is missing are treated as roots, and
// so is the first row of a parent cycle that no root reaches.
func BuildFeeTree(rows []FeeStructureRow) []model.FeeScheduleItem {
	known := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		known[row.ID] = struct{}{}
	}
	children := make(map[string][]FeeStructureRow)
	var roots []FeeStructureRow
	for _, row := range rows {
		if row.ParentID != nil {
			if _, ok := known[*row.ParentID]; ok && *row.ParentID != row.ID {
				children[*row.ParentID] = append(children[*row.ParentID], row)
				continue
			}
		}
		roots = append(roots, row)
	}

	visited := make(map[string]struct{}, len(rows))
	var build func(level []FeeStructureRow) []model.FeeScheduleItem
	build = func(level []FeeStructureRow) []model.FeeScheduleItem {
		sort.SliceStable(level, func(i, j int) bool {
			return level[i].SortOrder < level[j].SortOrder
		})
		items := make([]model.FeeScheduleItem, 0, len(level))
		for _, row := range level {
			if _, seen := visited[row.ID]; seen {
				continue
			}
			visited[row.ID] = struct{}{}
			items = append(items, model.FeeScheduleItem{
				ID:          row.ID,
				Description: row.Description,
				IsCategory:  row.IsCategory,
				Children:    build(children[row.ID]),
			})
		}
		return items
	}
	tree := build(roots)

	var unreached []FeeStructureRow
	for _, row := range rows {
		if _, seen := visited[row.ID]; !seen {
			unreached = append(unreached, row)
		}
	}
	sort.SliceStable(unreached, func(i, j int) bool {
		return unreached[i].SortOrder < unreached[j].SortOrder
	})
	for _, row := range unreached {
		tree = append(tree, build([]FeeStructureRow{row})...)
	}
	return tree
}
