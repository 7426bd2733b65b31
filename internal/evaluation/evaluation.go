// Package evaluation implements the tender price evaluation engine: a tree of
// categories and priced line items per table, with eager bottom-up recomputation
// of category subtotals, table subtotals and the evaluation grand total.
//
// Every operation takes the caller-owned aggregate and mutates it in place.
// Inputs are validated before any node is touched, so a rejected call leaves the
// aggregate exactly as it was.
package evaluation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/model"
)

// DefaultTableNames are seeded into a freshly created evaluation.
var DefaultTableNames = []string{model.TableNameOriginal, model.TableNameAddsAndSubs}

// ValidateKey checks that the key names a project, a discipline or trade and
// exactly one of the consultant or contractor cards.
func ValidateKey(key model.EvaluationKey) error {
	if key.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: project_id is required", ErrValidation)
	}
	if key.DisciplineID == uuid.Nil {
		return fmt.Errorf("%w: discipline_id is required", ErrValidation)
	}
	consultant := key.ConsultantCardID != nil && *key.ConsultantCardID != uuid.Nil
	contractor := key.ContractorCardID != nil && *key.ContractorCardID != uuid.Nil
	if consultant == contractor {
		return fmt.Errorf("%w: exactly one of consultant_card_id or contractor_card_id is required", ErrValidation)
	}
	return nil
}

// NormalizeKey treats card ids set to the nil uuid as absent.
func NormalizeKey(key model.EvaluationKey) model.EvaluationKey {
	key.ConsultantCardID = copyID(key.ConsultantCardID)
	key.ContractorCardID = copyID(key.ContractorCardID)
	return key
}

// New builds an unsaved evaluation with one empty table per name.
func New(key model.EvaluationKey, tableNames []string) (*model.TenderEvaluation, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	for _, name := range tableNames {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: table name is required", ErrValidation)
		}
	}

	ev := &model.TenderEvaluation{
		ProjectID:        key.ProjectID,
		DisciplineID:     key.DisciplineID,
		ConsultantCardID: copyID(key.ConsultantCardID),
		ContractorCardID: copyID(key.ContractorCardID),
		Tables:           make([]*model.EvaluationTable, 0, len(tableNames)),
		GrandTotal:       decimal.Zero,
		ShortlistedFirms: []model.Firm{},
	}
	for _, name := range tableNames {
		ev.Tables = append(ev.Tables, newTable(ev, name))
	}
	return ev, nil
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := *id
	return &v
}
