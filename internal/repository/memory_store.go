package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

var errDuplicateKey = errors.New("an evaluation already exists for this key")

// MemoryStore keeps evaluations as flat rows in process memory. Every Load
// returns a fresh tree, so callers never share nodes with the store or with
// each other. It backs local tooling and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]EvaluationRows

	// FailSave, when set, is returned by the next Save call instead of
	// writing anything.
	FailSave error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]EvaluationRows)}
}

func (s *MemoryStore) Load(ctx context.Context, key model.EvaluationKey) (*model.TenderEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError(err, "load evaluation")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rows := range s.rows {
		if sameKey(evaluationKey(rows.Evaluation), key) {
			return rebuildStored(rows)
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*model.TenderEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError(err, "get evaluation")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: evaluation %s", evaluation.ErrNotFound, id)
	}
	return rebuildStored(rows)
}

func (s *MemoryStore) Save(ctx context.Context, ev *model.TenderEvaluation) (*model.TenderEvaluation, error) {
	if err := evaluation.ValidateKey(ev.Key()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, persistenceError(err, "save evaluation")
	}
	evaluation.RecalculateAll(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailSave; err != nil {
		s.FailSave = nil
		return nil, persistenceError(err, "save evaluation")
	}

	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	for otherID, rows := range s.rows {
		if otherID != id && sameKey(evaluationKey(rows.Evaluation), ev.Key()) {
			return nil, persistenceError(errDuplicateKey, "save evaluation")
		}
	}

	now := time.Now().UTC()
	rows := Flatten(ev, id)
	rows.Evaluation.UpdatedAt = now
	if previous, ok := s.rows[id]; ok {
		rows.Evaluation.CreatedAt = previous.Evaluation.CreatedAt
	} else {
		rows.Evaluation.CreatedAt = now
	}
	s.rows[id] = rows

	ev.ID = id
	ev.UpdatedAt = now
	return ev, nil
}

func rebuildStored(rows EvaluationRows) (*model.TenderEvaluation, error) {
	ev, err := Rebuild(rows)
	if err != nil {
		return nil, persistenceError(err, "rebuild evaluation")
	}
	return ev, nil
}

func evaluationKey(row EvaluationRow) model.EvaluationKey {
	return model.EvaluationKey{
		ProjectID:        row.ProjectID,
		DisciplineID:     row.DisciplineID,
		ConsultantCardID: row.ConsultantCardID,
		ContractorCardID: row.ContractorCardID,
	}
}

func sameKey(a, b model.EvaluationKey) bool {
	return a.ProjectID == b.ProjectID &&
		a.DisciplineID == b.DisciplineID &&
		sameCard(a.ConsultantCardID, b.ConsultantCardID) &&
		sameCard(a.ContractorCardID, b.ContractorCardID)
}

func sameCard(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
