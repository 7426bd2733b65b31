package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/tender-eval/internal/config"
	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

type EvaluationStore interface {
	Load(ctx context.Context, key model.EvaluationKey) (*model.TenderEvaluation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TenderEvaluation, error)
	Save(ctx context.Context, ev *model.TenderEvaluation) (*model.TenderEvaluation, error)
}

type FirmRegistry interface {
	ListShortlistedFirms(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.Firm, error)
}

type FeeStructureSource interface {
	GetFeeStructure(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.FeeScheduleItem, error)
}

type SubmissionSource interface {
	GetSubmittedPrices(ctx context.Context, projectID, disciplineID uuid.UUID) ([]model.SubmittedPrice, error)
}

type Collaborators struct {
	Firms        FirmRegistry
	FeeStructure FeeStructureSource
	Submissions  SubmissionSource
}

// EvaluationService runs each caller operation as load, engine call, save
// within the caller's context. Saves are last writer wins per evaluation.
type EvaluationService struct {
	store         EvaluationStore
	firms         FirmRegistry
	feeStructure  FeeStructureSource
	submissions   SubmissionSource
	defaultTables []string
	log           zerolog.Logger
}

func NewEvaluationService(store EvaluationStore, collaborators Collaborators, cfg *config.Config, log zerolog.Logger) *EvaluationService {
	tables := evaluation.DefaultTableNames
	if cfg != nil && len(cfg.Tender.DefaultTables) > 0 {
		tables = cfg.Tender.DefaultTables
	}
	return &EvaluationService{
		store:         store,
		firms:         collaborators.Firms,
		feeStructure:  collaborators.FeeStructure,
		submissions:   collaborators.Submissions,
		defaultTables: tables,
		log:           log,
	}
}

type AddLineItemInput struct {
	TableID     uuid.UUID
	ParentID    *uuid.UUID
	Description string
	IsCategory  bool
	Prices      []model.PriceEntry
}

// LoadOrInit returns the evaluation for the key, creating and saving one with
// the default tables when none exists.
func (s *EvaluationService) LoadOrInit(ctx context.Context, principal model.Principal, key model.EvaluationKey) (*model.TenderEvaluation, error) {
	key = evaluation.NormalizeKey(key)
	if err := evaluation.ValidateKey(key); err != nil {
		return nil, err
	}
	ev, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		return ev, s.attachFirms(ctx, ev)
	}
	if !principal.CanEdit() {
		return nil, fmt.Errorf("%w: no evaluation exists yet", evaluation.ErrNotFound)
	}

	ev, err = evaluation.New(key, s.defaultTables)
	if err != nil {
		return nil, err
	}
	if err := s.attachFirms(ctx, ev); err != nil {
		return nil, err
	}
	saved, err := s.store.Save(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("evaluation_id", saved.ID.String()).
		Str("project_id", key.ProjectID.String()).
		Int("tables", len(saved.Tables)).
		Msg("tender evaluation created")
	return saved, nil
}

func (s *EvaluationService) Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.TenderEvaluation, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ev, s.attachFirms(ctx, ev)
}

// Save persists an aggregate the caller has been editing in memory.
func (s *EvaluationService) Save(ctx context.Context, principal model.Principal, ev *model.TenderEvaluation) (*model.TenderEvaluation, error) {
	if !principal.CanEdit() {
		return nil, ErrPermissionDenied
	}
	saved, err := s.store.Save(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("evaluation_id", saved.ID.String()).
		Str("grand_total", saved.GrandTotal.String()).
		Msg("tender evaluation saved")
	return saved, nil
}

func (s *EvaluationService) AddTable(ctx context.Context, principal model.Principal, id uuid.UUID, name string) (*model.TenderEvaluation, *model.EvaluationTable, error) {
	var table *model.EvaluationTable
	ev, err := s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		var err error
		table, err = evaluation.AddTable(ev, name)
		return err
	})
	return ev, table, err
}

func (s *EvaluationService) RenameTable(ctx context.Context, principal model.Principal, id, tableID uuid.UUID, name string) (*model.TenderEvaluation, error) {
	return s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		_, err := evaluation.RenameTable(ev, tableID, name)
		return err
	})
}

func (s *EvaluationService) RemoveTable(ctx context.Context, principal model.Principal, id, tableID uuid.UUID) (*model.TenderEvaluation, error) {
	return s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		return evaluation.RemoveTable(ev, tableID)
	})
}

// AddLineItem inserts a node. A leaf added without prices is seeded with one
// zero price per shortlisted firm.
func (s *EvaluationService) AddLineItem(ctx context.Context, principal model.Principal, id uuid.UUID, input AddLineItemInput) (*model.TenderEvaluation, *model.LineItem, error) {
	var item *model.LineItem
	ev, err := s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		prices := input.Prices
		if !input.IsCategory && len(prices) == 0 {
			prices = make([]model.PriceEntry, 0, len(ev.ShortlistedFirms))
			for _, firm := range ev.ShortlistedFirms {
				prices = append(prices, model.PriceEntry{FirmID: firm.ID, Amount: decimal.Zero})
			}
		}
		var err error
		item, err = evaluation.AddItem(ev, input.TableID, model.LineItem{
			Description: input.Description,
			IsCategory:  input.IsCategory,
			Prices:      prices,
		}, input.ParentID)
		return err
	})
	return ev, item, err
}

func (s *EvaluationService) UpdateLineItem(ctx context.Context, principal model.Principal, id, tableID, itemID uuid.UUID, patch evaluation.ItemPatch) (*model.TenderEvaluation, *model.LineItem, error) {
	var item *model.LineItem
	ev, err := s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		var err error
		item, err = evaluation.UpdateItem(ev, tableID, itemID, patch)
		return err
	})
	return ev, item, err
}

func (s *EvaluationService) DeleteLineItem(ctx context.Context, principal model.Principal, id, tableID, itemID uuid.UUID) (*model.TenderEvaluation, error) {
	return s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		return evaluation.DeleteItem(ev, tableID, itemID)
	})
}

func (s *EvaluationService) SetFirmPrice(ctx context.Context, principal model.Principal, id, tableID, itemID, firmID uuid.UUID, amount decimal.Decimal) (*model.TenderEvaluation, error) {
	return s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		return evaluation.SetPrice(ev, tableID, itemID, firmID, amount)
	})
}

func (s *EvaluationService) GetPrices(ctx context.Context, principal model.Principal, id, tableID, itemID uuid.UUID) ([]model.PriceEntry, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return evaluation.GetPrices(ev, tableID, itemID)
}

func (s *EvaluationService) FindPath(ctx context.Context, principal model.Principal, id, tableID, itemID uuid.UUID) ([]*model.LineItem, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return evaluation.FindPath(ev, tableID, itemID)
}

func (s *EvaluationService) RecalculateAll(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.TenderEvaluation, error) {
	return s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		evaluation.RecalculateAll(ev)
		return nil
	})
}

// ImportStructureFromFeeSchedule seeds the table from the project's fee
// structure, with zero prices for every shortlisted firm.
func (s *EvaluationService) ImportStructureFromFeeSchedule(ctx context.Context, principal model.Principal, id, tableID uuid.UUID) (*model.TenderEvaluation, error) {
	ev, err := s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		if s.feeStructure == nil {
			return fmt.Errorf("%w: fee structure source is not configured", evaluation.ErrInvalidOperation)
		}
		items, err := s.feeStructure.GetFeeStructure(ctx, ev.ProjectID, ev.DisciplineID)
		if err != nil {
			return err
		}
		return evaluation.ImportStructureFromFeeSchedule(ev, tableID, items, ev.FirmIDs())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("evaluation_id", ev.ID.String()).
		Str("table_id", tableID.String()).
		Msg("fee structure imported")
	return ev, nil
}

func (s *EvaluationService) ImportPricesFromSubmissions(ctx context.Context, principal model.Principal, id, tableID uuid.UUID) (*model.TenderEvaluation, evaluation.ImportReport, error) {
	var report evaluation.ImportReport
	ev, err := s.mutate(ctx, principal, id, func(ev *model.TenderEvaluation) error {
		if s.submissions == nil {
			return fmt.Errorf("%w: submission source is not configured", evaluation.ErrInvalidOperation)
		}
		prices, err := s.submissions.GetSubmittedPrices(ctx, ev.ProjectID, ev.DisciplineID)
		if err != nil {
			return err
		}
		report, err = evaluation.ImportPricesFromSubmissions(ev, tableID, prices)
		return err
	})
	if err != nil {
		return nil, report, err
	}
	s.log.Info().
		Str("evaluation_id", ev.ID.String()).
		Int("matched_items", report.MatchedItems).
		Int("unmatched_refs", len(report.UnmatchedRefs)).
		Msg("submitted prices imported")
	return ev, report, nil
}

func (s *EvaluationService) mutate(ctx context.Context, principal model.Principal, id uuid.UUID, fn func(ev *model.TenderEvaluation) error) (*model.TenderEvaluation, error) {
	if !principal.CanEdit() {
		return nil, ErrPermissionDenied
	}
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachFirms(ctx, ev); err != nil {
		return nil, err
	}
	if err := fn(ev); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.Save(ctx, ev)
}

func (s *EvaluationService) attachFirms(ctx context.Context, ev *model.TenderEvaluation) error {
	if s.firms == nil {
		return nil
	}
	firms, err := s.firms.ListShortlistedFirms(ctx, ev.ProjectID, ev.DisciplineID)
	if err != nil {
		return err
	}
	if firms == nil {
		firms = []model.Firm{}
	}
	ev.ShortlistedFirms = firms
	return nil
}
