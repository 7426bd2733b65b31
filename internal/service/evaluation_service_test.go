package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tender-eval/internal/config"
	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
	"github.com/nurpe/tender-eval/internal/repository"
)

var (
	firmA   = model.Firm{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Name: "Alpha Consulting"}
	firmB   = model.Firm{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Name: "Beta Engineers"}
	manager = model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.UserRoleManager}
	viewer  = model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.UserRoleViewer}
)

type staticFirms []model.Firm

func (f staticFirms) ListShortlistedFirms(context.Context, uuid.UUID, uuid.UUID) ([]model.Firm, error) {
	return f, nil
}

type staticFeeStructure []model.FeeScheduleItem

func (f staticFeeStructure) GetFeeStructure(context.Context, uuid.UUID, uuid.UUID) ([]model.FeeScheduleItem, error) {
	return f, nil
}

type staticSubmissions []model.SubmittedPrice

func (s staticSubmissions) GetSubmittedPrices(context.Context, uuid.UUID, uuid.UUID) ([]model.SubmittedPrice, error) {
	return s, nil
}

type fixture struct {
	store   *repository.MemoryStore
	service *EvaluationService
	key     model.EvaluationKey
}

func newFixture(t *testing.T, collaborators Collaborators) fixture {
	t.Helper()
	if collaborators.Firms == nil {
		collaborators.Firms = staticFirms{firmA, firmB}
	}
	card := uuid.New()
	store := repository.NewMemoryStore()
	return fixture{
		store:   store,
		service: NewEvaluationService(store, collaborators, &config.Config{}, zerolog.Nop()),
		key: model.EvaluationKey{
			ProjectID:        uuid.New(),
			DisciplineID:     uuid.New(),
			ContractorCardID: &card,
		},
	}
}

func (f fixture) init(t *testing.T) *model.TenderEvaluation {
	t.Helper()
	ev, err := f.service.LoadOrInit(context.Background(), manager, f.key)
	require.NoError(t, err)
	return ev
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestLoadOrInit_CreatesDefaultTablesOnce(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()

	first := f.init(t)
	assert.NotEqual(t, uuid.Nil, first.ID)
	require.Len(t, first.Tables, 2)
	assert.Equal(t, model.TableNameOriginal, first.Tables[0].TableName)
	assert.Equal(t, model.TableNameAddsAndSubs, first.Tables[1].TableName)
	assert.Equal(t, []model.Firm{firmA, firmB}, first.ShortlistedFirms)

	second, err := f.service.LoadOrInit(ctx, viewer, f.key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Tables, 2)
}

func TestLoadOrInit_ConfiguredTables(t *testing.T) {
	store := repository.NewMemoryStore()
	cfg := &config.Config{}
	cfg.Tender.DefaultTables = []string{"Base Scope"}
	svc := NewEvaluationService(store, Collaborators{}, cfg, zerolog.Nop())
	card := uuid.New()

	ev, err := svc.LoadOrInit(context.Background(), manager, model.EvaluationKey{
		ProjectID:        uuid.New(),
		DisciplineID:     uuid.New(),
		ConsultantCardID: &card,
	})
	require.NoError(t, err)
	require.Len(t, ev.Tables, 1)
	assert.Equal(t, "Base Scope", ev.Tables[0].TableName)
	assert.Empty(t, ev.ShortlistedFirms)
}

func TestLoadOrInit_Rejects(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()

	_, err := f.service.LoadOrInit(ctx, viewer, f.key)
	assert.ErrorIs(t, err, evaluation.ErrNotFound)

	bad := f.key
	card := uuid.New()
	bad.ConsultantCardID = &card
	_, err = f.service.LoadOrInit(ctx, manager, bad)
	assert.ErrorIs(t, err, evaluation.ErrValidation)
}

func TestLoadOrInit_NilCardIsAbsent(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	first := f.init(t)

	key := f.key
	nilCard := uuid.Nil
	key.ConsultantCardID = &nilCard
	second, err := f.service.LoadOrInit(ctx, manager, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Nil(t, second.ConsultantCardID)
}

func TestMutations_PersistAndRecalculate(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)
	original := ev.Tables[0].ID

	_, category, err := f.service.AddLineItem(ctx, manager, ev.ID, AddLineItemInput{
		TableID:     original,
		Description: "Design Services",
		IsCategory:  true,
	})
	require.NoError(t, err)
	_, leaf, err := f.service.AddLineItem(ctx, manager, ev.ID, AddLineItemInput{
		TableID:     original,
		ParentID:    &category.ID,
		Description: "Concept Design",
	})
	require.NoError(t, err)
	require.Len(t, leaf.Prices, 2)
	assert.True(t, leaf.Prices[0].Amount.IsZero())

	_, err = f.service.SetFirmPrice(ctx, manager, ev.ID, original, leaf.ID, firmA.ID, decimal.NewFromInt(25000))
	require.NoError(t, err)
	updated, err := f.service.SetFirmPrice(ctx, manager, ev.ID, original, leaf.ID, firmB.ID, decimal.NewFromInt(30000))
	require.NoError(t, err)
	assertAmount(t, 55000, updated.GrandTotal)

	stored, err := f.service.Get(ctx, viewer, ev.ID)
	require.NoError(t, err)
	assertAmount(t, 55000, stored.GrandTotal)
	assertAmount(t, 55000, stored.Tables[0].SubTotal)
	require.NotNil(t, stored.Tables[0].RootItems[0].CategorySubtotal)
	assertAmount(t, 55000, *stored.Tables[0].RootItems[0].CategorySubtotal)

	prices, err := f.service.GetPrices(ctx, viewer, ev.ID, original, leaf.ID)
	require.NoError(t, err)
	assertAmount(t, 25000, prices[0].Amount)

	path, err := f.service.FindPath(ctx, viewer, ev.ID, original, leaf.ID)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, category.ID, path[0].ID)

	description := "Concept and Schematic Design"
	_, renamed, err := f.service.UpdateLineItem(ctx, manager, ev.ID, original, leaf.ID, evaluation.ItemPatch{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, description, renamed.Description)

	afterDelete, err := f.service.DeleteLineItem(ctx, manager, ev.ID, original, category.ID)
	require.NoError(t, err)
	assert.Empty(t, afterDelete.Tables[0].RootItems)
	assertAmount(t, 0, afterDelete.GrandTotal)
}

func TestTables(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	_, table, err := f.service.AddTable(ctx, manager, ev.ID, "Provisional Sums")
	require.NoError(t, err)
	assert.Equal(t, 3, table.TableNumber)

	renamed, err := f.service.RenameTable(ctx, manager, ev.ID, table.ID, "Provisional")
	require.NoError(t, err)
	assert.Equal(t, "Provisional", renamed.Tables[2].TableName)

	removed, err := f.service.RemoveTable(ctx, manager, ev.ID, table.ID)
	require.NoError(t, err)
	assert.Len(t, removed.Tables, 2)

	_, _, err = f.service.AddTable(ctx, manager, ev.ID, "  ")
	assert.ErrorIs(t, err, evaluation.ErrValidation)
}

func TestMutations_RequireEditor(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	_, _, err := f.service.AddTable(ctx, viewer, ev.ID, "Extra")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.service.SetFirmPrice(ctx, viewer, ev.ID, ev.Tables[0].ID, uuid.New(), firmA.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.service.Save(ctx, viewer, ev)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestMutation_FailedEngineCallLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)
	_, category, err := f.service.AddLineItem(ctx, manager, ev.ID, AddLineItemInput{
		TableID:     ev.Tables[0].ID,
		Description: "Category",
		IsCategory:  true,
	})
	require.NoError(t, err)

	_, err = f.service.SetFirmPrice(ctx, manager, ev.ID, ev.Tables[0].ID, category.ID, firmA.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, evaluation.ErrInvalidOperation)

	stored, err := f.service.Get(ctx, viewer, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Tables[0].RootItems[0].Prices)
	assertAmount(t, 0, stored.GrandTotal)
}

func TestMutation_FailedSaveKeepsPreviousState(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	f.store.FailSave = errors.New("connection reset")
	_, _, err := f.service.AddTable(ctx, manager, ev.ID, "Lost")
	assert.ErrorIs(t, err, repository.ErrPersistence)

	stored, err := f.service.Get(ctx, viewer, ev.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Tables, 2)
}

func TestMutation_CanceledContext(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ev := f.init(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.service.AddTable(ctx, manager, ev.ID, "Late")
	assert.Error(t, err)

	stored, err := f.service.Get(context.Background(), viewer, ev.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Tables, 2)
}

func TestSave_InMemoryAggregate(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	leaf, err := evaluation.AddItem(ev, ev.Tables[1].ID, model.LineItem{
		Description: "Variation 1",
		Prices:      []model.PriceEntry{{FirmID: firmA.ID, Amount: decimal.NewFromInt(5000)}},
	}, nil)
	require.NoError(t, err)

	_, err = f.service.Save(ctx, manager, ev)
	require.NoError(t, err)

	stored, err := f.service.Get(ctx, viewer, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, stored.Tables[1].RootItems[0].ID)
	assertAmount(t, 5000, stored.GrandTotal)
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	got, err := f.service.RecalculateAll(ctx, manager, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assertAmount(t, 0, got.GrandTotal)
}

func TestImports(t *testing.T) {
	f := newFixture(t, Collaborators{
		FeeStructure: staticFeeStructure{
			{
				ID:          "fs-design",
				Description: "Design Services",
				IsCategory:  true,
				Children: []model.FeeScheduleItem{
					{ID: "fs-concept", Description: "Concept Design"},
				},
			},
			{ID: "fs-ca", Description: "Contract Administration"},
		},
		Submissions: staticSubmissions{
			{ItemRef: "fs-concept", FirmID: firmA.ID, Amount: decimal.NewFromInt(25000)},
			{ItemRef: "Contract Administration", FirmID: firmB.ID, Amount: decimal.NewFromInt(4000)},
			{ItemRef: "fs-missing", FirmID: firmB.ID, Amount: decimal.NewFromInt(1)},
		},
	})
	ctx := context.Background()
	ev := f.init(t)
	original := ev.Tables[0].ID

	imported, err := f.service.ImportStructureFromFeeSchedule(ctx, manager, ev.ID, original)
	require.NoError(t, err)
	require.Len(t, imported.Tables[0].RootItems, 2)
	leaf := imported.Tables[0].RootItems[0].Children[0]
	require.Len(t, leaf.Prices, 2)
	assert.Equal(t, firmA.ID, leaf.Prices[0].FirmID)

	priced, report, err := f.service.ImportPricesFromSubmissions(ctx, manager, ev.ID, original)
	require.NoError(t, err)
	assert.Equal(t, 2, report.MatchedItems)
	assert.Equal(t, []string{"fs-missing"}, report.UnmatchedRefs)
	assertAmount(t, 29000, priced.GrandTotal)
}

func TestImports_SourcesNotConfigured(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	ev := f.init(t)

	_, err := f.service.ImportStructureFromFeeSchedule(ctx, manager, ev.ID, ev.Tables[0].ID)
	assert.ErrorIs(t, err, evaluation.ErrInvalidOperation)
	_, _, err = f.service.ImportPricesFromSubmissions(ctx, manager, ev.ID, ev.Tables[0].ID)
	assert.ErrorIs(t, err, evaluation.ErrInvalidOperation)
}
