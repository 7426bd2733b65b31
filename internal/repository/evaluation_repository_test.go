package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nurpe/tender-eval/internal/db"
	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

// openTestDB connects to TENDER_TEST_DB_DSN and skips the test when it is unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TENDER_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TENDER_TEST_DB_DSN not set")
	}
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return database
}

func TestEvaluationRepository_Postgres(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	repo := NewEvaluationRepository(database)
	ev := sampleEvaluation(t)

	missing, err := repo.Load(ctx, ev.Key())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.Save(ctx, ev)
	require.NoError(t, err)
	t.Cleanup(func() {
		database.Exec("DELETE FROM tender_evaluations WHERE id = ?", ev.ID)
	})

	loaded, err := repo.Load(ctx, ev.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assertSameEvaluation(t, ev, loaded)

	require.NoError(t, evaluation.DeleteItem(loaded, loaded.Tables[0].ID, loaded.Tables[0].RootItems[0].ID))
	_, err = evaluation.AddTable(loaded, "Provisional Sums")
	require.NoError(t, err)
	_, err = repo.Save(ctx, loaded)
	require.NoError(t, err)

	reloaded, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assertSameEvaluation(t, loaded, reloaded)
	assert.True(t, reloaded.GrandTotal.Equal(decimal.RequireFromString("1244.6")))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, evaluation.ErrNotFound)

	duplicate, err := evaluation.New(ev.Key(), nil)
	require.NoError(t, err)
	_, err = repo.Save(ctx, duplicate)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, uuid.Nil, duplicate.ID)
}

func TestEvaluationRepository_ContractorKey(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	repo := NewEvaluationRepository(database)

	card := uuid.New()
	ev, err := evaluation.New(model.EvaluationKey{
		ProjectID:        uuid.New(),
		DisciplineID:     uuid.New(),
		ContractorCardID: &card,
	}, evaluation.DefaultTableNames)
	require.NoError(t, err)
	_, err = repo.Save(ctx, ev)
	require.NoError(t, err)
	t.Cleanup(func() {
		database.Exec("DELETE FROM tender_evaluations WHERE id = ?", ev.ID)
	})

	other := ev.Key()
	consultant := card
	other.ContractorCardID = nil
	other.ConsultantCardID = &consultant
	got, err := repo.Load(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, got)
}
