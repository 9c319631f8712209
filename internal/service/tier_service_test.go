package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
)

func TestEnsureDefaultTiersSeedsEmptyCatalog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for range defaultTiers {
		mock.ExpectExec("INSERT INTO pricing_tiers").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	svc := NewTierService(repository.NewTierRepository(db))
	require.NoError(t, svc.EnsureDefaultTiers(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDefaultTiersLeavesExistingCatalog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	svc := NewTierService(repository.NewTierRepository(db))
	require.NoError(t, svc.EnsureDefaultTiers(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveValidatesTier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewTierService(repository.NewTierRepository(db))
	ctx := context.Background()

	require.Error(t, svc.Save(ctx, &models.PricingTier{Name: "no id", Credits: 10, PriceKRW: 100}))
	require.Error(t, svc.Save(ctx, &models.PricingTier{ID: "x", Name: "zero credits", PriceKRW: 100}))
	require.Error(t, svc.Save(ctx, &models.PricingTier{ID: "x", Name: "free price on paid tier", Credits: 10}))
}
