package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

func TestZoneInjectedEnergy(t *testing.T) {
	mock, repo := setupMockDB(t)
	until := time.Now()
	since := until.Add(-24 * time.Hour)

	mock.ExpectQuery(`FROM injected_energy_readings`).WithArgs("Z1", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"total", "n"}).AddRow(120.0, 4))
	mock.ExpectQuery(`FROM injected_energy_readings`).WithArgs("Z2", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"total", "n"}).AddRow(0.0, 0))

	kwh, ok, err := repo.ZoneInjectedEnergy(context.Background(), "Z1", since, until)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 120.0, kwh)

	_, ok, err = repo.ZoneInjectedEnergy(context.Background(), "Z2", since, until)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertResultReturnsID(t *testing.T) {
	mock, repo := setupMockDB(t)
	res := domain.NewReconciliationResult("run-1", "Z1", 100, 80, time.Now())

	mock.ExpectQuery(`INSERT INTO reconciliation_results`).
		WithArgs("run-1", "Z1", 100.0, 80.0, 20.0, 20.0, "CRITICAL", res.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	require.NoError(t, repo.InsertResult(context.Background(), &res))
	assert.Equal(t, int64(5), res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndFinishRun(t *testing.T) {
	mock, repo := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO reconciliation_runs`).WithArgs(sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE reconciliation_runs`).
		WithArgs(sqlmock.AnyArg(), now, 2, 1, 12.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.CreateRun(context.Background(), now)
	require.NoError(t, err)
	require.NoError(t, repo.FinishRun(context.Background(), domain.RunSummary{RunID: id, ZonesAnalyzed: 2, AnomaliesFound: 1, TotalDelta: 12.5}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
