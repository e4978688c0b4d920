package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ calculation.SnapshotSource = (*Store)(nil)
	_ calculation.Recorder       = (*Store)(nil)
)

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	store.NewID = func() string { return "calc-1" }
	return store, mock
}

func policyRows() *sqlmock.Rows {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "patient_id", "plan_id", "policy_number", "priority",
		"coverage_percent", "deductible", "max_payout", "start_date", "end_date", "is_active",
	}).
		AddRow("pol-1", "pat-1", "plan-a", "A-100", 1, "70", "100", nil, start, nil, true).
		AddRow("pol-2", "pat-1", "plan-b", "B-200", 2, "50", "0", "200", start, start.AddDate(1, 0, 0), true)
}

func TestStore_SnapshotReads(t *testing.T) {
	store, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM "patients"`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM "service_categories"`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(`FROM "insurance_policies"`).WillReturnRows(policyRows())
	mock.ExpectQuery(`FROM "plan_service_tariffs"`).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "service_category_id", "coverage_percent", "max_payout", "is_covered"}).
			AddRow("plan-a", "lab", "90", nil, true).
			AddRow("plan-a", "cosmetic", nil, nil, false))
	mock.ExpectRollback()

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	ok, err := snap.PatientExists(ctx, "pat-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = snap.ServiceCategoryExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	policies, err := snap.PatientPolicies(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.True(t, policies[0].CoveragePercent.Equal(decimal.NewFromInt(70)))
	assert.True(t, policies[0].Deductible.Equal(decimal.NewFromInt(100)))
	assert.False(t, policies[0].MaxPayout.IsSet())
	assert.False(t, policies[0].EndDate.IsSet())
	payout, ok := policies[1].MaxPayout.Get()
	require.True(t, ok)
	assert.True(t, payout.Equal(decimal.NewFromInt(200)))
	assert.True(t, policies[1].EndDate.IsSet())

	tariffs, err := snap.PlanTariffs(ctx, "plan-a")
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	pct, ok := tariffs[0].CoveragePercent.Get()
	require.True(t, ok)
	assert.True(t, pct.Equal(decimal.NewFromInt(90)))
	assert.False(t, tariffs[1].IsCovered)
	assert.False(t, tariffs[1].CoveragePercent.IsSet())

	require.NoError(t, snap.Release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EngineRunsInsideOneTransaction(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM "service_categories"`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM "patients"`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`FROM "insurance_policies"`).WillReturnRows(policyRows())
	mock.ExpectQuery(`FROM "plan_service_tariffs"`).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "service_category_id", "coverage_percent", "max_payout", "is_covered"}))
	mock.ExpectQuery(`FROM "plan_service_tariffs"`).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "service_category_id", "coverage_percent", "max_payout", "is_covered"}))
	mock.ExpectRollback()

	engine := calculation.NewCoverageEngine(store, nil)
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := engine.CalculateCoverage(context.Background(), calculation.CoverageRequest{
		PatientID:         "pat-1",
		ServiceCategoryID: "consult",
		BilledAmount:      decimal.NewFromInt(1000),
		AsOf:              &asOf,
	})
	require.NoError(t, err)

	// 1000 - 100 deductible = 900 * 70% = 630; 370 * 50% = 185.
	assert.True(t, result.TotalCoverage.Equal(decimal.NewFromInt(815)), result.TotalCoverage.String())
	assert.True(t, result.PatientShare.Equal(decimal.NewFromInt(185)), result.PatientShare.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleRecord() domain.CalculationRecord {
	return domain.CalculationRecord{
		PatientID:         "pat-1",
		PolicyIDs:         []string{"pol-1"},
		ServiceID:         "svc-9",
		ServiceCategoryID: "consult",
		CalculatedBy:      "billing",
		CalculatedAt:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Result: domain.CoverageResult{
			PatientID:         "pat-1",
			ServiceCategoryID: "consult",
			BilledAmount:      decimal.NewFromInt(1000),
			Contributions:     []domain.CoverageContribution{},
			TotalCoverage:     decimal.NewFromInt(700),
			PatientShare:      decimal.NewFromInt(300),
		},
	}
}

func TestStore_Record(t *testing.T) {
	tests := []struct {
		name      string
		execErr   error
		wantID    string
		wantErrIs error
	}{
		{name: "inserted", wantID: "calc-1"},
		{
			name:      "already superseded",
			execErr:   &pq.Error{Code: pqUniqueViolation, Constraint: "insurance_calculations_supersedes_id_key"},
			wantErrIs: domain.ErrConflict,
		},
		{
			name:      "duplicate id",
			execErr:   &pq.Error{Code: pqUniqueViolation, Constraint: "insurance_calculations_pkey"},
			wantErrIs: domain.ErrConflict,
		},
		{
			name:      "unknown superseded record",
			execErr:   &pq.Error{Code: pqForeignKeyViolation},
			wantErrIs: domain.ErrInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockDB(t)
			exp := mock.ExpectExec(`INSERT INTO "insurance_calculations"`)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			rec := sampleRecord()
			rec.SupersedesID = domain.Some("calc-0")
			id, err := store.Record(context.Background(), rec)
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErrIs), err.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func recordRows(t *testing.T, recs ...domain.CalculationRecord) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "patient_id", "policy_ids", "service_id", "service_category_id",
		"calculated_by", "calculated_at", "supersedes_id", "result",
	})
	for _, rec := range recs {
		ids, err := json.Marshal(rec.PolicyIDs)
		require.NoError(t, err)
		result, err := json.Marshal(rec.Result)
		require.NoError(t, err)
		var supersedes interface{}
		if prior, ok := rec.SupersedesID.Get(); ok {
			supersedes = prior
		}
		rows.AddRow(rec.ID, rec.PatientID, ids, rec.ServiceID, rec.ServiceCategoryID,
			rec.CalculatedBy, rec.CalculatedAt, supersedes, result)
	}
	return rows
}

func TestStore_Get(t *testing.T) {
	store, mock := setupMockDB(t)
	rec := sampleRecord()
	rec.ID = "calc-1"
	rec.SupersedesID = domain.Some("calc-0")

	mock.ExpectQuery(`FROM "insurance_calculations"`).WillReturnRows(recordRows(t, rec))

	got, err := store.Get(context.Background(), "calc-1")
	require.NoError(t, err)
	assert.Equal(t, "calc-1", got.ID)
	assert.Equal(t, []string{"pol-1"}, got.PolicyIDs)
	prior, ok := got.SupersedesID.Get()
	require.True(t, ok)
	assert.Equal(t, "calc-0", prior)
	assert.True(t, got.Result.TotalCoverage.Equal(decimal.NewFromInt(700)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUnknown(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectQuery(`FROM "insurance_calculations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListByPatient(t *testing.T) {
	store, mock := setupMockDB(t)
	first := sampleRecord()
	first.ID = "calc-1"
	second := sampleRecord()
	second.ID = "calc-2"
	second.SupersedesID = domain.Some("calc-1")
	second.CalculatedAt = first.CalculatedAt.Add(time.Hour)

	mock.ExpectQuery(`FROM "insurance_calculations" WHERE .*ORDER BY "calculated_at" ASC`).
		WillReturnRows(recordRows(t, first, second))

	list, err := store.ListByPatient(context.Background(), "pat-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "calc-1", list[0].ID)
	assert.False(t, list[0].SupersedesID.IsSet())
	assert.Equal(t, "calc-2", list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SnapshotBeginFails(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	_, err := store.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStore_Migrate(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS patients`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ImportDataset(t *testing.T) {
	store, mock := setupMockDB(t)
	ds := &domain.Dataset{
		Patients:          []domain.Patient{{ID: "pat-1", Name: "Ada"}},
		ServiceCategories: []domain.ServiceCategory{{ID: "lab", Name: "Laboratory"}},
		Policies: []domain.InsurancePolicy{{
			ID: "pol-1", PatientID: "pat-1", PlanID: "plan-a", Priority: 1,
			CoveragePercent: decimal.NewFromInt(70), StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
		}},
		TariffOverrides: []domain.ServiceTariffOverride{
			{PlanID: "plan-b", ServiceCategoryID: "lab", IsCovered: false},
			{PlanID: "plan-a", ServiceCategoryID: "lab", CoveragePercent: domain.Some(decimal.NewFromInt(90)), IsCovered: true},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "patients"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "service_categories"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "insurance_policies"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "plan_service_tariffs" .*ON CONFLICT`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	plans, err := store.ImportDataset(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"plan-a", "plan-b"}, plans)
	assert.NoError(t, mock.ExpectationsWereMet())
}
