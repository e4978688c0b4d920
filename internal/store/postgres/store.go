package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	tablePatients     = "patients"
	tableCategories   = "service_categories"
	tablePolicies     = "insurance_policies"
	tableTariffs      = "plan_service_tariffs"
	tableCalculations = "insurance_calculations"

	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var (
	policyColumns = []interface{}{
		"id", "patient_id", "plan_id", "policy_number", "priority",
		"coverage_percent", "deductible", "max_payout", "start_date", "end_date", "is_active",
	}
	tariffColumns = []interface{}{
		"plan_id", "service_category_id", "coverage_percent", "max_payout", "is_covered",
	}
	recordColumns = []interface{}{
		"id", "patient_id", "policy_ids", "service_id", "service_category_id",
		"calculated_by", "calculated_at", "supersedes_id", "result",
	}
)

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: goqu.Dialect("postgres"),
		NewID:   uuid.NewString,
	}
}

// Snapshot opens a read-only REPEATABLE READ transaction. Every read of one
// calculation sees the same committed state.
func (s *Store) Snapshot(ctx context.Context) (calculation.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	return &txSnapshot{tx: tx, dialect: s.dialect}, nil
}

type txSnapshot struct {
	tx      *sql.Tx
	dialect goqu.DialectWrapper
}

func (t *txSnapshot) exists(ctx context.Context, table, id string) (bool, error) {
	query, args, err := t.dialect.From(table).
		Select(goqu.L("1")).
		Where(goqu.Ex{"id": id}).
		Limit(1).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = t.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return true, nil
}

func (t *txSnapshot) PatientExists(ctx context.Context, patientID string) (bool, error) {
	return t.exists(ctx, tablePatients, patientID)
}

func (t *txSnapshot) ServiceCategoryExists(ctx context.Context, categoryID string) (bool, error) {
	return t.exists(ctx, tableCategories, categoryID)
}

func (t *txSnapshot) PatientPolicies(ctx context.Context, patientID string) ([]domain.InsurancePolicy, error) {
	query, args, err := t.dialect.From(tablePolicies).
		Select(policyColumns...).
		Where(goqu.Ex{"patient_id": patientID}).
		Order(goqu.I("priority").Asc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.InsurancePolicy
	for rows.Next() {
		var (
			p         domain.InsurancePolicy
			maxPayout decimal.NullDecimal
			endDate   sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.PatientID, &p.PlanID, &p.PolicyNumber, &p.Priority,
			&p.CoveragePercent, &p.Deductible, &maxPayout, &p.StartDate, &endDate, &p.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p.MaxPayout = optionalDecimal(maxPayout)
		if endDate.Valid {
			p.EndDate = domain.Some(endDate.Time)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read policies: %w", err)
	}
	return policies, nil
}

func (t *txSnapshot) PlanTariffs(ctx context.Context, planID string) ([]domain.ServiceTariffOverride, error) {
	query, args, err := t.dialect.From(tableTariffs).
		Select(tariffColumns...).
		Where(goqu.Ex{"plan_id": planID}).
		Order(goqu.I("service_category_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var overrides []domain.ServiceTariffOverride
	for rows.Next() {
		var (
			o         domain.ServiceTariffOverride
			percent   decimal.NullDecimal
			maxPayout decimal.NullDecimal
		)
		if err := rows.Scan(&o.PlanID, &o.ServiceCategoryID, &percent, &maxPayout, &o.IsCovered); err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		o.CoveragePercent = optionalDecimal(percent)
		o.MaxPayout = optionalDecimal(maxPayout)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tariffs: %w", err)
	}
	return overrides, nil
}

// Release ends the read-only transaction.
func (t *txSnapshot) Release() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to end snapshot transaction: %w", err)
	}
	return nil
}

// Record inserts rec. The schema enforces that a record is superseded at most
// once and that the superseded record exists.
func (s *Store) Record(ctx context.Context, rec domain.CalculationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = s.NewID()
	}

	policyIDs, err := json.Marshal(nonNil(rec.PolicyIDs))
	if err != nil {
		return "", fmt.Errorf("failed to encode policy ids: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	supersedes := sql.NullString{}
	if prior, ok := rec.SupersedesID.Get(); ok {
		supersedes = sql.NullString{String: prior, Valid: true}
	}

	query, args, err := s.dialect.Insert(tableCalculations).Rows(goqu.Record{
		"id":                  rec.ID,
		"patient_id":          rec.PatientID,
		"policy_ids":          string(policyIDs),
		"service_id":          rec.ServiceID,
		"service_category_id": rec.ServiceCategoryID,
		"billed_amount":       rec.Result.BilledAmount.String(),
		"total_coverage":      rec.Result.TotalCoverage.String(),
		"patient_share":       rec.Result.PatientShare.String(),
		"result":              string(result),
		"calculated_by":       rec.CalculatedBy,
		"calculated_at":       rec.CalculatedAt.UTC(),
		"supersedes_id":       supersedes,
	}).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", translateInsertError(rec, err)
	}
	return rec.ID, nil
}

func translateInsertError(rec domain.CalculationRecord, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to insert calculation: %w", err)
	}

	prior, _ := rec.SupersedesID.Get()
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		if pqErr.Constraint == "insurance_calculations_pkey" {
			return &domain.ConflictError{Message: "calculation record " + rec.ID + " already exists"}
		}
		return &domain.ConflictError{Message: "calculation record " + prior + " is already superseded"}
	case pqForeignKeyViolation:
		return domain.NewInputError(domain.UnknownRecord, prior)
	}
	return fmt.Errorf("failed to insert calculation: %w", err)
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id string) (*domain.CalculationRecord, error) {
	query, args, err := s.dialect.From(tableCalculations).
		Select(recordColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewInputError(domain.UnknownRecord, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByPatient returns the patient's records, oldest first.
func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]domain.CalculationRecord, error) {
	query, args, err := s.dialect.From(tableCalculations).
		Select(recordColumns...).
		Where(goqu.Ex{"patient_id": patientID}).
		Order(goqu.I("calculated_at").Asc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculations: %w", err)
	}
	defer rows.Close()

	var records []domain.CalculationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read calculations: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.CalculationRecord, error) {
	var (
		rec        domain.CalculationRecord
		policyIDs  []byte
		result     []byte
		supersedes sql.NullString
		at         time.Time
	)
	err := row.Scan(&rec.ID, &rec.PatientID, &policyIDs, &rec.ServiceID, &rec.ServiceCategoryID,
		&rec.CalculatedBy, &at, &supersedes, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan calculation: %w", err)
	}

	if err := json.Unmarshal(policyIDs, &rec.PolicyIDs); err != nil {
		return nil, fmt.Errorf("failed to decode policy ids of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result of %s: %w", rec.ID, err)
	}
	rec.CalculatedAt = at.UTC()
	if supersedes.Valid {
		rec.SupersedesID = domain.Some(supersedes.String)
	}
	return &rec, nil
}

func optionalDecimal(v decimal.NullDecimal) domain.Optional[decimal.Decimal] {
	if !v.Valid {
		return domain.None[decimal.Decimal]()
	}
	return domain.Some(v.Decimal)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
