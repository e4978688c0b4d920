package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/clinicops/coverage/internal/domain"
	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
)

// ImportDataset upserts the configuration in ds in one transaction and
// returns the plans whose tariff overrides were written, so that callers can
// invalidate cached tariffs.
func (s *Store) ImportDataset(ctx context.Context, ds *domain.Dataset) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	var statements []*goqu.InsertDataset

	if len(ds.Patients) > 0 {
		rows := make([]interface{}, 0, len(ds.Patients))
		for _, p := range ds.Patients {
			rows = append(rows, goqu.Record{"id": p.ID, "name": p.Name})
		}
		statements = append(statements, s.dialect.Insert(tablePatients).Rows(rows...).
			OnConflict(goqu.DoUpdate("id", goqu.Record{"name": goqu.L("EXCLUDED.name")})))
	}

	if len(ds.ServiceCategories) > 0 {
		rows := make([]interface{}, 0, len(ds.ServiceCategories))
		for _, c := range ds.ServiceCategories {
			rows = append(rows, goqu.Record{"id": c.ID, "name": c.Name})
		}
		statements = append(statements, s.dialect.Insert(tableCategories).Rows(rows...).
			OnConflict(goqu.DoUpdate("id", goqu.Record{"name": goqu.L("EXCLUDED.name")})))
	}

	if len(ds.Policies) > 0 {
		rows := make([]interface{}, 0, len(ds.Policies))
		for _, p := range ds.Policies {
			var endDate interface{}
			if end, ok := p.EndDate.Get(); ok {
				endDate = end.Format("2006-01-02")
			}
			rows = append(rows, goqu.Record{
				"id":               p.ID,
				"patient_id":       p.PatientID,
				"plan_id":          p.PlanID,
				"policy_number":    p.PolicyNumber,
				"priority":         p.Priority,
				"coverage_percent": p.CoveragePercent.String(),
				"deductible":       p.Deductible.String(),
				"max_payout":       decimalValue(p.MaxPayout),
				"start_date":       p.StartDate.Format("2006-01-02"),
				"end_date":         endDate,
				"is_active":        p.Active,
			})
		}
		statements = append(statements, s.dialect.Insert(tablePolicies).Rows(rows...).
			OnConflict(goqu.DoUpdate("id", goqu.Record{
				"patient_id":       goqu.L("EXCLUDED.patient_id"),
				"plan_id":          goqu.L("EXCLUDED.plan_id"),
				"policy_number":    goqu.L("EXCLUDED.policy_number"),
				"priority":         goqu.L("EXCLUDED.priority"),
				"coverage_percent": goqu.L("EXCLUDED.coverage_percent"),
				"deductible":       goqu.L("EXCLUDED.deductible"),
				"max_payout":       goqu.L("EXCLUDED.max_payout"),
				"start_date":       goqu.L("EXCLUDED.start_date"),
				"end_date":         goqu.L("EXCLUDED.end_date"),
				"is_active":        goqu.L("EXCLUDED.is_active"),
			})))
	}

	plans := make(map[string]bool)
	if len(ds.TariffOverrides) > 0 {
		rows := make([]interface{}, 0, len(ds.TariffOverrides))
		for _, o := range ds.TariffOverrides {
			plans[o.PlanID] = true
			rows = append(rows, goqu.Record{
				"plan_id":             o.PlanID,
				"service_category_id": o.ServiceCategoryID,
				"coverage_percent":    decimalValue(o.CoveragePercent),
				"max_payout":          decimalValue(o.MaxPayout),
				"is_covered":          o.IsCovered,
			})
		}
		statements = append(statements, s.dialect.Insert(tableTariffs).Rows(rows...).
			OnConflict(goqu.DoUpdate("plan_id, service_category_id", goqu.Record{
				"coverage_percent": goqu.L("EXCLUDED.coverage_percent"),
				"max_payout":       goqu.L("EXCLUDED.max_payout"),
				"is_covered":       goqu.L("EXCLUDED.is_covered"),
			})))
	}

	for _, stmt := range statements {
		if err := execInsert(ctx, tx, stmt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	planIDs := make([]string, 0, len(plans))
	for id := range plans {
		planIDs = append(planIDs, id)
	}
	sort.Strings(planIDs)
	return planIDs, nil
}

func execInsert(ctx context.Context, tx *sql.Tx, stmt *goqu.InsertDataset) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build import query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to import: %w", err)
	}
	return nil
}

func decimalValue(v domain.Optional[decimal.Decimal]) interface{} {
	if d, ok := v.Get(); ok {
		return d.String()
	}
	return nil
}
