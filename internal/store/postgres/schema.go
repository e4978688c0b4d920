package postgres

import (
	"context"
	"fmt"
)

// Schema creates the configuration tables and the append-only calculation
// log. Rows in insurance_calculations can be inserted but never changed; a
// correction references the row it supersedes, at most once.
const Schema = `
CREATE TABLE IF NOT EXISTS patients (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS service_categories (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS insurance_policies (
    id               TEXT PRIMARY KEY,
    patient_id       TEXT NOT NULL REFERENCES patients (id),
    plan_id          TEXT NOT NULL,
    policy_number    TEXT NOT NULL DEFAULT '',
    priority         INTEGER NOT NULL,
    coverage_percent NUMERIC(7, 4) NOT NULL,
    deductible       NUMERIC(18, 4) NOT NULL DEFAULT 0,
    max_payout       NUMERIC(18, 4),
    start_date       DATE NOT NULL,
    end_date         DATE,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS insurance_policies_patient_idx ON insurance_policies (patient_id);

CREATE TABLE IF NOT EXISTS plan_service_tariffs (
    plan_id             TEXT NOT NULL,
    service_category_id TEXT NOT NULL REFERENCES service_categories (id),
    coverage_percent    NUMERIC(7, 4),
    max_payout          NUMERIC(18, 4),
    is_covered          BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (plan_id, service_category_id)
);

CREATE TABLE IF NOT EXISTS insurance_calculations (
    id                  TEXT PRIMARY KEY,
    patient_id          TEXT NOT NULL,
    policy_ids          JSONB NOT NULL,
    service_id          TEXT NOT NULL,
    service_category_id TEXT NOT NULL,
    billed_amount       NUMERIC(18, 4) NOT NULL,
    total_coverage      NUMERIC(18, 4) NOT NULL,
    patient_share       NUMERIC(18, 4) NOT NULL,
    result              JSONB NOT NULL,
    calculated_by       TEXT NOT NULL,
    calculated_at       TIMESTAMPTZ NOT NULL,
    supersedes_id       TEXT UNIQUE REFERENCES insurance_calculations (id)
);

CREATE INDEX IF NOT EXISTS insurance_calculations_patient_idx
    ON insurance_calculations (patient_id, calculated_at);

CREATE OR REPLACE FUNCTION insurance_calculations_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'insurance_calculations is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS insurance_calculations_append_only ON insurance_calculations;
CREATE TRIGGER insurance_calculations_append_only
    BEFORE UPDATE OR DELETE ON insurance_calculations
    FOR EACH ROW EXECUTE FUNCTION insurance_calculations_append_only();
`

// Migrate applies Schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
