package calculation

import (
	"context"

	"github.com/clinicops/coverage/internal/domain"
)

// Snapshot is one consistent read view over policy and tariff configuration.
// Every read made for a single calculation goes through the same Snapshot, so
// an administrator editing a plan mid-calculation cannot produce a result that
// mixes old and new tariffs. Release must be called exactly once.
type Snapshot interface {
	PatientExists(ctx context.Context, patientID string) (bool, error)
	ServiceCategoryExists(ctx context.Context, categoryID string) (bool, error)
	PatientPolicies(ctx context.Context, patientID string) ([]domain.InsurancePolicy, error)
	PlanTariffs(ctx context.Context, planID string) ([]domain.ServiceTariffOverride, error)
	Release() error
}

// SnapshotSource opens snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Recorder persists calculation records. Implementations are append-only:
// Record never overwrites, and a record may be superseded at most once.
type Recorder interface {
	Record(ctx context.Context, rec domain.CalculationRecord) (string, error)
	Get(ctx context.Context, id string) (*domain.CalculationRecord, error)
	ListByPatient(ctx context.Context, patientID string) ([]domain.CalculationRecord, error)
}
