package calculation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clinicops/coverage/internal/domain"
)

// PolicyResolver turns a patient's raw policy rows into the ordered stack the
// waterfall consumes.
type PolicyResolver struct{}

// NewPolicyResolver creates a new policy resolver
func NewPolicyResolver() *PolicyResolver {
	return &PolicyResolver{}
}

// ResolveActivePolicies returns the patient's policies valid on asOf, primary
// first. An empty slice means the patient is fully self-pay.
func (pr *PolicyResolver) ResolveActivePolicies(ctx context.Context, snap Snapshot, patientID string, asOf time.Time) ([]domain.InsurancePolicy, error) {
	exists, err := snap.PatientExists(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient %s: %w", patientID, err)
	}
	if !exists {
		return nil, domain.NewInputError(domain.UnknownPatient, patientID)
	}

	policies, err := snap.PatientPolicies(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies for patient %s: %w", patientID, err)
	}

	return OrderActivePolicies(policies, asOf)
}

// OrderActivePolicies keeps the policies valid on asOf and sorts them by
// ascending priority. Two valid policies sharing a priority is a data
// integrity violation and is reported rather than resolved.
func OrderActivePolicies(policies []domain.InsurancePolicy, asOf time.Time) ([]domain.InsurancePolicy, error) {
	active := make([]domain.InsurancePolicy, 0, len(policies))
	for _, p := range policies {
		if p.ValidOn(asOf) {
			active = append(active, p)
		}
	}
	return sortByPriority(active)
}

// sortByPriority returns a sorted copy and rejects invalid or duplicate priorities.
func sortByPriority(policies []domain.InsurancePolicy) ([]domain.InsurancePolicy, error) {
	ordered := append([]domain.InsurancePolicy(nil), policies...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for i, p := range ordered {
		if p.Priority < domain.PrimaryPriority {
			return nil, domain.NewConfigurationError("policy "+p.ID, "priority %d is below %d", p.Priority, domain.PrimaryPriority)
		}
		if i > 0 && ordered[i-1].Priority == p.Priority {
			return nil, domain.NewConfigurationError("policy "+p.ID,
				"priority %d is shared with policy %s", p.Priority, ordered[i-1].ID)
		}
	}
	return ordered, nil
}
