package compare

import (
	"fmt"

	"github.com/clinicops/coverage/internal/domain"
)

// Records compares a recorded calculation with its correction. Policies are
// listed in the base record's order, followed by policies only the correction
// used.
func Records(base, alternative *domain.CalculationRecord) *Comparison {
	b, a := base.Result, alternative.Result
	c := &Comparison{
		BaseID:        base.ID,
		AlternativeID: alternative.ID,
		CoverageDiff:  a.TotalCoverage.Sub(b.TotalCoverage),
		ShareDiff:     a.PatientShare.Sub(b.PatientShare),
	}

	if !a.BilledAmount.Equal(b.BilledAmount) {
		c.Notes = append(c.Notes, fmt.Sprintf("billed amount changed from %s to %s",
			b.BilledAmount.String(), a.BilledAmount.String()))
	}
	if !a.AsOf.Equal(b.AsOf) {
		c.Notes = append(c.Notes, fmt.Sprintf("service date changed from %s to %s",
			b.AsOf.Format("2006-01-02"), a.AsOf.Format("2006-01-02")))
	}

	after := make(map[string]domain.CoverageContribution, len(a.Contributions))
	for _, contrib := range a.Contributions {
		after[contrib.PolicyID] = contrib
	}
	seen := make(map[string]bool, len(b.Contributions))

	for _, before := range b.Contributions {
		seen[before.PolicyID] = true
		delta := PolicyDelta{
			PolicyID:      before.PolicyID,
			PlanID:        before.PlanID,
			Before:        before.EffectiveCoverage,
			OutcomeBefore: before.Outcome,
		}
		if now, ok := after[before.PolicyID]; ok {
			delta.After = now.EffectiveCoverage
			delta.OutcomeAfter = now.Outcome
		} else {
			c.Notes = append(c.Notes, fmt.Sprintf("policy %s no longer applies", before.PolicyID))
		}
		delta.Diff = delta.After.Sub(delta.Before)
		c.Policies = append(c.Policies, delta)
	}

	for _, now := range a.Contributions {
		if seen[now.PolicyID] {
			continue
		}
		c.Notes = append(c.Notes, fmt.Sprintf("policy %s now applies", now.PolicyID))
		c.Policies = append(c.Policies, PolicyDelta{
			PolicyID:     now.PolicyID,
			PlanID:       now.PlanID,
			After:        now.EffectiveCoverage,
			Diff:         now.EffectiveCoverage,
			OutcomeAfter: now.Outcome,
		})
	}
	return c
}
