// Package compare explains how a correction changed a recorded calculation.
package compare

import (
	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
)

// PolicyDelta is one policy's payment before and after a correction. A policy
// that applies on only one side has a zero amount and an empty outcome on the
// other.
type PolicyDelta struct {
	PolicyID      string                     `json:"policyId"`
	PlanID        string                     `json:"planId"`
	Before        decimal.Decimal            `json:"before"`
	After         decimal.Decimal            `json:"after"`
	Diff          decimal.Decimal            `json:"diff"`
	OutcomeBefore domain.ContributionOutcome `json:"outcomeBefore,omitempty"`
	OutcomeAfter  domain.ContributionOutcome `json:"outcomeAfter,omitempty"`
}

// Comparison is the difference between a base record and the record that
// supersedes it.
type Comparison struct {
	BaseID        string          `json:"baseId"`
	AlternativeID string          `json:"alternativeId"`
	Policies      []PolicyDelta   `json:"policies"`
	CoverageDiff  decimal.Decimal `json:"coverageDiff"`
	ShareDiff     decimal.Decimal `json:"shareDiff"`
	Notes         []string        `json:"notes"`
}

// Changed reports whether any amount differs.
func (c *Comparison) Changed() bool {
	if !c.CoverageDiff.IsZero() || !c.ShareDiff.IsZero() {
		return true
	}
	for _, p := range c.Policies {
		if !p.Diff.IsZero() {
			return true
		}
	}
	return false
}
