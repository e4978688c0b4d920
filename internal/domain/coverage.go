package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionOutcome explains how a policy's contribution came about.
type ContributionOutcome string

const (
	OutcomeApplied             ContributionOutcome = "applied"
	OutcomeCapped              ContributionOutcome = "capped"
	OutcomeNotCovered          ContributionOutcome = "not_covered"
	OutcomeNothingOwed         ContributionOutcome = "nothing_owed"
	OutcomeDeductibleExhausted ContributionOutcome = "deductible_exhausted"
	OutcomeZeroCap             ContributionOutcome = "zero_cap"
)

// CoverageContribution is one policy's share of a single calculation.
// Base is the post-deductible amount the percentage was applied to.
type CoverageContribution struct {
	PolicyID          string                    `json:"policyId"`
	PlanID            string                    `json:"planId"`
	Priority          int                       `json:"priority"`
	Outcome           ContributionOutcome       `json:"outcome"`
	RemainingBefore   decimal.Decimal           `json:"remainingBefore"`
	DeductibleApplied decimal.Decimal           `json:"deductibleApplied"`
	Base              decimal.Decimal           `json:"base"`
	PercentApplied    decimal.Decimal           `json:"percentApplied"`
	MaxPayout         Optional[decimal.Decimal] `json:"maxPayout"`
	RawCoverage       decimal.Decimal           `json:"rawCoverage"`
	EffectiveCoverage decimal.Decimal           `json:"effectiveCoverage"`
	RemainingAfter    decimal.Decimal           `json:"remainingAfter"`
}

// CoverageResult is the immutable output of one calculation.
type CoverageResult struct {
	PatientID         string                 `json:"patientId"`
	ServiceCategoryID string                 `json:"serviceCategoryId"`
	AsOf              time.Time              `json:"asOf"`
	BilledAmount      decimal.Decimal        `json:"billedAmount"`
	Contributions     []CoverageContribution `json:"contributions"`
	TotalCoverage     decimal.Decimal        `json:"totalCoverage"`
	PatientShare      decimal.Decimal        `json:"patientShare"`
}

// PolicyIDs lists the policies considered, in the order they were applied.
func (r CoverageResult) PolicyIDs() []string {
	ids := make([]string, 0, len(r.Contributions))
	for _, c := range r.Contributions {
		ids = append(ids, c.PolicyID)
	}
	return ids
}

// IsSelfPay reports whether no policy paid anything.
func (r CoverageResult) IsSelfPay() bool {
	return r.TotalCoverage.IsZero()
}

// CalculationRecord is the append-only audit row for one calculation. A
// correction is a new record whose SupersedesID names the corrected one.
type CalculationRecord struct {
	ID                string           `json:"id"`
	PatientID         string           `json:"patientId"`
	PolicyIDs         []string         `json:"policyIds"`
	ServiceID         string           `json:"serviceId"`
	ServiceCategoryID string           `json:"serviceCategoryId"`
	CalculatedBy      string           `json:"calculatedBy"`
	CalculatedAt      time.Time        `json:"calculatedAt"`
	SupersedesID      Optional[string] `json:"supersedesId"`
	Result            CoverageResult   `json:"result"`
}
