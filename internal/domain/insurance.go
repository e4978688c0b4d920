package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryPriority is the priority of a patient's base insurance.
const PrimaryPriority = 1

// InsurancePolicy is a patient's enrollment in one plan, carrying the plan's
// default tariff. Priority 1 is the primary policy, 2..N are supplementary.
// CoveragePercent is expressed 0-100; an absent MaxPayout means uncapped.
type InsurancePolicy struct {
	ID              string                    `yaml:"id" json:"id"`
	PatientID       string                    `yaml:"patient_id" json:"patientId"`
	PlanID          string                    `yaml:"plan_id" json:"planId"`
	PolicyNumber    string                    `yaml:"policy_number" json:"policyNumber"`
	Priority        int                       `yaml:"priority" json:"priority"`
	CoveragePercent decimal.Decimal           `yaml:"coverage_percent" json:"coveragePercent"`
	Deductible      decimal.Decimal           `yaml:"deductible" json:"deductible"`
	MaxPayout       Optional[decimal.Decimal] `yaml:"max_payout,omitempty" json:"maxPayout"`
	StartDate       time.Time                 `yaml:"start_date" json:"startDate"`
	EndDate         Optional[time.Time]       `yaml:"end_date,omitempty" json:"endDate"`
	Active          bool                      `yaml:"active" json:"active"`
}

// IsPrimary reports whether the policy is the patient's primary insurance.
func (p InsurancePolicy) IsPrimary() bool {
	return p.Priority == PrimaryPriority
}

// ValidOn reports whether the policy is active and its validity window
// contains the given day. Only the calendar day of each date is compared.
func (p InsurancePolicy) ValidOn(asOf time.Time) bool {
	if !p.Active {
		return false
	}
	day := truncateDay(asOf)
	if truncateDay(p.StartDate).After(day) {
		return false
	}
	if end, ok := p.EndDate.Get(); ok && truncateDay(end).Before(day) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ServiceTariffOverride replaces a plan's default tariff for one service
// category. Absent fields fall through to the plan default.
type ServiceTariffOverride struct {
	PlanID            string                    `yaml:"plan_id" json:"planId"`
	ServiceCategoryID string                    `yaml:"service_category_id" json:"serviceCategoryId"`
	CoveragePercent   Optional[decimal.Decimal] `yaml:"coverage_percent,omitempty" json:"coveragePercent"`
	MaxPayout         Optional[decimal.Decimal] `yaml:"max_payout,omitempty" json:"maxPayout"`
	IsCovered         bool                      `yaml:"is_covered" json:"isCovered"`
}

// TariffSource tells where a resolved tariff field came from.
type TariffSource string

const (
	FromPlan     TariffSource = "plan"
	FromOverride TariffSource = "override"
)

// ResolvedTariff is the tariff that applies to one policy for one category.
type ResolvedTariff struct {
	CoveragePercent decimal.Decimal           `json:"coveragePercent"`
	Deductible      decimal.Decimal           `json:"deductible"`
	MaxPayout       Optional[decimal.Decimal] `json:"maxPayout"`
	IsCovered       bool                      `json:"isCovered"`
	PercentSource   TariffSource              `json:"percentSource"`
	MaxPayoutSource TariffSource              `json:"maxPayoutSource"`
}

// ChargeContext is the input to one calculation.
type ChargeContext struct {
	PatientID         string          `json:"patientId"`
	ServiceCategoryID string          `json:"serviceCategoryId"`
	BilledAmount      decimal.Decimal `json:"billedAmount"`
	AsOf              time.Time       `json:"asOf"`
}

// Patient is the minimal patient reference the engine needs.
type Patient struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// ServiceCategory groups billable services sharing one tariff line.
type ServiceCategory struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Dataset is a self-contained snapshot of patients, categories, policies and
// tariff overrides, loaded from YAML for the memory backend.
type Dataset struct {
	Patients          []Patient               `yaml:"patients" json:"patients"`
	ServiceCategories []ServiceCategory       `yaml:"service_categories" json:"serviceCategories"`
	Policies          []InsurancePolicy       `yaml:"policies" json:"policies"`
	TariffOverrides   []ServiceTariffOverride `yaml:"tariff_overrides" json:"tariffOverrides"`
}
