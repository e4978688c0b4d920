package calculation

import (
	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TariffFunc resolves the tariff for one policy and service category.
type TariffFunc func(policy domain.InsurancePolicy, serviceCategoryID string) (domain.ResolvedTariff, error)

type tariffKey struct {
	planID     string
	categoryID string
}

// TariffTable indexes tariff overrides by (plan, service category). It is
// built once per calculation from a single snapshot and never mutated.
type TariffTable struct {
	overrides map[tariffKey]domain.ServiceTariffOverride
}

// NewTariffTable indexes overrides. Two overrides for the same plan and
// category are ambiguous and rejected.
func NewTariffTable(overrides []domain.ServiceTariffOverride) (*TariffTable, error) {
	table := &TariffTable{overrides: make(map[tariffKey]domain.ServiceTariffOverride, len(overrides))}
	for _, o := range overrides {
		key := tariffKey{planID: o.PlanID, categoryID: o.ServiceCategoryID}
		if _, dup := table.overrides[key]; dup {
			return nil, domain.NewConfigurationError("plan "+o.PlanID,
				"more than one tariff override for service category %s", o.ServiceCategoryID)
		}
		table.overrides[key] = o
	}
	return table, nil
}

// Lookup returns the override for a plan and category, if any.
func (t *TariffTable) Lookup(planID, categoryID string) (domain.ServiceTariffOverride, bool) {
	if t == nil {
		return domain.ServiceTariffOverride{}, false
	}
	o, ok := t.overrides[tariffKey{planID: planID, categoryID: categoryID}]
	return o, ok
}

// Len returns the number of indexed overrides.
func (t *TariffTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.overrides)
}

// TariffResolver applies plan defaults and per-category overrides.
type TariffResolver struct {
	table *TariffTable
}

// NewTariffResolver creates a resolver over table; a nil table means the
// plans have no overrides.
func NewTariffResolver(table *TariffTable) *TariffResolver {
	return &TariffResolver{table: table}
}

// ResolveTariff returns the tariff for policy in serviceCategoryID. A category
// explicitly excluded by an override is returned as not covered without
// looking at any percentage or cap.
func (tr *TariffResolver) ResolveTariff(policy domain.InsurancePolicy, serviceCategoryID string) (domain.ResolvedTariff, error) {
	override, found := tr.table.Lookup(policy.PlanID, serviceCategoryID)
	if found && !override.IsCovered {
		return domain.ResolvedTariff{
			CoveragePercent: decimal.Zero,
			Deductible:      decimal.Zero,
			MaxPayout:       domain.None[decimal.Decimal](),
			IsCovered:       false,
			PercentSource:   domain.FromOverride,
			MaxPayoutSource: domain.FromOverride,
		}, nil
	}

	var tariff domain.ResolvedTariff
	if found {
		tariff = mergeTariff(policy, override)
	} else {
		tariff = planTariff(policy)
	}

	if err := validateTariff(policy.ID, tariff); err != nil {
		return domain.ResolvedTariff{}, err
	}
	return tariff, nil
}

// planTariff is the tariff carried by the policy's plan.
func planTariff(policy domain.InsurancePolicy) domain.ResolvedTariff {
	return domain.ResolvedTariff{
		CoveragePercent: policy.CoveragePercent,
		Deductible:      policy.Deductible,
		MaxPayout:       policy.MaxPayout,
		IsCovered:       true,
		PercentSource:   domain.FromPlan,
		MaxPayoutSource: domain.FromPlan,
	}
}

// mergeTariff overlays a covered override onto the plan tariff field by
// field. The deductible always comes from the plan.
func mergeTariff(policy domain.InsurancePolicy, override domain.ServiceTariffOverride) domain.ResolvedTariff {
	tariff := planTariff(policy)
	if pct, ok := override.CoveragePercent.Get(); ok {
		tariff.CoveragePercent = pct
		tariff.PercentSource = domain.FromOverride
	}
	if payout, ok := override.MaxPayout.Get(); ok {
		tariff.MaxPayout = domain.Some(payout)
		tariff.MaxPayoutSource = domain.FromOverride
	}
	return tariff
}

// validateTariff rejects values an administrator must fix. Nothing is clamped.
func validateTariff(policyID string, t domain.ResolvedTariff) error {
	subject := "policy " + policyID
	if t.CoveragePercent.IsNegative() || t.CoveragePercent.GreaterThan(hundred) {
		return domain.NewConfigurationError(subject, "coverage percent %s (%s) is outside [0, 100]",
			t.CoveragePercent.String(), t.PercentSource)
	}
	if t.Deductible.IsNegative() {
		return domain.NewConfigurationError(subject, "deductible %s is negative", t.Deductible.String())
	}
	if payout, ok := t.MaxPayout.Get(); ok && payout.IsNegative() {
		return domain.NewConfigurationError(subject, "max payout %s (%s) is negative",
			payout.String(), t.MaxPayoutSource)
	}
	return nil
}
