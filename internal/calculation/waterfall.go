package calculation

import (
	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCurrencyPlaces is the number of decimal places in the smallest
// currency unit. The clinic's currency has no minor unit.
const DefaultCurrencyPlaces int32 = 0

// Calculator runs the coverage waterfall. It holds no state besides its
// rounding precision and is safe for concurrent use.
type Calculator struct {
	CurrencyPlaces int32
}

// NewCalculator creates a calculator rounding contributions to places decimals.
func NewCalculator(places int32) *Calculator {
	return &Calculator{CurrencyPlaces: places}
}

// Calculate applies the policies to the charge in ascending priority order.
// Each policy sees only the balance its predecessors left unpaid, and its
// deductible is taken from that balance rather than the billed amount.
//
// Policies are re-sorted here regardless of the order given. The only
// failures are configuration errors: a negative billed amount, duplicate
// priorities, or a tariff outside its allowed range.
func (c *Calculator) Calculate(charge domain.ChargeContext, policies []domain.InsurancePolicy, tariffs TariffFunc) (*domain.CoverageResult, error) {
	if charge.BilledAmount.IsNegative() {
		return nil, domain.NewConfigurationError("charge", "billed amount %s is negative", charge.BilledAmount.String())
	}

	result := &domain.CoverageResult{
		PatientID:         charge.PatientID,
		ServiceCategoryID: charge.ServiceCategoryID,
		AsOf:              charge.AsOf,
		BilledAmount:      charge.BilledAmount,
		Contributions:     []domain.CoverageContribution{},
		TotalCoverage:     decimal.Zero,
		PatientShare:      charge.BilledAmount,
	}

	if charge.BilledAmount.IsZero() || len(policies) == 0 {
		return result, nil
	}

	ordered, err := sortByPriority(policies)
	if err != nil {
		return nil, err
	}

	remaining := charge.BilledAmount
	for _, policy := range ordered {
		tariff, err := tariffs(policy, charge.ServiceCategoryID)
		if err != nil {
			return nil, err
		}

		contrib := domain.CoverageContribution{
			PolicyID:          policy.ID,
			PlanID:            policy.PlanID,
			Priority:          policy.Priority,
			RemainingBefore:   remaining,
			DeductibleApplied: decimal.Zero,
			Base:              decimal.Zero,
			PercentApplied:    decimal.Zero,
			MaxPayout:         domain.None[decimal.Decimal](),
			RawCoverage:       decimal.Zero,
			EffectiveCoverage: decimal.Zero,
		}

		if tariff.IsCovered {
			if err := validateTariff(policy.ID, tariff); err != nil {
				return nil, err
			}
		}

		switch {
		case !tariff.IsCovered:
			contrib.Outcome = domain.OutcomeNotCovered
		case !remaining.IsPositive():
			contrib.Outcome = domain.OutcomeNothingOwed
		default:
			c.apply(&contrib, tariff, remaining)
		}

		remaining = remaining.Sub(contrib.EffectiveCoverage)
		contrib.RemainingAfter = remaining
		result.Contributions = append(result.Contributions, contrib)
	}

	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	result.PatientShare = remaining
	result.TotalCoverage = charge.BilledAmount.Sub(remaining)

	return result, nil
}

// apply computes one covered policy's contribution against remaining.
func (c *Calculator) apply(contrib *domain.CoverageContribution, tariff domain.ResolvedTariff, remaining decimal.Decimal) {
	base := remaining.Sub(tariff.Deductible)
	if base.IsNegative() {
		base = decimal.Zero
	}
	raw := base.Mul(tariff.CoveragePercent).Div(hundred)

	payout, hasCap := tariff.MaxPayout.Get()
	capped := hasCap && raw.GreaterThan(payout)

	// The only rounding step. Amounts are never negative here, so Round's
	// half-away-from-zero is half-up. Bounds are floored onto the currency
	// grid so clamping cannot leave it or round past a fractional cap.
	places := c.CurrencyPlaces
	effective := decimal.Min(raw.Round(places), base.RoundFloor(places), remaining.RoundFloor(places))
	if hasCap {
		effective = decimal.Min(effective, payout.RoundFloor(places))
	}

	contrib.DeductibleApplied = remaining.Sub(base)
	contrib.Base = base
	contrib.PercentApplied = tariff.CoveragePercent
	contrib.MaxPayout = tariff.MaxPayout
	contrib.RawCoverage = raw
	contrib.EffectiveCoverage = effective

	switch {
	case hasCap && payout.IsZero():
		contrib.Outcome = domain.OutcomeZeroCap
	case base.IsZero() && tariff.Deductible.IsPositive():
		contrib.Outcome = domain.OutcomeDeductibleExhausted
	case capped:
		contrib.Outcome = domain.OutcomeCapped
	default:
		contrib.Outcome = domain.OutcomeApplied
	}
}
