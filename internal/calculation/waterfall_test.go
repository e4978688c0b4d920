package calculation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPolicy(id string, priority int, percent, deductible string) domain.InsurancePolicy {
	return domain.InsurancePolicy{
		ID:              id,
		PatientID:       "pat-1",
		PlanID:          "plan-" + id,
		Priority:        priority,
		CoveragePercent: d(percent),
		Deductible:      d(deductible),
		StartDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:          true,
	}
}

func withCap(p domain.InsurancePolicy, payout string) domain.InsurancePolicy {
	p.MaxPayout = domain.Some(d(payout))
	return p
}

func charge(amount string) domain.ChargeContext {
	return domain.ChargeContext{
		PatientID:         "pat-1",
		ServiceCategoryID: "consult",
		BilledAmount:      d(amount),
		AsOf:              testDay,
	}
}

func planDefaults() TariffFunc {
	return NewTariffResolver(nil).ResolveTariff
}

func withOverrides(t *testing.T, overrides ...domain.ServiceTariffOverride) TariffFunc {
	t.Helper()
	table, err := NewTariffTable(overrides)
	require.NoError(t, err)
	return NewTariffResolver(table).ResolveTariff
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, what ...string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: want %s, got %s", strings.Join(what, " "), want, got.String())
}

func TestCalculator_Scenarios(t *testing.T) {
	calc := NewCalculator(DefaultCurrencyPlaces)

	tests := []struct {
		name          string
		amount        string
		policies      []domain.InsurancePolicy
		tariffs       func(t *testing.T) TariffFunc
		wantCoverage  string
		wantShare     string
		wantEffective []string
		wantOutcomes  []domain.ContributionOutcome
	}{
		{
			name:          "A: no active policies is self-pay",
			amount:        "1000000",
			wantCoverage:  "0",
			wantShare:     "1000000",
			wantEffective: []string{},
			wantOutcomes:  []domain.ContributionOutcome{},
		},
		{
			name:          "B: single primary at 70%",
			amount:        "1000000",
			policies:      []domain.InsurancePolicy{testPolicy("primary", 1, "70", "0")},
			wantCoverage:  "700000",
			wantShare:     "300000",
			wantEffective: []string{"700000"},
			wantOutcomes:  []domain.ContributionOutcome{domain.OutcomeApplied},
		},
		{
			name:   "C: deductible then capped supplementary",
			amount: "1000000",
			policies: []domain.InsurancePolicy{
				testPolicy("primary", 1, "70", "100000"),
				withCap(testPolicy("supp", 2, "80", "0"), "150000"),
			},
			wantCoverage:  "780000",
			wantShare:     "220000",
			wantEffective: []string{"630000", "150000"},
			wantOutcomes:  []domain.ContributionOutcome{domain.OutcomeApplied, domain.OutcomeCapped},
		},
		{
			name:   "D: excluded category passes remaining through unchanged",
			amount: "1000000",
			policies: []domain.InsurancePolicy{
				testPolicy("primary", 1, "90", "50000"),
				testPolicy("supp", 2, "70", "0"),
			},
			tariffs: func(t *testing.T) TariffFunc {
				return withOverrides(t, domain.ServiceTariffOverride{
					PlanID: "plan-primary", ServiceCategoryID: "consult", IsCovered: false,
				})
			},
			wantCoverage:  "700000",
			wantShare:     "300000",
			wantEffective: []string{"0", "700000"},
			wantOutcomes:  []domain.ContributionOutcome{domain.OutcomeNotCovered, domain.OutcomeApplied},
		},
		{
			name:   "E: zero cap contributes nothing",
			amount: "1000000",
			policies: []domain.InsurancePolicy{
				withCap(testPolicy("primary", 1, "70", "0"), "0"),
				testPolicy("supp", 2, "50", "0"),
			},
			wantCoverage:  "500000",
			wantShare:     "500000",
			wantEffective: []string{"0", "500000"},
			wantOutcomes:  []domain.ContributionOutcome{domain.OutcomeZeroCap, domain.OutcomeApplied},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tariffs := planDefaults()
			if tt.tariffs != nil {
				tariffs = tt.tariffs(t)
			}

			result, err := calc.Calculate(charge(tt.amount), tt.policies, tariffs)
			require.NoError(t, err)

			assertDecimal(t, tt.wantCoverage, result.TotalCoverage, "total coverage")
			assertDecimal(t, tt.wantShare, result.PatientShare, "patient share")
			require.NotNil(t, result.Contributions)
			require.Len(t, result.Contributions, len(tt.wantEffective))
			for i, c := range result.Contributions {
				assertDecimal(t, tt.wantEffective[i], c.EffectiveCoverage, fmt.Sprintf("contribution %d", i))
				assert.Equal(t, tt.wantOutcomes[i], c.Outcome, "contribution %d", i)
			}
		})
	}
}

func TestCalculator_ScenarioCBreakdown(t *testing.T) {
	result, err := NewCalculator(0).Calculate(charge("1000000"), []domain.InsurancePolicy{
		testPolicy("primary", 1, "70", "100000"),
		withCap(testPolicy("supp", 2, "80", "0"), "150000"),
	}, planDefaults())
	require.NoError(t, err)

	primary, supp := result.Contributions[0], result.Contributions[1]
	assertDecimal(t, "1000000", primary.RemainingBefore)
	assertDecimal(t, "100000", primary.DeductibleApplied)
	assertDecimal(t, "900000", primary.Base)
	assertDecimal(t, "630000", primary.RawCoverage)
	assertDecimal(t, "370000", primary.RemainingAfter)

	assertDecimal(t, "370000", supp.RemainingBefore)
	assertDecimal(t, "370000", supp.Base)
	assertDecimal(t, "296000", supp.RawCoverage)
	assertDecimal(t, "150000", supp.EffectiveCoverage)
	assertDecimal(t, "220000", supp.RemainingAfter)
}

func TestCalculator_NotCoveredAndZeroCapAreDistinct(t *testing.T) {
	calc := NewCalculator(0)
	excluded := withOverrides(t, domain.ServiceTariffOverride{PlanID: "plan-a", ServiceCategoryID: "consult", IsCovered: false})

	notCovered, err := calc.Calculate(charge("100"), []domain.InsurancePolicy{testPolicy("a", 1, "70", "0")}, excluded)
	require.NoError(t, err)
	zeroCap, err := calc.Calculate(charge("100"), []domain.InsurancePolicy{withCap(testPolicy("a", 1, "70", "0"), "0")}, planDefaults())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNotCovered, notCovered.Contributions[0].Outcome)
	assert.Equal(t, domain.OutcomeZeroCap, zeroCap.Contributions[0].Outcome)
	assert.True(t, notCovered.Contributions[0].EffectiveCoverage.IsZero())
	assert.True(t, zeroCap.Contributions[0].EffectiveCoverage.IsZero())
	assert.True(t, zeroCap.Contributions[0].PercentApplied.Equal(d("70")))
	assert.True(t, notCovered.Contributions[0].PercentApplied.IsZero())
}

func TestCalculator_ZeroBilledAmount(t *testing.T) {
	result, err := NewCalculator(0).Calculate(charge("0"), []domain.InsurancePolicy{testPolicy("a", 1, "70", "0")}, planDefaults())
	require.NoError(t, err)
	assert.NotNil(t, result.Contributions)
	assert.Empty(t, result.Contributions)
	assert.True(t, result.TotalCoverage.IsZero())
	assert.True(t, result.PatientShare.IsZero())

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"contributions":[]`)
}

func TestCalculator_DeductibleExhaustion(t *testing.T) {
	result, err := NewCalculator(0).Calculate(charge("50"), []domain.InsurancePolicy{
		testPolicy("a", 1, "80", "100"),
		testPolicy("b", 2, "50", "0"),
	}, planDefaults())
	require.NoError(t, err)

	first := result.Contributions[0]
	assert.Equal(t, domain.OutcomeDeductibleExhausted, first.Outcome)
	assert.True(t, first.Base.IsZero())
	assert.True(t, first.EffectiveCoverage.IsZero())
	assertDecimal(t, "50", first.DeductibleApplied)
	assertDecimal(t, "50", first.RemainingAfter)

	assertDecimal(t, "25", result.Contributions[1].EffectiveCoverage)
	assertDecimal(t, "25", result.PatientShare)
}

func TestCalculator_NothingOwedAfterFullCoverage(t *testing.T) {
	result, err := NewCalculator(0).Calculate(charge("400"), []domain.InsurancePolicy{
		testPolicy("a", 1, "100", "0"),
		testPolicy("b", 2, "80", "10"),
	}, planDefaults())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNothingOwed, result.Contributions[1].Outcome)
	assert.True(t, result.Contributions[1].EffectiveCoverage.IsZero())
	assert.True(t, result.PatientShare.IsZero())
	assertDecimal(t, "400", result.TotalCoverage)
}

func TestCalculator_Rounding(t *testing.T) {
	tests := []struct {
		name          string
		places        int32
		amount        string
		percent       string
		wantEffective string
	}{
		{name: "half rounds up at whole units", places: 0, amount: "1001", percent: "50", wantEffective: "501"},
		{name: "below half rounds down", places: 0, amount: "1001", percent: "33", wantEffective: "330"},
		{name: "two places", places: 2, amount: "10.01", percent: "33.333", wantEffective: "3.34"},
		{name: "two places half up", places: 2, amount: "0.05", percent: "50", wantEffective: "0.03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewCalculator(tt.places).Calculate(charge(tt.amount),
				[]domain.InsurancePolicy{testPolicy("a", 1, tt.percent, "0")}, planDefaults())
			require.NoError(t, err)
			assertDecimal(t, tt.wantEffective, result.Contributions[0].EffectiveCoverage)
			assert.True(t, result.TotalCoverage.Add(result.PatientShare).Equal(d(tt.amount)))
		})
	}
}

func TestCalculator_RoundingNeverExceedsRemaining(t *testing.T) {
	// 99.5% of 1 rounds to 1, which must not push the share below zero.
	result, err := NewCalculator(0).Calculate(charge("1"), []domain.InsurancePolicy{
		testPolicy("a", 1, "99.5", "0"),
		testPolicy("b", 2, "100", "0"),
	}, planDefaults())
	require.NoError(t, err)
	assert.True(t, result.PatientShare.IsZero())
	assertDecimal(t, "1", result.TotalCoverage)
}

func TestCalculator_Properties(t *testing.T) {
	stacks := map[string][]domain.InsurancePolicy{
		"single":  {testPolicy("a", 1, "70", "0")},
		"two":     {testPolicy("a", 1, "70", "100"), withCap(testPolicy("b", 2, "80", "10"), "150")},
		"three":   {testPolicy("a", 1, "33.3", "7"), testPolicy("b", 2, "66.6", "3"), withCap(testPolicy("c", 3, "100", "0"), "5")},
		"gapped":  {testPolicy("a", 1, "10", "0"), testPolicy("b", 5, "90", "1000")},
		"full":    {testPolicy("a", 1, "100", "0"), testPolicy("b", 2, "100", "0")},
		"nothing": {testPolicy("a", 1, "0", "0")},
		"fractional deductible": {testPolicy("a", 1, "100", "0.4"), testPolicy("b", 2, "100", "0.25")},
		"fractional cap":        {withCap(testPolicy("a", 1, "100", "0"), "150.5"), withCap(testPolicy("b", 2, "50", "0.7"), "20.9")},
	}
	amounts := []string{"0", "1", "99", "100.4", "101", "1000", "12345", "1000000"}

	for name, stack := range stacks {
		for _, amount := range amounts {
			t.Run(name+"/"+amount, func(t *testing.T) {
				calc := NewCalculator(0)
				result, err := calc.Calculate(charge(amount), stack, planDefaults())
				require.NoError(t, err)

				billed := d(amount)
				assert.True(t, result.TotalCoverage.Add(result.PatientShare).Equal(billed), "conservation")
				assert.False(t, result.PatientShare.IsNegative(), "share non-negative")
				assert.False(t, result.TotalCoverage.GreaterThan(billed), "coverage bounded")

				sum := decimal.Zero
				for _, c := range result.Contributions {
					assert.False(t, c.EffectiveCoverage.IsNegative())
					assert.False(t, c.EffectiveCoverage.GreaterThan(c.RemainingBefore))
					assert.False(t, c.EffectiveCoverage.GreaterThan(c.Base), "bounded by base")
					if payout, ok := c.MaxPayout.Get(); ok {
						assert.False(t, c.EffectiveCoverage.GreaterThan(payout))
					}
					assert.True(t, c.EffectiveCoverage.Equal(c.EffectiveCoverage.Round(0)), "rounded to currency unit")
					sum = sum.Add(c.EffectiveCoverage)
				}
				assert.True(t, sum.Equal(result.TotalCoverage), "contributions sum to total")

				reversed := make([]domain.InsurancePolicy, len(stack))
				for i, p := range stack {
					reversed[len(stack)-1-i] = p
				}
				again, err := calc.Calculate(charge(amount), reversed, planDefaults())
				require.NoError(t, err)

				first, err := json.Marshal(result)
				require.NoError(t, err)
				second, err := json.Marshal(again)
				require.NoError(t, err)
				assert.Equal(t, string(first), string(second), "order independent and idempotent")
			})
		}
	}
}

func TestCalculator_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		policies []domain.InsurancePolicy
		tariffs  TariffFunc
	}{
		{name: "negative amount", amount: "-1", policies: []domain.InsurancePolicy{testPolicy("a", 1, "70", "0")}},
		{name: "percent above 100", amount: "100", policies: []domain.InsurancePolicy{testPolicy("a", 1, "120", "0")}},
		{name: "negative percent", amount: "100", policies: []domain.InsurancePolicy{testPolicy("a", 1, "-5", "0")}},
		{name: "negative deductible", amount: "100", policies: []domain.InsurancePolicy{testPolicy("a", 1, "70", "-10")}},
		{name: "negative cap", amount: "100", policies: []domain.InsurancePolicy{withCap(testPolicy("a", 1, "70", "0"), "-1")}},
		{name: "duplicate priority", amount: "100", policies: []domain.InsurancePolicy{testPolicy("a", 1, "70", "0"), testPolicy("b", 1, "50", "0")}},
		{name: "priority below one", amount: "100", policies: []domain.InsurancePolicy{testPolicy("a", 0, "70", "0")}},
		{
			name:     "raw tariff func bypassing the resolver",
			amount:   "100",
			policies: []domain.InsurancePolicy{testPolicy("a", 1, "70", "0")},
			tariffs: func(domain.InsurancePolicy, string) (domain.ResolvedTariff, error) {
				return domain.ResolvedTariff{CoveragePercent: d("101"), IsCovered: true}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tariffs := tt.tariffs
			if tariffs == nil {
				tariffs = planDefaults()
			}
			result, err := NewCalculator(0).Calculate(charge(tt.amount), tt.policies, tariffs)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), err.Error())
		})
	}
}

func TestCalculator_NotCoveredSkipsValidation(t *testing.T) {
	bad := testPolicy("a", 1, "150", "0")
	tariffs := withOverrides(t, domain.ServiceTariffOverride{PlanID: bad.PlanID, ServiceCategoryID: "consult", IsCovered: false})

	result, err := NewCalculator(0).Calculate(charge("100"), []domain.InsurancePolicy{bad}, tariffs)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotCovered, result.Contributions[0].Outcome)
	assertDecimal(t, "100", result.PatientShare)
}

func TestCalculator_FractionalBoundsStayOnGrid(t *testing.T) {
	tests := []struct {
		name          string
		places        int32
		amount        string
		policy        domain.InsurancePolicy
		wantEffective string
		wantOutcome   domain.ContributionOutcome
	}{
		{name: "fractional deductible", places: 0, amount: "100", policy: testPolicy("a", 1, "100", "0.4"), wantEffective: "99", wantOutcome: domain.OutcomeApplied},
		{name: "fractional billed amount", places: 0, amount: "100.6", policy: testPolicy("a", 1, "100", "0"), wantEffective: "100", wantOutcome: domain.OutcomeApplied},
		{name: "fractional cap does not round up", places: 0, amount: "1000", policy: withCap(testPolicy("a", 1, "100", "0"), "150.5"), wantEffective: "150", wantOutcome: domain.OutcomeCapped},
		{name: "sub-cent cap at two places", places: 2, amount: "10", policy: withCap(testPolicy("a", 1, "100", "0"), "3.339"), wantEffective: "3.33", wantOutcome: domain.OutcomeCapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewCalculator(tt.places).Calculate(charge(tt.amount), []domain.InsurancePolicy{tt.policy}, planDefaults())
			require.NoError(t, err)

			c := result.Contributions[0]
			assertDecimal(t, tt.wantEffective, c.EffectiveCoverage)
			assert.Equal(t, tt.wantOutcome, c.Outcome)
			assert.True(t, c.EffectiveCoverage.Equal(c.EffectiveCoverage.Round(tt.places)), "on the currency grid")
			assert.True(t, result.TotalCoverage.Add(result.PatientShare).Equal(d(tt.amount)))
		})
	}
}

func TestCalculator_NothingOwedStillValidates(t *testing.T) {
	policies := []domain.InsurancePolicy{
		testPolicy("a", 1, "100", "0"),
		testPolicy("b", 2, "100", "0"),
	}
	// A raw tariff func skips the resolver's checks, so only the waterfall
	// can reject the second policy once nothing is owed.
	tariffs := func(p domain.InsurancePolicy, _ string) (domain.ResolvedTariff, error) {
		percent := d("100")
		if p.ID == "b" {
			percent = d("120")
		}
		return domain.ResolvedTariff{CoveragePercent: percent, MaxPayout: domain.None[decimal.Decimal](), IsCovered: true}, nil
	}

	result, err := NewCalculator(0).Calculate(charge("100"), policies, tariffs)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrConfiguration), err.Error())
}
