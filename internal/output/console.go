package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/clinicops/coverage/internal/domain"
)

// ConsoleFormatter renders a human-readable breakdown.
type ConsoleFormatter struct {
	Places int32
}

func (c ConsoleFormatter) Name() string { return "console" }

func (c ConsoleFormatter) FormatResult(result *domain.CoverageResult) ([]byte, error) {
	var buf bytes.Buffer
	c.writeResult(&buf, result)
	return buf.Bytes(), nil
}

func (c ConsoleFormatter) writeResult(buf *bytes.Buffer, result *domain.CoverageResult) {
	fmt.Fprintln(buf, "COVERAGE BREAKDOWN")
	fmt.Fprintln(buf, strings.Repeat("=", 50))
	fmt.Fprintf(buf, "Patient:          %s\n", result.PatientID)
	fmt.Fprintf(buf, "Service category: %s\n", result.ServiceCategoryID)
	fmt.Fprintf(buf, "As of:            %s\n", result.AsOf.Format("2006-01-02"))
	fmt.Fprintf(buf, "Billed amount:    %s\n", FormatCurrency(result.BilledAmount, c.Places))
	fmt.Fprintln(buf)

	if len(result.Contributions) == 0 {
		fmt.Fprintln(buf, "No insurance applies: the patient pays in full.")
	} else {
		fmt.Fprintf(buf, "%-3s %-16s %-16s %-21s %14s %8s %14s %14s\n",
			"#", "POLICY", "PLAN", "OUTCOME", "BASE", "RATE", "COVERED", "REMAINING")
		fmt.Fprintln(buf, strings.Repeat("-", 113))
		for _, contrib := range result.Contributions {
			rate := "-"
			if contrib.Outcome != domain.OutcomeNotCovered && contrib.Outcome != domain.OutcomeNothingOwed {
				rate = FormatPercentage(contrib.PercentApplied)
			}
			fmt.Fprintf(buf, "%-3d %-16s %-16s %-21s %14s %8s %14s %14s\n",
				contrib.Priority,
				contrib.PolicyID,
				contrib.PlanID,
				contrib.Outcome,
				FormatCurrency(contrib.Base, c.Places),
				rate,
				FormatCurrency(contrib.EffectiveCoverage, c.Places),
				FormatCurrency(contrib.RemainingAfter, c.Places),
			)
			if contrib.DeductibleApplied.IsPositive() {
				fmt.Fprintf(buf, "    deductible %s\n", FormatCurrency(contrib.DeductibleApplied, c.Places))
			}
			if payout, ok := contrib.MaxPayout.Get(); ok && contrib.Outcome == domain.OutcomeCapped {
				fmt.Fprintf(buf, "    capped at %s (raw %s)\n",
					FormatCurrency(payout, c.Places), FormatCurrency(contrib.RawCoverage, c.Places))
			}
		}
	}

	fmt.Fprintln(buf)
	fmt.Fprintf(buf, "Total coverage:   %s\n", FormatCurrency(result.TotalCoverage, c.Places))
	fmt.Fprintf(buf, "Patient share:    %s\n", FormatCurrency(result.PatientShare, c.Places))
}

func (c ConsoleFormatter) FormatRecords(records []domain.CalculationRecord) ([]byte, error) {
	var buf bytes.Buffer
	if len(records) == 0 {
		fmt.Fprintln(&buf, "No calculations recorded.")
		return buf.Bytes(), nil
	}

	for i, rec := range records {
		if i > 0 {
			fmt.Fprintln(&buf)
		}
		fmt.Fprintf(&buf, "Record %s\n", rec.ID)
		fmt.Fprintf(&buf, "  calculated %s by %s for service %s\n",
			rec.CalculatedAt.Format("2006-01-02 15:04:05Z07:00"), rec.CalculatedBy, rec.ServiceID)
		if prior, ok := rec.SupersedesID.Get(); ok {
			fmt.Fprintf(&buf, "  supersedes %s\n", prior)
		}
		fmt.Fprintf(&buf, "  policies %s\n", strings.Join(rec.PolicyIDs, ", "))
		fmt.Fprintf(&buf, "  billed %s, covered %s, patient share %s\n",
			FormatCurrency(rec.Result.BilledAmount, c.Places),
			FormatCurrency(rec.Result.TotalCoverage, c.Places),
			FormatCurrency(rec.Result.PatientShare, c.Places))
	}
	return buf.Bytes(), nil
}
