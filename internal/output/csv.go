package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/clinicops/coverage/internal/domain"
)

// CSVFormatter renders one row per policy contribution, or one row per record.
type CSVFormatter struct{}

func (c CSVFormatter) Name() string { return "csv" }

var resultHeader = []string{
	"patient_id", "service_category_id", "as_of", "billed_amount",
	"priority", "policy_id", "plan_id", "outcome",
	"remaining_before", "deductible_applied", "base", "percent_applied", "max_payout",
	"raw_coverage", "effective_coverage", "remaining_after",
	"total_coverage", "patient_share",
}

func (c CSVFormatter) FormatResult(result *domain.CoverageResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(resultHeader); err != nil {
		return nil, err
	}

	lead := []string{
		result.PatientID,
		result.ServiceCategoryID,
		result.AsOf.Format("2006-01-02"),
		result.BilledAmount.String(),
	}
	tail := []string{result.TotalCoverage.String(), result.PatientShare.String()}

	if len(result.Contributions) == 0 {
		row := append(append(append([]string{}, lead...), make([]string, 12)...), tail...)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	for _, contrib := range result.Contributions {
		maxPayout := ""
		if payout, ok := contrib.MaxPayout.Get(); ok {
			maxPayout = payout.String()
		}
		row := append([]string{}, lead...)
		row = append(row,
			strconv.Itoa(contrib.Priority),
			contrib.PolicyID,
			contrib.PlanID,
			string(contrib.Outcome),
			contrib.RemainingBefore.String(),
			contrib.DeductibleApplied.String(),
			contrib.Base.String(),
			contrib.PercentApplied.String(),
			maxPayout,
			contrib.RawCoverage.String(),
			contrib.EffectiveCoverage.String(),
			contrib.RemainingAfter.String(),
		)
		row = append(row, tail...)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (c CSVFormatter) FormatRecords(records []domain.CalculationRecord) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{
		"record_id", "supersedes_id", "calculated_at", "calculated_by",
		"patient_id", "service_id", "service_category_id", "policy_ids",
		"billed_amount", "total_coverage", "patient_share",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.SupersedesID.OrElse(""),
			rec.CalculatedAt.UTC().Format(time.RFC3339),
			rec.CalculatedBy,
			rec.PatientID,
			rec.ServiceID,
			rec.ServiceCategoryID,
			strings.Join(rec.PolicyIDs, ";"),
			rec.Result.BilledAmount.String(),
			rec.Result.TotalCoverage.String(),
			rec.Result.PatientShare.String(),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
