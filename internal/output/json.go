package output

import (
	"encoding/json"

	"github.com/clinicops/coverage/internal/domain"
)

// JSONFormatter renders indented JSON.
type JSONFormatter struct{}

func (j JSONFormatter) Name() string { return "json" }

func (j JSONFormatter) FormatResult(result *domain.CoverageResult) ([]byte, error) {
	return marshal(result)
}

func (j JSONFormatter) FormatRecords(records []domain.CalculationRecord) ([]byte, error) {
	if records == nil {
		records = []domain.CalculationRecord{}
	}
	return marshal(records)
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
