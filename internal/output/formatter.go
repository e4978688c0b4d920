// Package output renders coverage results and calculation records.
package output

import (
	"strings"

	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
)

// Formatter renders results and records in one output format.
type Formatter interface {
	Name() string
	FormatResult(result *domain.CoverageResult) ([]byte, error)
	FormatRecords(records []domain.CalculationRecord) ([]byte, error)
}

// FormatterNames lists the supported formats.
var FormatterNames = []string{"console", "json", "csv"}

// GetFormatterByName returns the formatter for name, or nil if unknown.
// places is the number of currency decimals shown by the console format.
func GetFormatterByName(name string, places int32) Formatter {
	switch strings.ToLower(name) {
	case "console", "":
		return ConsoleFormatter{Places: places}
	case "json":
		return JSONFormatter{}
	case "csv":
		return CSVFormatter{}
	}
	return nil
}

// FormatCurrency formats an amount with places decimals and thousands separators.
func FormatCurrency(amount decimal.Decimal, places int32) string {
	s := amount.StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

// FormatPercentage formats a 0-100 percentage
func FormatPercentage(pct decimal.Decimal) string {
	return pct.StringFixed(2) + "%"
}
