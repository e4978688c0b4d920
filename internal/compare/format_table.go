package compare

import (
	"fmt"
	"strings"

	"github.com/clinicops/coverage/internal/output"
	"github.com/shopspring/decimal"
)

// TableFormatter formats a comparison as a console table
type TableFormatter struct {
	Places int32
}

// Format renders c.
func (tf TableFormatter) Format(c *Comparison) string {
	var sb strings.Builder

	sb.WriteString("CORRECTION\n")
	sb.WriteString(strings.Repeat("=", 72) + "\n")
	sb.WriteString(fmt.Sprintf("%s supersedes %s\n", c.AlternativeID, c.BaseID))
	if !c.Changed() {
		sb.WriteString("No amounts changed.\n")
	}
	for _, note := range c.Notes {
		sb.WriteString("  * " + note + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("%-18s %-16s %14s %14s %14s\n", "POLICY", "PLAN", "BEFORE", "AFTER", "CHANGE"))
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	for _, p := range c.Policies {
		sb.WriteString(fmt.Sprintf("%-18s %-16s %14s %14s %14s\n",
			p.PolicyID, p.PlanID,
			output.FormatCurrency(p.Before, tf.Places),
			output.FormatCurrency(p.After, tf.Places),
			tf.signed(p.Diff)))
	}
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	sb.WriteString(fmt.Sprintf("%-35s %44s\n", "Total coverage", tf.signed(c.CoverageDiff)))
	sb.WriteString(fmt.Sprintf("%-35s %44s\n", "Patient share", tf.signed(c.ShareDiff)))
	return sb.String()
}

func (tf TableFormatter) signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + output.FormatCurrency(d, tf.Places)
	}
	return output.FormatCurrency(d, tf.Places)
}
