package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/clinicops/coverage/internal/output"
	"github.com/clinicops/coverage/internal/tui/tuistyles"
)

// ContributionCard shows what one policy paid and why.
type ContributionCard struct {
	Contribution domain.CoverageContribution
	Places       int32
	Width        int
}

// NewContributionCard creates a card for c.
func NewContributionCard(c domain.CoverageContribution, places int32) *ContributionCard {
	return &ContributionCard{Contribution: c, Places: places, Width: 60}
}

// WithWidth sets the card width
func (c *ContributionCard) WithWidth(width int) *ContributionCard {
	c.Width = width
	return c
}

func (c *ContributionCard) Render() string {
	contrib := c.Contribution
	title := lipgloss.NewStyle().Bold(true).Render(
		fmt.Sprintf("%d. %s", contrib.Priority, contrib.PolicyID))
	plan := tuistyles.SubtitleStyle.Render(contrib.PlanID)

	var lines []string
	lines = append(lines, title+"  "+plan)
	lines = append(lines, fmt.Sprintf("Outcome:    %s", outcomeLabel(contrib.Outcome)))
	lines = append(lines, fmt.Sprintf("Owed:       %s", output.FormatCurrency(contrib.RemainingBefore, c.Places)))
	if contrib.DeductibleApplied.IsPositive() {
		lines = append(lines, fmt.Sprintf("Deductible: %s", output.FormatCurrency(contrib.DeductibleApplied, c.Places)))
	}
	if contrib.Outcome != domain.OutcomeNotCovered && contrib.Outcome != domain.OutcomeNothingOwed {
		lines = append(lines, fmt.Sprintf("Rate:       %s of %s",
			output.FormatPercentage(contrib.PercentApplied), output.FormatCurrency(contrib.Base, c.Places)))
	}
	if payout, ok := contrib.MaxPayout.Get(); ok {
		lines = append(lines, fmt.Sprintf("Cap:        %s", output.FormatCurrency(payout, c.Places)))
	}
	lines = append(lines, "Paid:       "+tuistyles.ShareStyle(true).Render(
		output.FormatCurrency(contrib.EffectiveCoverage, c.Places)))

	return tuistyles.BorderStyle.Width(c.Width).Render(strings.Join(lines, "\n"))
}

func outcomeLabel(o domain.ContributionOutcome) string {
	switch o {
	case domain.OutcomeApplied:
		return "applied"
	case domain.OutcomeCapped:
		return "capped at maximum payout"
	case domain.OutcomeNotCovered:
		return "service not covered"
	case domain.OutcomeNothingOwed:
		return "nothing left to pay"
	case domain.OutcomeDeductibleExhausted:
		return "deductible absorbed the balance"
	case domain.OutcomeZeroCap:
		return "maximum payout is zero"
	default:
		return string(o)
	}
}
