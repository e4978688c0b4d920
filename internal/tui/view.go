package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clinicops/coverage/internal/domain"
	"github.com/clinicops/coverage/internal/output"
	"github.com/clinicops/coverage/internal/tui/components"
	"github.com/clinicops/coverage/internal/tui/tuistyles"
)

// View renders the current state of the application
func (m Model) View() string {
	var content string
	switch {
	case m.err != nil:
		content = ErrorStyle.Render("Error: "+m.err.Error()) + "\n\n" + SubtitleStyle.Render("Press q to quit.")
	case m.loading && m.dataset == nil:
		content = BorderStyle.Render("Loading " + m.datasetPath + "...")
	case m.loading:
		content = BorderStyle.Render("Calculating...")
	default:
		switch m.scene {
		case SceneCharge:
			content = m.renderCharge()
		case SceneResult:
			content = m.renderResult()
		case SceneHelp:
			content = m.renderHelp()
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitleBar(),
		content,
		m.renderStatusBar(),
	)
}

func (m Model) renderTitleBar() string {
	title := TitleStyle.Render("Coverage previewer")
	asOf := "today"
	if m.asOf != nil {
		asOf = m.asOf.Format("2006-01-02")
	}
	return title + "\n" + SubtitleStyle.Render(fmt.Sprintf("%s / %s / as of %s", m.datasetPath, m.scene, asOf))
}

func (m Model) renderStatusBar() string {
	var shortcuts []string
	switch m.scene {
	case SceneCharge:
		shortcuts = []string{
			formatShortcut("tab", "next field"),
			formatShortcut("↑/↓", "select"),
			formatShortcut("enter", "calculate"),
			formatShortcut("?", "help"),
			formatShortcut("ctrl+c", "quit"),
		}
	default:
		shortcuts = []string{
			formatShortcut("esc", "back"),
			formatShortcut("q", "quit"),
		}
	}
	return StatusBarStyle.Render(strings.Join(shortcuts, " • "))
}

func formatShortcut(key, desc string) string {
	return StatusKeyStyle.Render(key) + " " + desc
}

func (m Model) panel(f Field, title, body string) string {
	style := BorderStyle
	if m.focus == f {
		style = ActiveBorderStyle
	}
	return style.Width(30).Render(SelectedItemStyle.Render(title) + "\n" + body)
}

func (m Model) renderCharge() string {
	patients := make([]string, 0, len(m.dataset.Patients))
	for i, p := range m.dataset.Patients {
		patients = append(patients, listItem(i == m.patientIndex, p.ID, p.Name))
	}
	categories := make([]string, 0, len(m.dataset.ServiceCategories))
	for i, c := range m.dataset.ServiceCategories {
		categories = append(categories, listItem(i == m.categoryIndex, c.ID, c.Name))
	}

	amount := m.amountInput.View()
	if m.formErr != "" {
		amount += "\n" + ErrorStyle.Render(m.formErr)
	}

	form := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panel(FieldPatient, "Patient", strings.Join(patients, "\n")),
		m.panel(FieldCategory, "Service category", strings.Join(categories, "\n")),
		m.panel(FieldAmount, "Billed amount", amount),
	)
	return form + "\n" + m.renderPolicies()
}

func listItem(selected bool, id, name string) string {
	label := id
	if name != "" {
		label += "  " + SubtitleStyle.Render(name)
	}
	if selected {
		return SelectedItemStyle.Render("▸ ") + label
	}
	return UnselectedItemStyle.Render("  ") + label
}

// renderPolicies lists the selected patient's policies as configured.
func (m Model) renderPolicies() string {
	policies := m.patientPolicies()
	if len(policies) == 0 {
		return SubtitleStyle.Render("No policies on file: the patient pays in full.")
	}

	lines := []string{SubtitleStyle.Render("Policies on file")}
	for _, p := range policies {
		status := "active"
		if !p.Active {
			status = "inactive"
		}
		line := fmt.Sprintf("  %d. %-18s %-16s %s  %s", p.Priority, p.ID, p.PlanID,
			output.FormatPercentage(p.CoveragePercent), status)
		if payout, ok := p.MaxPayout.Get(); ok {
			line += "  cap " + output.FormatCurrency(payout, m.places)
		}
		if p.Deductible.IsPositive() {
			line += "  deductible " + output.FormatCurrency(p.Deductible, m.places)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderResult() string {
	header := fmt.Sprintf("%s · %s · %s", m.request.PatientID, m.request.ServiceCategoryID,
		output.FormatCurrency(m.request.BilledAmount, m.places))

	if m.calcErr != nil {
		body := ErrorStyle.Render("Blocked: " + m.calcErr.Error())
		if domain.IsConfigurationError(m.calcErr) {
			body += "\n" + SubtitleStyle.Render("Flagged for administrator review. Nothing was billed.")
		}
		return BorderStyle.Render(header + "\n\n" + body)
	}

	r := m.result
	paying := 0
	for _, c := range r.Contributions {
		if c.EffectiveCoverage.IsPositive() {
			paying++
		}
	}

	metrics := components.MetricRow(
		components.NewMetricCard("Billed", output.FormatCurrency(r.BilledAmount, m.places)),
		components.NewMetricCard("Insurance pays", output.FormatCurrency(r.TotalCoverage, m.places)).
			WithStyle(tuistyles.ShareStyle(true)).
			WithDescription(fmt.Sprintf("%d of %d policies", paying, len(r.Contributions))),
		components.NewMetricCard("Patient pays", output.FormatCurrency(r.PatientShare, m.places)).
			WithStyle(tuistyles.ShareStyle(false)),
	)

	sections := []string{header, metrics, components.NewSplitBar(r).WithWidth(72).Render()}
	if r.IsSelfPay() {
		sections = append(sections, SubtitleStyle.Render("No insurance applies: the patient pays in full."))
	}
	for _, c := range r.Contributions {
		sections = append(sections, components.NewContributionCard(c, m.places).WithWidth(72).Render())
	}
	return strings.Join(sections, "\n")
}

func (m Model) renderHelp() string {
	return BorderStyle.Render(`Coverage previewer

Pick a patient and a service category, type the billed amount and press
enter. The charge is run through the patient's active policies in priority
order; nothing is recorded.

KEYS
  tab / shift+tab   move between patient, category and amount
  ↑/↓ (j/k)         change the selection
  enter             calculate
  esc               back to the charge form
  ?                 this help
  q / ctrl+c        quit`)
}
