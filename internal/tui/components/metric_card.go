package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/clinicops/coverage/internal/tui/tuistyles"
)

// MetricCard displays a single amount with a label.
type MetricCard struct {
	Label       string
	Value       string
	Description string
	Style       lipgloss.Style
	Width       int
}

// NewMetricCard creates a metric card.
func NewMetricCard(label, value string) *MetricCard {
	return &MetricCard{
		Label: label,
		Value: value,
		Style: lipgloss.NewStyle().Bold(true),
		Width: 24,
	}
}

// WithStyle sets the value style.
func (m *MetricCard) WithStyle(style lipgloss.Style) *MetricCard {
	m.Style = style.Bold(true)
	return m
}

// WithDescription adds a subtitle.
func (m *MetricCard) WithDescription(desc string) *MetricCard {
	m.Description = desc
	return m
}

// WithWidth sets the card width
func (m *MetricCard) WithWidth(width int) *MetricCard {
	m.Width = width
	return m
}

func (m *MetricCard) Render() string {
	content := tuistyles.SubtitleStyle.Render(m.Label) + "\n" + m.Style.Render(m.Value)
	if m.Description != "" {
		content += "\n" + tuistyles.SubtitleStyle.Render(m.Description)
	}
	return tuistyles.BorderStyle.Width(m.Width).Render(content)
}

// MetricRow renders cards side by side.
func MetricRow(cards ...*MetricCard) string {
	rendered := make([]string, 0, len(cards))
	for _, card := range cards {
		rendered = append(rendered, card.Render())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
