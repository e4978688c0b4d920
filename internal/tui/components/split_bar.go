package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/clinicops/coverage/internal/tui/tuistyles"
	"github.com/shopspring/decimal"
)

var segmentColors = []lipgloss.Color{"#04B575", "#00ADD8", "#F2C94C", "#BB6BD9"}

// SplitBar draws the billed amount as one bar divided between the paying
// policies and the patient.
type SplitBar struct {
	Result *domain.CoverageResult
	Width  int
}

// NewSplitBar creates a split bar for result.
func NewSplitBar(result *domain.CoverageResult) *SplitBar {
	return &SplitBar{Result: result, Width: 50}
}

// WithWidth sets the bar width
func (b *SplitBar) WithWidth(width int) *SplitBar {
	b.Width = width
	return b
}

// Segments returns the cell count of each paying policy followed by the
// patient's. The counts always add up to Width.
func (b *SplitBar) Segments() []int {
	if b.Result == nil || b.Width <= 0 {
		return nil
	}
	cells := make([]int, 0, len(b.Result.Contributions)+1)
	if !b.Result.BilledAmount.IsPositive() {
		cells = make([]int, len(b.Result.Contributions))
		return append(cells, b.Width)
	}

	width := decimal.NewFromInt(int64(b.Width))
	used := 0
	for _, c := range b.Result.Contributions {
		n := int(c.EffectiveCoverage.Mul(width).Div(b.Result.BilledAmount).Floor().IntPart())
		cells = append(cells, n)
		used += n
	}
	return append(cells, b.Width-used)
}

func (b *SplitBar) Render() string {
	segments := b.Segments()
	if len(segments) == 0 {
		return ""
	}

	var bar strings.Builder
	for i, n := range segments[:len(segments)-1] {
		if n == 0 {
			continue
		}
		color := segmentColors[i%len(segmentColors)]
		bar.WriteString(lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", n)))
	}
	if patient := segments[len(segments)-1]; patient > 0 {
		bar.WriteString(tuistyles.ShareStyle(false).Render(strings.Repeat("░", patient)))
	}

	var legend []string
	for i, c := range b.Result.Contributions {
		if segments[i] == 0 {
			continue
		}
		color := segmentColors[i%len(segmentColors)]
		legend = append(legend, lipgloss.NewStyle().Foreground(color).Render("█")+" "+c.PolicyID)
	}
	legend = append(legend, tuistyles.ShareStyle(false).Render("░")+" patient")

	return bar.String() + "\n" + tuistyles.SubtitleStyle.Render(strings.Join(legend, "  "))
}
