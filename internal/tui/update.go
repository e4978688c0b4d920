package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/clinicops/coverage/internal/calculation"
)

// Update handles all messages and updates the model state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case NavigateMsg:
		m.previousScene = m.scene
		m.scene = msg.Scene
		return m, nil

	case ErrorMsg:
		m.loading = false
		m.err = msg.Err
		return m, nil

	case DatasetLoadedMsg:
		m.loading = false
		m.dataset = msg.Dataset
		m.engine = msg.Engine
		m.patientIndex, m.categoryIndex = 0, 0
		return m, nil

	case CalculationCompleteMsg:
		m.loading = false
		m.request = msg.Request
		m.result = msg.Result
		m.calcErr = msg.Err
		m.previousScene = m.scene
		m.scene = SceneResult
		return m, nil
	}

	if m.focus == FieldAmount {
		var cmd tea.Cmd
		m.amountInput, cmd = m.amountInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKeyPress processes keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.err != nil || m.loading {
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch m.scene {
	case SceneResult, SceneHelp:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc", "enter", "backspace":
			return m, navigate(SceneCharge)
		case "?":
			return m, navigate(SceneHelp)
		}
		return m, nil
	}

	typing := m.focus == FieldAmount
	switch msg.String() {
	case "tab":
		return m.setFocus((m.focus + 1) % fieldCount)
	case "shift+tab":
		return m.setFocus((m.focus + fieldCount - 1) % fieldCount)
	case "enter":
		return m.submit()
	case "up", "down":
		m.move(msg.String() == "down")
		return m, nil
	case "k", "j":
		if !typing {
			m.move(msg.String() == "j")
			return m, nil
		}
	case "q":
		if !typing {
			return m, tea.Quit
		}
	case "?":
		if !typing {
			return m, navigate(SceneHelp)
		}
	}

	if typing {
		var cmd tea.Cmd
		m.amountInput, cmd = m.amountInput.Update(msg)
		m.formErr = ""
		return m, cmd
	}
	return m, nil
}

func (m Model) setFocus(f Field) (tea.Model, tea.Cmd) {
	m.focus = f
	if f == FieldAmount {
		return m, m.amountInput.Focus()
	}
	m.amountInput.Blur()
	return m, nil
}

// move changes the selection of the focused list.
func (m *Model) move(down bool) {
	if m.dataset == nil {
		return
	}
	step := -1
	if down {
		step = 1
	}
	switch m.focus {
	case FieldPatient:
		m.patientIndex = clamp(m.patientIndex+step, len(m.dataset.Patients))
	case FieldCategory:
		m.categoryIndex = clamp(m.categoryIndex+step, len(m.dataset.ServiceCategories))
	}
}

// submit validates the form and starts a preview.
func (m Model) submit() (tea.Model, tea.Cmd) {
	patient, ok := m.selectedPatient()
	if !ok {
		m.formErr = "the dataset has no patients"
		return m, nil
	}
	category, ok := m.selectedCategory()
	if !ok {
		m.formErr = "the dataset has no service categories"
		return m, nil
	}

	raw := strings.ReplaceAll(strings.TrimSpace(m.amountInput.Value()), ",", "")
	if raw == "" {
		m.formErr = "enter the billed amount"
		return m.setFocus(FieldAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		m.formErr = fmt.Sprintf("%q is not an amount", m.amountInput.Value())
		return m.setFocus(FieldAmount)
	}

	m.formErr = ""
	m.loading = true
	req := calculation.CoverageRequest{
		PatientID:         patient.ID,
		ServiceCategoryID: category.ID,
		BilledAmount:      amount,
		AsOf:              m.asOf,
	}
	return m, calculateCmd(m.engine, req)
}

func navigate(scene Scene) tea.Cmd {
	return func() tea.Msg {
		return NavigateMsg{Scene: scene}
	}
}

func clamp(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
