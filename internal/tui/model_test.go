package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/coverage/internal/domain"
)

const clinicDataset = "../config/testdata/clinic.yaml"

func loadedModel(t *testing.T) Model {
	t.Helper()
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewModel(clinicDataset, 0, &asOf)

	msg := m.Init()()
	loaded, ok := msg.(DatasetLoadedMsg)
	require.True(t, ok, "unexpected message %T", msg)

	next, _ := m.Update(loaded)
	return next.(Model)
}

func send(t *testing.T, m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_LoadDataset(t *testing.T) {
	m := loadedModel(t)
	assert.False(t, m.loading)
	require.NotNil(t, m.dataset)
	assert.Len(t, m.dataset.Patients, 2)

	view := m.View()
	assert.Contains(t, view, "pat-1001")
	assert.Contains(t, view, "pol-nhis-1001")
	assert.Contains(t, view, "cap 150,000")
}

func TestModel_LoadMissingDataset(t *testing.T) {
	m := NewModel("missing.yaml", 0, nil)
	m, _ = send(t, m, m.Init()())
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "Error:")
}

func TestModel_Navigation(t *testing.T) {
	m := loadedModel(t)

	m, _ = send(t, m, key(tea.KeyDown), key(tea.KeyDown), key(tea.KeyDown))
	assert.Equal(t, 1, m.patientIndex, "selection stops at the last patient")
	assert.Contains(t, m.View(), "No policies on file")

	m, _ = send(t, m, key(tea.KeyUp), key(tea.KeyTab), runes("j"))
	assert.Equal(t, 0, m.patientIndex)
	assert.Equal(t, FieldCategory, m.focus)
	assert.Equal(t, 1, m.categoryIndex)

	m, _ = send(t, m, key(tea.KeyShiftTab), key(tea.KeyShiftTab))
	assert.Equal(t, FieldAmount, m.focus)
}

func TestModel_Preview(t *testing.T) {
	m := loadedModel(t)

	// Patient pat-1001, category lab, amount 1,000,000.
	m, _ = send(t, m, key(tea.KeyTab), runes("j"), key(tea.KeyTab), runes("1,000,000"))
	assert.Equal(t, "1,000,000", m.amountInput.Value())

	m, cmd := send(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.True(t, m.loading)

	done, ok := cmd().(CalculationCompleteMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)
	assert.Equal(t, "lab", done.Request.ServiceCategoryID)

	m, _ = send(t, m, done)
	assert.Equal(t, SceneResult, m.scene)
	view := m.View()
	assert.Contains(t, view, "960,000")
	assert.Contains(t, view, "40,000")
	assert.Contains(t, view, "capped at maximum payout")

	m, cmd = send(t, m, key(tea.KeyEsc))
	m, _ = send(t, m, cmd())
	assert.Equal(t, SceneCharge, m.scene)
}

func TestModel_InvalidAmount(t *testing.T) {
	tests := []struct {
		name    string
		typed   string
		wantErr string
	}{
		{"empty", "", "enter the billed amount"},
		{"not a number", "12abc", "is not an amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadedModel(t)
			m, _ = send(t, m, key(tea.KeyShiftTab))
			if tt.typed != "" {
				m, _ = send(t, m, runes(tt.typed))
			}
			m, _ = send(t, m, key(tea.KeyEnter))
			assert.False(t, m.loading)
			assert.Contains(t, m.formErr, tt.wantErr)
			assert.Equal(t, FieldAmount, m.focus)
		})
	}
}

func TestModel_BlockedCharge(t *testing.T) {
	m := loadedModel(t)
	m, _ = send(t, m, CalculationCompleteMsg{
		Err: domain.NewConfigurationError("policy pol-1", "coverage percent 120 is outside [0, 100]"),
	})
	view := m.View()
	assert.Contains(t, view, "Blocked")
	assert.Contains(t, view, "administrator review")

	m, _ = send(t, m, CalculationCompleteMsg{Err: errors.New("storage unavailable")})
	assert.NotContains(t, m.View(), "administrator review")
}

func TestModel_Quit(t *testing.T) {
	m := loadedModel(t)

	_, cmd := send(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	// While typing the amount, q is text.
	m, _ = send(t, m, key(tea.KeyShiftTab))
	m, _ = send(t, m, runes("q"))
	assert.Equal(t, "q", m.amountInput.Value())
}
