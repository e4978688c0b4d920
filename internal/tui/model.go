// Package tui is an interactive coverage previewer: pick a patient, a service
// category and an amount, and see how the charge would be split.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/config"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/clinicops/coverage/internal/store"
)

// Model represents the entire application state
type Model struct {
	scene         Scene
	previousScene Scene

	width  int
	height int

	datasetPath string
	places      int32
	asOf        *time.Time

	dataset *domain.Dataset
	engine  *calculation.CoverageEngine

	// Charge form
	focus         Field
	patientIndex  int
	categoryIndex int
	amountInput   textinput.Model
	formErr       string

	// Last preview
	request calculation.CoverageRequest
	result  *domain.CoverageResult
	calcErr error

	err     error
	loading bool
}

// NewModel creates a previewer for the dataset at path. A nil asOf previews
// charges dated today.
func NewModel(datasetPath string, places int32, asOf *time.Time) Model {
	ti := textinput.New()
	ti.Placeholder = "e.g. 250000"
	ti.CharLimit = 18
	ti.Width = 20

	return Model{
		scene:       SceneCharge,
		datasetPath: datasetPath,
		places:      places,
		asOf:        asOf,
		amountInput: ti,
		loading:     true,
		width:       100,
		height:      30,
	}
}

// Init initializes the model (required by tea.Model interface)
func (m Model) Init() tea.Cmd {
	return loadDatasetCmd(m.datasetPath, m.places)
}

// loadDatasetCmd loads the dataset into an in-memory store and builds a
// preview-only engine on it.
func loadDatasetCmd(path string, places int32) tea.Cmd {
	return func() tea.Msg {
		ds, err := config.NewInputParser().LoadFromFile(path)
		if err != nil {
			return ErrorMsg{Err: err}
		}

		engine := calculation.NewCoverageEngine(store.NewMemoryStore(ds), nil)
		engine.Calculator = calculation.NewCalculator(places)
		return DatasetLoadedMsg{Dataset: ds, Engine: engine}
	}
}

// calculateCmd previews req without recording it.
func calculateCmd(engine *calculation.CoverageEngine, req calculation.CoverageRequest) tea.Cmd {
	return func() tea.Msg {
		result, err := engine.CalculateCoverage(context.Background(), req)
		return CalculationCompleteMsg{Request: req, Result: result, Err: err}
	}
}

func (m Model) selectedPatient() (domain.Patient, bool) {
	if m.dataset == nil || m.patientIndex >= len(m.dataset.Patients) {
		return domain.Patient{}, false
	}
	return m.dataset.Patients[m.patientIndex], true
}

func (m Model) selectedCategory() (domain.ServiceCategory, bool) {
	if m.dataset == nil || m.categoryIndex >= len(m.dataset.ServiceCategories) {
		return domain.ServiceCategory{}, false
	}
	return m.dataset.ServiceCategories[m.categoryIndex], true
}

// patientPolicies lists the dataset's policies for the selected patient in
// file order, active or not.
func (m Model) patientPolicies() []domain.InsurancePolicy {
	patient, ok := m.selectedPatient()
	if !ok {
		return nil
	}
	var policies []domain.InsurancePolicy
	for _, p := range m.dataset.Policies {
		if p.PatientID == patient.ID {
			policies = append(policies, p)
		}
	}
	return policies
}
