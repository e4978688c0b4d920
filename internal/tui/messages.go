package tui

import (
	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
)

// Scene is a screen of the previewer.
type Scene int

const (
	SceneCharge Scene = iota
	SceneResult
	SceneHelp
)

func (s Scene) String() string {
	switch s {
	case SceneCharge:
		return "Charge"
	case SceneResult:
		return "Result"
	case SceneHelp:
		return "Help"
	default:
		return "Unknown"
	}
}

// Field is the focused part of the charge form.
type Field int

const (
	FieldPatient Field = iota
	FieldCategory
	FieldAmount
	fieldCount
)

// NavigateMsg switches to a different scene.
type NavigateMsg struct {
	Scene Scene
}

// ErrorMsg displays an error that is not tied to a calculation.
type ErrorMsg struct {
	Err error
}

// DatasetLoadedMsg carries the dataset and the engine built on it.
type DatasetLoadedMsg struct {
	Dataset *domain.Dataset
	Engine  *calculation.CoverageEngine
}

// CalculationCompleteMsg carries a preview result or the error that blocked it.
type CalculationCompleteMsg struct {
	Request calculation.CoverageRequest
	Result  *domain.CoverageResult
	Err     error
}
