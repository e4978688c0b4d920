package tui

import "github.com/clinicops/coverage/internal/tui/tuistyles"

// Re-export styles from tuistyles to avoid import cycles
var (
	ColorMuted = tuistyles.ColorMuted

	TitleStyle          = tuistyles.TitleStyle
	SubtitleStyle       = tuistyles.SubtitleStyle
	StatusBarStyle      = tuistyles.StatusBarStyle
	StatusKeyStyle      = tuistyles.StatusKeyStyle
	BorderStyle         = tuistyles.BorderStyle
	ActiveBorderStyle   = tuistyles.ActiveBorderStyle
	SelectedItemStyle   = tuistyles.SelectedItemStyle
	UnselectedItemStyle = tuistyles.UnselectedItemStyle
	ErrorStyle          = tuistyles.ErrorStyle
)
