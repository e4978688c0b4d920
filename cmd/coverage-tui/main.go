package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/clinicops/coverage/internal/tui"
)

var (
	currencyPlaces int32
	asOfFlag       string
)

var rootCmd = &cobra.Command{
	Use:   "coverage-tui <dataset-file>",
	Short: "Interactive coverage previewer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetPath := args[0]
		if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
			return fmt.Errorf("dataset not found: %s", datasetPath)
		}

		var asOf *time.Time
		if asOfFlag != "" {
			t, err := time.Parse("2006-01-02", asOfFlag)
			if err != nil {
				return fmt.Errorf("invalid --as-of %q (want YYYY-MM-DD)", asOfFlag)
			}
			asOf = &t
		}

		p := tea.NewProgram(tui.NewModel(datasetPath, currencyPlaces, asOf), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().Int32Var(&currencyPlaces, "currency-places", 0, "Decimal places of the currency's smallest unit")
	rootCmd.Flags().StringVar(&asOfFlag, "as-of", "", "Preview charges dated YYYY-MM-DD (default today)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
