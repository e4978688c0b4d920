package main

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"

	"github.com/clinicops/coverage/internal/config"
	"github.com/clinicops/coverage/internal/output"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	settings     = config.NewViper()
	settingsFile string
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coverage %s (commit %s, built %s)\n", version, commit, date)
			if info := buildInfo(); info != "" {
				fmt.Fprintln(cmd.OutOrStdout(), info)
			}
		},
	}
}

func buildInfo() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		return bi.Main.Path + " " + bi.GoVersion
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Insurance coverage calculator",
	Long: `Splits a billed service charge between a patient's insurance policies and
the patient. Policies are applied in priority order, each against the balance
the previous ones left unpaid. Configuration problems block the charge and are
flagged for administrator review.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsFile, "config", "", "Settings file (YAML); environment variables use the COVERAGE_ prefix")
	pf.String("backend", config.BackendMemory, "Storage backend (memory, postgres)")
	pf.String("dataset", "", "Dataset file for the memory backend")
	pf.String("database-url", "", "PostgreSQL connection URL")
	pf.String("redis-addr", "", "Redis address for the tariff cache (disabled when empty)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("env", "production", "Environment; development switches to console logging")
	pf.Int32("currency-places", 0, "Decimal places of the currency's smallest unit")

	for key, flag := range map[string]string{
		"backend":         "backend",
		"dataset":         "dataset",
		"database_url":    "database-url",
		"redis_addr":      "redis-addr",
		"log_level":       "log-level",
		"env":             "env",
		"currency_places": "currency-places",
	} {
		if err := settings.BindPFlag(key, pf.Lookup(flag)); err != nil {
			log.Fatalf("failed to bind flag %s: %v", flag, err)
		}
	}

	formats := fmt.Sprintf("Output format (%s)", strings.Join(output.FormatterNames, ", "))
	for _, cmd := range []*cobra.Command{calculateCmd, recordCmd, correctCmd, historyCmd} {
		cmd.Flags().StringP("format", "f", "console", formats)
	}
	for _, cmd := range []*cobra.Command{calculateCmd, recordCmd, correctCmd} {
		addChargeFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{recordCmd, correctCmd} {
		cmd.Flags().String("service", "", "Billed service id (defaults to the category)")
		cmd.Flags().String("user", "", "User recording the calculation (required)")
	}
	correctCmd.Flags().String("supersedes", "", "Id of the record being corrected (required)")
	historyCmd.Flags().String("patient", "", "Patient id (required)")
	validateCmd.Flags().String("as-of", "", "Audit policies valid on this day (YYYY-MM-DD, default today)")
	migrateCmd.Flags().String("seed", "", "Dataset file to import after migrating")

	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())
}

func addChargeFlags(cmd *cobra.Command) {
	cmd.Flags().String("patient", "", "Patient id (required)")
	cmd.Flags().String("category", "", "Service category id (required)")
	cmd.Flags().String("amount", "", "Billed amount, e.g. 1000000 or 1250.50 (required)")
	cmd.Flags().String("as-of", "", "Date of service (YYYY-MM-DD, default today)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}
