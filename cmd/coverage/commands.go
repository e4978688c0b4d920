package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/compare"
	"github.com/clinicops/coverage/internal/config"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/clinicops/coverage/internal/output"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Preview the coverage of one service charge",
	Long:  "Runs the coverage waterfall for a charge without recording it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := chargeFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runCalculate(ctx, a, req, flagString(cmd, "format"), cmd.OutOrStdout())
		})
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Calculate a charge and append it to the calculation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := recordFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runRecord(ctx, a, req, "", flagString(cmd, "format"), cmd.OutOrStdout())
		})
	},
}

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Recalculate a recorded charge as a superseding record",
	Long: `Recalculates a charge against the current configuration and appends the
result as a new record that supersedes an earlier one. The earlier record is
never changed, and each record can be superseded only once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prior := flagString(cmd, "supersedes")
		if prior == "" {
			return usageError("--supersedes is required")
		}
		req, err := recordFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runRecord(ctx, a, req, prior, flagString(cmd, "format"), cmd.OutOrStdout())
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the recorded calculations of a patient",
	RunE: func(cmd *cobra.Command, args []string) error {
		patient := flagString(cmd, "patient")
		if patient == "" {
			return usageError("--patient is required")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runHistory(ctx, a, patient, flagString(cmd, "format"), cmd.OutOrStdout())
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [dataset-file]",
	Short: "Validate a dataset and audit its policies and tariffs",
	Long: `Checks the structure of a dataset file, then resolves every active policy
and tariff the way a calculation would. Anything that would block a charge is
listed for administrator review.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := settings.GetString("dataset")
		if len(args) == 1 {
			file = args[0]
		}
		if file == "" {
			return usageError("a dataset file is required")
		}
		asOf, err := parseDate(flagString(cmd, "as-of"))
		if err != nil {
			return err
		}
		if asOf == nil {
			now := time.Now().UTC()
			asOf = &now
		}
		return runValidate(file, *asOf, cmd.OutOrStdout())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runMigrate(ctx, a, flagString(cmd, "seed"), cmd.OutOrStdout())
		})
	},
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runCalculate(ctx context.Context, a *app, req calculation.CoverageRequest, format string, w io.Writer) error {
	formatter, err := formatterFor(format, a.settings.CurrencyPlaces)
	if err != nil {
		return err
	}
	result, err := a.engine.CalculateCoverage(ctx, req)
	if err != nil {
		return err
	}
	return write(w)(formatter.FormatResult(result))
}

func runRecord(ctx context.Context, a *app, req calculation.RecordRequest, supersedes, format string, w io.Writer) error {
	formatter, err := formatterFor(format, a.settings.CurrencyPlaces)
	if err != nil {
		return err
	}

	var rec *domain.CalculationRecord
	if supersedes == "" {
		rec, err = a.engine.CalculateAndRecord(ctx, req)
	} else {
		rec, err = a.engine.Recalculate(ctx, supersedes, req)
	}
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("record_id", rec.ID).
		Str("patient_id", rec.PatientID).
		Str("calculated_by", rec.CalculatedBy).
		Str("supersedes", supersedes).
		Msg("calculation recorded")

	if err := write(w)(formatter.FormatRecords([]domain.CalculationRecord{*rec})); err != nil {
		return err
	}
	if supersedes == "" || formatter.Name() != "console" {
		return nil
	}

	prior, err := a.history.Get(ctx, supersedes)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, "\n"+compare.TableFormatter{Places: a.settings.CurrencyPlaces}.Format(compare.Records(prior, rec)))
	return err
}

func runHistory(ctx context.Context, a *app, patientID, format string, w io.Writer) error {
	formatter, err := formatterFor(format, a.settings.CurrencyPlaces)
	if err != nil {
		return err
	}
	records, err := a.history.ListByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	return write(w)(formatter.FormatRecords(records))
}

func runValidate(file string, asOf time.Time, w io.Writer) error {
	ds, err := config.NewInputParser().LoadFromFile(file)
	if err != nil {
		return err
	}

	findings := config.AuditDataset(ds, asOf)
	if len(findings) == 0 {
		fmt.Fprintf(w, "%s: %d patients, %d policies, %d tariff overrides; no problems found as of %s\n",
			file, len(ds.Patients), len(ds.Policies), len(ds.TariffOverrides), asOf.Format(dateLayout))
		return nil
	}

	fmt.Fprintf(w, "%s: %d problem(s) found as of %s\n", file, len(findings), asOf.Format(dateLayout))
	for _, f := range findings {
		fmt.Fprintf(w, "  - %s\n", f.Error())
	}
	return findings[0]
}

func runMigrate(ctx context.Context, a *app, seed string, w io.Writer) error {
	if err := requireBackend(a, config.BackendPostgres); err != nil {
		return err
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "schema up to date")

	if seed == "" {
		return nil
	}
	ds, err := config.NewInputParser().LoadFromFile(seed)
	if err != nil {
		return err
	}
	plans, err := a.pg.ImportDataset(ctx, ds)
	if err != nil {
		return err
	}
	if a.cache != nil {
		if err := a.cache.InvalidatePlan(ctx, plans...); err != nil {
			a.logger.Warn().Err(err).Strs("plans", plans).Msg("tariff cache invalidation failed")
		}
	}
	fmt.Fprintf(w, "imported %d patients, %d policies, %d tariff overrides\n",
		len(ds.Patients), len(ds.Policies), len(ds.TariffOverrides))
	return nil
}

func chargeFromFlags(cmd *cobra.Command) (calculation.CoverageRequest, error) {
	req := calculation.CoverageRequest{
		PatientID:         strings.TrimSpace(flagString(cmd, "patient")),
		ServiceCategoryID: strings.TrimSpace(flagString(cmd, "category")),
	}
	if req.PatientID == "" || req.ServiceCategoryID == "" {
		return req, usageError("--patient and --category are required")
	}

	amount := strings.TrimSpace(flagString(cmd, "amount"))
	if amount == "" {
		return req, usageError("--amount is required")
	}
	billed, err := decimal.NewFromString(amount)
	if err != nil {
		return req, usageError(fmt.Sprintf("invalid amount %q", amount))
	}
	req.BilledAmount = billed

	asOf, err := parseDate(flagString(cmd, "as-of"))
	if err != nil {
		return req, err
	}
	req.AsOf = asOf
	return req, nil
}

func recordFromFlags(cmd *cobra.Command) (calculation.RecordRequest, error) {
	charge, err := chargeFromFlags(cmd)
	if err != nil {
		return calculation.RecordRequest{}, err
	}
	user := strings.TrimSpace(flagString(cmd, "user"))
	if user == "" {
		return calculation.RecordRequest{}, usageError("--user is required")
	}
	return calculation.RecordRequest{
		CoverageRequest: charge,
		ServiceID:       strings.TrimSpace(flagString(cmd, "service")),
		CalculatedBy:    user,
	}, nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, usageError(fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", value))
	}
	return &t, nil
}

func formatterFor(name string, places int32) (output.Formatter, error) {
	formatter := output.GetFormatterByName(name, places)
	if formatter == nil {
		return nil, usageError(fmt.Sprintf("unknown format %q (want %s)", name, strings.Join(output.FormatterNames, ", ")))
	}
	return formatter, nil
}

// write returns a sink for a formatter's (data, err) pair.
func write(w io.Writer) func([]byte, error) error {
	return func(data []byte, err error) error {
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
