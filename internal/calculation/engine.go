package calculation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicops/coverage/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/clinicops/coverage/internal/calculation"

// CoverageRequest asks for the coverage of one service charge. A nil AsOf
// means "now" according to the engine clock.
type CoverageRequest struct {
	PatientID         string
	ServiceCategoryID string
	BilledAmount      decimal.Decimal
	AsOf              *time.Time
}

// RecordRequest is a CoverageRequest that is persisted as an audit record.
// ServiceID defaults to the service category when empty.
type RecordRequest struct {
	CoverageRequest
	ServiceID    string
	CalculatedBy string
}

// CoverageEngine orchestrates policy resolution, tariff resolution, the
// waterfall and the audit record for one charge.
type CoverageEngine struct {
	Source     SnapshotSource
	Recorder   Recorder
	Resolver   *PolicyResolver
	Calculator *Calculator
	Clock      func() time.Time
	Logger     Logger

	tracer      trace.Tracer
	calculated  metric.Int64Counter
	configFails metric.Int64Counter
}

// NewCoverageEngine creates an engine reading from source. recorder may be nil
// when only previews are needed.
func NewCoverageEngine(source SnapshotSource, recorder Recorder) *CoverageEngine {
	meter := otel.Meter(instrumentationName)
	calculated, _ := meter.Int64Counter("coverage.calculations",
		metric.WithDescription("Coverage calculations by outcome"))
	configFails, _ := meter.Int64Counter("coverage.configuration_errors",
		metric.WithDescription("Calculations blocked by configuration errors"))

	return &CoverageEngine{
		Source:      source,
		Recorder:    recorder,
		Resolver:    NewPolicyResolver(),
		Calculator:  NewCalculator(DefaultCurrencyPlaces),
		Clock:       time.Now,
		Logger:      NopLogger{},
		tracer:      otel.Tracer(instrumentationName),
		calculated:  calculated,
		configFails: configFails,
	}
}

// SetLogger sets the logger; nil restores the no-op logger.
func (ce *CoverageEngine) SetLogger(logger Logger) {
	if logger == nil {
		ce.Logger = NopLogger{}
		return
	}
	ce.Logger = logger
}

// CalculateCoverage computes the coverage of one charge without recording it.
func (ce *CoverageEngine) CalculateCoverage(ctx context.Context, req CoverageRequest) (*domain.CoverageResult, error) {
	tracer := ce.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	ctx, span := tracer.Start(ctx, "coverage.calculate", trace.WithAttributes(
		attribute.String("patient.id", req.PatientID),
		attribute.String("service_category.id", req.ServiceCategoryID),
	))
	defer span.End()

	result, err := ce.calculate(ctx, req)
	if err != nil {
		ce.observeError(ctx, span, req, err)
		return nil, err
	}

	ce.count(ctx, "ok")
	span.SetAttributes(attribute.Int("coverage.policies", len(result.Contributions)))
	ce.loggerFor(ctx).Debugf("coverage for patient %s category %s: billed %s, covered %s, patient share %s",
		result.PatientID, result.ServiceCategoryID, result.BilledAmount.String(),
		result.TotalCoverage.String(), result.PatientShare.String())
	return result, nil
}

// CalculateAndRecord computes the coverage and appends an audit record.
func (ce *CoverageEngine) CalculateAndRecord(ctx context.Context, req RecordRequest) (*domain.CalculationRecord, error) {
	return ce.record(ctx, req, domain.None[string]())
}

// Recalculate computes a correction for a previously recorded calculation.
// The superseded record is left untouched; the new one references it.
func (ce *CoverageEngine) Recalculate(ctx context.Context, supersededID string, req RecordRequest) (*domain.CalculationRecord, error) {
	if ce.Recorder == nil {
		return nil, errors.New("no calculation recorder configured")
	}
	prior, err := ce.Recorder.Get(ctx, supersededID)
	if err != nil {
		return nil, err
	}
	if prior.PatientID != req.PatientID {
		return nil, &domain.ConflictError{Message: fmt.Sprintf(
			"record %s belongs to patient %s, not %s", supersededID, prior.PatientID, req.PatientID)}
	}
	return ce.record(ctx, req, domain.Some(supersededID))
}

func (ce *CoverageEngine) record(ctx context.Context, req RecordRequest, supersedes domain.Optional[string]) (*domain.CalculationRecord, error) {
	if ce.Recorder == nil {
		return nil, errors.New("no calculation recorder configured")
	}

	result, err := ce.CalculateCoverage(ctx, req.CoverageRequest)
	if err != nil {
		return nil, err
	}

	serviceID := req.ServiceID
	if serviceID == "" {
		serviceID = req.ServiceCategoryID
	}
	rec := domain.CalculationRecord{
		PatientID:         result.PatientID,
		PolicyIDs:         result.PolicyIDs(),
		ServiceID:         serviceID,
		ServiceCategoryID: result.ServiceCategoryID,
		CalculatedBy:      req.CalculatedBy,
		CalculatedAt:      ce.now().UTC(),
		SupersedesID:      supersedes,
		Result:            *result,
	}

	id, err := ce.Recorder.Record(ctx, rec)
	if err != nil {
		ce.loggerFor(ctx).Errorf("failed to record calculation for patient %s: %v", rec.PatientID, err)
		return nil, fmt.Errorf("failed to record calculation: %w", err)
	}
	rec.ID = id

	if prior, ok := supersedes.Get(); ok {
		ce.loggerFor(ctx).Infof("calculation %s supersedes %s", id, prior)
	}
	return &rec, nil
}

func (ce *CoverageEngine) calculate(ctx context.Context, req CoverageRequest) (*domain.CoverageResult, error) {
	if req.BilledAmount.IsNegative() {
		return nil, domain.NewConfigurationError("charge", "billed amount %s is negative", req.BilledAmount.String())
	}

	asOf := ce.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	snap, err := ce.Source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration snapshot: %w", err)
	}
	defer func() {
		if relErr := snap.Release(); relErr != nil {
			ce.loggerFor(ctx).Warnf("failed to release configuration snapshot: %v", relErr)
		}
	}()

	known, err := snap.ServiceCategoryExists(ctx, req.ServiceCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up service category %s: %w", req.ServiceCategoryID, err)
	}
	if !known {
		return nil, domain.NewInputError(domain.UnknownServiceCategory, req.ServiceCategoryID)
	}

	policies, err := ce.Resolver.ResolveActivePolicies(ctx, snap, req.PatientID, asOf)
	if err != nil {
		return nil, err
	}

	table, err := loadTariffTable(ctx, snap, policies)
	if err != nil {
		return nil, err
	}

	charge := domain.ChargeContext{
		PatientID:         req.PatientID,
		ServiceCategoryID: req.ServiceCategoryID,
		BilledAmount:      req.BilledAmount,
		AsOf:              asOf,
	}
	return ce.Calculator.Calculate(charge, policies, NewTariffResolver(table).ResolveTariff)
}

// loadTariffTable reads the overrides of every plan in the stack, once per plan.
func loadTariffTable(ctx context.Context, snap Snapshot, policies []domain.InsurancePolicy) (*TariffTable, error) {
	seen := make(map[string]bool, len(policies))
	var overrides []domain.ServiceTariffOverride
	for _, p := range policies {
		if seen[p.PlanID] {
			continue
		}
		seen[p.PlanID] = true

		planOverrides, err := snap.PlanTariffs(ctx, p.PlanID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tariffs for plan %s: %w", p.PlanID, err)
		}
		overrides = append(overrides, planOverrides...)
	}
	return NewTariffTable(overrides)
}

func (ce *CoverageEngine) observeError(ctx context.Context, span trace.Span, req CoverageRequest, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log := ce.loggerFor(ctx)

	switch {
	case domain.IsConfigurationError(err):
		ce.count(ctx, "configuration_error")
		if ce.configFails != nil {
			ce.configFails.Add(ctx, 1)
		}
		log.Warnf("charge for patient %s category %s blocked for administrator review: %v",
			req.PatientID, req.ServiceCategoryID, err)
	case domain.IsInputError(err):
		ce.count(ctx, "input_error")
		log.Infof("rejected coverage request: %v", err)
	default:
		ce.count(ctx, "error")
		log.Errorf("coverage calculation failed for patient %s: %v", req.PatientID, err)
	}
}

func (ce *CoverageEngine) now() time.Time {
	if ce.Clock == nil {
		return time.Now()
	}
	return ce.Clock()
}

func (ce *CoverageEngine) count(ctx context.Context, outcome string) {
	if ce.calculated == nil {
		return
	}
	ce.calculated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
