package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
	"gopkg.in/yaml.v3"
)

// InputParser handles parsing of coverage dataset files
type InputParser struct{}

// NewInputParser creates a new input parser
func NewInputParser() *InputParser {
	return &InputParser{}
}

// LoadFromFile loads a dataset from a YAML (or JSON) file
func (ip *InputParser) LoadFromFile(filename string) (*domain.Dataset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.Parse(data)
}

// Parse decodes and structurally validates a dataset.
func (ip *InputParser) Parse(data []byte) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ip.ValidateDataset(&ds); err != nil {
		return nil, fmt.Errorf("dataset validation failed: %w", err)
	}
	return &ds, nil
}

// ValidateDataset checks identifiers and references. Tariff values are not
// checked here: an out-of-range percentage blocks only the charges it
// touches, and is reported by AuditDataset.
func (ip *InputParser) ValidateDataset(ds *domain.Dataset) error {
	patients := make(map[string]bool, len(ds.Patients))
	for i, p := range ds.Patients {
		if p.ID == "" {
			return fmt.Errorf("patient %d: id is required", i)
		}
		if patients[p.ID] {
			return fmt.Errorf("patient %s is defined more than once", p.ID)
		}
		patients[p.ID] = true
	}

	categories := make(map[string]bool, len(ds.ServiceCategories))
	for i, c := range ds.ServiceCategories {
		if c.ID == "" {
			return fmt.Errorf("service category %d: id is required", i)
		}
		if categories[c.ID] {
			return fmt.Errorf("service category %s is defined more than once", c.ID)
		}
		categories[c.ID] = true
	}

	policies := make(map[string]bool, len(ds.Policies))
	for i, p := range ds.Policies {
		if err := ip.validatePolicy(&p, patients); err != nil {
			return fmt.Errorf("policy %d (%s) validation failed: %w", i, p.ID, err)
		}
		if policies[p.ID] {
			return fmt.Errorf("policy %s is defined more than once", p.ID)
		}
		policies[p.ID] = true
	}

	for i, o := range ds.TariffOverrides {
		if o.PlanID == "" {
			return fmt.Errorf("tariff override %d: plan id is required", i)
		}
		if !categories[o.ServiceCategoryID] {
			return fmt.Errorf("tariff override %d (plan %s): unknown service category %q", i, o.PlanID, o.ServiceCategoryID)
		}
	}
	if _, err := calculation.NewTariffTable(ds.TariffOverrides); err != nil {
		return err
	}

	return nil
}

// validatePolicy validates a single policy's identity and dates
func (ip *InputParser) validatePolicy(p *domain.InsurancePolicy, patients map[string]bool) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.PlanID == "" {
		return fmt.Errorf("plan id is required")
	}
	if !patients[p.PatientID] {
		return fmt.Errorf("unknown patient %q", p.PatientID)
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	if end, ok := p.EndDate.Get(); ok && end.Before(p.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), p.StartDate.Format("2006-01-02"))
	}
	return nil
}

// AuditDataset runs every check the calculator would run, for every patient
// and service category on the given day, and returns each configuration
// problem once. An empty result means no charge on that day can be blocked.
func AuditDataset(ds *domain.Dataset, asOf time.Time) []*domain.ConfigurationError {
	byPatient := make(map[string][]domain.InsurancePolicy)
	for _, p := range ds.Policies {
		byPatient[p.PatientID] = append(byPatient[p.PatientID], p)
	}

	var findings []*domain.ConfigurationError
	seen := make(map[string]bool)
	report := func(err error) {
		cfgErr, ok := err.(*domain.ConfigurationError)
		if !ok {
			cfgErr = domain.NewConfigurationError("dataset", "%v", err)
		}
		if key := cfgErr.Error(); !seen[key] {
			seen[key] = true
			findings = append(findings, cfgErr)
		}
	}

	table, err := calculation.NewTariffTable(ds.TariffOverrides)
	if err != nil {
		report(err)
		return findings
	}
	resolver := calculation.NewTariffResolver(table)

	patientIDs := make([]string, 0, len(byPatient))
	for id := range byPatient {
		patientIDs = append(patientIDs, id)
	}
	sort.Strings(patientIDs)

	for _, patientID := range patientIDs {
		active, err := calculation.OrderActivePolicies(byPatient[patientID], asOf)
		if err != nil {
			report(err)
			continue
		}
		for _, policy := range active {
			for _, category := range ds.ServiceCategories {
				if _, err := resolver.ResolveTariff(policy, category.ID); err != nil {
					report(err)
				}
			}
		}
	}
	return findings
}
