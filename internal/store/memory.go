// Package store provides the snapshot sources and calculation recorders the
// coverage engine runs against: an in-memory store loaded from a YAML
// dataset, and a Redis-backed tariff cache that wraps any other source.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps policy configuration and calculation records in memory.
// Snapshots are deep copies taken under a read lock, so writers never affect
// a calculation already in progress.
type MemoryStore struct {
	mu         sync.RWMutex
	patients   map[string]domain.Patient
	categories map[string]domain.ServiceCategory
	policies   map[string][]domain.InsurancePolicy       // by patient
	tariffs    map[string][]domain.ServiceTariffOverride // by plan

	records    []domain.CalculationRecord
	recordIdx  map[string]int
	supersedBy map[string]string // superseded id -> correcting id

	NewID func() string
}

// NewMemoryStore creates a store seeded with ds; ds may be nil.
func NewMemoryStore(ds *domain.Dataset) *MemoryStore {
	s := &MemoryStore{
		patients:   make(map[string]domain.Patient),
		categories: make(map[string]domain.ServiceCategory),
		policies:   make(map[string][]domain.InsurancePolicy),
		tariffs:    make(map[string][]domain.ServiceTariffOverride),
		recordIdx:  make(map[string]int),
		supersedBy: make(map[string]string),
		NewID:      uuid.NewString,
	}
	if ds == nil {
		return s
	}
	for _, p := range ds.Patients {
		s.patients[p.ID] = p
	}
	for _, c := range ds.ServiceCategories {
		s.categories[c.ID] = c
	}
	for _, p := range ds.Policies {
		s.policies[p.PatientID] = append(s.policies[p.PatientID], p)
	}
	for _, o := range ds.TariffOverrides {
		s.tariffs[o.PlanID] = append(s.tariffs[o.PlanID], o)
	}
	return s
}

// Snapshot implements calculation.SnapshotSource.
func (s *MemoryStore) Snapshot(ctx context.Context) (calculation.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &memorySnapshot{
		patients:   make(map[string]bool, len(s.patients)),
		categories: make(map[string]bool, len(s.categories)),
		policies:   make(map[string][]domain.InsurancePolicy, len(s.policies)),
		tariffs:    make(map[string][]domain.ServiceTariffOverride, len(s.tariffs)),
	}
	for id := range s.patients {
		snap.patients[id] = true
	}
	for id := range s.categories {
		snap.categories[id] = true
	}
	for id, list := range s.policies {
		snap.policies[id] = append([]domain.InsurancePolicy(nil), list...)
	}
	for id, list := range s.tariffs {
		snap.tariffs[id] = append([]domain.ServiceTariffOverride(nil), list...)
	}
	return snap, nil
}

// Record implements calculation.Recorder.
func (s *MemoryStore) Record(ctx context.Context, rec domain.CalculationRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.NewID()
	}
	if _, exists := s.recordIdx[rec.ID]; exists {
		return "", &domain.ConflictError{Message: "calculation record " + rec.ID + " already exists"}
	}
	if prior, ok := rec.SupersedesID.Get(); ok {
		if _, exists := s.recordIdx[prior]; !exists {
			return "", domain.NewInputError(domain.UnknownRecord, prior)
		}
		if by, done := s.supersedBy[prior]; done {
			return "", &domain.ConflictError{Message: "calculation record " + prior + " is already superseded by " + by}
		}
		s.supersedBy[prior] = rec.ID
	}

	rec.PolicyIDs = append([]string(nil), rec.PolicyIDs...)
	s.recordIdx[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Get implements calculation.Recorder.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.recordIdx[id]
	if !ok {
		return nil, domain.NewInputError(domain.UnknownRecord, id)
	}
	rec := s.records[idx]
	return &rec, nil
}

// ListByPatient implements calculation.Recorder, oldest first.
func (s *MemoryStore) ListByPatient(ctx context.Context, patientID string) ([]domain.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CalculationRecord
	for _, rec := range s.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CalculatedAt.Before(out[j].CalculatedAt)
	})
	return out, nil
}

type memorySnapshot struct {
	patients   map[string]bool
	categories map[string]bool
	policies   map[string][]domain.InsurancePolicy
	tariffs    map[string][]domain.ServiceTariffOverride
	released   bool
}

func (m *memorySnapshot) PatientExists(ctx context.Context, patientID string) (bool, error) {
	return m.patients[patientID], nil
}

func (m *memorySnapshot) ServiceCategoryExists(ctx context.Context, categoryID string) (bool, error) {
	return m.categories[categoryID], nil
}

func (m *memorySnapshot) PatientPolicies(ctx context.Context, patientID string) ([]domain.InsurancePolicy, error) {
	return m.policies[patientID], nil
}

func (m *memorySnapshot) PlanTariffs(ctx context.Context, planID string) ([]domain.ServiceTariffOverride, error) {
	return m.tariffs[planID], nil
}

func (m *memorySnapshot) Release() error {
	if m.released {
		return errors.New("snapshot already released")
	}
	m.released = true
	return nil
}
