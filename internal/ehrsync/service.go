// Package ehrsync pulls Patient resources from a client's configured EHR
// vendor and stores them as canonical patient records.
package ehrsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/internal/ehr"
	"github.com/ehr/ehrsync/internal/platform/metrics"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// ErrInvalidRequest marks caller mistakes detected before any I/O.
var ErrInvalidRequest = errors.New("invalid sync request")

// PersistenceError wraps a failed write of a normalized patient.
type PersistenceError struct {
	ExternalPatientID string
	Err               error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store patient %q: %v", e.ExternalPatientID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type ConfigResolver interface {
	Resolve(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) (*ehrconfig.Configuration, error)
}

type AdapterRegistry interface {
	Adapter(system fhirmodels.EHRSystem) (ehr.Adapter, error)
}

type PatientStore interface {
	Upsert(ctx context.Context, p *patient.Patient) (*patient.Patient, error)
}

// Recorder counts processed vendor records by outcome.
type Recorder interface {
	RecordPatient(system, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPatient(string, string) {}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// Service runs syncs. It keeps no state between calls; concurrent syncs of
// the same patient are settled by the store's upsert.
type Service struct {
	configs  ConfigResolver
	adapters AdapterRegistry
	patients PatientStore
	logger   zerolog.Logger
	recorder Recorder
	now      func() time.Time
}

func NewService(configs ConfigResolver, adapters AdapterRegistry, patients PatientStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		configs:  configs,
		adapters: adapters,
		patients: patients,
		logger:   logger.With().Str("component", "ehrsync").Logger(),
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ItemResult is the outcome for one search entry. Err is nil when the entry
// was stored.
type ItemResult struct {
	ExternalPatientID string
	Patient           *patient.Patient
	Err               error
}

// SearchReport summarizes a search sync. Attempted counts every entry the
// vendor returned; Saved counts the ones stored. Items keeps vendor order.
type SearchReport struct {
	Attempted int
	Saved     int
	Patients  []*patient.Patient
	Items     []ItemResult
}

// Failures returns the entries that were skipped.
func (r *SearchReport) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

func (s *Service) prepare(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) (ehr.Adapter, *ehrconfig.Configuration, error) {
	if clientID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	}
	adapter, err := s.adapters.Adapter(system)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.configs.Resolve(ctx, clientID, system)
	if err != nil {
		if errors.Is(err, ehrconfig.ErrConfigurationConflict) {
			s.logger.Error().Err(err).
				Str("client_id", clientID.String()).
				Str("ehr_system", system.String()).
				Msg("ambiguous ehr configuration")
		}
		return nil, nil, err
	}
	return adapter, cfg, nil
}

// SyncOne fetches one patient by the vendor's id and stores it. Nothing is
// written unless the fetch and normalization succeed.
func (s *Service) SyncOne(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem, externalID string) (*patient.Patient, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external patient id is required", ErrInvalidRequest)
	}
	adapter, cfg, err := s.prepare(ctx, clientID, system)
	if err != nil {
		return nil, err
	}

	raw, err := adapter.FetchByID(ctx, cfg, externalID)
	if err != nil {
		return nil, err
	}
	p, err := s.store(ctx, adapter, clientID, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("client_id", clientID.String()).
		Str("ehr_system", system.String()).
		Str("external_patient_id", p.ExternalPatientID).
		Msg("patient synced")
	return p, nil
}

// SyncSearch runs a vendor search and stores every entry independently.
// A bad entry is recorded in the report and skipped; only a failure before
// the first entry is processed is returned as an error.
func (s *Service) SyncSearch(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem, params url.Values) (*SearchReport, error) {
	adapter, cfg, err := s.prepare(ctx, clientID, system)
	if err != nil {
		return nil, err
	}

	resources, err := adapter.Search(ctx, cfg, params)
	if err != nil {
		return nil, err
	}

	report := &SearchReport{
		Attempted: len(resources),
		Patients:  []*patient.Patient{},
		Items:     make([]ItemResult, 0, len(resources)),
	}
	for _, raw := range resources {
		item := ItemResult{ExternalPatientID: raw.ID()}
		item.Patient, item.Err = s.store(ctx, adapter, clientID, raw)
		if item.Err != nil {
			s.logger.Warn().Err(item.Err).
				Str("client_id", clientID.String()).
				Str("ehr_system", system.String()).
				Str("external_patient_id", item.ExternalPatientID).
				Msg("search entry skipped")
		} else {
			report.Saved++
			report.Patients = append(report.Patients, item.Patient)
		}
		report.Items = append(report.Items, item)
	}

	s.logger.Info().
		Str("client_id", clientID.String()).
		Str("ehr_system", system.String()).
		Int("attempted", report.Attempted).
		Int("saved", report.Saved).
		Msg("patient search synced")
	return report, nil
}

func (s *Service) store(ctx context.Context, adapter ehr.Adapter, clientID uuid.UUID, raw ehr.Resource) (*patient.Patient, error) {
	system := adapter.System().String()
	p, err := adapter.Normalize(clientID, raw)
	if err != nil {
		s.recorder.RecordPatient(system, metrics.OutcomeSkipped)
		return nil, err
	}
	p.LastSynced = s.now()

	stored, err := s.patients.Upsert(ctx, p)
	if err != nil {
		s.recorder.RecordPatient(system, metrics.OutcomeFailed)
		s.logger.Error().Err(err).
			Str("client_id", clientID.String()).
			Str("external_patient_id", p.ExternalPatientID).
			Msg("patient upsert failed")
		return nil, &PersistenceError{ExternalPatientID: p.ExternalPatientID, Err: err}
	}
	s.recorder.RecordPatient(system, metrics.OutcomeSaved)
	return stored, nil
}
