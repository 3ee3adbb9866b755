package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service serves the read side of synced patients. Writes happen only
// through the sync orchestrator.
type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

func (s *Service) GetPatient(ctx context.Context, clientID, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, clientID, id)
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	if f.ClientID == uuid.Nil {
		return nil, 0, fmt.Errorf("client_id is required")
	}
	if f.EHRSystem != "" && !f.EHRSystem.Valid() {
		return nil, 0, fmt.Errorf("invalid ehr_system: %s", f.EHRSystem)
	}
	return s.patients.List(ctx, f, limit, offset)
}
