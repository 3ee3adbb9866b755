package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type PatientRepository interface {
	// Upsert inserts p or overwrites every non-key column of the row with
	// the same (client_id, ehr_system, external_patient_id). It returns the
	// stored row.
	Upsert(ctx context.Context, p *Patient) (*Patient, error)
	GetByID(ctx context.Context, clientID, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
}
