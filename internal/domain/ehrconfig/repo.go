package ehrconfig

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type ConfigurationRepository interface {
	// Upsert inserts cfg or replaces the row for the same client and system.
	Upsert(ctx context.Context, cfg *Configuration) error
	ListByClientAndSystem(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) ([]*Configuration, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Configuration, error)
	Delete(ctx context.Context, clientID uuid.UUID, system fhirmodels.EHRSystem) error
}
