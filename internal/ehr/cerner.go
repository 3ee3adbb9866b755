package ehr

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type cernerAdapter struct {
	client *RESTClient
}

func NewCernerAdapter(client *RESTClient) Adapter {
	return &cernerAdapter{client: client}
}

func (a *cernerAdapter) System() fhirmodels.EHRSystem {
	return fhirmodels.EHRSystemCerner
}

func (a *cernerAdapter) FetchByID(ctx context.Context, cfg *ehrconfig.Configuration, externalID string) (Resource, error) {
	return a.client.FetchByID(ctx, cfg, externalID)
}

func (a *cernerAdapter) Search(ctx context.Context, cfg *ehrconfig.Configuration, params url.Values) ([]Resource, error) {
	return a.client.Search(ctx, cfg, params)
}

// Normalize takes the patient's name from the first HumanName, whatever
// its use.
func (a *cernerAdapter) Normalize(clientID uuid.UUID, raw Resource) (*patient.Patient, error) {
	return normalizePatient(fhirmodels.EHRSystemCerner, clientID, raw, firstObj)
}
