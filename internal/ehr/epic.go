package ehr

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// EpicClientIDHeader carries the registered application id on Epic calls.
const EpicClientIDHeader = "Epic-Client-ID"

type epicAdapter struct {
	client *RESTClient
}

func NewEpicAdapter(client *RESTClient) Adapter {
	return &epicAdapter{client: client}
}

func (a *epicAdapter) System() fhirmodels.EHRSystem {
	return fhirmodels.EHRSystemEpic
}

func (a *epicAdapter) options(cfg *ehrconfig.Configuration) []RequestOption {
	if cfg.ClientIDCredential == "" {
		return nil
	}
	return []RequestOption{WithHeader(EpicClientIDHeader, cfg.ClientIDCredential)}
}

func (a *epicAdapter) FetchByID(ctx context.Context, cfg *ehrconfig.Configuration, externalID string) (Resource, error) {
	return a.client.FetchByID(ctx, cfg, externalID, a.options(cfg)...)
}

func (a *epicAdapter) Search(ctx context.Context, cfg *ehrconfig.Configuration, params url.Values) ([]Resource, error) {
	return a.client.Search(ctx, cfg, params, a.options(cfg)...)
}

// Normalize only trusts the HumanName marked official. A patient with
// names but none official gets empty first and last names.
func (a *epicAdapter) Normalize(clientID uuid.UUID, raw Resource) (*patient.Patient, error) {
	return normalizePatient(fhirmodels.EHRSystemEpic, clientID, raw, officialName)
}

func officialName(names any) map[string]any {
	return findObj(names, func(m map[string]any) bool {
		return str(m["use"]) == fhirmodels.NameUseOfficial
	})
}
