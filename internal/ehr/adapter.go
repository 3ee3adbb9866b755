package ehr

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// Adapter is the per-vendor strategy: how to call the vendor's Patient API
// and how to map its Patient shape onto the canonical record.
type Adapter interface {
	System() fhirmodels.EHRSystem
	FetchByID(ctx context.Context, cfg *ehrconfig.Configuration, externalID string) (Resource, error)
	Search(ctx context.Context, cfg *ehrconfig.Configuration, params url.Values) ([]Resource, error)
	// Normalize maps raw onto a canonical patient owned by clientID. The
	// only failure is ErrMissingExternalID.
	Normalize(clientID uuid.UUID, raw Resource) (*patient.Patient, error)
}

// nameSelector picks the HumanName a vendor treats as the patient's name.
type nameSelector func(names any) map[string]any

func normalizePatient(system fhirmodels.EHRSystem, clientID uuid.UUID, raw Resource, pickName nameSelector) (*patient.Patient, error) {
	id := raw.ID()
	if id == "" {
		return nil, ErrMissingExternalID
	}

	name := pickName(raw["name"])
	p := &patient.Patient{
		ClientID:          clientID,
		EHRSystem:         system,
		ExternalPatientID: id,
		FirstName:         firstString(name["given"]),
		LastName:          str(name["family"]),
		Gender:            str(raw["gender"]),
		Phone:             telecomValue(raw, fhirmodels.TelecomSystemPhone),
		Email:             telecomValue(raw, fhirmodels.TelecomSystemEmail),
		Address:           firstObj(raw["address"]),
		MRN:               medicalRecordNumber(raw),
		RawData:           map[string]any(raw),
	}
	if p.Address == nil {
		p.Address = map[string]any{}
	}
	if dob := str(raw["birthDate"]); dob != "" {
		p.DateOfBirth = &dob
	}
	return p, nil
}

// telecomValue returns the value of the first telecom entry of the given
// system, even when that value is empty.
func telecomValue(raw Resource, system string) string {
	cp := findObj(raw["telecom"], func(m map[string]any) bool {
		return str(m["system"]) == system
	})
	return str(cp["value"])
}

func medicalRecordNumber(raw Resource) string {
	ident := findObj(raw["identifier"], func(m map[string]any) bool {
		return str(obj(m["type"])["text"]) == fhirmodels.IdentifierTypeMRN
	})
	return str(ident["value"])
}
