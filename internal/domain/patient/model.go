package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// Patient is the vendor-neutral record kept for every synced Patient
// resource. (ClientID, EHRSystem, ExternalPatientID) identifies a row.
type Patient struct {
	ID                uuid.UUID            `db:"id" json:"id"`
	ClientID          uuid.UUID            `db:"client_id" json:"client_id"`
	EHRSystem         fhirmodels.EHRSystem `db:"ehr_system" json:"ehr_system"`
	ExternalPatientID string               `db:"external_patient_id" json:"external_patient_id"`
	FirstName         string               `db:"first_name" json:"first_name"`
	LastName          string               `db:"last_name" json:"last_name"`
	// DateOfBirth is the vendor's birthDate as sent, nil when absent.
	DateOfBirth *string        `db:"date_of_birth" json:"date_of_birth"`
	Gender      string         `db:"gender" json:"gender"`
	Phone       string         `db:"phone" json:"phone"`
	Email       string         `db:"email" json:"email"`
	Address     map[string]any `db:"address" json:"address"`
	MRN         string         `db:"mrn" json:"mrn"`
	RawData     map[string]any `db:"raw_data" json:"raw_data"`
	LastSynced  time.Time      `db:"last_synced" json:"last_synced"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// FullName joins the given and family names for display.
func (p *Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ListFilter narrows a patient listing. ClientID is mandatory; an empty
// EHRSystem matches every vendor.
type ListFilter struct {
	ClientID  uuid.UUID
	EHRSystem fhirmodels.EHRSystem
	// Query matches name, MRN or external id case-insensitively.
	Query string
}
