package fhirmodels

import (
	"fmt"
	"strings"
)

// EHRSystem identifies the external clinical-record vendor a tenant
// configuration or a synced patient belongs to.
type EHRSystem string

// Supported vendors. The string values are the ones persisted in the
// ehr_system columns.
const (
	EHRSystemCerner EHRSystem = "CERNER"
	EHRSystemEpic   EHRSystem = "EPIC"
)

// AllEHRSystems lists the supported vendors in display order.
var AllEHRSystems = []EHRSystem{EHRSystemEpic, EHRSystemCerner}

// ParseEHRSystem accepts a vendor name in any case.
func ParseEHRSystem(s string) (EHRSystem, error) {
	sys := EHRSystem(strings.ToUpper(strings.TrimSpace(s)))
	if !sys.Valid() {
		return "", fmt.Errorf("unsupported ehr system %q", s)
	}
	return sys, nil
}

func (s EHRSystem) Valid() bool {
	return s == EHRSystemCerner || s == EHRSystemEpic
}

func (s EHRSystem) String() string {
	return string(s)
}

const ResourceTypePatient = "Patient"

// MIMETypeFHIRJSON is the media type vendors expect in the Accept header.
const MIMETypeFHIRJSON = "application/fhir+json"

// ContactPoint system codes used when picking telecom entries.
const (
	TelecomSystemPhone = "phone"
	TelecomSystemEmail = "email"
)

// NameUseOfficial marks the legal name in a HumanName list.
const NameUseOfficial = "official"

// IdentifierTypeMRN is the identifier type text that marks a medical
// record number. Matched exactly.
const IdentifierTypeMRN = "MRN"

// Client status values.
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)
