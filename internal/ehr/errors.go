package ehr

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

var (
	// ErrMissingExternalID is returned by Normalize for a resource without
	// a top-level id. Such a record cannot be keyed and is never stored.
	ErrMissingExternalID = errors.New("vendor patient resource has no id")

	ErrUnsupportedVendor = errors.New("unsupported ehr system")
)

// maxBodyExcerpt bounds the vendor response body kept on a RequestError.
const maxBodyExcerpt = 1024

// RequestError reports a failed vendor call. StatusCode is the vendor's
// HTTP status, or 0 when no usable response arrived.
type RequestError struct {
	System     fhirmodels.EHRSystem
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.System, e.Err)
	}
	return fmt.Sprintf("%s request failed with status %d", e.System, e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// excerpt cuts body to at most maxBodyExcerpt bytes on a rune boundary.
func excerpt(body []byte) string {
	if len(body) <= maxBodyExcerpt {
		return string(body)
	}
	cut := maxBodyExcerpt
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}
