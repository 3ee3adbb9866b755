package ehrsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/ehr"
	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/internal/platform/validation"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

func newHandlerContext(body string, tenant uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = validation.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tenant != uuid.Nil {
		req = req.WithContext(db.ContextWithTenant(req.Context(), tenant))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_SyncPatient(t *testing.T) {
	f := newFixture()
	clientID := uuid.New()
	v := newVendor(t, http.StatusOK, epicPatient)
	f.configure(clientID, fhirmodels.EHRSystemEpic, v, "tok")
	h := NewHandler(f.svc)

	body := fmt.Sprintf(`{"tenant_id":%q,"vendor":"epic","external_patient_id":"E-77"}`, clientID)
	c, rec := newHandlerContext(body, uuid.Nil)
	require.NoError(t, h.SyncPatient(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ExternalPatientID string `json:"external_patient_id"`
			FirstName         string `json:"first_name"`
			DateOfBirth       string `json:"date_of_birth"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "E-77", resp.Data.ExternalPatientID)
	assert.Equal(t, "Lena", resp.Data.FirstName)
	assert.Equal(t, "1990-02-03", resp.Data.DateOfBirth)
}

func TestHandler_SyncPatient_UsesRequestTenant(t *testing.T) {
	f := newFixture()
	clientID := uuid.New()
	v := newVendor(t, http.StatusOK, epicPatient)
	f.configure(clientID, fhirmodels.EHRSystemEpic, v, "tok")
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(`{"vendor":"EPIC","external_patient_id":"E-77"}`, clientID)
	require.NoError(t, h.SyncPatient(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_SyncPatient_PinnedTokenCannotNameOtherTenant(t *testing.T) {
	f := newFixture()
	own, other := uuid.New(), uuid.New()
	v := newVendor(t, http.StatusOK, epicPatient)
	f.configure(other, fhirmodels.EHRSystemEpic, v, "tok")
	h := NewHandler(f.svc)

	body := fmt.Sprintf(`{"tenant_id":%q,"vendor":"EPIC","external_patient_id":"E-77"}`, other)
	c, rec := newHandlerContext(body, own)
	c.Set("jwt_tenant_id", own.String())
	require.NoError(t, h.SyncPatient(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Zero(t, f.store.calls)
	assert.Empty(t, f.store.rows)
}

func TestHandler_SyncPatient_PinnedTokenMayNameOwnTenant(t *testing.T) {
	f := newFixture()
	own := uuid.New()
	v := newVendor(t, http.StatusOK, epicPatient)
	f.configure(own, fhirmodels.EHRSystemEpic, v, "tok")
	h := NewHandler(f.svc)

	body := fmt.Sprintf(`{"tenant_id":%q,"vendor":"EPIC","external_patient_id":"E-77"}`, own)
	c, rec := newHandlerContext(body, own)
	c.Set("jwt_tenant_id", own.String())
	require.NoError(t, h.SyncPatient(c))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_SearchPatients_PinnedTokenCannotNameOtherTenant(t *testing.T) {
	f := newFixture()
	own, other := uuid.New(), uuid.New()
	v := newVendor(t, http.StatusOK, threeEntryBundle)
	f.configure(other, fhirmodels.EHRSystemCerner, v, "tok")
	h := NewHandler(f.svc)

	body := fmt.Sprintf(`{"tenant_id":%q,"vendor":"CERNER","search_params":{"family":"One"}}`, other)
	c, rec := newHandlerContext(body, own)
	c.Set("jwt_tenant_id", own.String())
	require.NoError(t, h.SearchPatients(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.store.calls)
}

func TestHandler_SyncPatient_ConfigurationMissing(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(`{"vendor":"CERNER","external_patient_id":"1"}`, uuid.New())
	require.NoError(t, h.SyncPatient(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "ehr configuration not found")
}

func TestHandler_SyncPatient_VendorStatusPassedThrough(t *testing.T) {
	f := newFixture()
	clientID := uuid.New()
	v := newVendor(t, http.StatusUnauthorized, `token expired`)
	f.configure(clientID, fhirmodels.EHRSystemCerner, v, "tok")
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(`{"vendor":"CERNER","external_patient_id":"1"}`, clientID)
	require.NoError(t, h.SyncPatient(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "token expired", resp.Details)
}

func TestHandler_SyncPatient_Validation(t *testing.T) {
	h := NewHandler(newFixture().svc)
	cases := []string{
		`{"vendor":"MEDITECH","external_patient_id":"1"}`,
		`{"vendor":"EPIC"}`,
		`{"tenant_id":"not-a-uuid","vendor":"EPIC","external_patient_id":"1"}`,
		`{"vendor":"EPIC","external_patient_id":"1"}`,
	}
	for _, body := range cases {
		c, rec := newHandlerContext(body, uuid.Nil)
		require.NoError(t, h.SyncPatient(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	f := newFixture()
	clientID := uuid.New()
	v := newVendor(t, http.StatusOK, threeEntryBundle)
	f.configure(clientID, fhirmodels.EHRSystemCerner, v, "tok")
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(`{"vendor":"cerner","search_params":{"family":"One"}}`, clientID)
	require.NoError(t, h.SearchPatients(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success  bool              `json:"success"`
		Data     []json.RawMessage `json:"data"`
		Total    int               `json:"total"`
		Saved    int               `json:"saved"`
		Failures []failureView     `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Saved)
	require.Len(t, resp.Failures, 1)
	assert.Contains(t, resp.Failures[0].Error, "no id")
}

func TestHandler_SearchPatients_RequiresParams(t *testing.T) {
	h := NewHandler(newFixture().svc)
	c, rec := newHandlerContext(`{"vendor":"EPIC","search_params":{}}`, uuid.New())
	require.NoError(t, h.SearchPatients(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("%w: x", ErrInvalidRequest), http.StatusBadRequest},
		{"unsupported", fmt.Errorf("%w: X", ehr.ErrUnsupportedVendor), http.StatusBadRequest},
		{"not found", ehrconfig.ErrConfigurationNotFound, http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: 2 rows", ehrconfig.ErrConfigurationConflict), http.StatusInternalServerError},
		{"vendor status", &ehr.RequestError{StatusCode: http.StatusForbidden}, http.StatusForbidden},
		{"vendor unreachable", &ehr.RequestError{Err: errors.New("dial")}, http.StatusBadGateway},
		{"missing id", ehr.ErrMissingExternalID, http.StatusBadGateway},
		{"persistence", &PersistenceError{Err: errors.New("db")}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
