package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

func newTenantContext(e *echo.Echo, target string, tenant uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if tenant != uuid.Nil {
		req = req.WithContext(db.ContextWithTenant(req.Context(), tenant))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_ListPatients_Filters(t *testing.T) {
	svc, repo := newTestService()
	h, e := NewHandler(svc), echo.New()
	clientID := uuid.New()
	seed(repo, clientID, fhirmodels.EHRSystemEpic, "e1", "Ana", "Lopez")
	seed(repo, clientID, fhirmodels.EHRSystemCerner, "c1", "Ben", "Ng")

	tests := []struct {
		target string
		want   int
	}{
		{"/patients", 2},
		{"/patients?ehr_system=ALL", 2},
		{"/patients?ehr_system=epic", 1},
		{"/patients?q=ben", 1},
	}
	for _, tt := range tests {
		c, rec := newTenantContext(e, tt.target, clientID)
		if err := h.ListPatients(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.target, err)
		}
		var body struct {
			Data  []Patient `json:"data"`
			Total int       `json:"total"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Total != tt.want || len(body.Data) != tt.want {
			t.Errorf("%s: expected %d patients, got %d", tt.target, tt.want, body.Total)
		}
	}
}

func TestHandler_ListPatients_BadSystem(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, _ := newTenantContext(e, "/patients?ehr_system=athena", uuid.New())

	err := h.ListPatients(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListPatients_NoTenant(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, _ := newTenantContext(e, "/patients", uuid.Nil)

	err := h.ListPatients(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	svc, repo := newTestService()
	h, e := NewHandler(svc), echo.New()
	clientID := uuid.New()
	p := seed(repo, clientID, fhirmodels.EHRSystemEpic, "e1", "Ana", "Lopez")

	c, rec := newTenantContext(e, "/", clientID)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newTenantContext(e, "/", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	err := h.GetPatient(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another tenant, got %v", err)
	}
}
