package ehrsync

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/internal/domain/patient"
	"github.com/ehr/ehrsync/internal/ehr"
	"github.com/ehr/ehrsync/internal/platform/auth"
	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	sync := api.Group("/sync", auth.RequireRole(auth.RoleOperator))
	sync.POST("/patients", h.SyncPatient)
	sync.POST("/patients/search", h.SearchPatients)
}

// SyncPatientRequest fetches one patient. TenantID falls back to the
// request's resolved tenant.
type SyncPatientRequest struct {
	TenantID          string `json:"tenant_id" validate:"omitempty,uuid"`
	Vendor            string `json:"vendor" validate:"required,ehr_system"`
	ExternalPatientID string `json:"external_patient_id" validate:"required,max=255"`
}

type SearchPatientsRequest struct {
	TenantID     string            `json:"tenant_id" validate:"omitempty,uuid"`
	Vendor       string            `json:"vendor" validate:"required,ehr_system"`
	SearchParams map[string]string `json:"search_params" validate:"required,min=1"`
}

type patientResponse struct {
	Success bool             `json:"success"`
	Data    *patient.Patient `json:"data"`
}

type searchResponse struct {
	Success bool               `json:"success"`
	Data    []*patient.Patient `json:"data"`
	// Total is the number of vendor entries attempted.
	Total    int           `json:"total"`
	Saved    int           `json:"saved"`
	Failures []failureView `json:"failures"`
}

type failureView struct {
	ExternalPatientID string `json:"external_patient_id,omitempty"`
	Error             string `json:"error"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) SyncPatient(c echo.Context) error {
	var req SyncPatientRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	clientID, status, err := resolveTenant(c, req.TenantID)
	if err != nil {
		return fail(c, status, err)
	}
	system, _ := fhirmodels.ParseEHRSystem(req.Vendor)

	p, err := h.svc.SyncOne(c.Request().Context(), clientID, system, req.ExternalPatientID)
	if err != nil {
		return failSync(c, err)
	}
	return c.JSON(http.StatusOK, patientResponse{Success: true, Data: p})
}

func (h *Handler) SearchPatients(c echo.Context) error {
	var req SearchPatientsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	clientID, status, err := resolveTenant(c, req.TenantID)
	if err != nil {
		return fail(c, status, err)
	}
	system, _ := fhirmodels.ParseEHRSystem(req.Vendor)

	params := url.Values{}
	for k, v := range req.SearchParams {
		params.Set(k, v)
	}

	report, err := h.svc.SyncSearch(c.Request().Context(), clientID, system, params)
	if err != nil {
		return failSync(c, err)
	}

	failures := make([]failureView, 0)
	for _, it := range report.Failures() {
		failures = append(failures, failureView{ExternalPatientID: it.ExternalPatientID, Error: it.Err.Error()})
	}
	return c.JSON(http.StatusOK, searchResponse{
		Success:  true,
		Data:     report.Patients,
		Total:    report.Attempted,
		Saved:    report.Saved,
		Failures: failures,
	})
}

var errTenantForbidden = errors.New("token is not valid for the requested tenant")

// resolveTenant picks the client a sync acts on: the body's tenant_id when
// given, else the tenant resolved for the request. A token pinned to one
// tenant cannot name another.
func resolveTenant(c echo.Context, explicit string) (uuid.UUID, int, error) {
	if explicit == "" {
		if id := db.TenantFromContext(c.Request().Context()); id != uuid.Nil {
			return id, http.StatusOK, nil
		}
		return uuid.Nil, http.StatusBadRequest, errors.New("tenant_id is required")
	}
	id, err := uuid.Parse(explicit)
	if err != nil {
		return uuid.Nil, http.StatusBadRequest, err
	}
	if !db.TenantAllowed(c, id) {
		return uuid.Nil, http.StatusForbidden, errTenantForbidden
	}
	return id, http.StatusOK, nil
}

func fail(c echo.Context, status int, err error) error {
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func failSync(c echo.Context, err error) error {
	resp := errorResponse{Error: err.Error()}
	var rerr *ehr.RequestError
	if errors.As(err, &rerr) {
		resp.Details = rerr.Body
	}
	return c.JSON(StatusFor(err), resp)
}

// StatusFor maps a sync error onto the HTTP status reported to callers.
// Vendor rejections keep the vendor's status.
func StatusFor(err error) int {
	var rerr *ehr.RequestError
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ehr.ErrUnsupportedVendor):
		return http.StatusBadRequest
	case errors.Is(err, ehrconfig.ErrConfigurationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ehrconfig.ErrConfigurationConflict):
		return http.StatusInternalServerError
	case errors.As(err, &rerr):
		if rerr.StatusCode == 0 {
			return http.StatusBadGateway
		}
		return rerr.StatusCode
	case errors.Is(err, ehr.ErrMissingExternalID):
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
