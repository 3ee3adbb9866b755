package patient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrsync/internal/platform/auth"
	"github.com/ehr/ehrsync/internal/platform/db"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
	"github.com/ehr/ehrsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleViewer))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
}

func tenantOf(c echo.Context) (uuid.UUID, error) {
	id := db.TenantFromContext(c.Request().Context())
	if id == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}
	return id, nil
}

// ListPatients lists the tenant's synced patients. ehr_system accepts ALL,
// EPIC or CERNER; q searches names, MRN and external id.
func (h *Handler) ListPatients(c echo.Context) error {
	clientID, err := tenantOf(c)
	if err != nil {
		return err
	}
	f := ListFilter{ClientID: clientID, Query: c.QueryParam("q")}
	if sys := strings.TrimSpace(c.QueryParam("ehr_system")); sys != "" && !strings.EqualFold(sys, "ALL") {
		parsed, err := fhirmodels.ParseEHRSystem(sys)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.EHRSystem = parsed
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	clientID, err := tenantOf(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), clientID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
