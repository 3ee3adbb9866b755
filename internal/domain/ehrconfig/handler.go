package ehrconfig

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	read := api.Group("", auth.RequireRole(auth.RoleOperator))
	read.GET("/clients/:id/configurations", h.ListConfigurations)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.PUT("/clients/:id/configurations/:system", h.PutConfiguration)
	write.DELETE("/clients/:id/configurations/:system", h.DeleteConfiguration)
}

type PutConfigurationRequest struct {
	APIEndpoint        string         `json:"api_endpoint" validate:"required,base_url"`
	ClientIDCredential string         `json:"client_id_credential" validate:"max=255"`
	ClientSecret       string         `json:"client_secret" validate:"required"`
	AdditionalConfig   map[string]any `json:"additional_config"`
}

func pathParams(c echo.Context) (uuid.UUID, fhirmodels.EHRSystem, error) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid client id")
	}
	if !db.TenantAllowed(c, clientID) {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusForbidden, "token is not valid for this client")
	}
	if c.Param("system") == "" {
		return clientID, "", nil
	}
	system, err := fhirmodels.ParseEHRSystem(c.Param("system"))
	if err != nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return clientID, system, nil
}

func (h *Handler) ListConfigurations(c echo.Context) error {
	clientID, _, err := pathParams(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListConfigurations(c.Request().Context(), clientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]ConfigurationView, 0, len(items))
	for _, cfg := range items {
		views = append(views, cfg.View())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": views, "total": len(views)})
}

// PutConfiguration creates or replaces the client's settings for one vendor.
func (h *Handler) PutConfiguration(c echo.Context) error {
	clientID, system, err := pathParams(c)
	if err != nil {
		return err
	}
	var req PutConfigurationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg := &Configuration{
		ClientID:           clientID,
		EHRSystem:          system,
		APIEndpoint:        req.APIEndpoint,
		ClientIDCredential: req.ClientIDCredential,
		ClientSecret:       req.ClientSecret,
		AdditionalConfig:   req.AdditionalConfig,
	}
	if err := h.svc.SaveConfiguration(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, cfg.View())
}

func (h *Handler) DeleteConfiguration(c echo.Context) error {
	clientID, system, err := pathParams(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConfiguration(c.Request().Context(), clientID, system); err != nil {
		if errors.Is(err, ErrConfigurationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "configuration not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
