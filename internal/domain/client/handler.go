package client

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrsync/internal/platform/auth"
	"github.com/ehr/ehrsync/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleViewer))
	read.GET("/clients", h.ListClients)
	read.GET("/clients/:id", h.GetClient)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/clients", h.CreateClient)
	write.DELETE("/clients/:id", h.DeleteClient)
}

type CreateClientRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Status string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *Handler) CreateClient(c echo.Context) error {
	var req CreateClientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl := &Client{Name: req.Name, Status: req.Status}
	if err := h.svc.CreateClient(c.Request().Context(), cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, cl)
}

// clientParam parses :id and refuses clients outside a pinned token's tenant.
func clientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !db.TenantAllowed(c, id) {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token is not valid for this client")
	}
	return id, nil
}

func (h *Handler) GetClient(c echo.Context) error {
	id, err := clientParam(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClient(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cl)
}

// ListClients returns every client ordered by name; ?status=active narrows
// it to the dashboard's tenant picker.
func (h *Handler) ListClients(c echo.Context) error {
	items, err := h.svc.ListClients(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if items == nil {
		items = []*Client{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) DeleteClient(c echo.Context) error {
	id, err := clientParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClient(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "client not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
