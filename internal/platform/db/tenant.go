package db

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNoTenant is returned by a DefaultTenantFunc when no tenant can be chosen.
var ErrNoTenant = errors.New("no active tenant")

// DefaultTenantFunc picks the tenant for requests that do not name one.
type DefaultTenantFunc func(ctx context.Context) (uuid.UUID, error)

// TenantMiddleware resolves the client (tenant) a request acts on and stores
// it in the request context. Requests that name no tenant fall back to
// defaultTenant; if that fails too the request proceeds without a tenant and
// handlers that need one reject it. Routes matched by skipper bypass
// resolution entirely.
func TenantMiddleware(defaultTenant DefaultTenantFunc, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			ctx := c.Request().Context()

			var tenantID uuid.UUID
			if raw := extractTenantID(c); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
				}
				tenantID = id
			} else if defaultTenant != nil {
				id, err := defaultTenant(ctx)
				if err != nil && !errors.Is(err, ErrNoTenant) {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "tenant resolution failed")
				}
				tenantID = id
			}

			if tenantID != uuid.Nil {
				ctx = ContextWithTenant(ctx, tenantID)
				c.SetRequest(c.Request().WithContext(ctx))
				c.Set("tenant_id", tenantID.String())
			}

			return next(c)
		}
	}
}

// TenantAllowed reports whether the caller may act on tenantID. A token
// pinned to a tenant by its claim may act on that tenant only; callers
// without a claim may name any tenant.
func TenantAllowed(c echo.Context, tenantID uuid.UUID) bool {
	claim, _ := c.Get("jwt_tenant_id").(string)
	if claim == "" {
		return true
	}
	pinned, err := uuid.Parse(claim)
	return err == nil && pinned == tenantID
}

func extractTenantID(c echo.Context) string {
	// 1. Check JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}

	// 2. Check X-Tenant-ID header
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}

	// 3. Check query parameter
	if tid := c.QueryParam("client_id"); tid != "" {
		return tid
	}

	return ""
}

// ContextWithTenant returns ctx carrying tenantID.
func ContextWithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantFromContext retrieves the tenant ID from context, or uuid.Nil.
func TenantFromContext(ctx context.Context) uuid.UUID {
	tid, _ := ctx.Value(TenantIDKey).(uuid.UUID)
	return tid
}
