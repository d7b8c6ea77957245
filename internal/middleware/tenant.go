package middleware

import (
	"context"

	common_models "go-tpm/internal/common/models"
	"go-tpm/internal/config"
	"go-tpm/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// TenantMiddleware resolves the caller's tenant once per request:
// explicit X-Tenant-ID header, then the JWT claim, then the configured
// default. The resolved id is stored in the request context and must be
// the only source of tenant identity downstream.
func TenantMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get("X-Tenant-ID")

		if tenantID == "" {
			if claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
				tenantID = claims.TenantID
			}
		}

		if tenantID == "" {
			tenantID = cfg.DefaultTenant
		}

		c.Locals(string(common_models.TenantIDKey), tenantID)
		ctx := context.WithValue(c.UserContext(), common_models.TenantIDKey, tenantID)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// Tenant returns the resolved tenant id for the request.
func Tenant(c *fiber.Ctx) string {
	if tenantID, ok := c.Locals(string(common_models.TenantIDKey)).(string); ok {
		return tenantID
	}
	return ""
}

// TenantFromContext reads the tenant id from a plain context, for code
// running outside a fiber handler.
func TenantFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(common_models.TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}
