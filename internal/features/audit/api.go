package audit

import (
	"go-tpm/internal/config"
	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) *AuditApi {
	return &AuditApi{
		controller: controller,
		config:     config,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/audit-logs",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware(h.config),
	)

	audit.Get("/", h.controller.ListLogs)
}
