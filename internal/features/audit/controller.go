package audit

import (
	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs godoc
// @Summary List audit logs
// @Tags audit
// @Produce json
// @Param module query string false "Module name"
// @Param action query string false "Action"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} models.AuditLog
// @Router /api/audit-logs [get]
func (ctl *AuditController) ListLogs(c *fiber.Ctx) error {
	filters := map[string]interface{}{
		"module": c.Query("module"),
		"action": c.Query("action"),
	}

	logs, err := ctl.Service.ListLogs(c.UserContext(), middleware.Tenant(c), filters,
		int64(c.QueryInt("page", 1)), int64(c.QueryInt("limit", 20)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(logs)
}
