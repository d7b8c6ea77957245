package export

import (
	"go-tpm/internal/features/workflow"
	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	Service ExportService
}

func NewExportController(service ExportService) *ExportController {
	return &ExportController{Service: service}
}

// ExportInstances godoc
// @Summary Export workflow instances to an Excel file
// @Tags workflows
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Instance status"
// @Param entity_type query string false "Entity type"
// @Param template_id query string false "Template ID"
// @Success 200 {file} binary
// @Router /api/workflows/export [get]
func (ctl *ExportController) ExportInstances(c *fiber.Ctx) error {
	filter := workflow.InstanceFilter{
		Status:     workflow.InstanceStatus(c.Query("status")),
		EntityType: c.Query("entity_type"),
		TemplateID: c.Query("template_id"),
	}

	data, filename, err := ctl.Service.ExportInstances(c.UserContext(), middleware.Tenant(c), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(data)
}
