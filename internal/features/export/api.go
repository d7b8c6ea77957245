package export

import (
	"go-tpm/internal/config"
	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportApi struct {
	controller *ExportController
	config     *config.Config
}

func NewExportApi(controller *ExportController, config *config.Config) *ExportApi {
	return &ExportApi{
		controller: controller,
		config:     config,
	}
}

func (h *ExportApi) Setup(app *fiber.App) {
	app.Get("/api/workflows/export",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware(h.config),
		h.controller.ExportInstances,
	)
}
