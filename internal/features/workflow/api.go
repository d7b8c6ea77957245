package workflow

import (
	"go-tpm/internal/config"
	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type WorkflowApi struct {
	controller *WorkflowController
	config     *config.Config
}

func NewWorkflowApi(controller *WorkflowController, config *config.Config) *WorkflowApi {
	return &WorkflowApi{
		controller: controller,
		config:     config,
	}
}

func (h *WorkflowApi) Setup(app *fiber.App) {
	workflows := app.Group("/api/workflows",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware(h.config),
	)

	workflows.Get("/templates", h.controller.ListTemplates)
	workflows.Post("/templates", h.controller.CreateTemplate)
	workflows.Get("/templates/:id", h.controller.GetTemplate)
	workflows.Put("/templates/:id", h.controller.UpdateTemplate)
	workflows.Delete("/templates/:id", h.controller.DeleteTemplate)

	workflows.Get("/instances", h.controller.ListInstances)
	workflows.Post("/instances", h.controller.CreateInstance)
	workflows.Get("/instances/:id", h.controller.GetInstance)

	workflows.Post("/steps/:id/complete", h.controller.CompleteStep)
	workflows.Post("/steps/:id/reject", h.controller.RejectStep)

	workflows.Get("/summary", h.controller.Summary)
	workflows.Get("/options", h.controller.Options)
}
