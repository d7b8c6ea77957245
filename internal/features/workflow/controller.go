package workflow

import (
	"errors"

	"go-tpm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type WorkflowController struct {
	Templates TemplateService
	Engine    WorkflowEngine
}

func NewWorkflowController(templates TemplateService, engine WorkflowEngine) *WorkflowController {
	return &WorkflowController{
		Templates: templates,
		Engine:    engine,
	}
}

func actorFromCtx(c *fiber.Ctx) Actor {
	claims := middleware.Claims(c)
	return Actor{ID: claims.UserID, Name: claims.Name}
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrInstanceNotFound),
		errors.Is(err, ErrStepNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNameRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrSystemTemplate):
		return fiber.StatusForbidden
	case errors.Is(err, ErrStepNotActive):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// ListTemplates godoc
// @Summary List workflow templates
// @Description List workflow templates for the caller's tenant, most recent first
// @Tags workflows
// @Produce json
// @Param workflow_type query string false "Workflow type"
// @Param entity_type query string false "Entity type"
// @Param status query string false "Template status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/workflows/templates [get]
func (ctl *WorkflowController) ListTemplates(c *fiber.Ctx) error {
	filter := TemplateFilter{
		WorkflowType: WorkflowType(c.Query("workflow_type")),
		EntityType:   c.Query("entity_type"),
		Status:       TemplateStatus(c.Query("status")),
	}

	items, total, err := ctl.Templates.ListTemplates(c.UserContext(), middleware.Tenant(c), filter,
		int64(c.QueryInt("limit", 50)), int64(c.QueryInt("offset", 0)))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"items": items, "total": total})
}

// GetTemplate godoc
// @Summary Get a workflow template
// @Tags workflows
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} WorkflowTemplate
// @Failure 404 {object} map[string]string
// @Router /api/workflows/templates/{id} [get]
func (ctl *WorkflowController) GetTemplate(c *fiber.Ctx) error {
	template, err := ctl.Templates.GetTemplate(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(template)
}

// CreateTemplate godoc
// @Summary Create a workflow template
// @Tags workflows
// @Accept json
// @Produce json
// @Param template body CreateTemplateRequest true "Template"
// @Success 201 {object} WorkflowTemplate
// @Failure 400 {object} map[string]string
// @Router /api/workflows/templates [post]
func (ctl *WorkflowController) CreateTemplate(c *fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	template, err := ctl.Templates.CreateTemplate(c.UserContext(), middleware.Tenant(c), req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(template)
}

// UpdateTemplate godoc
// @Summary Update a workflow template
// @Description Partial update; omitted fields are preserved
// @Tags workflows
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param template body UpdateTemplateRequest true "Fields to update"
// @Success 200 {object} WorkflowTemplate
// @Failure 404 {object} map[string]string
// @Router /api/workflows/templates/{id} [put]
func (ctl *WorkflowController) UpdateTemplate(c *fiber.Ctx) error {
	var req UpdateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	template, err := ctl.Templates.UpdateTemplate(c.UserContext(), middleware.Tenant(c), c.Params("id"), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(template)
}

// DeleteTemplate godoc
// @Summary Delete a workflow template
// @Tags workflows
// @Param id path string true "Template ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/workflows/templates/{id} [delete]
func (ctl *WorkflowController) DeleteTemplate(c *fiber.Ctx) error {
	if err := ctl.Templates.DeleteTemplate(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Template deleted successfully"})
}

// ListInstances godoc
// @Summary List workflow instances
// @Tags workflows
// @Produce json
// @Param status query string false "Instance status"
// @Param entity_type query string false "Entity type"
// @Param template_id query string false "Template ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/workflows/instances [get]
func (ctl *WorkflowController) ListInstances(c *fiber.Ctx) error {
	filter := InstanceFilter{
		Status:     InstanceStatus(c.Query("status")),
		EntityType: c.Query("entity_type"),
		TemplateID: c.Query("template_id"),
	}

	items, total, err := ctl.Engine.ListInstances(c.UserContext(), middleware.Tenant(c), filter,
		int64(c.QueryInt("limit", 50)), int64(c.QueryInt("offset", 0)))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"items": items, "total": total})
}

// GetInstance godoc
// @Summary Get a workflow instance with its steps
// @Tags workflows
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} InstanceDetail
// @Failure 404 {object} map[string]string
// @Router /api/workflows/instances/{id} [get]
func (ctl *WorkflowController) GetInstance(c *fiber.Ctx) error {
	detail, err := ctl.Engine.GetInstance(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(detail)
}

// CreateInstance godoc
// @Summary Start a workflow for a business entity
// @Tags workflows
// @Accept json
// @Produce json
// @Param instance body CreateInstanceRequest true "Instance"
// @Success 201 {object} WorkflowInstance
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/workflows/instances [post]
func (ctl *WorkflowController) CreateInstance(c *fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TemplateID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "template_id is required"})
	}

	instance, err := ctl.Engine.CreateInstance(c.UserContext(), middleware.Tenant(c), req, actorFromCtx(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(instance)
}

// CompleteStep godoc
// @Summary Complete the active step of a workflow instance
// @Tags workflows
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param body body map[string]string false "Action and comments"
// @Success 200 {object} WorkflowInstance
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/workflows/steps/{id}/complete [post]
func (ctl *WorkflowController) CompleteStep(c *fiber.Ctx) error {
	var body struct {
		Action   string `json:"action"`
		Comments string `json:"comments"`
	}
	_ = c.BodyParser(&body)

	instance, err := ctl.Engine.CompleteStep(c.UserContext(), middleware.Tenant(c), c.Params("id"), body.Action, body.Comments, actorFromCtx(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(instance)
}

// RejectStep godoc
// @Summary Reject the active step and terminate the instance
// @Tags workflows
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param body body map[string]string false "Comments"
// @Success 200 {object} WorkflowInstance
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/workflows/steps/{id}/reject [post]
func (ctl *WorkflowController) RejectStep(c *fiber.Ctx) error {
	var body struct {
		Comments string `json:"comments"`
	}
	_ = c.BodyParser(&body)

	instance, err := ctl.Engine.RejectStep(c.UserContext(), middleware.Tenant(c), c.Params("id"), body.Comments, actorFromCtx(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(instance)
}

// Summary godoc
// @Summary Tenant-scoped workflow counts
// @Tags workflows
// @Produce json
// @Success 200 {object} WorkflowSummary
// @Router /api/workflows/summary [get]
func (ctl *WorkflowController) Summary(c *fiber.Ctx) error {
	summary, err := ctl.Templates.Summary(c.UserContext(), middleware.Tenant(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(summary)
}

// Options godoc
// @Summary Static enumerations for selection controls
// @Tags workflows
// @Produce json
// @Success 200 {object} WorkflowOptions
// @Router /api/workflows/options [get]
func (ctl *WorkflowController) Options(c *fiber.Ctx) error {
	return c.JSON(ctl.Templates.Options())
}
