package workflow

import (
	"context"
	"fmt"
	"time"

	common_models "go-tpm/internal/common/models"
	"go-tpm/internal/connectors"

	"go.uber.org/zap"
)

// EventSink receives workflow events; satisfied by the notification
// feature and wired up in main.
type EventSink interface {
	Notify(ctx context.Context, tenantID, userID, title, message, link string) error
	Broadcast(tenantID string, event interface{})
}

type WorkflowEngine interface {
	CreateInstance(ctx context.Context, tenantID string, req CreateInstanceRequest, initiator Actor) (*WorkflowInstance, error)
	GetInstance(ctx context.Context, tenantID, id string) (*InstanceDetail, error)
	ListInstances(ctx context.Context, tenantID string, filter InstanceFilter, limit, offset int64) ([]WorkflowInstance, int64, error)
	CompleteStep(ctx context.Context, tenantID, stepID, action, comments string, actor Actor) (*WorkflowInstance, error)
	RejectStep(ctx context.Context, tenantID, stepID, comments string, actor Actor) (*WorkflowInstance, error)
}

type WorkflowEngineImpl struct {
	Repo         InstanceRepository
	TemplateRepo TemplateRepository
	AuditService AuditLogger
	Events       EventSink
	EntitySource connectors.EntitySource
	Logger       *zap.Logger
}

func NewWorkflowEngine(
	repo InstanceRepository,
	templateRepo TemplateRepository,
	auditService AuditLogger,
	events EventSink,
	entitySource connectors.EntitySource,
	logger *zap.Logger,
) WorkflowEngine {
	return &WorkflowEngineImpl{
		Repo:         repo,
		TemplateRepo: templateRepo,
		AuditService: auditService,
		Events:       events,
		EntitySource: entitySource,
		Logger:       logger,
	}
}

func (e *WorkflowEngineImpl) CreateInstance(ctx context.Context, tenantID string, req CreateInstanceRequest, initiator Actor) (*WorkflowInstance, error) {
	template, err := e.TemplateRepo.GetByID(ctx, tenantID, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}

	entityName := req.EntityName
	if entityName == "" && e.EntitySource.Enabled() && req.EntityType != "" && req.EntityID != "" {
		name, err := e.EntitySource.LookupName(ctx, req.EntityType, req.EntityID)
		if err != nil {
			e.Logger.Warn("entity source lookup failed",
				zap.String("tenant", tenantID),
				zap.String("entity_type", req.EntityType),
				zap.Error(err))
		} else {
			entityName = name
		}
	}

	now := time.Now()
	instance := &WorkflowInstance{
		TenantID:     tenantID,
		TemplateID:   template.ID,
		TemplateName: template.Name,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		EntityName:   entityName,
		Status:       InstanceStatusInProgress,
		CurrentStep:  1,
		InitiatedBy:  initiator.ID,
		InitiatedAt:  now,
		Notes:        req.Notes,
		Payload:      req.Payload,
	}

	if autoApprovable(template, req.Payload) {
		return e.createAutoApproved(ctx, instance, initiator, now)
	}

	blueprints := template.Steps
	if len(blueprints) == 0 {
		// A zero-step template still produces one active step so the
		// instance always has a progress signal.
		blueprints = []StepBlueprint{{Name: "Approval", Type: StepTypeApproval}}
	}
	instance.TotalSteps = len(blueprints)

	steps := make([]WorkflowStep, 0, len(blueprints))
	for i, bp := range blueprints {
		slaHours := bp.SLAHours
		if slaHours == 0 {
			slaHours = template.SLAHours
		}

		step := WorkflowStep{
			TenantID:     tenantID,
			StepNumber:   i + 1,
			Name:         bp.Name,
			Type:         bp.Type,
			AssigneeID:   bp.AssigneeID,
			AssigneeName: bp.AssigneeName,
			SLAHours:     slaHours,
			Config:       bp.Config,
			Status:       StepStatusPending,
		}
		if i == 0 {
			step.Status = StepStatusInProgress
			step.StartedAt = &now
			step.DueAt = dueAt(now, slaHours)
		}
		steps = append(steps, step)
	}

	err = e.Repo.Transaction(ctx, func(txCtx context.Context) error {
		if err := e.Repo.CreateInstance(txCtx, instance); err != nil {
			return err
		}
		for i := range steps {
			steps[i].InstanceID = instance.ID
		}
		return e.Repo.CreateSteps(txCtx, steps)
	})
	if err != nil {
		return nil, err
	}

	_ = e.AuditService.LogChange(ctx, common_models.AuditActionWorkflow, "workflow_instances", instance.ID.Hex(), map[string]common_models.Change{
		"status": {New: instance.Status},
	})
	e.notifyStepActivated(ctx, instance, &steps[0])

	return instance, nil
}

// createAutoApproved persists an instance that is already completed
// with a single auto-approved step, for payload amounts under the
// template's threshold.
func (e *WorkflowEngineImpl) createAutoApproved(ctx context.Context, instance *WorkflowInstance, initiator Actor, now time.Time) (*WorkflowInstance, error) {
	instance.Status = InstanceStatusCompleted
	instance.TotalSteps = 1
	instance.Outcome = OutcomeApproved
	instance.CompletedBy = initiator.ID
	instance.CompletedAt = &now

	step := WorkflowStep{
		TenantID:    instance.TenantID,
		StepNumber:  1,
		Name:        "Auto Approval",
		Type:        StepTypeApproval,
		Status:      StepStatusCompleted,
		Action:      "auto_approved",
		StartedAt:   &now,
		CompletedAt: &now,
	}

	err := e.Repo.Transaction(ctx, func(txCtx context.Context) error {
		if err := e.Repo.CreateInstance(txCtx, instance); err != nil {
			return err
		}
		step.InstanceID = instance.ID
		return e.Repo.CreateSteps(txCtx, []WorkflowStep{step})
	})
	if err != nil {
		return nil, err
	}

	_ = e.AuditService.LogChange(ctx, common_models.AuditActionWorkflow, "workflow_instances", instance.ID.Hex(), map[string]common_models.Change{
		"status": {New: "auto_approved"},
	})
	e.Events.Broadcast(instance.TenantID, map[string]interface{}{
		"event":       "instance_completed",
		"instance_id": instance.ID.Hex(),
		"outcome":     OutcomeApproved,
	})

	return instance, nil
}

func (e *WorkflowEngineImpl) GetInstance(ctx context.Context, tenantID, id string) (*InstanceDetail, error) {
	instance, err := e.Repo.GetInstance(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	steps, err := e.Repo.GetSteps(ctx, tenantID, instance.ID)
	if err != nil {
		return nil, err
	}

	return &InstanceDetail{Instance: instance, Steps: steps}, nil
}

func (e *WorkflowEngineImpl) ListInstances(ctx context.Context, tenantID string, filter InstanceFilter, limit, offset int64) ([]WorkflowInstance, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return e.Repo.ListInstances(ctx, tenantID, filter, limit, offset)
}

func (e *WorkflowEngineImpl) CompleteStep(ctx context.Context, tenantID, stepID, action, comments string, actor Actor) (*WorkflowInstance, error) {
	if action == "" {
		action = "approved"
	}

	step, err := e.Repo.GetStep(ctx, tenantID, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, ErrStepNotFound
	}

	now := time.Now()
	var next *WorkflowStep

	err = e.Repo.Transaction(ctx, func(txCtx context.Context) error {
		finished, err := e.Repo.FinishStep(txCtx, step.ID, StepStatusCompleted, action, comments, now)
		if err != nil {
			return err
		}
		if !finished {
			return ErrStepNotActive
		}

		next, err = e.Repo.GetStepByNumber(txCtx, tenantID, step.InstanceID, step.StepNumber+1)
		if err != nil {
			return err
		}

		if next != nil {
			if err := e.Repo.ActivateStep(txCtx, next.ID, now, dueAt(now, next.SLAHours)); err != nil {
				return err
			}
			return e.Repo.SetCurrentStep(txCtx, step.InstanceID, next.StepNumber)
		}

		// Final step: the instance is approved.
		return e.Repo.FinalizeInstance(txCtx, step.InstanceID, InstanceStatusCompleted, OutcomeApproved, actor.ID, now)
	})
	if err != nil {
		return nil, err
	}

	instance, err := e.Repo.GetInstance(ctx, tenantID, step.InstanceID.Hex())
	if err != nil {
		return nil, err
	}

	_ = e.AuditService.LogChange(ctx, common_models.AuditActionWorkflow, "workflow_steps", stepID, map[string]common_models.Change{
		"status": {Old: StepStatusInProgress, New: StepStatusCompleted},
	})

	if next != nil {
		e.notifyStepActivated(ctx, instance, next)
	} else if instance != nil {
		e.notifyFinished(ctx, instance)
	}

	return instance, nil
}

func (e *WorkflowEngineImpl) RejectStep(ctx context.Context, tenantID, stepID, comments string, actor Actor) (*WorkflowInstance, error) {
	step, err := e.Repo.GetStep(ctx, tenantID, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, ErrStepNotFound
	}

	now := time.Now()

	// Steps beyond the rejected one stay at whatever status they hold.
	err = e.Repo.Transaction(ctx, func(txCtx context.Context) error {
		finished, err := e.Repo.FinishStep(txCtx, step.ID, StepStatusRejected, "rejected", comments, now)
		if err != nil {
			return err
		}
		if !finished {
			return ErrStepNotActive
		}
		return e.Repo.FinalizeInstance(txCtx, step.InstanceID, InstanceStatusRejected, OutcomeRejected, actor.ID, now)
	})
	if err != nil {
		return nil, err
	}

	instance, err := e.Repo.GetInstance(ctx, tenantID, step.InstanceID.Hex())
	if err != nil {
		return nil, err
	}

	_ = e.AuditService.LogChange(ctx, common_models.AuditActionWorkflow, "workflow_steps", stepID, map[string]common_models.Change{
		"status": {Old: StepStatusInProgress, New: StepStatusRejected},
	})
	if instance != nil {
		e.notifyFinished(ctx, instance)
	}

	return instance, nil
}

func (e *WorkflowEngineImpl) notifyStepActivated(ctx context.Context, instance *WorkflowInstance, step *WorkflowStep) {
	if instance == nil || step == nil {
		return
	}
	if step.AssigneeID != "" {
		title := fmt.Sprintf("Approval required: %s", step.Name)
		message := fmt.Sprintf("%s for %s is waiting on you", instance.TemplateName, instance.EntityName)
		link := "/workflows/instances/" + instance.ID.Hex()
		if err := e.Events.Notify(ctx, instance.TenantID, step.AssigneeID, title, message, link); err != nil {
			e.Logger.Warn("assignee notification failed", zap.String("tenant", instance.TenantID), zap.Error(err))
		}
	}
	e.Events.Broadcast(instance.TenantID, map[string]interface{}{
		"event":       "step_activated",
		"instance_id": instance.ID.Hex(),
		"step_number": step.StepNumber,
		"step_name":   step.Name,
	})
}

func (e *WorkflowEngineImpl) notifyFinished(ctx context.Context, instance *WorkflowInstance) {
	if instance.InitiatedBy != "" {
		title := fmt.Sprintf("Workflow %s", instance.Status)
		message := fmt.Sprintf("%s for %s finished with outcome %s", instance.TemplateName, instance.EntityName, instance.Outcome)
		link := "/workflows/instances/" + instance.ID.Hex()
		if err := e.Events.Notify(ctx, instance.TenantID, instance.InitiatedBy, title, message, link); err != nil {
			e.Logger.Warn("initiator notification failed", zap.String("tenant", instance.TenantID), zap.Error(err))
		}
	}
	e.Events.Broadcast(instance.TenantID, map[string]interface{}{
		"event":       "instance_finished",
		"instance_id": instance.ID.Hex(),
		"status":      instance.Status,
		"outcome":     instance.Outcome,
	})
}

func autoApprovable(template *WorkflowTemplate, payload map[string]interface{}) bool {
	if template.AutoApproveBelow <= 0 || payload == nil {
		return false
	}
	switch amount := payload["amount"].(type) {
	case float64:
		return amount < template.AutoApproveBelow
	case int:
		return float64(amount) < template.AutoApproveBelow
	case int64:
		return float64(amount) < template.AutoApproveBelow
	default:
		return false
	}
}

func dueAt(from time.Time, slaHours int) *time.Time {
	if slaHours <= 0 {
		return nil
	}
	due := from.Add(time.Duration(slaHours) * time.Hour)
	return &due
}
