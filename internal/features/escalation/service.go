package escalation

import (
	"context"
	"time"

	common_models "go-tpm/internal/common/models"
	"go-tpm/internal/config"
	"go-tpm/internal/features/automation"
	"go-tpm/internal/features/workflow"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const scanBatchSize = 100

// EscalationService periodically scans active workflow steps that are
// past their due date, marks them escalated, alerts the assignee and
// runs the owning template's escalation rule actions. It lives outside
// the transition engine; the engine's only SLA duty is keeping due_at
// accurate.
type EscalationService interface {
	Start(ctx context.Context) error
	Stop() error
	Scan(ctx context.Context) (int, error)
}

type EscalationServiceImpl struct {
	InstanceRepo workflow.InstanceRepository
	TemplateRepo workflow.TemplateRepository
	Notifier     automation.Notifier
	Executor     automation.ActionExecutor
	Audit        workflow.AuditLogger
	Config       *config.Config
	Logger       *zap.Logger

	scheduler *cron.Cron
}

func NewEscalationService(
	instanceRepo workflow.InstanceRepository,
	templateRepo workflow.TemplateRepository,
	notifier automation.Notifier,
	executor automation.ActionExecutor,
	auditService workflow.AuditLogger,
	cfg *config.Config,
	logger *zap.Logger,
) EscalationService {
	return &EscalationServiceImpl{
		InstanceRepo: instanceRepo,
		TemplateRepo: templateRepo,
		Notifier:     notifier,
		Executor:     executor,
		Audit:        auditService,
		Config:       cfg,
		Logger:       logger,
	}
}

func (s *EscalationServiceImpl) Start(ctx context.Context) error {
	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(s.Config.EscalationCron, func() {
		if _, err := s.Scan(context.Background()); err != nil {
			s.Logger.Error("escalation scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.Logger.Info("escalation scanner started", zap.String("schedule", s.Config.EscalationCron))
	return nil
}

func (s *EscalationServiceImpl) Stop() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	return nil
}

// Scan handles one sweep and returns how many steps were escalated.
func (s *EscalationServiceImpl) Scan(ctx context.Context) (int, error) {
	now := time.Now()

	steps, err := s.InstanceRepo.ListOverdueSteps(ctx, now, scanBatchSize)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range steps {
		step := &steps[i]

		instance, err := s.InstanceRepo.GetInstance(ctx, step.TenantID, step.InstanceID.Hex())
		if err != nil {
			s.Logger.Warn("failed to load instance for overdue step", zap.String("step", step.ID.Hex()), zap.Error(err))
			continue
		}
		if instance == nil || instance.Status != workflow.InstanceStatusInProgress {
			continue
		}

		// MarkEscalated is conditional; a concurrent scan or a racing
		// transition makes it a no-op.
		marked, err := s.InstanceRepo.MarkEscalated(ctx, step.ID, now)
		if err != nil {
			s.Logger.Warn("failed to mark step escalated", zap.String("step", step.ID.Hex()), zap.Error(err))
			continue
		}
		if !marked {
			continue
		}
		escalated++

		// The scan context carries no tenant; audit needs the step's.
		tenantCtx := context.WithValue(ctx, common_models.TenantIDKey, step.TenantID)

		s.alertAssignee(ctx, instance, step)
		s.runRuleActions(ctx, instance, step, now)

		_ = s.Audit.LogChange(tenantCtx, common_models.AuditActionEscalation, "workflow_steps", step.ID.Hex(), map[string]common_models.Change{
			"escalated_at": {New: now},
		})
	}

	if escalated > 0 {
		s.Logger.Info("escalation sweep done", zap.Int("escalated", escalated))
	}
	return escalated, nil
}

func (s *EscalationServiceImpl) alertAssignee(ctx context.Context, instance *workflow.WorkflowInstance, step *workflow.WorkflowStep) {
	if step.AssigneeID == "" {
		return
	}
	title := "Step overdue: " + step.Name
	message := instance.TemplateName + " for " + instance.EntityName + " is past its SLA"
	link := "/workflows/instances/" + instance.ID.Hex()
	if err := s.Notifier.Notify(ctx, step.TenantID, step.AssigneeID, title, message, link); err != nil {
		s.Logger.Warn("escalation notification failed", zap.String("step", step.ID.Hex()), zap.Error(err))
	}
}

func (s *EscalationServiceImpl) runRuleActions(ctx context.Context, instance *workflow.WorkflowInstance, step *workflow.WorkflowStep, now time.Time) {
	template, err := s.TemplateRepo.GetByID(ctx, step.TenantID, instance.TemplateID.Hex())
	if err != nil || template == nil {
		return
	}

	payload := map[string]interface{}{
		"instance_id":   instance.ID.Hex(),
		"template_name": instance.TemplateName,
		"entity_type":   instance.EntityType,
		"entity_id":     instance.EntityID,
		"entity_name":   instance.EntityName,
		"step_number":   step.StepNumber,
		"step_name":     step.Name,
		"assignee_id":   step.AssigneeID,
		"due_at":        step.DueAt,
	}

	for _, rule := range template.EscalationRules {
		if step.DueAt != nil && rule.AfterHours > 0 {
			threshold := step.DueAt.Add(time.Duration(rule.AfterHours) * time.Hour)
			if now.Before(threshold) {
				continue
			}
		}
		_ = s.Executor.ExecuteActions(ctx, step.TenantID, rule.Actions, payload)
	}
}
