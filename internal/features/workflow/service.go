package workflow

import (
	"context"
	"strings"

	common_models "go-tpm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson"
)

// AuditLogger is satisfied by the audit feature; declared here to keep
// the dependency direction one-way.
type AuditLogger interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
}

type TemplateService interface {
	ListTemplates(ctx context.Context, tenantID string, filter TemplateFilter, limit, offset int64) ([]WorkflowTemplate, int64, error)
	GetTemplate(ctx context.Context, tenantID, id string) (*WorkflowTemplate, error)
	CreateTemplate(ctx context.Context, tenantID string, req CreateTemplateRequest) (*WorkflowTemplate, error)
	UpdateTemplate(ctx context.Context, tenantID, id string, req UpdateTemplateRequest) (*WorkflowTemplate, error)
	DeleteTemplate(ctx context.Context, tenantID, id string) error
	Summary(ctx context.Context, tenantID string) (*WorkflowSummary, error)
	Options() *WorkflowOptions
}

type TemplateServiceImpl struct {
	Repo         TemplateRepository
	InstanceRepo InstanceRepository
	AuditService AuditLogger
}

func NewTemplateService(repo TemplateRepository, instanceRepo InstanceRepository, auditService AuditLogger) TemplateService {
	return &TemplateServiceImpl{
		Repo:         repo,
		InstanceRepo: instanceRepo,
		AuditService: auditService,
	}
}

func (s *TemplateServiceImpl) ListTemplates(ctx context.Context, tenantID string, filter TemplateFilter, limit, offset int64) ([]WorkflowTemplate, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, tenantID, filter, limit, offset)
}

func (s *TemplateServiceImpl) GetTemplate(ctx context.Context, tenantID, id string) (*WorkflowTemplate, error) {
	template, err := s.Repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}
	return template, nil
}

func (s *TemplateServiceImpl) CreateTemplate(ctx context.Context, tenantID string, req CreateTemplateRequest) (*WorkflowTemplate, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrNameRequired
	}

	template := &WorkflowTemplate{
		TenantID:         tenantID,
		Name:             req.Name,
		Description:      req.Description,
		WorkflowType:     req.WorkflowType,
		EntityType:       req.EntityType,
		TriggerEvent:     req.TriggerEvent,
		Status:           req.Status,
		IsSystem:         false,
		Version:          1,
		Steps:            req.Steps,
		Conditions:       req.Conditions,
		EscalationRules:  req.EscalationRules,
		SLAHours:         req.SLAHours,
		AutoApproveBelow: req.AutoApproveBelow,
		Notes:            req.Notes,
		Payload:          req.Payload,
	}

	if template.WorkflowType == "" {
		template.WorkflowType = WorkflowTypeApproval
	}
	if template.TriggerEvent == "" {
		template.TriggerEvent = TriggerOnSubmit
	}
	if template.Status == "" {
		template.Status = TemplateStatusActive
	}
	if template.Steps == nil {
		template.Steps = []StepBlueprint{}
	}

	if err := s.Repo.Create(ctx, template); err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCreate, "workflow_templates", template.ID.Hex(), map[string]common_models.Change{
		"template": {New: template.Name},
	})

	return template, nil
}

func (s *TemplateServiceImpl) UpdateTemplate(ctx context.Context, tenantID, id string, req UpdateTemplateRequest) (*WorkflowTemplate, error) {
	set := bson.M{}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.WorkflowType != nil {
		set["workflow_type"] = *req.WorkflowType
	}
	if req.EntityType != nil {
		set["entity_type"] = *req.EntityType
	}
	if req.TriggerEvent != nil {
		set["trigger_event"] = *req.TriggerEvent
	}
	if req.Status != nil {
		set["status"] = *req.Status
	}
	if req.Steps != nil {
		set["steps"] = *req.Steps
	}
	if req.Conditions != nil {
		set["conditions"] = *req.Conditions
	}
	if req.EscalationRules != nil {
		set["escalation_rules"] = *req.EscalationRules
	}
	if req.SLAHours != nil {
		set["sla_hours"] = *req.SLAHours
	}
	if req.AutoApproveBelow != nil {
		set["auto_approve_below"] = *req.AutoApproveBelow
	}
	if req.Notes != nil {
		set["notes"] = *req.Notes
	}
	if req.Payload != nil {
		set["payload"] = *req.Payload
	}

	template, err := s.Repo.Update(ctx, tenantID, id, set)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionUpdate, "workflow_templates", id, map[string]common_models.Change{
		"template": {New: template.Name},
	})

	return template, nil
}

func (s *TemplateServiceImpl) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	template, err := s.Repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if template == nil {
		return ErrTemplateNotFound
	}
	if template.IsSystem {
		return ErrSystemTemplate
	}

	deleted, err := s.Repo.Delete(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTemplateNotFound
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionDelete, "workflow_templates", id, map[string]common_models.Change{
		"template": {Old: template.Name},
	})

	return nil
}

func (s *TemplateServiceImpl) Summary(ctx context.Context, tenantID string) (*WorkflowSummary, error) {
	summary := &WorkflowSummary{}

	total, active, err := s.Repo.Counts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	summary.Templates.Total = total
	summary.Templates.Active = active

	counts, err := s.InstanceRepo.StatusCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	summary.Instances.InProgress = counts[InstanceStatusInProgress]
	summary.Instances.Completed = counts[InstanceStatusCompleted]
	summary.Instances.Rejected = counts[InstanceStatusRejected]
	summary.Instances.Total = summary.Instances.InProgress + summary.Instances.Completed + summary.Instances.Rejected

	return summary, nil
}

func (s *TemplateServiceImpl) Options() *WorkflowOptions {
	return &WorkflowOptions{
		WorkflowTypes: []WorkflowType{
			WorkflowTypeApproval,
			WorkflowTypeReview,
			WorkflowTypeNotification,
			WorkflowTypeEscalation,
			WorkflowTypeCustom,
		},
		EntityTypes: EntityTypes,
		TriggerEvents: []TriggerEvent{
			TriggerOnCreate,
			TriggerOnSubmit,
			TriggerOnAmountThreshold,
			TriggerOnStatusChange,
			TriggerManual,
		},
		StepTypes: []StepType{
			StepTypeApproval,
			StepTypeReview,
			StepTypeNotification,
			StepTypeSignOff,
		},
	}
}
