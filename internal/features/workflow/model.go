package workflow

import (
	"errors"
	"time"

	common_models "go-tpm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WorkflowType string

const (
	WorkflowTypeApproval     WorkflowType = "approval"
	WorkflowTypeReview       WorkflowType = "review"
	WorkflowTypeNotification WorkflowType = "notification"
	WorkflowTypeEscalation   WorkflowType = "escalation"
	WorkflowTypeCustom       WorkflowType = "custom"
)

type TriggerEvent string

const (
	TriggerOnCreate          TriggerEvent = "on_create"
	TriggerOnSubmit          TriggerEvent = "on_submit"
	TriggerOnAmountThreshold TriggerEvent = "on_amount_threshold"
	TriggerOnStatusChange    TriggerEvent = "on_status_change"
	TriggerManual            TriggerEvent = "manual"
)

type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusInactive TemplateStatus = "inactive"
)

type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusRejected   InstanceStatus = "rejected"
)

type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusRejected   StepStatus = "rejected"
)

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

type StepType string

const (
	StepTypeApproval     StepType = "approval"
	StepTypeReview       StepType = "review"
	StepTypeNotification StepType = "notification"
	StepTypeSignOff      StepType = "sign_off"
)

// Sentinel errors mapped to HTTP statuses at the controller boundary.
// A record owned by another tenant surfaces the same not-found as a
// missing record.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrStepNotFound     = errors.New("step not found")
	ErrStepNotActive    = errors.New("step is not active")
	ErrSystemTemplate   = errors.New("cannot delete system template")
	ErrNameRequired     = errors.New("template name is required")
)

// StepBlueprint is one entry in a template's ordered step list
type StepBlueprint struct {
	Name         string                 `json:"name" bson:"name"`
	Type         StepType               `json:"type" bson:"type"`
	AssigneeID   string                 `json:"assignee_id,omitempty" bson:"assignee_id,omitempty"`
	AssigneeName string                 `json:"assignee_name,omitempty" bson:"assignee_name,omitempty"`
	SLAHours     int                    `json:"sla_hours,omitempty" bson:"sla_hours,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty" bson:"config,omitempty"`
}

// EscalationRule fires when a step is past due; actions run through the
// automation executor.
type EscalationRule struct {
	AfterHours int                        `json:"after_hours" bson:"after_hours"`
	Actions    []common_models.RuleAction `json:"actions,omitempty" bson:"actions,omitempty"`
}

// WorkflowTemplate is a reusable, versioned blueprint owned by a tenant
type WorkflowTemplate struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID     string             `json:"tenant_id" bson:"tenant_id"`
	Name         string             `json:"name" bson:"name"`
	Description  string             `json:"description,omitempty" bson:"description,omitempty"`
	WorkflowType WorkflowType       `json:"workflow_type" bson:"workflow_type"`
	EntityType   string             `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	TriggerEvent TriggerEvent       `json:"trigger_event" bson:"trigger_event"`

	Status   TemplateStatus `json:"status" bson:"status"`
	IsSystem bool           `json:"is_system" bson:"is_system"`
	Version  int            `json:"version" bson:"version"`

	Steps            []StepBlueprint               `json:"steps" bson:"steps"`
	Conditions       []common_models.RuleCondition `json:"conditions,omitempty" bson:"conditions,omitempty"`
	EscalationRules  []EscalationRule              `json:"escalation_rules,omitempty" bson:"escalation_rules,omitempty"`
	SLAHours         int                           `json:"sla_hours,omitempty" bson:"sla_hours,omitempty"`
	AutoApproveBelow float64                       `json:"auto_approve_below,omitempty" bson:"auto_approve_below,omitempty"`

	Notes     string                 `json:"notes,omitempty" bson:"notes,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`
}

// WorkflowInstance is one execution of a template against one business
// entity. TemplateName is snapshotted at creation so later template
// edits never rewrite history.
type WorkflowInstance struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID     string             `json:"tenant_id" bson:"tenant_id"`
	TemplateID   primitive.ObjectID `json:"template_id" bson:"template_id"`
	TemplateName string             `json:"template_name" bson:"template_name"`

	EntityType string `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty" bson:"entity_name,omitempty"`

	Status      InstanceStatus `json:"status" bson:"status"`
	CurrentStep int            `json:"current_step" bson:"current_step"`
	TotalSteps  int            `json:"total_steps" bson:"total_steps"`

	Outcome     Outcome    `json:"outcome,omitempty" bson:"outcome,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty" bson:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`

	InitiatedBy string                 `json:"initiated_by" bson:"initiated_by"`
	InitiatedAt time.Time              `json:"initiated_at" bson:"initiated_at"`
	Notes       string                 `json:"notes,omitempty" bson:"notes,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
}

// WorkflowStep is one stage within one instance. StepNumber is 1-based
// and unique per instance.
type WorkflowStep struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID   string             `json:"tenant_id" bson:"tenant_id"`
	InstanceID primitive.ObjectID `json:"instance_id" bson:"instance_id"`
	StepNumber int                `json:"step_number" bson:"step_number"`

	Name         string                 `json:"name" bson:"name"`
	Type         StepType               `json:"type" bson:"type"`
	AssigneeID   string                 `json:"assignee_id,omitempty" bson:"assignee_id,omitempty"`
	AssigneeName string                 `json:"assignee_name,omitempty" bson:"assignee_name,omitempty"`
	SLAHours     int                    `json:"sla_hours,omitempty" bson:"sla_hours,omitempty"`
	DueAt        *time.Time             `json:"due_at,omitempty" bson:"due_at,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty" bson:"config,omitempty"`

	Status      StepStatus `json:"status" bson:"status"`
	Action      string     `json:"action,omitempty" bson:"action,omitempty"`
	Comments    string     `json:"comments,omitempty" bson:"comments,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty" bson:"escalated_at,omitempty"`
}

// InstanceDetail pairs an instance with its steps ordered by step_number
type InstanceDetail struct {
	Instance *WorkflowInstance `json:"instance"`
	Steps    []WorkflowStep    `json:"steps"`
}

// Actor identifies who performed an operation
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateTemplateRequest carries the writable template fields
type CreateTemplateRequest struct {
	Name             string                        `json:"name"`
	Description      string                        `json:"description"`
	WorkflowType     WorkflowType                  `json:"workflow_type"`
	EntityType       string                        `json:"entity_type"`
	TriggerEvent     TriggerEvent                  `json:"trigger_event"`
	Status           TemplateStatus                `json:"status"`
	Steps            []StepBlueprint               `json:"steps"`
	Conditions       []common_models.RuleCondition `json:"conditions"`
	EscalationRules  []EscalationRule              `json:"escalation_rules"`
	SLAHours         int                           `json:"sla_hours"`
	AutoApproveBelow float64                       `json:"auto_approve_below"`
	Notes            string                        `json:"notes"`
	Payload          map[string]interface{}        `json:"payload"`
}

// UpdateTemplateRequest is a partial update: nil fields are preserved,
// including the full step list and nested rule objects. is_system is
// not updatable through this path.
type UpdateTemplateRequest struct {
	Name             *string                        `json:"name"`
	Description      *string                        `json:"description"`
	WorkflowType     *WorkflowType                  `json:"workflow_type"`
	EntityType       *string                        `json:"entity_type"`
	TriggerEvent     *TriggerEvent                  `json:"trigger_event"`
	Status           *TemplateStatus                `json:"status"`
	Steps            *[]StepBlueprint               `json:"steps"`
	Conditions       *[]common_models.RuleCondition `json:"conditions"`
	EscalationRules  *[]EscalationRule              `json:"escalation_rules"`
	SLAHours         *int                           `json:"sla_hours"`
	AutoApproveBelow *float64                       `json:"auto_approve_below"`
	Notes            *string                        `json:"notes"`
	Payload          *map[string]interface{}        `json:"payload"`
}

// CreateInstanceRequest starts a workflow for one business entity
type CreateInstanceRequest struct {
	TemplateID string                 `json:"template_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	EntityName string                 `json:"entity_name"`
	Notes      string                 `json:"notes"`
	Payload    map[string]interface{} `json:"payload"`
}

// TemplateFilter narrows template listings
type TemplateFilter struct {
	WorkflowType WorkflowType
	EntityType   string
	Status       TemplateStatus
}

// InstanceFilter narrows instance listings
type InstanceFilter struct {
	Status     InstanceStatus
	EntityType string
	TemplateID string
}

// WorkflowSummary is the tenant-scoped aggregate used by dashboards
type WorkflowSummary struct {
	Templates struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	} `json:"templates"`
	Instances struct {
		Total      int64 `json:"total"`
		InProgress int64 `json:"in_progress"`
		Completed  int64 `json:"completed"`
		Rejected   int64 `json:"rejected"`
	} `json:"instances"`
}

// WorkflowOptions is the static enumeration set for selection controls
type WorkflowOptions struct {
	WorkflowTypes []WorkflowType `json:"workflow_types"`
	EntityTypes   []string       `json:"entity_types"`
	TriggerEvents []TriggerEvent `json:"trigger_events"`
	StepTypes     []StepType     `json:"step_types"`
}

// EntityTypes the workflow engine governs. Also the whitelist for the
// external entity-source lookup.
var EntityTypes = []string{
	"promotion",
	"budget",
	"contract",
	"claim",
	"market_intelligence",
	"settlement",
}
