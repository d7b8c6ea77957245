package escalation

import (
	"context"
	"testing"
	"time"

	common_models "go-tpm/internal/common/models"
	"go-tpm/internal/config"
	"go-tpm/internal/features/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// scanRepo implements just enough of workflow.InstanceRepository for
// the sweep: an overdue-step list, instance lookups, and the
// conditional escalation mark.
type scanRepo struct {
	instances map[primitive.ObjectID]*workflow.WorkflowInstance
	steps     map[primitive.ObjectID]*workflow.WorkflowStep
}

func newScanRepo() *scanRepo {
	return &scanRepo{
		instances: make(map[primitive.ObjectID]*workflow.WorkflowInstance),
		steps:     make(map[primitive.ObjectID]*workflow.WorkflowStep),
	}
}

func (r *scanRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *scanRepo) CreateInstance(ctx context.Context, instance *workflow.WorkflowInstance) error {
	if instance.ID.IsZero() {
		instance.ID = primitive.NewObjectID()
	}
	r.instances[instance.ID] = instance
	return nil
}

func (r *scanRepo) CreateSteps(ctx context.Context, steps []workflow.WorkflowStep) error {
	for i := range steps {
		if steps[i].ID.IsZero() {
			steps[i].ID = primitive.NewObjectID()
		}
		copied := steps[i]
		r.steps[steps[i].ID] = &copied
	}
	return nil
}

func (r *scanRepo) GetInstance(ctx context.Context, tenantID, id string) (*workflow.WorkflowInstance, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	instance, ok := r.instances[oid]
	if !ok || instance.TenantID != tenantID {
		return nil, nil
	}
	return instance, nil
}

func (r *scanRepo) ListInstances(ctx context.Context, tenantID string, filter workflow.InstanceFilter, limit, offset int64) ([]workflow.WorkflowInstance, int64, error) {
	return nil, 0, nil
}

func (r *scanRepo) GetSteps(ctx context.Context, tenantID string, instanceID primitive.ObjectID) ([]workflow.WorkflowStep, error) {
	return nil, nil
}

func (r *scanRepo) GetStep(ctx context.Context, tenantID, id string) (*workflow.WorkflowStep, error) {
	return nil, nil
}

func (r *scanRepo) GetStepByNumber(ctx context.Context, tenantID string, instanceID primitive.ObjectID, stepNumber int) (*workflow.WorkflowStep, error) {
	return nil, nil
}

func (r *scanRepo) FinishStep(ctx context.Context, stepID primitive.ObjectID, status workflow.StepStatus, action, comments string, at time.Time) (bool, error) {
	return false, nil
}

func (r *scanRepo) ActivateStep(ctx context.Context, stepID primitive.ObjectID, at time.Time, dueAt *time.Time) error {
	return nil
}

func (r *scanRepo) SetCurrentStep(ctx context.Context, instanceID primitive.ObjectID, stepNumber int) error {
	return nil
}

func (r *scanRepo) FinalizeInstance(ctx context.Context, instanceID primitive.ObjectID, status workflow.InstanceStatus, outcome workflow.Outcome, actorID string, at time.Time) error {
	return nil
}

func (r *scanRepo) StatusCounts(ctx context.Context, tenantID string) (map[workflow.InstanceStatus]int64, error) {
	return nil, nil
}

func (r *scanRepo) ListOverdueSteps(ctx context.Context, now time.Time, limit int64) ([]workflow.WorkflowStep, error) {
	overdue := []workflow.WorkflowStep{}
	for _, step := range r.steps {
		if step.Status != workflow.StepStatusInProgress || step.EscalatedAt != nil {
			continue
		}
		if step.DueAt == nil || step.DueAt.After(now) {
			continue
		}
		overdue = append(overdue, *step)
	}
	return overdue, nil
}

func (r *scanRepo) MarkEscalated(ctx context.Context, stepID primitive.ObjectID, at time.Time) (bool, error) {
	step, ok := r.steps[stepID]
	if !ok || step.Status != workflow.StepStatusInProgress || step.EscalatedAt != nil {
		return false, nil
	}
	step.EscalatedAt = &at
	return true, nil
}

type scanTemplateRepo struct {
	templates map[primitive.ObjectID]*workflow.WorkflowTemplate
}

func (r *scanTemplateRepo) Create(ctx context.Context, template *workflow.WorkflowTemplate) error {
	if template.ID.IsZero() {
		template.ID = primitive.NewObjectID()
	}
	r.templates[template.ID] = template
	return nil
}

func (r *scanTemplateRepo) GetByID(ctx context.Context, tenantID, id string) (*workflow.WorkflowTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	template, ok := r.templates[oid]
	if !ok || template.TenantID != tenantID {
		return nil, nil
	}
	return template, nil
}

func (r *scanTemplateRepo) List(ctx context.Context, tenantID string, filter workflow.TemplateFilter, limit, offset int64) ([]workflow.WorkflowTemplate, int64, error) {
	return nil, 0, nil
}

func (r *scanTemplateRepo) Update(ctx context.Context, tenantID, id string, set bson.M) (*workflow.WorkflowTemplate, error) {
	return nil, nil
}

func (r *scanTemplateRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	return false, nil
}

func (r *scanTemplateRepo) Counts(ctx context.Context, tenantID string) (int64, int64, error) {
	return 0, 0, nil
}

type recordingNotifier struct {
	userIDs []string
}

func (n *recordingNotifier) Notify(ctx context.Context, tenantID, userID, title, message, link string) error {
	n.userIDs = append(n.userIDs, userID)
	return nil
}

type recordingExecutor struct {
	executed [][]common_models.RuleAction
}

func (e *recordingExecutor) ExecuteActions(ctx context.Context, tenantID string, actions []common_models.RuleAction, payload map[string]interface{}) error {
	e.executed = append(e.executed, actions)
	return nil
}

func (e *recordingExecutor) ExecuteAction(ctx context.Context, tenantID string, action common_models.RuleAction, payload map[string]interface{}) error {
	return nil
}

type recordingAudit struct {
	actions []common_models.AuditAction
}

func (a *recordingAudit) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	a.actions = append(a.actions, action)
	return nil
}

func TestScanEscalatesOverdueSteps(t *testing.T) {
	repo := newScanRepo()
	templateRepo := &scanTemplateRepo{templates: make(map[primitive.ObjectID]*workflow.WorkflowTemplate)}
	notifier := &recordingNotifier{}
	executor := &recordingExecutor{}
	auditLog := &recordingAudit{}

	service := &EscalationServiceImpl{
		InstanceRepo: repo,
		TemplateRepo: templateRepo,
		Notifier:     notifier,
		Executor:     executor,
		Audit:        auditLog,
		Config:       &config.Config{EscalationCron: "*/15 * * * *"},
		Logger:       zap.NewNop(),
	}

	ctx := context.Background()
	now := time.Now()
	past := now.Add(-2 * time.Hour)
	future := now.Add(2 * time.Hour)

	template := &workflow.WorkflowTemplate{
		TenantID: "acme",
		Name:     "With Rules",
		EscalationRules: []workflow.EscalationRule{
			{Actions: []common_models.RuleAction{{Type: "notify", Config: map[string]interface{}{"user_id": "u-boss"}}}},
		},
	}
	_ = templateRepo.Create(ctx, template)

	instance := &workflow.WorkflowInstance{
		TenantID:     "acme",
		TemplateID:   template.ID,
		TemplateName: "With Rules",
		Status:       workflow.InstanceStatusInProgress,
	}
	_ = repo.CreateInstance(ctx, instance)

	finished := &workflow.WorkflowInstance{
		TenantID:   "acme",
		TemplateID: template.ID,
		Status:     workflow.InstanceStatusRejected,
	}
	_ = repo.CreateInstance(ctx, finished)

	_ = repo.CreateSteps(ctx, []workflow.WorkflowStep{
		{TenantID: "acme", InstanceID: instance.ID, StepNumber: 1, Name: "Overdue", AssigneeID: "u-late", Status: workflow.StepStatusInProgress, DueAt: &past},
		{TenantID: "acme", InstanceID: instance.ID, StepNumber: 2, Name: "Not due", Status: workflow.StepStatusInProgress, DueAt: &future},
		{TenantID: "acme", InstanceID: finished.ID, StepNumber: 1, Name: "Orphan", Status: workflow.StepStatusInProgress, DueAt: &past},
	})

	escalated, err := service.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// Only the overdue step on the live instance escalates.
	if escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalated)
	}
	if len(notifier.userIDs) != 1 || notifier.userIDs[0] != "u-late" {
		t.Errorf("assignee should be alerted, got %v", notifier.userIDs)
	}
	if len(executor.executed) != 1 {
		t.Errorf("rule actions should run once, got %d", len(executor.executed))
	}
	if len(auditLog.actions) != 1 || auditLog.actions[0] != common_models.AuditActionEscalation {
		t.Errorf("escalation should be audited, got %v", auditLog.actions)
	}

	// A second sweep finds nothing new.
	escalated, err = service.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if escalated != 0 {
		t.Errorf("second sweep escalated %d, want 0", escalated)
	}
}

func TestScanRespectsRuleDelay(t *testing.T) {
	repo := newScanRepo()
	templateRepo := &scanTemplateRepo{templates: make(map[primitive.ObjectID]*workflow.WorkflowTemplate)}
	executor := &recordingExecutor{}

	service := &EscalationServiceImpl{
		InstanceRepo: repo,
		TemplateRepo: templateRepo,
		Notifier:     &recordingNotifier{},
		Executor:     executor,
		Audit:        &recordingAudit{},
		Config:       &config.Config{EscalationCron: "*/15 * * * *"},
		Logger:       zap.NewNop(),
	}

	ctx := context.Background()
	justPast := time.Now().Add(-time.Hour)

	// Rule waits 24h beyond the due date; the step is only 1h overdue.
	template := &workflow.WorkflowTemplate{
		TenantID: "acme",
		Name:     "Delayed",
		EscalationRules: []workflow.EscalationRule{
			{AfterHours: 24, Actions: []common_models.RuleAction{{Type: "webhook"}}},
		},
	}
	_ = templateRepo.Create(ctx, template)

	instance := &workflow.WorkflowInstance{
		TenantID:   "acme",
		TemplateID: template.ID,
		Status:     workflow.InstanceStatusInProgress,
	}
	_ = repo.CreateInstance(ctx, instance)
	_ = repo.CreateSteps(ctx, []workflow.WorkflowStep{
		{TenantID: "acme", InstanceID: instance.ID, StepNumber: 1, Status: workflow.StepStatusInProgress, DueAt: &justPast},
	})

	escalated, err := service.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// The step is marked, but the delayed rule does not fire yet.
	if escalated != 1 {
		t.Errorf("escalated = %d, want 1", escalated)
	}
	if len(executor.executed) != 0 {
		t.Errorf("delayed rule should not fire, got %d runs", len(executor.executed))
	}
}
