package workflow

import (
	"context"
	"sync"
	"time"

	common_models "go-tpm/internal/common/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories mirroring the Mongo implementations closely
// enough to exercise the engine's transition rules.

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[primitive.ObjectID]*WorkflowTemplate
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[primitive.ObjectID]*WorkflowTemplate)}
}

func (r *fakeTemplateRepo) Create(ctx context.Context, template *WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if template.ID.IsZero() {
		template.ID = primitive.NewObjectID()
	}
	template.CreatedAt = time.Now()
	template.UpdatedAt = time.Now()
	copied := *template
	r.templates[template.ID] = &copied
	return nil
}

func (r *fakeTemplateRepo) GetByID(ctx context.Context, tenantID, id string) (*WorkflowTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	template, ok := r.templates[oid]
	if !ok || template.TenantID != tenantID {
		return nil, nil
	}
	copied := *template
	return &copied, nil
}

func (r *fakeTemplateRepo) List(ctx context.Context, tenantID string, filter TemplateFilter, limit, offset int64) ([]WorkflowTemplate, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []WorkflowTemplate{}
	for _, template := range r.templates {
		if template.TenantID != tenantID {
			continue
		}
		if filter.WorkflowType != "" && template.WorkflowType != filter.WorkflowType {
			continue
		}
		if filter.EntityType != "" && template.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && template.Status != filter.Status {
			continue
		}
		matched = append(matched, *template)
	}
	total := int64(len(matched))
	if offset >= total {
		return []WorkflowTemplate{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *fakeTemplateRepo) Update(ctx context.Context, tenantID, id string, set bson.M) (*WorkflowTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	template, ok := r.templates[oid]
	if !ok || template.TenantID != tenantID {
		return nil, nil
	}
	for key, value := range set {
		switch key {
		case "name":
			template.Name = value.(string)
		case "description":
			template.Description = value.(string)
		case "status":
			template.Status = value.(TemplateStatus)
		case "sla_hours":
			template.SLAHours = value.(int)
		case "auto_approve_below":
			template.AutoApproveBelow = value.(float64)
		case "steps":
			template.Steps = value.([]StepBlueprint)
		}
	}
	template.Version++
	template.UpdatedAt = time.Now()
	copied := *template
	return &copied, nil
}

func (r *fakeTemplateRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	template, ok := r.templates[oid]
	if !ok || template.TenantID != tenantID {
		return false, nil
	}
	delete(r.templates, oid)
	return true, nil
}

func (r *fakeTemplateRepo) Counts(ctx context.Context, tenantID string) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total, active int64
	for _, template := range r.templates {
		if template.TenantID != tenantID {
			continue
		}
		total++
		if template.Status == TemplateStatusActive {
			active++
		}
	}
	return total, active, nil
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[primitive.ObjectID]*WorkflowInstance
	steps     map[primitive.ObjectID]*WorkflowStep
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{
		instances: make(map[primitive.ObjectID]*WorkflowInstance),
		steps:     make(map[primitive.ObjectID]*WorkflowStep),
	}
}

func (r *fakeInstanceRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeInstanceRepo) CreateInstance(ctx context.Context, instance *WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if instance.ID.IsZero() {
		instance.ID = primitive.NewObjectID()
	}
	copied := *instance
	r.instances[instance.ID] = &copied
	return nil
}

func (r *fakeInstanceRepo) CreateSteps(ctx context.Context, steps []WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range steps {
		if steps[i].ID.IsZero() {
			steps[i].ID = primitive.NewObjectID()
		}
		copied := steps[i]
		r.steps[steps[i].ID] = &copied
	}
	return nil
}

func (r *fakeInstanceRepo) GetInstance(ctx context.Context, tenantID, id string) (*WorkflowInstance, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[oid]
	if !ok || instance.TenantID != tenantID {
		return nil, nil
	}
	copied := *instance
	return &copied, nil
}

func (r *fakeInstanceRepo) ListInstances(ctx context.Context, tenantID string, filter InstanceFilter, limit, offset int64) ([]WorkflowInstance, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []WorkflowInstance{}
	for _, instance := range r.instances {
		if instance.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		if filter.EntityType != "" && instance.EntityType != filter.EntityType {
			continue
		}
		if filter.TemplateID != "" && instance.TemplateID.Hex() != filter.TemplateID {
			continue
		}
		matched = append(matched, *instance)
	}
	return matched, int64(len(matched)), nil
}

func (r *fakeInstanceRepo) GetSteps(ctx context.Context, tenantID string, instanceID primitive.ObjectID) ([]WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := []WorkflowStep{}
	for number := 1; ; number++ {
		found := false
		for _, step := range r.steps {
			if step.InstanceID == instanceID && step.TenantID == tenantID && step.StepNumber == number {
				steps = append(steps, *step)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return steps, nil
}

func (r *fakeInstanceRepo) GetStep(ctx context.Context, tenantID, id string) (*WorkflowStep, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.steps[oid]
	if !ok || step.TenantID != tenantID {
		return nil, nil
	}
	copied := *step
	return &copied, nil
}

func (r *fakeInstanceRepo) GetStepByNumber(ctx context.Context, tenantID string, instanceID primitive.ObjectID, stepNumber int) (*WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, step := range r.steps {
		if step.InstanceID == instanceID && step.TenantID == tenantID && step.StepNumber == stepNumber {
			copied := *step
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) FinishStep(ctx context.Context, stepID primitive.ObjectID, status StepStatus, action, comments string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.steps[stepID]
	if !ok || step.Status != StepStatusInProgress {
		return false, nil
	}
	step.Status = status
	step.Action = action
	step.Comments = comments
	step.CompletedAt = &at
	return true, nil
}

func (r *fakeInstanceRepo) ActivateStep(ctx context.Context, stepID primitive.ObjectID, at time.Time, dueAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.steps[stepID]
	if !ok || step.Status != StepStatusPending {
		return nil
	}
	step.Status = StepStatusInProgress
	step.StartedAt = &at
	if dueAt != nil {
		step.DueAt = dueAt
	}
	return nil
}

func (r *fakeInstanceRepo) SetCurrentStep(ctx context.Context, instanceID primitive.ObjectID, stepNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[instanceID]
	if !ok || instance.Status != InstanceStatusInProgress {
		return nil
	}
	instance.CurrentStep = stepNumber
	return nil
}

func (r *fakeInstanceRepo) FinalizeInstance(ctx context.Context, instanceID primitive.ObjectID, status InstanceStatus, outcome Outcome, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[instanceID]
	if !ok || instance.Status != InstanceStatusInProgress {
		return nil
	}
	instance.Status = status
	instance.Outcome = outcome
	instance.CompletedBy = actorID
	instance.CompletedAt = &at
	return nil
}

func (r *fakeInstanceRepo) StatusCounts(ctx context.Context, tenantID string) (map[InstanceStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[InstanceStatus]int64{}
	for _, instance := range r.instances {
		if instance.TenantID != tenantID {
			continue
		}
		counts[instance.Status]++
	}
	return counts, nil
}

func (r *fakeInstanceRepo) ListOverdueSteps(ctx context.Context, now time.Time, limit int64) ([]WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	overdue := []WorkflowStep{}
	for _, step := range r.steps {
		if step.Status != StepStatusInProgress || step.EscalatedAt != nil {
			continue
		}
		if step.DueAt == nil || step.DueAt.After(now) {
			continue
		}
		overdue = append(overdue, *step)
		if int64(len(overdue)) >= limit {
			break
		}
	}
	return overdue, nil
}

func (r *fakeInstanceRepo) MarkEscalated(ctx context.Context, stepID primitive.ObjectID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.steps[stepID]
	if !ok || step.Status != StepStatusInProgress || step.EscalatedAt != nil {
		return false, nil
	}
	step.EscalatedAt = &at
	return true, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []common_models.AuditAction
}

func (a *fakeAudit) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, action)
	return nil
}

type sentNotification struct {
	TenantID string
	UserID   string
	Title    string
}

type fakeEvents struct {
	mu         sync.Mutex
	notified   []sentNotification
	broadcasts []string
}

func (e *fakeEvents) Notify(ctx context.Context, tenantID, userID, title, message, link string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notified = append(e.notified, sentNotification{TenantID: tenantID, UserID: userID, Title: title})
	return nil
}

func (e *fakeEvents) Broadcast(tenantID string, event interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := event.(map[string]interface{}); ok {
		if name, ok := m["event"].(string); ok {
			e.broadcasts = append(e.broadcasts, name)
		}
	}
}
