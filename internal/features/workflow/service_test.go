package workflow

import (
	"context"
	"testing"
)

func newTestService() (*TemplateServiceImpl, *fakeTemplateRepo, *fakeInstanceRepo) {
	templateRepo := newFakeTemplateRepo()
	instanceRepo := newFakeInstanceRepo()
	service := &TemplateServiceImpl{
		Repo:         templateRepo,
		InstanceRepo: instanceRepo,
		AuditService: &fakeAudit{},
	}
	return service, templateRepo, instanceRepo
}

func TestCreateTemplateDefaults(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	template, err := service.CreateTemplate(ctx, "acme", CreateTemplateRequest{Name: "Promo Approval"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	if template.WorkflowType != WorkflowTypeApproval {
		t.Errorf("workflow_type default = %s, want approval", template.WorkflowType)
	}
	if template.TriggerEvent != TriggerOnSubmit {
		t.Errorf("trigger_event default = %s, want on_submit", template.TriggerEvent)
	}
	if template.Status != TemplateStatusActive {
		t.Errorf("status default = %s, want active", template.Status)
	}
	if template.Version != 1 {
		t.Errorf("version = %d, want 1", template.Version)
	}
	if template.IsSystem {
		t.Error("caller-created templates must not be system templates")
	}
	if template.Steps == nil {
		t.Error("steps should default to an empty list")
	}
	if template.TenantID != "acme" {
		t.Errorf("tenant = %q, want acme", template.TenantID)
	}
}

func TestCreateTemplateNameRequired(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t"} {
		if _, err := service.CreateTemplate(ctx, "acme", CreateTemplateRequest{Name: name}); err != ErrNameRequired {
			t.Errorf("name %q: got %v, want ErrNameRequired", name, err)
		}
	}
}

func TestListTemplatesFilters(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	seed := []CreateTemplateRequest{
		{Name: "Promo A", EntityType: "promotion"},
		{Name: "Promo B", EntityType: "promotion", Status: TemplateStatusInactive},
		{Name: "Budget", EntityType: "budget"},
	}
	for _, req := range seed {
		if _, err := service.CreateTemplate(ctx, "acme", req); err != nil {
			t.Fatalf("seed %q: %v", req.Name, err)
		}
	}
	if _, err := service.CreateTemplate(ctx, "rival", CreateTemplateRequest{Name: "Theirs", EntityType: "promotion"}); err != nil {
		t.Fatalf("seed rival: %v", err)
	}

	tests := []struct {
		name   string
		filter TemplateFilter
		want   int64
	}{
		{"by entity type", TemplateFilter{EntityType: "promotion"}, 2},
		{"by entity type and status", TemplateFilter{EntityType: "promotion", Status: TemplateStatusActive}, 1},
		{"by status", TemplateFilter{Status: TemplateStatusActive}, 2},
		{"no filter", TemplateFilter{}, 3},
		{"no matches", TemplateFilter{EntityType: "claim"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := service.ListTemplates(ctx, "acme", tt.filter, 50, 0)
			if err != nil {
				t.Fatalf("ListTemplates: %v", err)
			}
			if total != tt.want || int64(len(items)) != tt.want {
				t.Errorf("total=%d len=%d, want %d", total, len(items), tt.want)
			}
			for _, template := range items {
				if tt.filter.EntityType != "" && template.EntityType != tt.filter.EntityType {
					t.Errorf("row %q leaked through entity_type filter", template.Name)
				}
				if template.TenantID != "acme" {
					t.Errorf("row %q leaked across tenants", template.Name)
				}
			}
		})
	}
}

func TestUpdateTemplatePartial(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	template, _ := service.CreateTemplate(ctx, "acme", CreateTemplateRequest{
		Name:     "Original",
		SLAHours: 48,
	})

	newName := "Renamed"
	updated, err := service.UpdateTemplate(ctx, "acme", template.ID.Hex(), UpdateTemplateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}

	if updated.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", updated.Name)
	}
	if updated.SLAHours != 48 {
		t.Errorf("omitted fields must be preserved, sla_hours = %d", updated.SLAHours)
	}
	if updated.Status != TemplateStatusActive {
		t.Errorf("omitted status must be preserved, got %s", updated.Status)
	}
	if updated.Version != 2 {
		t.Errorf("version should bump on update, got %d", updated.Version)
	}
}

func TestUpdateTemplateNotFound(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	name := "x"
	if _, err := service.UpdateTemplate(ctx, "acme", "bad-id", UpdateTemplateRequest{Name: &name}); err != ErrTemplateNotFound {
		t.Errorf("bad id: got %v, want ErrTemplateNotFound", err)
	}

	template, _ := service.CreateTemplate(ctx, "other", CreateTemplateRequest{Name: "Theirs"})
	if _, err := service.UpdateTemplate(ctx, "acme", template.ID.Hex(), UpdateTemplateRequest{Name: &name}); err != ErrTemplateNotFound {
		t.Errorf("cross-tenant: got %v, want ErrTemplateNotFound", err)
	}
}

func TestDeleteTemplateSystemProtected(t *testing.T) {
	service, templateRepo, _ := newTestService()
	ctx := context.Background()

	system := &WorkflowTemplate{TenantID: "acme", Name: "Built-in", IsSystem: true, Status: TemplateStatusActive}
	if err := templateRepo.Create(ctx, system); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := service.DeleteTemplate(ctx, "acme", system.ID.Hex()); err != ErrSystemTemplate {
		t.Errorf("got %v, want ErrSystemTemplate", err)
	}

	// Still there.
	if got, _ := templateRepo.GetByID(ctx, "acme", system.ID.Hex()); got == nil {
		t.Error("system template must survive the delete attempt")
	}

	regular, _ := service.CreateTemplate(ctx, "acme", CreateTemplateRequest{Name: "Deletable"})
	if err := service.DeleteTemplate(ctx, "acme", regular.ID.Hex()); err != nil {
		t.Errorf("regular delete: %v", err)
	}
	if err := service.DeleteTemplate(ctx, "acme", regular.ID.Hex()); err != ErrTemplateNotFound {
		t.Errorf("second delete: got %v, want ErrTemplateNotFound", err)
	}
}

func TestSummaryCountsAreTenantScoped(t *testing.T) {
	service, _, instanceRepo := newTestService()
	ctx := context.Background()

	_, _ = service.CreateTemplate(ctx, "acme", CreateTemplateRequest{Name: "Active A"})
	_, _ = service.CreateTemplate(ctx, "acme", CreateTemplateRequest{Name: "Inactive", Status: TemplateStatusInactive})
	_, _ = service.CreateTemplate(ctx, "rival", CreateTemplateRequest{Name: "Other Tenant"})

	for _, status := range []InstanceStatus{
		InstanceStatusInProgress,
		InstanceStatusCompleted,
		InstanceStatusCompleted,
		InstanceStatusRejected,
	} {
		if err := instanceRepo.CreateInstance(ctx, &WorkflowInstance{TenantID: "acme", Status: status}); err != nil {
			t.Fatalf("seed instance: %v", err)
		}
	}
	_ = instanceRepo.CreateInstance(ctx, &WorkflowInstance{TenantID: "rival", Status: InstanceStatusInProgress})

	summary, err := service.Summary(ctx, "acme")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if summary.Templates.Total != 2 || summary.Templates.Active != 1 {
		t.Errorf("templates = %+v, want total 2 / active 1", summary.Templates)
	}
	if summary.Instances.Total != 4 || summary.Instances.InProgress != 1 ||
		summary.Instances.Completed != 2 || summary.Instances.Rejected != 1 {
		t.Errorf("instances = %+v", summary.Instances)
	}
}

func TestOptionsEnumerations(t *testing.T) {
	service, _, _ := newTestService()

	options := service.Options()
	if len(options.WorkflowTypes) == 0 || len(options.TriggerEvents) == 0 || len(options.StepTypes) == 0 {
		t.Fatalf("options should enumerate all sets: %+v", options)
	}
	if len(options.EntityTypes) != len(EntityTypes) {
		t.Errorf("entity types = %d, want %d", len(options.EntityTypes), len(EntityTypes))
	}
}
