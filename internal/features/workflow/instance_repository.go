package workflow

import (
	"context"
	"time"

	"go-tpm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type InstanceRepository interface {
	// Transaction runs fn inside a single Mongo transaction. The ctx
	// handed to fn carries the session and must be used for every
	// operation inside it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	CreateInstance(ctx context.Context, instance *WorkflowInstance) error
	CreateSteps(ctx context.Context, steps []WorkflowStep) error
	GetInstance(ctx context.Context, tenantID, id string) (*WorkflowInstance, error)
	ListInstances(ctx context.Context, tenantID string, filter InstanceFilter, limit, offset int64) ([]WorkflowInstance, int64, error)
	GetSteps(ctx context.Context, tenantID string, instanceID primitive.ObjectID) ([]WorkflowStep, error)
	GetStep(ctx context.Context, tenantID, id string) (*WorkflowStep, error)
	GetStepByNumber(ctx context.Context, tenantID string, instanceID primitive.ObjectID, stepNumber int) (*WorkflowStep, error)

	// FinishStep moves an in_progress step to a terminal status. It
	// matches on status in_progress so a step already acted on (or one
	// still pending) is never finished twice; the bool reports whether
	// the transition happened.
	FinishStep(ctx context.Context, stepID primitive.ObjectID, status StepStatus, action, comments string, at time.Time) (bool, error)
	ActivateStep(ctx context.Context, stepID primitive.ObjectID, at time.Time, dueAt *time.Time) error
	SetCurrentStep(ctx context.Context, instanceID primitive.ObjectID, stepNumber int) error
	FinalizeInstance(ctx context.Context, instanceID primitive.ObjectID, status InstanceStatus, outcome Outcome, actorID string, at time.Time) error

	StatusCounts(ctx context.Context, tenantID string) (map[InstanceStatus]int64, error)

	// Escalation scanner support
	ListOverdueSteps(ctx context.Context, now time.Time, limit int64) ([]WorkflowStep, error)
	MarkEscalated(ctx context.Context, stepID primitive.ObjectID, at time.Time) (bool, error)
}

type InstanceRepositoryImpl struct {
	client    *mongo.Client
	instances *mongo.Collection
	steps     *mongo.Collection
}

func NewInstanceRepository(mongodb *database.MongodbDB) InstanceRepository {
	return &InstanceRepositoryImpl{
		client:    mongodb.Client,
		instances: mongodb.DB.Collection("workflow_instances"),
		steps:     mongodb.DB.Collection("workflow_steps"),
	}
}

func (r *InstanceRepositoryImpl) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (r *InstanceRepositoryImpl) CreateInstance(ctx context.Context, instance *WorkflowInstance) error {
	if instance.ID.IsZero() {
		instance.ID = primitive.NewObjectID()
	}
	_, err := r.instances.InsertOne(ctx, instance)
	return err
}

func (r *InstanceRepositoryImpl) CreateSteps(ctx context.Context, steps []WorkflowStep) error {
	docs := make([]interface{}, 0, len(steps))
	for i := range steps {
		if steps[i].ID.IsZero() {
			steps[i].ID = primitive.NewObjectID()
		}
		docs = append(docs, steps[i])
	}
	_, err := r.steps.InsertMany(ctx, docs)
	return err
}

func (r *InstanceRepositoryImpl) GetInstance(ctx context.Context, tenantID, id string) (*WorkflowInstance, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var instance WorkflowInstance
	err = r.instances.FindOne(ctx, bson.M{"_id": oid, "tenant_id": tenantID}).Decode(&instance)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func (r *InstanceRepositoryImpl) ListInstances(ctx context.Context, tenantID string, filter InstanceFilter, limit, offset int64) ([]WorkflowInstance, int64, error) {
	query := bson.M{"tenant_id": tenantID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.TemplateID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.TemplateID)
		if err != nil {
			return []WorkflowInstance{}, 0, nil
		}
		query["template_id"] = oid
	}

	total, err := r.instances.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "initiated_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := r.instances.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	instances := []WorkflowInstance{}
	if err = cursor.All(ctx, &instances); err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

func (r *InstanceRepositoryImpl) GetSteps(ctx context.Context, tenantID string, instanceID primitive.ObjectID) ([]WorkflowStep, error) {
	opts := options.Find().SetSort(bson.D{{Key: "step_number", Value: 1}})
	cursor, err := r.steps.Find(ctx, bson.M{"instance_id": instanceID, "tenant_id": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	steps := []WorkflowStep{}
	if err = cursor.All(ctx, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *InstanceRepositoryImpl) GetStep(ctx context.Context, tenantID, id string) (*WorkflowStep, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var step WorkflowStep
	err = r.steps.FindOne(ctx, bson.M{"_id": oid, "tenant_id": tenantID}).Decode(&step)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

func (r *InstanceRepositoryImpl) GetStepByNumber(ctx context.Context, tenantID string, instanceID primitive.ObjectID, stepNumber int) (*WorkflowStep, error) {
	var step WorkflowStep
	err := r.steps.FindOne(ctx, bson.M{
		"instance_id": instanceID,
		"tenant_id":   tenantID,
		"step_number": stepNumber,
	}).Decode(&step)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

func (r *InstanceRepositoryImpl) FinishStep(ctx context.Context, stepID primitive.ObjectID, status StepStatus, action, comments string, at time.Time) (bool, error) {
	result, err := r.steps.UpdateOne(ctx,
		bson.M{"_id": stepID, "status": StepStatusInProgress},
		bson.M{"$set": bson.M{
			"status":       status,
			"action":       action,
			"comments":     comments,
			"completed_at": at,
		}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *InstanceRepositoryImpl) ActivateStep(ctx context.Context, stepID primitive.ObjectID, at time.Time, dueAt *time.Time) error {
	set := bson.M{
		"status":     StepStatusInProgress,
		"started_at": at,
	}
	if dueAt != nil {
		set["due_at"] = *dueAt
	}
	_, err := r.steps.UpdateOne(ctx,
		bson.M{"_id": stepID, "status": StepStatusPending},
		bson.M{"$set": set},
	)
	return err
}

func (r *InstanceRepositoryImpl) SetCurrentStep(ctx context.Context, instanceID primitive.ObjectID, stepNumber int) error {
	_, err := r.instances.UpdateOne(ctx,
		bson.M{"_id": instanceID, "status": InstanceStatusInProgress},
		bson.M{"$set": bson.M{"current_step": stepNumber}},
	)
	return err
}

func (r *InstanceRepositoryImpl) FinalizeInstance(ctx context.Context, instanceID primitive.ObjectID, status InstanceStatus, outcome Outcome, actorID string, at time.Time) error {
	_, err := r.instances.UpdateOne(ctx,
		bson.M{"_id": instanceID, "status": InstanceStatusInProgress},
		bson.M{"$set": bson.M{
			"status":       status,
			"outcome":      outcome,
			"completed_by": actorID,
			"completed_at": at,
		}},
	)
	return err
}

func (r *InstanceRepositoryImpl) StatusCounts(ctx context.Context, tenantID string) (map[InstanceStatus]int64, error) {
	counts := map[InstanceStatus]int64{}
	for _, status := range []InstanceStatus{InstanceStatusInProgress, InstanceStatusCompleted, InstanceStatusRejected} {
		n, err := r.instances.CountDocuments(ctx, bson.M{"tenant_id": tenantID, "status": status})
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

func (r *InstanceRepositoryImpl) ListOverdueSteps(ctx context.Context, now time.Time, limit int64) ([]WorkflowStep, error) {
	query := bson.M{
		"status":       StepStatusInProgress,
		"due_at":       bson.M{"$lte": now},
		"escalated_at": bson.M{"$exists": false},
	}

	opts := options.Find().SetSort(bson.D{{Key: "due_at", Value: 1}}).SetLimit(limit)
	cursor, err := r.steps.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	steps := []WorkflowStep{}
	if err = cursor.All(ctx, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *InstanceRepositoryImpl) MarkEscalated(ctx context.Context, stepID primitive.ObjectID, at time.Time) (bool, error) {
	result, err := r.steps.UpdateOne(ctx,
		bson.M{"_id": stepID, "status": StepStatusInProgress, "escalated_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"escalated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}
