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

type TemplateRepository interface {
	Create(ctx context.Context, template *WorkflowTemplate) error
	GetByID(ctx context.Context, tenantID, id string) (*WorkflowTemplate, error)
	List(ctx context.Context, tenantID string, filter TemplateFilter, limit, offset int64) ([]WorkflowTemplate, int64, error)
	Update(ctx context.Context, tenantID, id string, set bson.M) (*WorkflowTemplate, error)
	Delete(ctx context.Context, tenantID, id string) (bool, error)
	Counts(ctx context.Context, tenantID string) (total int64, active int64, err error)
}

type TemplateRepositoryImpl struct {
	collection *mongo.Collection
}

func NewTemplateRepository(mongodb *database.MongodbDB) TemplateRepository {
	return &TemplateRepositoryImpl{
		collection: mongodb.DB.Collection("workflow_templates"),
	}
}

func (r *TemplateRepositoryImpl) Create(ctx context.Context, template *WorkflowTemplate) error {
	if template.ID.IsZero() {
		template.ID = primitive.NewObjectID()
	}
	template.CreatedAt = time.Now()
	template.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, template)
	return err
}

func (r *TemplateRepositoryImpl) GetByID(ctx context.Context, tenantID, id string) (*WorkflowTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var template WorkflowTemplate
	err = r.collection.FindOne(ctx, bson.M{"_id": oid, "tenant_id": tenantID}).Decode(&template)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *TemplateRepositoryImpl) List(ctx context.Context, tenantID string, filter TemplateFilter, limit, offset int64) ([]WorkflowTemplate, int64, error) {
	query := bson.M{"tenant_id": tenantID}
	if filter.WorkflowType != "" {
		query["workflow_type"] = filter.WorkflowType
	}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	templates := []WorkflowTemplate{}
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

func (r *TemplateRepositoryImpl) Update(ctx context.Context, tenantID, id string, set bson.M) (*WorkflowTemplate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	set["updated_at"] = time.Now()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var template WorkflowTemplate
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "tenant_id": tenantID},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		opts,
	).Decode(&template)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *TemplateRepositoryImpl) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid, "tenant_id": tenantID})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (r *TemplateRepositoryImpl) Counts(ctx context.Context, tenantID string) (int64, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, 0, err
	}
	active, err := r.collection.CountDocuments(ctx, bson.M{"tenant_id": tenantID, "status": TemplateStatusActive})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
