package connectors

import (
	"context"
)

// EntitySource resolves display names for business entities that live
// outside this service (promotions, budgets, claims in an ERP store).
// The workflow engine consults it when a caller starts an instance
// without an entity_name.
type EntitySource interface {
	Enabled() bool
	LookupName(ctx context.Context, entityType, entityID string) (string, error)
	Close() error
}

// NoopEntitySource is used when no external source is configured.
type NoopEntitySource struct{}

func (NoopEntitySource) Enabled() bool { return false }

func (NoopEntitySource) LookupName(ctx context.Context, entityType, entityID string) (string, error) {
	return "", nil
}

func (NoopEntitySource) Close() error { return nil }
