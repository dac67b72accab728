package repository

import (
	"context"

	"github.com/smallbiznis/agentdesk/pkg/db/option"
)

// Repository is a generic gorm store bound to one *gorm.DB, usually the
// transaction a service operation runs in.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when no row matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	// UpdateVersioned applies fields only when the row still carries
	// expectedVersion and bumps the version column. It reports whether the
	// row was updated.
	UpdateVersioned(ctx context.Context, id any, expectedVersion int64, fields map[string]any) (bool, error)
	Count(ctx context.Context, query *T) (int64, error)
}
