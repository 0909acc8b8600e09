package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ResourceStore answers resource existence checks for the submission path.
// Resource CRUD itself lives outside this service.
type ResourceStore struct {
	db *sqlx.DB
}

// NewResourceStore creates a new ResourceStore instance
func NewResourceStore(db *sqlx.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// Exists reports whether the resource is known
func (r *ResourceStore) Exists(ctx context.Context, resourceID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM resources WHERE resource_id = $1)
	`, resourceID)
	if err != nil {
		return false, fmt.Errorf("failed to check resource existence: %w", err)
	}

	return exists, nil
}
