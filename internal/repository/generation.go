package repository

import (
	"context"

	"raih/internal/model"
)

// GenerationRepository defines data access for documentation generation
// records using SQL queries only. No business logic here — strictly
// persistence operations.
type GenerationRepository interface {
	// Create inserts a new generation record.
	// The caller should provide required fields (e.g., ID, CreatedAt) according to the database schema defaults.
	// Returns the stored record (may include values set by the DB).
	Create(ctx context.Context, gen *model.Generation) (*model.Generation, error)

	// FindByID returns a generation by its ID.
	FindByID(ctx context.Context, id string) (*model.Generation, error)

	// List returns a paginated list of generations and total rows count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Generation], error)

	// Delete removes a generation by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
