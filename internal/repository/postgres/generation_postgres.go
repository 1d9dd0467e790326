package postgres

import (
	"context"
	"database/sql"

	"raih/internal/model"
	"raih/internal/repository"
)

// GenerationPostgres is a PostgreSQL implementation of repository.GenerationRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type GenerationPostgres struct {
	db *sql.DB
}

// NewGenerationPostgres creates a new GenerationPostgres repository.
func NewGenerationPostgres(db *sql.DB) *GenerationPostgres {
	return &GenerationPostgres{db: db}
}

var _ repository.GenerationRepository = (*GenerationPostgres)(nil)

// Create inserts a new generation row and returns the stored record.
func (r *GenerationPostgres) Create(ctx context.Context, gen *model.Generation) (*model.Generation, error) {
	const q = `
		INSERT INTO generations (id, project_name, ts, markdown_path, notebook_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, project_name, ts, markdown_path, notebook_path, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		gen.ID,
		gen.ProjectName,
		gen.Timestamp,
		gen.MarkdownPath,
		gen.NotebookPath,
		gen.CreatedAt,
	)
	var out model.Generation
	if err := row.Scan(
		&out.ID,
		&out.ProjectName,
		&out.Timestamp,
		&out.MarkdownPath,
		&out.NotebookPath,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single generation by its ID.
func (r *GenerationPostgres) FindByID(ctx context.Context, id string) (*model.Generation, error) {
	const q = `
		SELECT id, project_name, ts, markdown_path, notebook_path, created_at
		FROM generations
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, q, id)
	var g model.Generation
	if err := row.Scan(
		&g.ID,
		&g.ProjectName,
		&g.Timestamp,
		&g.MarkdownPath,
		&g.NotebookPath,
		&g.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns generations using LIMIT/OFFSET pagination and a total count.
func (r *GenerationPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Generation], error) {
	const qCount = `SELECT COUNT(*) FROM generations`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, project_name, ts, markdown_path, notebook_path, created_at
		FROM generations
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Generation, 0)
	for rows.Next() {
		var g model.Generation
		if err := rows.Scan(
			&g.ID,
			&g.ProjectName,
			&g.Timestamp,
			&g.MarkdownPath,
			&g.NotebookPath,
			&g.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Generation]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes a generation by ID. It does not return an error if the row does not exist.
func (r *GenerationPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM generations WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}
