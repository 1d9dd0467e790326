package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"raih/internal/model"
	"raih/internal/repository"
)

func TestGenerationPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewGenerationPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	gen := &model.Generation{
		ID:           "test-uuid",
		ProjectName:  "billing-service",
		Timestamp:    "20260829_101500",
		MarkdownPath: "output/20260829_101500/billing-service_documentation.md",
		NotebookPath: "output/20260829_101500/billing-service_documentation.ipynb",
		CreatedAt:    now,
	}

	rows := sqlmock.NewRows([]string{"id", "project_name", "ts", "markdown_path", "notebook_path", "created_at"}).
		AddRow(gen.ID, gen.ProjectName, gen.Timestamp, gen.MarkdownPath, gen.NotebookPath, gen.CreatedAt)

	mock.ExpectQuery("INSERT INTO generations").
		WithArgs(gen.ID, gen.ProjectName, gen.Timestamp, gen.MarkdownPath, gen.NotebookPath, gen.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, gen)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, gen.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewGenerationPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "project_name", "ts", "markdown_path", "notebook_path", "created_at"}).
			AddRow("test-id", "proj", "20260829_101500", "output/20260829_101500/proj_documentation.md", "output/20260829_101500/proj_documentation.ipynb", time.Now())

		mock.ExpectQuery("SELECT (.+) FROM generations WHERE id = ?").
			WithArgs("test-id").
			WillReturnRows(rows)

		gen, err := repo.FindByID(ctx, "test-id")

		assert.NoError(t, err)
		assert.NotNil(t, gen)
		assert.Equal(t, "test-id", gen.ID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM generations WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		gen, err := repo.FindByID(ctx, "missing")

		assert.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
		assert.Nil(t, gen)
	})
}

func TestGenerationPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewGenerationPostgres(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM generations").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		rows := sqlmock.NewRows([]string{"id", "project_name", "ts", "markdown_path", "notebook_path", "created_at"}).
			AddRow("test-id", "proj", "20260829_101500", "out.md", "out.ipynb", time.Now())

		mock.ExpectQuery("SELECT (.+) FROM generations ORDER BY").
			WithArgs(10, 0).
			WillReturnRows(rows)

		res, err := repo.List(ctx, repository.PageQuery{Limit: 10, Offset: 0})

		assert.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Len(t, res.Items, 1)
	})

	t.Run("count error", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM generations").
			WillReturnError(sql.ErrConnDone)

		res, err := repo.List(ctx, repository.PageQuery{Limit: 10, Offset: 0})

		assert.Error(t, err)
		assert.Nil(t, res)
	})
}

func TestGenerationPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewGenerationPostgres(db)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM generations").
		WithArgs("test-id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Delete(ctx, "test-id")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
