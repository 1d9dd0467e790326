package warehouse

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestInspector_AvailableTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	insp := NewInspector(db, "ONETRUST%")
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"table_name"}).
		AddRow("onetrust_assessments").
		AddRow("onetrust_inventory")

	mock.ExpectQuery("SELECT table_name").
		WithArgs("ONETRUST%").
		WillReturnRows(rows)

	tables, err := insp.AvailableTables(ctx)

	assert.NoError(t, err)
	assert.Equal(t, []string{"onetrust_assessments", "onetrust_inventory"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInspector_ExecuteQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	insp := NewInspector(db, "%")
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"name", "count"}).
			AddRow("alpha", 3).
			AddRow([]byte("beta"), 5)

		mock.ExpectQuery("SELECT name, count FROM items").WillReturnRows(rows)

		res, err := insp.ExecuteQuery(ctx, "SELECT name, count FROM items")

		assert.NoError(t, err)
		assert.Equal(t, []string{"name", "count"}, res.Columns)
		assert.Equal(t, 2, res.RowCount)
		// []byte values are decoded to string so JSON output stays readable
		assert.Equal(t, "beta", res.Rows[1][0])
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT broken").WillReturnError(sql.ErrConnDone)

		res, err := insp.ExecuteQuery(ctx, "SELECT broken")

		assert.Error(t, err)
		assert.Nil(t, res)
	})
}

func TestInspector_TableDDL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	insp := NewInspector(db, "ONETRUST%")
	ctx := context.Background()

	cols := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "uuid", "NO").
		AddRow("status", "text", "YES")
	mock.ExpectQuery("SELECT column_name, data_type, is_nullable").
		WithArgs("onetrust_assessments").
		WillReturnRows(cols)

	sample := sqlmock.NewRows([]string{"id", "status"}).
		AddRow("a1", "open")
	mock.ExpectQuery("SELECT \\* FROM onetrust_assessments LIMIT 5").
		WillReturnRows(sample)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM onetrust_assessments").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	ddl, err := insp.TableDDL(ctx, "onetrust_assessments")

	assert.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE onetrust_assessments")
	assert.Contains(t, ddl, "id uuid NOT NULL")
	assert.Contains(t, ddl, "status text")
	assert.Contains(t, ddl, "a1 | open")
	assert.Contains(t, ddl, "Total rows: 42")

	// Second call is served from cache and must not touch the database.
	again, err := insp.TableDDL(ctx, "onetrust_assessments")
	assert.NoError(t, err)
	assert.Equal(t, ddl, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInspector_TableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	insp := NewInspector(db, "%")

	mock.ExpectQuery("SELECT column_name").
		WithArgs("onetrust_assessments").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id").AddRow("status"))

	cols, err := insp.TableColumns(context.Background(), "onetrust_assessments")

	assert.NoError(t, err)
	assert.Equal(t, []string{"id", "status"}, cols)
}

func TestInspector_TableDDL_NoColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	insp := NewInspector(db, "%")

	mock.ExpectQuery("SELECT column_name, data_type, is_nullable").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	_, err = insp.TableDDL(context.Background(), "ghost")
	assert.Error(t, err)
}
