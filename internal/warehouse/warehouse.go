// Package warehouse inspects and queries the analytics database that
// generated SQL runs against. It exposes the table catalog, reconstructed
// DDL with sample data, and a generic query executor.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// QueryResult is the outcome of one executed SELECT.
type QueryResult struct {
	Columns       []string        `json:"columns"`
	Rows          [][]interface{} `json:"rows"`
	RowCount      int             `json:"row_count"`
	ExecutionTime float64         `json:"execution_time"`
}

// Inspector reads warehouse metadata and runs queries. DDL descriptions are
// cached per table because they are rebuilt for every generated query.
type Inspector struct {
	db          *sql.DB
	tablePrefix string

	mu       sync.Mutex
	ddlCache map[string]string
}

// NewInspector creates an Inspector limited to tables matching tablePrefix,
// a SQL LIKE pattern such as "ONETRUST%".
func NewInspector(db *sql.DB, tablePrefix string) *Inspector {
	return &Inspector{
		db:          db,
		tablePrefix: tablePrefix,
		ddlCache:    make(map[string]string),
	}
}

// AvailableTables lists the base tables exposed to query generation.
func (i *Inspector) AvailableTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		  AND table_name LIKE $1
		ORDER BY table_name
	`
	rows, err := i.db.QueryContext(ctx, q, i.tablePrefix)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableDDL returns a textual description of one table: column definitions,
// up to five sample rows, and the total row count. Results are cached for
// the lifetime of the Inspector.
func (i *Inspector) TableDDL(ctx context.Context, table string) (string, error) {
	i.mu.Lock()
	if ddl, ok := i.ddlCache[table]; ok {
		i.mu.Unlock()
		return ddl, nil
	}
	i.mu.Unlock()

	const colQ = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := i.db.QueryContext(ctx, colQ, table)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	cols := 0
	for rows.Next() {
		var name, dtype, nullable string
		if err := rows.Scan(&name, &dtype, &nullable); err != nil {
			return "", err
		}
		if cols > 0 {
			b.WriteString(",\n")
		}
		null := ""
		if nullable == "NO" {
			null = " NOT NULL"
		}
		fmt.Fprintf(&b, "    %s %s%s", name, dtype, null)
		cols++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	b.WriteString("\n);\n")
	if cols == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}

	sample, err := i.ExecuteQuery(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 5", table))
	if err == nil && len(sample.Rows) > 0 {
		fmt.Fprintf(&b, "\n-- Sample data (%s):\n", strings.Join(sample.Columns, ", "))
		for _, row := range sample.Rows {
			vals := make([]string, len(row))
			for j, v := range row {
				vals[j] = fmt.Sprintf("%v", v)
			}
			fmt.Fprintf(&b, "-- %s\n", strings.Join(vals, " | "))
		}
	}

	var total int
	if err := i.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&total); err == nil {
		fmt.Fprintf(&b, "\n-- Total rows: %d\n", total)
	}

	ddl := b.String()
	i.mu.Lock()
	i.ddlCache[table] = ddl
	i.mu.Unlock()
	return ddl, nil
}

// TableColumns returns the column names of one table in ordinal order.
func (i *Inspector) TableColumns(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := i.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ExecuteQuery runs a query and materializes the full result set.
// Values are decoded to plain Go types so they serialize cleanly to JSON.
func (i *Inspector) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([][]interface{}, 0)
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for j := range raw {
			ptrs[j] = &raw[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		vals := make([]interface{}, len(cols))
		for j, v := range raw {
			if b, ok := v.([]byte); ok {
				vals[j] = string(b)
			} else {
				vals[j] = v
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:       cols,
		Rows:          out,
		RowCount:      len(out),
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}
