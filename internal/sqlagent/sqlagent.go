// Package sqlagent turns natural language questions into warehouse SQL,
// executes it, and summarizes the results. The pipeline is: list tables,
// pick relevant ones, collect their DDL, generate a query, validate it,
// execute with LLM-assisted correction on failure, then summarize.
package sqlagent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"raih/internal/storage"
	"raih/internal/warehouse"
)

// Warehouse is the slice of the warehouse inspector the agent needs.
type Warehouse interface {
	AvailableTables(ctx context.Context) ([]string, error)
	TableDDL(ctx context.Context, table string) (string, error)
	ExecuteQuery(ctx context.Context, query string) (*warehouse.QueryResult, error)
}

// LLM sends one prompt to the language model platform and returns the answer.
type LLM interface {
	Send(ctx context.Context, query string) (string, error)
}

// Agent answers data questions against the warehouse.
type Agent struct {
	wh      Warehouse
	llm     LLM
	store   storage.Storage
	exports string // object key prefix for CSV exports

	// maxCorrections bounds how many times a failed query is sent back to
	// the LLM for repair before giving up.
	maxCorrections int
}

// New builds an Agent. store may be nil, in which case result sets are
// summarized but not exported to CSV.
func New(wh Warehouse, llm LLM, store storage.Storage) *Agent {
	return &Agent{
		wh:             wh,
		llm:            llm,
		store:          store,
		exports:        "results",
		maxCorrections: 2,
	}
}

// Ask runs the full question-to-answer pipeline. Pipeline failures are
// reported as user-facing text rather than errors so the router can relay
// them directly; only context cancellation is returned as an error.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	tables, err := a.wh.AvailableTables(ctx)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	if len(tables) == 0 {
		return "I couldn't find any tables in the database. Please check the database connection and permissions.", nil
	}

	relevant := a.relevantTables(ctx, question, tables)
	if len(relevant) == 0 {
		sample := tables
		if len(sample) > 10 {
			sample = sample[:10]
		}
		return fmt.Sprintf("I couldn't find any tables relevant to your question: '%s'. Available tables: %s", question, strings.Join(sample, ", ")), nil
	}

	var ddls []string
	for _, table := range relevant {
		ddl, err := a.wh.TableDDL(ctx, table)
		if err != nil {
			continue
		}
		ddls = append(ddls, ddl)
	}
	if len(ddls) == 0 {
		return fmt.Sprintf("I couldn't retrieve schema information for the relevant tables: %s", strings.Join(relevant, ", ")), nil
	}
	schema := strings.Join(ddls, "\n")

	query := a.generateQuery(ctx, question, schema)
	if query == "" {
		return "I couldn't generate a SQL query for your question. Please try rephrasing it.", nil
	}
	query = a.validateQuery(ctx, query, schema)

	var result *warehouse.QueryResult
	var execErr error
	for attempt := 0; ; attempt++ {
		result, execErr = a.wh.ExecuteQuery(ctx, query)
		if execErr == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt >= a.maxCorrections {
			return a.formatError(question, query, execErr), nil
		}
		corrected := a.correctQuery(ctx, query, execErr.Error(), schema)
		if corrected == "" || corrected == query {
			return a.formatError(question, query, execErr), nil
		}
		query = corrected
	}

	return a.formatResponse(ctx, question, query, result), nil
}

func (a *Agent) relevantTables(ctx context.Context, question string, tables []string) []string {
	var list strings.Builder
	for _, table := range tables {
		fmt.Fprintf(&list, "- %s\n", table)
	}

	prompt := fmt.Sprintf(`
Given the following question and list of available tables, determine which tables are most relevant to answer the question.

Question: %s

Available Tables:
%s
Return only the table names that are relevant, one per line, without any additional text or explanation.
If no tables seem relevant, return "NONE".
`, question, list.String())

	known := make(map[string]bool, len(tables))
	for _, table := range tables {
		known[table] = true
	}

	var relevant []string
	if resp, err := a.llm.Send(ctx, prompt); err == nil {
		for _, line := range strings.Split(resp, "\n") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
			if name != "" && name != "NONE" && known[name] {
				relevant = append(relevant, name)
			}
		}
	}

	// Fall back to matching question words against table names.
	if len(relevant) == 0 {
		words := strings.Fields(strings.ToLower(question))
		for _, table := range tables {
			lower := strings.ToLower(table)
			for _, word := range words {
				if len(word) > 3 && strings.Contains(lower, word) {
					relevant = append(relevant, table)
					break
				}
			}
		}
	}

	if len(relevant) > 5 {
		relevant = relevant[:5]
	}
	return relevant
}

func (a *Agent) generateQuery(ctx context.Context, question, schema string) string {
	prompt := fmt.Sprintf(`
You are an expert SQL developer working with PostgreSQL. Generate a SQL query to answer the following question.

Question: %s

Available Tables and Schema:
%s

Guidelines:
1. Use proper PostgreSQL syntax
2. Include appropriate JOINs if multiple tables are needed
3. Use proper aggregation functions when needed
4. Include ORDER BY clauses for better results
5. Use LIMIT when appropriate to avoid large result sets
6. Handle NULL values appropriately
7. Use proper date/time functions for PostgreSQL
8. Table names and column names should be properly quoted if needed

Return only the SQL query without any explanation or additional text.
`, question, schema)

	resp, err := a.llm.Send(ctx, prompt)
	if err != nil {
		return ""
	}
	return stripFences(resp)
}

func (a *Agent) validateQuery(ctx context.Context, query, schema string) string {
	prompt := fmt.Sprintf(`
Review the following SQL query for common mistakes and issues:

SQL Query:
%s

Available Tables and Columns:
%s

Check for:
1. Syntax errors
2. Invalid table or column names
3. Missing JOIN conditions
4. Incorrect aggregation usage
5. Data type mismatches
6. Performance issues (missing WHERE clauses, etc.)
7. PostgreSQL-specific syntax correctness

If the query is correct, respond with: "VALID"
If there are issues, respond with: "INVALID: [description of issues]"
If you can suggest a corrected query, also include: "CORRECTED: [corrected SQL query]"
`, query, schema)

	resp, err := a.llm.Send(ctx, prompt)
	if err != nil {
		return query
	}
	trimmed := strings.TrimSpace(resp)
	if strings.HasPrefix(trimmed, "VALID") {
		return query
	}
	if strings.Contains(trimmed, "INVALID:") && strings.Contains(trimmed, "CORRECTED:") {
		parts := strings.SplitN(trimmed, "CORRECTED:", 2)
		if corrected := stripFences(parts[1]); corrected != "" {
			return corrected
		}
	}
	return query
}

func (a *Agent) correctQuery(ctx context.Context, query, errMsg, schema string) string {
	prompt := fmt.Sprintf(`
The following SQL query failed with an error. Please correct it:

Original Query:
%s

Error Message:
%s

Available Tables and Columns:
%s

Please provide a corrected SQL query that fixes the error. Return only the corrected SQL query without any explanation.
`, query, errMsg, schema)

	resp, err := a.llm.Send(ctx, prompt)
	if err != nil {
		return ""
	}
	return stripFences(resp)
}

func (a *Agent) formatError(question, query string, execErr error) string {
	return fmt.Sprintf(`
I apologize, but I encountered an error while executing the query for your question: "%s"

Error: %v

Query attempted: %s

Please try rephrasing your question or check if the requested data exists in the database.
`, question, execErr, query)
}

func (a *Agent) formatResponse(ctx context.Context, question, query string, result *warehouse.QueryResult) string {
	if result.RowCount == 0 {
		return fmt.Sprintf(`
I successfully executed your query for: "%s"

However, no data was returned. This could mean:
- The data you're looking for doesn't exist
- The filtering conditions are too restrictive
- The tables might be empty

Query executed: %s
Execution time: %.2f seconds
`, question, query, result.ExecutionTime)
	}

	preview := renderPreview(result, 10)

	csvLink := ""
	if a.store != nil {
		if link, err := a.exportCSV(ctx, result); err == nil {
			csvLink = link
		}
	}

	prompt := fmt.Sprintf(`
You are a data analyst. Summarize the following SQL query results in plain English for the user, highlighting key findings, trends, or insights. If the data is tabular, mention notable values, counts, or patterns. Be concise and user-friendly.

User Question:
%s

SQL Query Executed:
%s

Results (showing up to 10 rows):
%s

If the data is too large, summarize only what is shown. If the data is simple, provide a brief summary.
`, question, query, preview)

	summary, err := a.llm.Send(ctx, prompt)
	if err != nil {
		summary = fmt.Sprintf("(Could not generate summary: %v)\n%s", err, preview)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nSummary for your question: %q\n\n%s\n", question, strings.TrimSpace(summary))
	if result.RowCount > 10 {
		fmt.Fprintf(&b, "\n(Showing first 10 rows out of %d total rows)", result.RowCount)
	}
	if csvLink != "" {
		fmt.Fprintf(&b, "\n\nYou can also download the attached CSV with all relevant records: [Download CSV](%s)", csvLink)
	}
	fmt.Fprintf(&b, "\n\nQuery executed: %s\nExecution time: %.2f seconds\n", query, result.ExecutionTime)
	return b.String()
}

// exportCSV writes the full result set to object storage and returns a
// service-relative download link.
func (a *Agent) exportCSV(ctx context.Context, result *warehouse.QueryResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(result.Columns); err != nil {
		return "", err
	}
	for _, row := range result.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				record[i] = ""
				continue
			}
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("results_%s_%s.csv", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	key := a.exports + "/" + name
	_, err := a.store.Put(ctx, key, &buf, storage.PutObjectOptions{
		Size:        int64(buf.Len()),
		ContentType: "text/csv",
	})
	if err != nil {
		return "", err
	}

	// Prefer a presigned URL so the file can be fetched without going through
	// the chatbot; fall back to the proxy route when presigning is unavailable.
	if url, err := a.store.PresignGet(ctx, key, 24*time.Hour); err == nil && url != "" {
		return url, nil
	}
	return "/results/" + name, nil
}

// renderPreview renders up to limit rows as an aligned text table for the
// summarization prompt.
func renderPreview(result *warehouse.QueryResult, limit int) string {
	rows := result.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}

	widths := make([]int, len(result.Columns))
	cells := make([][]string, 0, len(rows)+1)
	header := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
		widths[i] = len(col)
	}
	cells = append(cells, header)
	for _, row := range rows {
		line := make([]string, len(row))
		for i, v := range row {
			s := ""
			if v != nil {
				s = fmt.Sprintf("%v", v)
			}
			line[i] = s
			if i < len(widths) && len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
		cells = append(cells, line)
	}

	var b strings.Builder
	for _, line := range cells {
		for i, cell := range line {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripFences removes a markdown code fence wrapper from an LLM reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```sql") {
		s = s[len("```sql"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}
