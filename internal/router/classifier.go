// Package router classifies incoming chat questions and dispatches them to
// either the SQL agent or the RAG knowledge workflow. Classification blends
// four independent signals: keyword weights, warehouse schema references,
// regex patterns, and an LLM vote.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// QueryType is the routing class assigned to a question.
type QueryType string

const (
	QueryTypeSQL       QueryType = "sql"
	QueryTypeRAG       QueryType = "rag"
	QueryTypeAmbiguous QueryType = "ambiguous"
)

// LLM sends one prompt to the language model platform and returns the answer.
type LLM interface {
	Send(ctx context.Context, query string) (string, error)
}

// SchemaSource exposes the warehouse catalog used for context scoring.
type SchemaSource interface {
	AvailableTables(ctx context.Context) ([]string, error)
	TableColumns(ctx context.Context, table string) ([]string, error)
}

// ClassificationResult carries the routing decision plus the raw strategy
// scores so the caller can break ties without re-running the strategies.
type ClassificationResult struct {
	Type           QueryType `json:"type"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning"`
	SuggestedRoute string    `json:"suggested_route"`
	SQLScore       float64   `json:"-"`
	RAGScore       float64   `json:"-"`
}

var sqlKeywords = map[string]float64{
	"select": 0.9, "from": 0.9, "where": 0.9, "join": 0.9, "group by": 0.9,
	"order by": 0.9, "having": 0.9, "count": 0.8, "sum": 0.8, "avg": 0.8,
	"max": 0.8, "min": 0.8, "distinct": 0.8, "limit": 0.8, "top": 0.8,

	"show me": 0.7, "list": 0.7, "find": 0.6, "get": 0.6, "retrieve": 0.6,
	"display": 0.6, "fetch": 0.6, "extract": 0.6, "query": 0.7,

	"how many": 0.8, "how much": 0.8, "total": 0.7, "number of": 0.7,
	"amount": 0.7, "revenue": 0.7, "sales": 0.7, "profit": 0.7,
	"cost": 0.7, "price": 0.7, "value": 0.6,

	"compare": 0.7, "versus": 0.7, "vs": 0.7, "between": 0.6,
	"greater than": 0.7, "less than": 0.7, "highest": 0.8, "lowest": 0.8,
	"best": 0.7, "worst": 0.7, "bottom": 0.8,

	"last": 0.7, "previous": 0.7, "recent": 0.7, "current": 0.7,
	"this year": 0.7, "this month": 0.7, "today": 0.7, "yesterday": 0.7,
	"trend": 0.7, "over time": 0.7, "monthly": 0.7, "yearly": 0.7,
	"quarterly": 0.7, "daily": 0.7,
}

var ragKeywords = map[string]float64{
	"what is": 0.9, "explain": 0.9, "describe": 0.9, "define": 0.9,
	"how does": 0.8, "why": 0.8, "concept": 0.8, "meaning": 0.8,
	"definition": 0.8, "overview": 0.8, "introduction": 0.7,

	"tell me about": 0.8, "information about": 0.8, "details about": 0.7,
	"background": 0.7, "history": 0.7, "context": 0.7, "summary": 0.7,

	"how to": 0.8, "steps": 0.7, "process": 0.7, "procedure": 0.7,
	"method": 0.7, "approach": 0.7, "way to": 0.7, "guide": 0.7,

	"analyze": 0.7, "interpretation": 0.7, "insight": 0.7, "opinion": 0.8,
	"recommendation": 0.8, "advice": 0.8, "suggestion": 0.8,

	"generally": 0.6, "typically": 0.6, "usually": 0.6, "common": 0.6,
	"best practice": 0.8, "standard": 0.7, "policy": 0.7, "regulation": 0.7,
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(show|list|get|find|retrieve)\s+(all|top|first|\d+)?\s*\w+`),
	regexp.MustCompile(`\b(how many|count of|number of|total)\b`),
	regexp.MustCompile(`\b(sum|average|max|min|count)\s+of\b`),
	regexp.MustCompile(`\b(greater than|less than|between|equals?)\s+\d+`),
	regexp.MustCompile(`\b(last|previous|recent|current)\s+(year|month|week|day)`),
	regexp.MustCompile(`\b(compare|versus|vs)\b`),
	regexp.MustCompile(`\b(group by|order by|sort by)\b`),
	regexp.MustCompile(`\bwhere\s+\w+\s*(=|>|<|>=|<=)`),
	regexp.MustCompile(`\b(join|inner join|left join|right join)\b`),
}

var ragPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(what is|what are|what does)\b`),
	regexp.MustCompile(`\b(explain|describe|define)\b`),
	regexp.MustCompile(`\b(how to|how do|how can)\b`),
	regexp.MustCompile(`\b(why|because|reason)\b`),
	regexp.MustCompile(`\b(tell me about|information about)\b`),
	regexp.MustCompile(`\b(concept of|meaning of|definition of)\b`),
	regexp.MustCompile(`\b(best practice|recommendation|advice)\b`),
	regexp.MustCompile(`\b(generally|typically|usually|commonly)\b`),
}

var dbTerms = []string{"table", "database", "record", "row", "column", "field", "data"}

// Each strategy contributes equally to the blended score.
const strategyWeight = 0.25

// Classifier scores questions against keywords, schema context, regex
// patterns and an LLM vote.
type Classifier struct {
	llm          LLM
	tables       []string
	tableColumns map[string][]string
}

// NewClassifier builds a Classifier, loading the warehouse catalog for
// context scoring. Schema loading is best effort: a warehouse that is down
// degrades context scores to zero instead of failing startup.
func NewClassifier(ctx context.Context, llm LLM, schema SchemaSource) *Classifier {
	c := &Classifier{
		llm:          llm,
		tableColumns: make(map[string][]string),
	}
	if schema == nil {
		return c
	}
	tables, err := schema.AvailableTables(ctx)
	if err != nil {
		return c
	}
	c.tables = tables
	// Column lookup is capped so a wide catalog does not stall startup.
	limit := len(tables)
	if limit > 18 {
		limit = 18
	}
	for _, table := range tables[:limit] {
		cols, err := schema.TableColumns(ctx, table)
		if err != nil {
			continue
		}
		lower := make([]string, len(cols))
		for i, col := range cols {
			lower[i] = strings.ToLower(col)
		}
		c.tableColumns[strings.ToLower(table)] = lower
	}
	return c
}

func (c *Classifier) keywordAnalysis(query string) (float64, float64) {
	q := strings.ToLower(query)

	sqlScore, sqlMatches := 0.0, 0
	for kw, w := range sqlKeywords {
		if strings.Contains(q, kw) {
			sqlScore += w
			sqlMatches++
		}
	}
	ragScore, ragMatches := 0.0, 0
	for kw, w := range ragKeywords {
		if strings.Contains(q, kw) {
			ragScore += w
			ragMatches++
		}
	}

	if sqlMatches > 0 {
		sqlScore /= float64(sqlMatches)
	}
	if ragMatches > 0 {
		ragScore /= float64(ragMatches)
	}
	return sqlScore, ragScore
}

func (c *Classifier) databaseContextAnalysis(query string) float64 {
	q := strings.ToLower(query)
	score := 0.0
	matches := 0

	for _, table := range c.tables {
		if strings.Contains(q, strings.ToLower(table)) {
			score += 0.8
			matches++
		}
	}
	for _, cols := range c.tableColumns {
		for _, col := range cols {
			if len(col) > 3 && strings.Contains(q, col) {
				score += 0.6
				matches++
			}
		}
	}
	for _, term := range dbTerms {
		if strings.Contains(q, term) {
			score += 0.3
			matches++
		}
	}

	if matches > 0 {
		score = score / float64(matches)
		if score > 1.0 {
			score = 1.0
		}
	}
	return score
}

func (c *Classifier) patternAnalysis(query string) (float64, float64) {
	q := strings.ToLower(query)

	sqlScore := 0.0
	for _, p := range sqlPatterns {
		if p.MatchString(q) {
			sqlScore++
		}
	}
	ragScore := 0.0
	for _, p := range ragPatterns {
		if p.MatchString(q) {
			ragScore++
		}
	}
	return sqlScore / float64(len(sqlPatterns)), ragScore / float64(len(ragPatterns))
}

func (c *Classifier) llmClassification(ctx context.Context, query string) (QueryType, float64, string) {
	tablesContext := ""
	if len(c.tables) > 0 {
		sample := c.tables
		if len(sample) > 10 {
			sample = sample[:10]
		}
		tablesContext = "Available database tables include: " + strings.Join(sample, ", ")
		if len(c.tables) > 10 {
			tablesContext += fmt.Sprintf(" (and %d more)", len(c.tables)-10)
		}
	}

	prompt := fmt.Sprintf(`
You are a query classifier that determines whether a user question should be routed to a SQL database agent or a RAG knowledge base agent.

%s

Classification Guidelines:

SQL DATABASE AGENT - Route here if the query:
- Requests specific data from tables/databases
- Asks for counts, sums, averages, or other calculations
- Needs filtering, sorting, or aggregation of structured data
- Asks "how many", "show me", "list", "find records"
- Requests comparisons between data points
- Asks for trends, reports, or analytics from data
- References table names or data fields
- Needs real-time or current data from the database

RAG KNOWLEDGE AGENT - Route here if the query:
- Asks for explanations, definitions, or concepts
- Requests "what is", "explain", "describe", "define"
- Asks "how to" or procedural questions
- Seeks general knowledge or background information
- Asks for recommendations, best practices, or advice
- Requests analysis or interpretation (not raw data)
- Asks about policies, regulations, or guidelines
- Seeks opinions or subjective information

User Query: "%s"

Respond with exactly this format:
CLASSIFICATION: [SQL or RAG]
CONFIDENCE: [0.0-1.0]
REASONING: [Brief explanation of why this classification was chosen]

Examples:
- "How many customers do we have?" → SQL (requests count from database)
- "What is customer segmentation?" → RAG (asks for concept explanation)
- "Show me top 10 sales by region" → SQL (requests specific data with sorting)
- "Explain how to improve customer retention" → RAG (asks for advice/strategy)
`, tablesContext, query)

	resp, err := c.llm.Send(ctx, prompt)
	if err != nil {
		return QueryTypeAmbiguous, 0.5, fmt.Sprintf("LLM classification error: %v", err)
	}

	classification := QueryTypeAmbiguous
	confidence := 0.5
	reasoning := "Could not parse LLM response"

	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CLASSIFICATION:"):
			text := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "CLASSIFICATION:")))
			if strings.Contains(text, "SQL") {
				classification = QueryTypeSQL
			} else if strings.Contains(text, "RAG") {
				classification = QueryTypeRAG
			}
		case strings.HasPrefix(line, "CONFIDENCE:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:")), 64); err == nil {
				confidence = clamp(v, 0.0, 1.0)
			} else {
				confidence = 0.5
			}
		case strings.HasPrefix(line, "REASONING:"):
			reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}
	return classification, confidence, reasoning
}

// Classify blends the four strategy scores into a routing decision.
// Scores within 0.1 of each other are ambiguous; confidence is capped at 0.95.
func (c *Classifier) Classify(ctx context.Context, query string) *ClassificationResult {
	sqlKeywordScore, ragKeywordScore := c.keywordAnalysis(query)
	dbContextScore := c.databaseContextAnalysis(query)
	sqlPatternScore, ragPatternScore := c.patternAnalysis(query)
	llmType, llmConfidence, llmReasoning := c.llmClassification(ctx, query)

	llmSQL, llmRAG := 0.0, 0.0
	if llmType == QueryTypeSQL {
		llmSQL = llmConfidence
	}
	if llmType == QueryTypeRAG {
		llmRAG = llmConfidence
	}

	sqlScore := strategyWeight*sqlKeywordScore +
		strategyWeight*dbContextScore +
		strategyWeight*sqlPatternScore +
		strategyWeight*llmSQL

	// Schema context counts against RAG, so its complement feeds the RAG side.
	ragScore := strategyWeight*ragKeywordScore +
		strategyWeight*(1.0-dbContextScore) +
		strategyWeight*ragPatternScore +
		strategyWeight*llmRAG

	res := &ClassificationResult{SQLScore: sqlScore, RAGScore: ragScore}
	diff := sqlScore - ragScore
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff < 0.1:
		res.Type = QueryTypeAmbiguous
		res.Confidence = 0.5
		res.Reasoning = fmt.Sprintf("Ambiguous query. SQL score: %.2f, RAG score: %.2f", sqlScore, ragScore)
		res.SuggestedRoute = "Manual Review Required"
	case sqlScore > ragScore:
		res.Type = QueryTypeSQL
		res.Confidence = clamp(sqlScore, 0, 0.95)
		res.Reasoning = fmt.Sprintf("SQL classification. Scores - SQL: %.2f, RAG: %.2f. %s", sqlScore, ragScore, llmReasoning)
		res.SuggestedRoute = "SQL Database Agent"
	default:
		res.Type = QueryTypeRAG
		res.Confidence = clamp(ragScore, 0, 0.95)
		res.Reasoning = fmt.Sprintf("RAG classification. Scores - SQL: %.2f, RAG: %.2f. %s", sqlScore, ragScore, llmReasoning)
		res.SuggestedRoute = "RAG Knowledge Agent"
	}
	return res
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
