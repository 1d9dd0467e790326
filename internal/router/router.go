package router

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Agent answers a question with free text. Both the SQL agent and the RAG
// workflow satisfy this.
type Agent interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, question string) (string, error)

func (f AgentFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// Result is the outcome of routing one question.
type Result struct {
	Query          string                `json:"query"`
	Timestamp      string                `json:"timestamp"`
	Classification *ClassificationResult `json:"classification"`
	Response       string                `json:"response"`
	AgentUsed      string                `json:"agent_used"`
	ExecutionTime  float64               `json:"execution_time"`
	Success        bool                  `json:"success"`
	Error          string                `json:"error,omitempty"`
}

const (
	agentSQL           = "SQL Database Agent"
	agentRAG           = "RAG Knowledge Agent"
	agentClarification = "Router (Clarification)"
)

// RouterAgent classifies questions and dispatches them to the SQL agent or
// the RAG workflow, asking the user to clarify when confidence is too low.
type RouterAgent struct {
	sql        Agent
	rag        Agent
	classifier *Classifier
	threshold  float64
}

// NewRouterAgent wires the classifier to the two downstream agents.
// threshold gates SQL routing; RAG routing uses a softer floor of
// max(0.4, 0.6*threshold) because knowledge answers tolerate misroutes better.
func NewRouterAgent(sql, rag Agent, classifier *Classifier, threshold float64) *RouterAgent {
	return &RouterAgent{sql: sql, rag: rag, classifier: classifier, threshold: threshold}
}

// Classifier exposes the underlying classifier for direct classification calls.
func (r *RouterAgent) Classifier() *Classifier { return r.classifier }

// Route classifies the question and runs the selected agent. Prefixing the
// question with "force sql " or "force rag " bypasses classification.
func (r *RouterAgent) Route(ctx context.Context, query string) *Result {
	res := &Result{
		Query:     query,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	start := time.Now()
	defer func() {
		res.ExecutionTime = time.Since(start).Seconds()
	}()

	forced := ""
	lower := strings.ToLower(query)
	if strings.HasPrefix(lower, "force sql ") {
		forced = "sql"
		query = strings.TrimSpace(query[len("force sql "):])
	} else if strings.HasPrefix(lower, "force rag ") {
		forced = "rag"
		query = strings.TrimSpace(query[len("force rag "):])
	}
	res.Query = query

	var cls *ClassificationResult
	switch forced {
	case "sql":
		cls = &ClassificationResult{
			Type:           QueryTypeSQL,
			Confidence:     1.0,
			Reasoning:      "Forced SQL routing",
			SuggestedRoute: agentSQL,
		}
	case "rag":
		cls = &ClassificationResult{
			Type:           QueryTypeRAG,
			Confidence:     1.0,
			Reasoning:      "Forced RAG routing",
			SuggestedRoute: agentRAG,
		}
	default:
		cls = r.classifier.Classify(ctx, query)
	}
	res.Classification = cls

	var err error
	switch cls.Type {
	case QueryTypeSQL:
		if cls.Confidence >= r.threshold || forced != "" {
			res.Response, err = r.sql.Ask(ctx, query)
			res.AgentUsed = agentSQL
		} else {
			res.Response = r.requestClarification(query, cls)
			res.AgentUsed = agentClarification
		}

	case QueryTypeRAG:
		if cls.Confidence >= ragFloor(r.threshold) || forced != "" {
			res.Response, err = r.rag.Ask(ctx, query)
			res.AgentUsed = agentRAG
		} else {
			res.Response = r.requestClarification(query, cls)
			res.AgentUsed = agentClarification
		}

	default:
		// Ambiguous: run the side with the higher blended score and tell the
		// user which way the tie broke.
		if cls.SQLScore > cls.RAGScore {
			res.Response, err = r.sql.Ask(ctx, query)
			res.AgentUsed = agentSQL
		} else {
			res.Response, err = r.rag.Ask(ctx, query)
			res.AgentUsed = agentRAG
		}
		if err == nil {
			res.Response += fmt.Sprintf("\n\nThis query was ambiguous. I chose the route with the highest confidence (%s).\nIf this is not what you expected, please clarify your intent or provide more details.\n", res.AgentUsed)
		}
	}

	if err != nil {
		res.Error = fmt.Sprintf("Error routing query: %v", err)
		res.Response = "I encountered an error while processing your query. Please try again or rephrase your question."
		res.Success = false
		return res
	}
	res.Success = true
	return res
}

// ragFloor is the minimum confidence accepted for RAG routing.
func ragFloor(threshold float64) float64 {
	floor := threshold * 0.6
	if floor < 0.4 {
		floor = 0.4
	}
	return floor
}

func (r *RouterAgent) requestClarification(query string, cls *ClassificationResult) string {
	return fmt.Sprintf(`
I'm not entirely sure how to best answer your question: "%s"

Based on my analysis, I think you might be looking for:
- %s (confidence: %.1f%%)

To help me provide the best answer, could you clarify:

If you want specific data from our database, try rephrasing like:
• "Show me [specific data] from [table/category]"
• "How many [items] are there?"
• "List the top [number] [items] by [criteria]"

If you want explanations or general information, try:
• "Explain what [concept] means"
• "What is the definition of [term]?"
• "How does [process] work?"

Or you can specify your preference:
• Add "from database" to query our data
• Add "explain" to get conceptual information

Classification reasoning: %s
`, query, cls.SuggestedRoute, cls.Confidence*100, cls.Reasoning)
}
