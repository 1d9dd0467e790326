package openarena

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"raih/internal/config"
)

// ErrMessageTooBig is returned when the platform rejects a chat payload for
// exceeding its message size limit. Callers may retry with a smaller payload.
var ErrMessageTooBig = errors.New("message too big")

// Message is one turn of chat history sent to the platform.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOption configures a Chat session.
type ChatOption func(*Chat)

// WithSystemPrompt sets the system prompt passed as a model param.
func WithSystemPrompt(prompt string) ChatOption {
	return func(c *Chat) { c.systemPrompt = prompt }
}

// WithReasoning toggles the platform's reasoning mode.
func WithReasoning(enabled bool) ChatOption {
	return func(c *Chat) { c.enableReasoning = enabled }
}

// WithMaxHistory bounds the number of past turns kept and replayed.
func WithMaxHistory(n int) ChatOption {
	return func(c *Chat) { c.maxHistory = n }
}

// Chat is a per-workflow chat session against the LLM platform.
// It keeps a bounded in-memory history; it is not safe for concurrent use.
type Chat struct {
	baseURL    string
	workflowID string
	tokens     TokenProvider
	client     *http.Client

	systemPrompt    string
	enableReasoning bool
	maxHistory      int

	history   []Message
	fileUUIDs []string
}

// NewChat builds a chat session for the given workflow.
// The HTTP client is wrapped with an otelhttp transport for tracing.
func NewChat(cfg config.OpenArenaConfig, workflowID string, tokens TokenProvider, opts ...ChatOption) *Chat {
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &Chat{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		workflowID: workflowID,
		tokens:     tokens,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxHistory: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddFileUUID attaches a previously uploaded file to subsequent queries.
func (c *Chat) AddFileUUID(uuid string) {
	c.fileUUIDs = append(c.fileUUIDs, uuid)
}

type chatRequest struct {
	WorkflowID  string            `json:"workflow_id"`
	Query       string            `json:"query"`
	ModelParams map[string]string `json:"model_params,omitempty"`
	ChatHistory []Message         `json:"chat_history,omitempty"`
	FileUUIDs   []string          `json:"file_uuids,omitempty"`
}

type chatResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

// Send submits a query and returns the platform's answer.
// "message too big" failures are mapped to ErrMessageTooBig.
func (c *Chat) Send(ctx context.Context, query string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}

	params := map[string]string{}
	if c.systemPrompt != "" {
		params["system_prompt"] = c.systemPrompt
	}
	if c.enableReasoning {
		params["enable_reasoning"] = "true"
	}

	payload := chatRequest{
		WorkflowID:  c.workflowID,
		Query:       query,
		ModelParams: params,
		ChatHistory: c.history,
		FileUUIDs:   c.fileUUIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var cr chatResponse
	// Decode errors on non-JSON bodies are folded into the status check below.
	_ = json.Unmarshal(raw, &cr)

	if resp.StatusCode != http.StatusOK {
		msg := cr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if strings.Contains(strings.ToLower(msg), "message too big") {
			return "", ErrMessageTooBig
		}
		return "", fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, msg)
	}
	if cr.Answer == "" {
		return "", fmt.Errorf("chat response missing answer")
	}

	c.remember(Message{Role: "user", Content: query})
	c.remember(Message{Role: "assistant", Content: cr.Answer})

	return cr.Answer, nil
}

func (c *Chat) remember(m Message) {
	if c.maxHistory <= 0 {
		return
	}
	c.history = append(c.history, m)
	// maxHistory counts turns, each turn being a user/assistant pair.
	if max := c.maxHistory * 2; len(c.history) > max {
		c.history = c.history[len(c.history)-max:]
	}
}
