package handler

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"raih/internal/router"
	"raih/internal/storage"
)

// QueryRouter dispatches one chat question and reports how it was handled.
type QueryRouter interface {
	Route(ctx context.Context, query string) *router.Result
}

// RegisterChatbotRoutes attaches the routing chatbot endpoints. store may be
// nil when CSV exports are disabled.
func RegisterChatbotRoutes(app *fiber.App, db *sql.DB, rt QueryRouter, store storage.Storage) {
	app.Get("/", Root())
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	app.Post("/chatbot", Chatbot(rt))
	if store != nil {
		app.Get("/results/:filename", ResultsDownload(store))
	}
}

// Root reports that the chatbot server is up.
func Root() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "success", "message": "Server is running"})
	}
}

type chatbotRequest struct {
	Message string `json:"message"`
}

// Chatbot answers one chat message. "ping" short-circuits without touching
// the router; everything else is classified and dispatched.
func Chatbot(rt QueryRouter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req chatbotRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON with a message field")
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			return writeError(c, fiber.StatusBadRequest, "MESSAGE_REQUIRED", "please provide a message")
		}
		if strings.EqualFold(message, "ping") {
			return c.JSON(fiber.Map{"status": "success", "message": "Server is running"})
		}

		res := rt.Route(c.UserContext(), message)
		if !res.Success {
			return writeError(c, fiber.StatusInternalServerError, "ROUTING_FAILED", res.Error)
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": formatChatbotResponse(res.Response),
			"debug_info": fiber.Map{
				"agent_used":     res.AgentUsed,
				"classification": res.Classification,
				"execution_time": res.ExecutionTime,
			},
		})
	}
}

// ResultsDownload proxies a CSV export out of object storage.
func ResultsDownload(store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filename := c.Params("filename")
		if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PATH", "invalid filename")
		}

		rc, info, err := store.Get(c.UserContext(), "results/"+filename)
		if err != nil {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		ct := info.ContentType
		if ct == "" {
			ct = "text/csv"
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return c.Send(data)
	}
}

var (
	analysisPrefix = regexp.MustCompile(`^\s*ANALYSIS RESULT:\s*`)
	leadingRule    = regexp.MustCompile(`^=+\s*`)
	trailingRule   = regexp.MustCompile(`\s*=+$`)

	chatbotMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

// formatChatbotResponse strips agent framing and renders the answer as HTML
// for chat display. Line breaks become <br> so plain-text answers keep their
// shape.
func formatChatbotResponse(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return "I'm sorry, I couldn't generate a response."
	}
	response = analysisPrefix.ReplaceAllString(response, "")
	response = leadingRule.ReplaceAllString(response, "")
	response = trailingRule.ReplaceAllString(response, "")

	var buf bytes.Buffer
	if err := chatbotMarkdown.Convert([]byte(response), &buf); err != nil {
		return response
	}
	return buf.String()
}
