package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"raih/internal/dia"
)

// Analyzer is the slice of the DIA service the HTTP layer depends on.
type Analyzer interface {
	Analyze(ctx context.Context, req dia.AnalyzeRequest) (string, error)
}

// RegisterDIARoutes attaches the impact assessment endpoints. staticDir, when
// non-empty, is served under /static with its index page at /.
func RegisterDIARoutes(app *fiber.App, svc Analyzer, staticDir string) {
	// No backing database here, so readiness equals liveness.
	app.Get("/health", LivenessProbe())
	app.Get("/healthz", LivenessProbe())
	app.Get("/api/status", Status())
	app.Post("/analyze", AnalyzeData(svc))
	if staticDir != "" {
		app.Static("/static", staticDir)
		app.Static("/", staticDir+"/index.html")
	}
}

// Status reports that the assessment API is up.
func Status() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "AI-Assisted DIA API is running"})
	}
}

// AnalyzeData accepts an optional document upload (multipart field: file) and
// optional free text (field: text_input) and returns the model's assessment.
func AnalyzeData(svc Analyzer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := dia.AnalyzeRequest{Text: c.FormValue("text_input")}

		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer f.Close()
			req.FileName = fh.Filename
			req.File = f
		}

		result, err := svc.Analyze(c.UserContext(), req)
		if err != nil {
			if errors.Is(err, dia.ErrNoInput) {
				return writeError(c, fiber.StatusBadRequest, "INPUT_REQUIRED", "either file or text input must be provided")
			}
			return writeError(c, fiber.StatusInternalServerError, "ANALYSIS_FAILED", "error processing request")
		}
		return c.JSON(fiber.Map{"result": result})
	}
}
