package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"raih/internal/autodoc"
	"raih/internal/repository"
	"raih/internal/storage"
)

// GenerationService is the slice of the documentation generator the HTTP
// layer depends on.
type GenerationService interface {
	Generate(ctx context.Context, req autodoc.GenerateRequest) (*autodoc.GenerateResult, error)
	ResolveOutput(timestamp, filename string) (string, error)
}

// RegisterAutodocRoutes attaches the documentation generator endpoints.
// Keep handlers minimal and free of business logic.
func RegisterAutodocRoutes(app *fiber.App, db *sql.DB, gen GenerationService, repo repository.GenerationRepository, store storage.Storage, uploadDir string) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	app.Post("/generate", GenerateDocumentation(gen, uploadDir))
	app.Get("/download/:timestamp/:filename", DownloadFile(gen))
	app.Get("/generations", ListGenerations(repo))
	app.Get("/generations/:id", GetGeneration(repo))
	app.Delete("/generations/:id", DeleteGeneration(repo, store))
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness endpoint with no dependency checks.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// GenerateDocumentation accepts a project folder path plus a template upload
// (multipart fields: folder_path, template_file, optional project_name) and
// responds with download links for the rendered markdown and notebook.
func GenerateDocumentation(gen GenerationService, uploadDir string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		folderPath := c.FormValue("folder_path")
		if folderPath == "" {
			return writeError(c, fiber.StatusBadRequest, "FOLDER_REQUIRED", "folder_path is required")
		}

		fh, err := c.FormFile("template_file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "TEMPLATE_REQUIRED", "template_file is required")
		}
		if !autodoc.AllowedTemplate(fh.Filename) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_TEMPLATE", "template must be .md, .txt or .ipynb")
		}

		// Stage the template so notebook templates can be parsed from disk.
		if err := os.MkdirAll(uploadDir, 0o755); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		templatePath := filepath.Join(uploadDir, fmt.Sprintf("autodoc_%s_%s", time.Now().Format("20060102_150405"), filepath.Base(fh.Filename)))
		if err := saveMultipartFile(fh, templatePath); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		defer os.Remove(templatePath)

		templateText, err := autodoc.TemplateText(templatePath)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_TEMPLATE", "template could not be read")
		}

		res, err := gen.Generate(c.UserContext(), autodoc.GenerateRequest{
			FolderPath:   folderPath,
			TemplateText: templateText,
			ProjectName:  c.FormValue("project_name"),
		})
		if err != nil {
			switch {
			case errors.Is(err, autodoc.ErrInvalidFolder):
				return writeError(c, fiber.StatusBadRequest, "INVALID_FOLDER", "invalid project folder")
			case errors.Is(err, autodoc.ErrEmptyAnswer):
				return writeError(c, fiber.StatusInternalServerError, "GENERATION_FAILED", "the model did not return a valid response")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}

		projectName := res.ProjectName
		if projectName == "" {
			projectName = "Not specified"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":      true,
			"message":      "Documentation generated successfully",
			"md_file":      fmt.Sprintf("/download/%s/%s", res.Timestamp, res.MarkdownFile),
			"ipynb_file":   fmt.Sprintf("/download/%s/%s", res.Timestamp, res.NotebookFile),
			"timestamp":    res.Timestamp,
			"project_name": projectName,
		})
	}
}

// DownloadFile serves a generated artifact by timestamp and filename.
func DownloadFile(gen GenerationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path, err := gen.ResolveOutput(c.Params("timestamp"), c.Params("filename"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PATH", "invalid download path")
		}
		if _, err := os.Stat(path); err != nil {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
		}
		return c.Download(path, filepath.Base(path))
	}
}

// ListGenerations returns past documentation runs with limit/offset paging.
func ListGenerations(repo repository.GenerationRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := repo.List(c.UserContext(), repository.PageQuery{Limit: limit, Offset: offset})
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"items": res.Items, "total": res.Total})
	}
}

// GetGeneration returns a single generation record by ID.
func GetGeneration(repo repository.GenerationRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		gen, err := repo.FindByID(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "generation not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(gen)
	}
}

// DeleteGeneration removes a generation record and its archived markdown.
// Deleting an unknown ID is a no-op.
func DeleteGeneration(repo repository.GenerationRepository, store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		gen, err := repo.FindByID(c.UserContext(), c.Params("id"))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		if gen != nil && store != nil {
			key := "docs/" + gen.Timestamp + "/" + filepath.Base(gen.MarkdownPath)
			// Best effort; a missing archive object must not block the delete.
			_ = store.Delete(c.UserContext(), key)
		}
		if err := repo.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func saveMultipartFile(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}
