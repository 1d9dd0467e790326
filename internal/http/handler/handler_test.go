package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"raih/internal/autodoc"
	"raih/internal/dia"
	"raih/internal/model"
	"raih/internal/repository"
	repoMocks "raih/internal/repository/mocks"
	"raih/internal/router"
	"raih/internal/storage"
	storageMocks "raih/internal/storage/mocks"
)

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// fakeGenerator implements GenerationService for handler tests.
type fakeGenerator struct {
	result    *autodoc.GenerateResult
	err       error
	gotReq    autodoc.GenerateRequest
	outputDir string
}

func (f *fakeGenerator) Generate(_ context.Context, req autodoc.GenerateRequest) (*autodoc.GenerateResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGenerator) ResolveOutput(timestamp, filename string) (string, error) {
	if strings.Contains(timestamp+filename, "..") || strings.ContainsAny(timestamp+filename, `/\`) {
		return "", errors.New("invalid path")
	}
	return filepath.Join(f.outputDir, timestamp, filename), nil
}

func generateBody(t *testing.T, folderPath, templateName, templateContent, projectName string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("folder_path", folderPath))
	if projectName != "" {
		require.NoError(t, w.WriteField("project_name", projectName))
	}
	if templateName != "" {
		part, err := w.CreateFormFile("template_file", templateName)
		require.NoError(t, err)
		_, err = part.Write([]byte(templateContent))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestGenerateDocumentation(t *testing.T) {
	uploadDir := t.TempDir()

	t.Run("success", func(t *testing.T) {
		gen := &fakeGenerator{result: &autodoc.GenerateResult{
			Timestamp:    "20260829_101500",
			MarkdownFile: "Proj_20260829_101500.md",
			NotebookFile: "Proj_20260829_101500.ipynb",
			ProjectName:  "Proj",
		}}
		app := fiber.New()
		app.Post("/generate", GenerateDocumentation(gen, uploadDir))

		body, ct := generateBody(t, "/tmp/proj", "tpl.md", "## Overview", "Proj")
		req := httptest.NewRequest(http.MethodPost, "/generate", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req, 5000)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "/download/20260829_101500/Proj_20260829_101500.md", out["md_file"])
		assert.Equal(t, "/download/20260829_101500/Proj_20260829_101500.ipynb", out["ipynb_file"])

		// The handler passed the template content and project name through.
		assert.Equal(t, "## Overview", gen.gotReq.TemplateText)
		assert.Equal(t, "Proj", gen.gotReq.ProjectName)
		assert.Equal(t, "/tmp/proj", gen.gotReq.FolderPath)

		// The staged template was cleaned up.
		items, err := os.ReadDir(uploadDir)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("missing template", func(t *testing.T) {
		app := fiber.New()
		app.Post("/generate", GenerateDocumentation(&fakeGenerator{}, uploadDir))

		body, ct := generateBody(t, "/tmp/proj", "", "", "")
		req := httptest.NewRequest(http.MethodPost, "/generate", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body2 errorPayload
		json.NewDecoder(resp.Body).Decode(&body2)
		assert.Equal(t, "TEMPLATE_REQUIRED", body2.Error.Code)
	})

	t.Run("disallowed extension", func(t *testing.T) {
		app := fiber.New()
		app.Post("/generate", GenerateDocumentation(&fakeGenerator{}, uploadDir))

		body, ct := generateBody(t, "/tmp/proj", "tpl.exe", "x", "")
		req := httptest.NewRequest(http.MethodPost, "/generate", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid folder", func(t *testing.T) {
		gen := &fakeGenerator{err: autodoc.ErrInvalidFolder}
		app := fiber.New()
		app.Post("/generate", GenerateDocumentation(gen, uploadDir))

		body, ct := generateBody(t, "/missing", "tpl.md", "x", "")
		req := httptest.NewRequest(http.MethodPost, "/generate", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var out errorPayload
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "INVALID_FOLDER", out.Error.Code)
	})

	t.Run("empty answer", func(t *testing.T) {
		gen := &fakeGenerator{err: autodoc.ErrEmptyAnswer}
		app := fiber.New()
		app.Post("/generate", GenerateDocumentation(gen, uploadDir))

		body, ct := generateBody(t, "/tmp/proj", "tpl.md", "x", "")
		req := httptest.NewRequest(http.MethodPost, "/generate", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var out errorPayload
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "GENERATION_FAILED", out.Error.Code)
	})
}

func TestDownloadFile(t *testing.T) {
	outputDir := t.TempDir()
	gen := &fakeGenerator{outputDir: outputDir}

	app := fiber.New()
	app.Get("/download/:timestamp/:filename", DownloadFile(gen))

	t.Run("found", func(t *testing.T) {
		dir := filepath.Join(outputDir, "20260829_101500")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# doc"), 0o644))

		req := httptest.NewRequest(http.MethodGet, "/download/20260829_101500/doc.md", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "doc.md")
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "# doc", string(data))
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/download/20260829_101500/missing.md", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("traversal rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/download/..%2f..%2f/etc", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListGenerations(t *testing.T) {
	mockRepo := new(repoMocks.MockGenerationRepository)
	app := fiber.New()
	app.Get("/generations", ListGenerations(mockRepo))

	t.Run("success", func(t *testing.T) {
		mockRepo.On("List", mock.Anything, repository.PageQuery{Limit: 10, Offset: 0}).
			Return(&repository.PageResult[model.Generation]{
				Items: []model.Generation{{ID: "gen-1", ProjectName: "proj"}},
				Total: 1,
			}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/generations", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Items []model.Generation `json:"items"`
			Total int                `json:"total"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, 1, out.Total)
		require.Len(t, out.Items, 1)
		assert.Equal(t, "gen-1", out.Items[0].ID)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/generations?limit=abc", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetGeneration(t *testing.T) {
	mockRepo := new(repoMocks.MockGenerationRepository)
	app := fiber.New()
	app.Get("/generations/:id", GetGeneration(mockRepo))

	t.Run("found", func(t *testing.T) {
		mockRepo.On("FindByID", mock.Anything, "gen-1").
			Return(&model.Generation{ID: "gen-1", ProjectName: "proj"}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/generations/gen-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out model.Generation
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "proj", out.ProjectName)
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo.On("FindByID", mock.Anything, "missing").
			Return(nil, sql.ErrNoRows).Once()

		req := httptest.NewRequest(http.MethodGet, "/generations/missing", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeleteGeneration(t *testing.T) {
	mockRepo := new(repoMocks.MockGenerationRepository)
	mockStore := new(storageMocks.MockStorage)
	app := fiber.New()
	app.Delete("/generations/:id", DeleteGeneration(mockRepo, mockStore))

	t.Run("removes record and archived markdown", func(t *testing.T) {
		mockRepo.On("FindByID", mock.Anything, "gen-1").
			Return(&model.Generation{
				ID:           "gen-1",
				Timestamp:    "20240101_120000",
				MarkdownPath: "output/20240101_120000/Proj_20240101_120000.md",
			}, nil).Once()
		mockStore.On("Delete", mock.Anything, "docs/20240101_120000/Proj_20240101_120000.md").
			Return(nil).Once()
		mockRepo.On("Delete", mock.Anything, "gen-1").Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/generations/gen-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockRepo.AssertExpectations(t)
		mockStore.AssertExpectations(t)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		mockRepo.On("FindByID", mock.Anything, "missing").Return(nil, sql.ErrNoRows).Once()
		mockRepo.On("Delete", mock.Anything, "missing").Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/generations/missing", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

type fakeAnalyzer struct {
	result string
	err    error
	gotReq dia.AnalyzeRequest
	data   string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req dia.AnalyzeRequest) (string, error) {
	f.gotReq = req
	if req.File != nil {
		b, _ := io.ReadAll(req.File)
		f.data = string(b)
	}
	return f.result, f.err
}

func TestAnalyzeData(t *testing.T) {
	t.Run("text only", func(t *testing.T) {
		svc := &fakeAnalyzer{result: "analysis"}
		app := fiber.New()
		app.Post("/analyze", AnalyzeData(svc))

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("text_input", "assess this vendor"))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]string
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "analysis", out["result"])
		assert.Equal(t, "assess this vendor", svc.gotReq.Text)
	})

	t.Run("with file", func(t *testing.T) {
		svc := &fakeAnalyzer{result: "file analysis"}
		app := fiber.New()
		app.Post("/analyze", AnalyzeData(svc))

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "doc.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("pdf bytes"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "doc.pdf", svc.gotReq.FileName)
		assert.Equal(t, "pdf bytes", svc.data)
	})

	t.Run("no input", func(t *testing.T) {
		svc := &fakeAnalyzer{err: dia.ErrNoInput}
		app := fiber.New()
		app.Post("/analyze", AnalyzeData(svc))

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var out errorPayload
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "INPUT_REQUIRED", out.Error.Code)
	})
}

type fakeRouter struct {
	result *router.Result
	gotQ   string
}

func (f *fakeRouter) Route(_ context.Context, query string) *router.Result {
	f.gotQ = query
	return f.result
}

func chatbotPost(t *testing.T, app *fiber.App, message string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"message": message})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/chatbot", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestChatbot(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rt := &fakeRouter{result: &router.Result{
			Success:   true,
			Response:  "ANALYSIS RESULT: **42 records** found",
			AgentUsed: "SQL Database Agent",
			Classification: &router.ClassificationResult{
				Type:           router.QueryTypeSQL,
				Confidence:     0.82,
				SuggestedRoute: "SQL Database Agent",
			},
			ExecutionTime: 0.12,
		}}
		app := fiber.New()
		app.Post("/chatbot", Chatbot(rt))

		resp := chatbotPost(t, app, "how many records?")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			DebugInfo struct {
				AgentUsed      string                      `json:"agent_used"`
				Classification router.ClassificationResult `json:"classification"`
				ExecutionTime  float64                     `json:"execution_time"`
			} `json:"debug_info"`
		}
		json.NewDecoder(resp.Body).Decode(&out)

		assert.Equal(t, "success", out.Status)
		// The framing prefix is stripped and markdown is rendered as HTML.
		assert.NotContains(t, out.Message, "ANALYSIS RESULT")
		assert.Contains(t, out.Message, "<strong>42 records</strong>")
		assert.Equal(t, "SQL Database Agent", out.DebugInfo.AgentUsed)
		assert.Equal(t, router.QueryTypeSQL, out.DebugInfo.Classification.Type)
		assert.Equal(t, "how many records?", rt.gotQ)
	})

	t.Run("ping", func(t *testing.T) {
		rt := &fakeRouter{}
		app := fiber.New()
		app.Post("/chatbot", Chatbot(rt))

		resp := chatbotPost(t, app, "PING")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]string
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "Server is running", out["message"])
		// Ping never reaches the router.
		assert.Empty(t, rt.gotQ)
	})

	t.Run("empty message", func(t *testing.T) {
		app := fiber.New()
		app.Post("/chatbot", Chatbot(&fakeRouter{}))

		resp := chatbotPost(t, app, "   ")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var out errorPayload
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "MESSAGE_REQUIRED", out.Error.Code)
	})

	t.Run("routing failure", func(t *testing.T) {
		rt := &fakeRouter{result: &router.Result{Success: false, Error: "Error routing query: warehouse unreachable"}}
		app := fiber.New()
		app.Post("/chatbot", Chatbot(rt))

		resp := chatbotPost(t, app, "broken question")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var out errorPayload
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, "ROUTING_FAILED", out.Error.Code)
	})
}

func TestResultsDownload(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store := new(storageMocks.MockStorage)
		store.On("Get", mock.Anything, "results/export.csv").
			Return(io.NopCloser(strings.NewReader("a,b\n1,2\n")), storage.ObjectInfo{ContentType: "text/csv"}, nil)

		app := fiber.New()
		app.Get("/results/:filename", ResultsDownload(store))

		req := httptest.NewRequest(http.MethodGet, "/results/export.csv", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "a,b\n1,2\n", string(data))
	})

	t.Run("missing", func(t *testing.T) {
		store := new(storageMocks.MockStorage)
		store.On("Get", mock.Anything, "results/nope.csv").
			Return(nil, storage.ObjectInfo{}, errors.New("not found"))

		app := fiber.New()
		app.Get("/results/:filename", ResultsDownload(store))

		req := httptest.NewRequest(http.MethodGet, "/results/nope.csv", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("traversal rejected", func(t *testing.T) {
		app := fiber.New()
		app.Get("/results/:filename", ResultsDownload(new(storageMocks.MockStorage)))

		req := httptest.NewRequest(http.MethodGet, "/results/..%2fsecret", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFormatChatbotResponse(t *testing.T) {
	assert.Equal(t, "I'm sorry, I couldn't generate a response.", formatChatbotResponse("  "))

	out := formatChatbotResponse("ANALYSIS RESULT: ===\nplain answer\n===")
	assert.NotContains(t, out, "ANALYSIS RESULT")
	assert.NotContains(t, out, "===")
	assert.Contains(t, out, "plain answer")
}
