package openarena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"raih/internal/config"
)

// FileClient uploads files to the LLM platform so they can be attached to chats.
type FileClient struct {
	baseURL string
	tokens  TokenProvider
	client  *http.Client
}

// NewFileClient builds a file upload client.
func NewFileClient(cfg config.OpenArenaConfig, tokens TokenProvider) *FileClient {
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &FileClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type fileUploadResponse struct {
	FileUUID string `json:"file_uuid"`
	Error    string `json:"error"`
}

// Upload pushes a local file to the platform and returns its file UUID.
func (f *FileClient) Upload(ctx context.Context, path, workflowID string) (string, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("workflow_id", workflowID); err != nil {
		return "", fmt.Errorf("write workflow field: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/files", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	var fr fileUploadResponse
	_ = json.Unmarshal(raw, &fr)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := fr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("file endpoint returned status %d: %s", resp.StatusCode, msg)
	}
	if fr.FileUUID == "" {
		return "", fmt.Errorf("upload response missing file_uuid")
	}
	return fr.FileUUID, nil
}
