// Package dia implements AI-assisted Data Impact Assessment: an uploaded
// document and/or free text is forwarded to the LLM platform workflow and the
// analysis comes back as plain text.
package dia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNoInput is returned when neither a file nor text was provided.
var ErrNoInput = errors.New("either file or text input must be provided")

// Chat is one conversation with the platform workflow. File UUIDs attached
// before sending are visible to the model.
type Chat interface {
	Send(ctx context.Context, query string) (string, error)
	AddFileUUID(uuid string)
}

// FileUploader pushes a local file to the platform's file API.
type FileUploader interface {
	Upload(ctx context.Context, path, workflowID string) (string, error)
}

// AnalyzeRequest carries the inputs of one assessment. File may be nil.
type AnalyzeRequest struct {
	FileName string
	File     io.Reader
	Text     string
}

// Service runs assessments. Chats are created per request because attached
// files must not leak between callers.
type Service struct {
	files      FileUploader
	newChat    func() Chat
	workflowID string
	uploadsDir string
}

// NewService builds a Service; uploadsDir holds the short-lived staging
// copies of uploaded documents.
func NewService(files FileUploader, newChat func() Chat, workflowID, uploadsDir string) *Service {
	return &Service{
		files:      files,
		newChat:    newChat,
		workflowID: workflowID,
		uploadsDir: uploadsDir,
	}
}

// Analyze stages the uploaded file, registers it with the platform, and asks
// for the assessment. The staging copy is removed before returning, also on
// error.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	if req.File == nil && req.Text == "" {
		return "", ErrNoInput
	}

	chat := s.newChat()

	hasFile := req.File != nil
	if hasFile {
		path, err := s.stageFile(req.FileName, req.File)
		if err != nil {
			return "", fmt.Errorf("staging upload: %w", err)
		}
		defer os.Remove(path)

		uuid, err := s.files.Upload(ctx, path, s.workflowID)
		if err != nil {
			return "", fmt.Errorf("uploading file: %w", err)
		}
		chat.AddFileUUID(uuid)
	}

	var query string
	switch {
	case req.Text != "" && hasFile:
		query = "Based on the uploaded document and the following description, provide a detailed analysis and answer: " + req.Text
	case req.Text != "":
		query = "Based on the following description, provide a detailed analysis and answer: " + req.Text
	case hasFile:
		query = "Provide a detailed analysis of the uploaded document."
	default:
		query = "Provide a detailed answer."
	}

	answer, err := chat.Send(ctx, query)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "No response received from the AI service.", nil
	}
	return answer, nil
}

// stageFile copies the upload into uploadsDir, keeping the original
// extension so the platform can sniff the content type.
func (s *Service) stageFile(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.uploadsDir, "dia_*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
