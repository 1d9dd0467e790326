package autodoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"raih/internal/model"
	"raih/internal/openarena"
	"raih/internal/repository"
	"raih/internal/storage"
)

var (
	// ErrInvalidFolder is returned when the requested project path is not a directory.
	ErrInvalidFolder = errors.New("invalid project folder")
	// ErrInvalidTemplate is returned for missing templates or disallowed extensions.
	ErrInvalidTemplate = errors.New("invalid template file")
	// ErrEmptyAnswer is returned when the model produced no usable documentation.
	ErrEmptyAnswer = errors.New("model did not return a valid response")
)

// ChatFunc sends one documentation request with a per-run system prompt.
type ChatFunc func(ctx context.Context, systemPrompt, query string) (string, error)

// sizeTier bounds how much project text one attempt may carry.
type sizeTier struct {
	fileKB  int
	totalMB int
}

// GenerateRequest describes one documentation run.
type GenerateRequest struct {
	FolderPath   string
	TemplateText string
	ProjectName  string
}

// GenerateResult points at the rendered artifacts.
type GenerateResult struct {
	Timestamp    string
	MarkdownFile string
	NotebookFile string
	ProjectName  string
}

// Generator runs the documentation pipeline. repo and store are optional;
// when set, finished runs are recorded in the database and archived to
// object storage.
type Generator struct {
	chat      ChatFunc
	outputDir string
	tiers     []sizeTier
	repo      repository.GenerationRepository
	store     storage.Storage

	now func() time.Time
}

// NewGenerator builds a Generator. maxFileKB/maxTotalMB set the first size
// tier; two progressively smaller tiers are retried when the platform rejects
// the payload as too big.
func NewGenerator(chat ChatFunc, outputDir string, maxFileKB, maxTotalMB int, repo repository.GenerationRepository, store storage.Storage) *Generator {
	return &Generator{
		chat:      chat,
		outputDir: outputDir,
		tiers: []sizeTier{
			{fileKB: maxFileKB, totalMB: maxTotalMB},
			{fileKB: 50, totalMB: 2},
			{fileKB: 20, totalMB: 1},
		},
		repo:  repo,
		store: store,
		now:   time.Now,
	}
}

// AllowedTemplate reports whether the template filename carries a supported
// extension (.md, .txt or .ipynb).
func AllowedTemplate(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".txt", ".ipynb":
		return true
	}
	return false
}

// TemplateText loads a saved template file as plain text, converting
// notebooks to their markdown content.
func TemplateText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".ipynb") {
		return NotebookText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Generate consolidates the project, asks the model to fill the template, and
// writes the answer as markdown plus a notebook under outputDir/<timestamp>/.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	folder, err := expandHome(req.FolderPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFolder, req.FolderPath)
	}

	answer, err := g.generateWithLadder(ctx, folder, req)
	if err != nil {
		return nil, err
	}

	doc := CleanOutput(answer)
	if strings.TrimSpace(doc) == "" || errorPrefixed(doc) {
		return nil, ErrEmptyAnswer
	}
	if req.ProjectName != "" {
		doc = fmt.Sprintf("# %s\n\n%s", req.ProjectName, doc)
	}

	timestamp := g.now().Format("20060102_150405")
	outDir := filepath.Join(g.outputDir, timestamp)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	prefix := sanitizePrefix(req.ProjectName)
	mdName := fmt.Sprintf("%s_%s.md", prefix, timestamp)
	nbName := fmt.Sprintf("%s_%s.ipynb", prefix, timestamp)
	mdPath := filepath.Join(outDir, mdName)
	nbPath := filepath.Join(outDir, nbName)

	if err := os.WriteFile(mdPath, []byte(doc), 0o644); err != nil {
		return nil, err
	}
	if err := NewMarkdownNotebook(doc).WriteFile(nbPath); err != nil {
		return nil, err
	}

	g.archive(ctx, timestamp, mdName, doc)
	g.record(ctx, req.ProjectName, timestamp, mdPath, nbPath)

	return &GenerateResult{
		Timestamp:    timestamp,
		MarkdownFile: mdName,
		NotebookFile: nbName,
		ProjectName:  req.ProjectName,
	}, nil
}

// generateWithLadder walks the size tiers until an attempt fits the
// platform's payload limit. Any failure other than the payload limit aborts.
func (g *Generator) generateWithLadder(ctx context.Context, folder string, req GenerateRequest) (string, error) {
	var lastErr error
	for _, tier := range g.tiers {
		consolidated, _, err := Consolidate(folder, tier.fileKB, tier.totalMB)
		if err != nil {
			return "", err
		}

		systemPrompt := "You are an expert documentation generator. Analyze the following project and fill the following template. Return the filled template as markdown or plain text."
		if req.ProjectName != "" {
			systemPrompt += "\n\nPROJECT_NAME: " + req.ProjectName
		}
		systemPrompt += "\n\nTEMPLATE:\n" + req.TemplateText + "\n\nPROJECT_PATH: " + folder

		query := "Fill the template for the project"
		if req.ProjectName != "" {
			query += fmt.Sprintf(" named '%s'", req.ProjectName)
		}
		query += fmt.Sprintf(" at %s. Return the completed document as markdown or plain text.\n\n%s", folder, consolidated)

		answer, err := g.chat(ctx, systemPrompt, query)
		if err == nil {
			return answer, nil
		}
		if !errors.Is(err, openarena.ErrMessageTooBig) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// ResolveOutput maps a timestamp/filename pair to a path under the output
// directory, rejecting anything that would escape it.
func (g *Generator) ResolveOutput(timestamp, filename string) (string, error) {
	for _, part := range []string{timestamp, filename} {
		if part == "" || strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid path component %q", part)
		}
	}
	return filepath.Join(g.outputDir, timestamp, filename), nil
}

func (g *Generator) archive(ctx context.Context, timestamp, mdName, doc string) {
	if g.store == nil {
		return
	}
	key := "docs/" + timestamp + "/" + mdName
	_, _ = g.store.Put(ctx, key, strings.NewReader(doc), storage.PutObjectOptions{
		Size:        int64(len(doc)),
		ContentType: "text/markdown",
	})
}

func (g *Generator) record(ctx context.Context, projectName, timestamp, mdPath, nbPath string) {
	if g.repo == nil {
		return
	}
	_, _ = g.repo.Create(ctx, &model.Generation{
		ID:           uuid.NewString(),
		ProjectName:  projectName,
		Timestamp:    timestamp,
		MarkdownPath: mdPath,
		NotebookPath: nbPath,
		CreatedAt:    g.now().UTC(),
	})
}

var instructionLine = regexp.MustCompile(`(?i)^(Instructions|Note to model|Note|Please):`)

// CleanOutput strips blocks of model-directed instructions from generated
// documentation. An instruction block runs from a marker line until a blank
// line or a "---" divider.
func CleanOutput(content string) string {
	var cleaned []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		if instructionLine.MatchString(line) {
			inBlock = true
			continue
		}
		if inBlock && (strings.TrimSpace(line) == "" || strings.HasPrefix(line, "---")) {
			inBlock = false
			continue
		}
		if !inBlock {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func errorPrefixed(doc string) bool {
	head := doc
	if len(head) > 100 {
		head = head[:100]
	}
	return strings.Contains(head, "Error")
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// sanitizePrefix turns a project name into a safe filename prefix.
func sanitizePrefix(name string) string {
	if name == "" {
		return "GENERATED_DOC"
	}
	return strings.ReplaceAll(nonWord.ReplaceAllString(name, ""), " ", "_")
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
