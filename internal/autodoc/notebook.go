package autodoc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Notebook models the nbformat v4 on-disk layout, limited to the fields the
// generator produces and reads.
type Notebook struct {
	Cells         []NotebookCell         `json:"cells"`
	Metadata      map[string]interface{} `json:"metadata"`
	NBFormat      int                    `json:"nbformat"`
	NBFormatMinor int                    `json:"nbformat_minor"`
}

// NotebookCell is one notebook cell. Source is serialized as a plain string;
// nbformat also permits a list of lines, which ReadNotebook accepts.
type NotebookCell struct {
	CellType string                 `json:"cell_type"`
	Metadata map[string]interface{} `json:"metadata"`
	Source   json.RawMessage        `json:"source"`
}

// SourceText decodes a cell source regardless of whether it was stored as a
// single string or a list of lines.
func (c NotebookCell) SourceText() string {
	var s string
	if err := json.Unmarshal(c.Source, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(c.Source, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}

// NewMarkdownNotebook wraps content in a single-markdown-cell notebook.
func NewMarkdownNotebook(content string) *Notebook {
	src, _ := json.Marshal(content)
	return &Notebook{
		Cells: []NotebookCell{{
			CellType: "markdown",
			Metadata: map[string]interface{}{},
			Source:   src,
		}},
		Metadata:      map[string]interface{}{},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

// WriteFile serializes the notebook as indented JSON, matching what notebook
// tooling emits.
func (n *Notebook) WriteFile(path string) error {
	data, err := json.MarshalIndent(n, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// NotebookText extracts the concatenated markdown cell sources of a notebook
// file. Used to turn .ipynb templates into plain text.
func NotebookText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", fmt.Errorf("parse notebook %s: %w", path, err)
	}
	var b strings.Builder
	for _, cell := range nb.Cells {
		if cell.CellType != "markdown" {
			continue
		}
		b.WriteString(cell.SourceText())
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
