package model

import "time"

// Generation records one completed documentation run: where the rendered
// markdown and notebook landed on disk, and the timestamp folder they live in.
// This is a pure domain model with no database-specific dependencies or tags.
type Generation struct {
	ID           string    `json:"id"`
	ProjectName  string    `json:"project_name"`
	Timestamp    string    `json:"timestamp"`
	MarkdownPath string    `json:"markdown_path"`
	NotebookPath string    `json:"notebook_path"`
	CreatedAt    time.Time `json:"created_at"`
}
