// Package autodoc generates project documentation by consolidating a source
// tree into a single annotated text blob, sending it to the LLM platform with
// a user-supplied template, and rendering the answer as markdown plus a
// Jupyter notebook.
package autodoc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// ignoreSpecs holds the three pattern files honored during consolidation:
// .gitignore and .cfignore exclude paths, .cfinclude (when present and
// non-empty) restricts files to an allowlist.
type ignoreSpecs struct {
	gitignore *ignore.GitIgnore
	cfignore  *ignore.GitIgnore
	cfinclude *ignore.GitIgnore
}

func loadIgnoreSpecs(root string) ignoreSpecs {
	var specs ignoreSpecs

	// .git is always excluded, even without a .gitignore.
	gitPatterns := []string{".git"}
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		gitPatterns = append(gitPatterns, strings.Split(string(data), "\n")...)
	}
	specs.gitignore = ignore.CompileIgnoreLines(gitPatterns...)

	if data, err := os.ReadFile(filepath.Join(root, ".cfignore")); err == nil {
		specs.cfignore = ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}
	if data, err := os.ReadFile(filepath.Join(root, ".cfinclude")); err == nil && len(bytes.TrimSpace(data)) > 0 {
		specs.cfinclude = ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}
	return specs
}

func (s ignoreSpecs) excluded(rel string) bool {
	if s.gitignore != nil && s.gitignore.MatchesPath(rel) {
		return true
	}
	return s.cfignore != nil && s.cfignore.MatchesPath(rel)
}

func (s ignoreSpecs) included(rel string) bool {
	return s.cfinclude == nil || s.cfinclude.MatchesPath(rel)
}

const consolidatePreamble = `The following content is a collection of files from a project repository. It contains code, documentation, configuration and other text files. The file is delimited to represent each file within the project:

FileStart: <file_path>
<file_content>
FileStop: <file_path>

 Use all files in this collection to assist the user in producing high quality documentation.

`

// Consolidate walks root and concatenates its text files into one delimited
// blob. Files over maxFileKB are skipped; collection stops once the running
// total would exceed maxTotalMB. Binary files (containing NUL bytes) are
// skipped. Returns the blob and the number of files included.
func Consolidate(root string, maxFileKB, maxTotalMB int) (string, int, error) {
	specs := loadIgnoreSpecs(root)

	var candidates []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if info.IsDir() {
			if specs.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if specs.excluded(rel) || !specs.included(rel) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(candidates)

	maxFileBytes := int64(maxFileKB) * 1024
	maxTotalBytes := int64(maxTotalMB) * 1024 * 1024

	var selected []string
	var total int64
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() > maxFileBytes {
			continue
		}
		if total+info.Size() > maxTotalBytes {
			break
		}
		selected = append(selected, path)
		total += info.Size()
	}

	if len(selected) == 0 {
		return "", 0, fmt.Errorf("no files selected under %s after applying size filters", root)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	var b strings.Builder
	b.WriteString(abs + "\n\n")
	b.WriteString(consolidatePreamble)

	count := 0
	for _, path := range selected {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if bytes.IndexByte(data, 0) >= 0 {
			continue
		}
		fmt.Fprintf(&b, "\nFILESTART: %s\n", path)
		b.Write(data)
		fmt.Fprintf(&b, "\nFILESTOP: %s\n", path)
		count++
	}
	if count == 0 {
		return "", 0, fmt.Errorf("no readable text files under %s", root)
	}
	return b.String(), count, nil
}
