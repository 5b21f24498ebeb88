package importers

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// SourceType identifies the kind of import source.
type SourceType string

const SourceMarkdown SourceType = "markdown"

// DefaultInclude matches markdown files at any depth.
var DefaultInclude = []string{"**/*.md", "**/*.markdown"}

// ImportSource is a configured directory of documents to import.
type ImportSource struct {
	ID           string     `json:"id"`
	Type         SourceType `json:"type"`
	Name         string     `json:"name"`
	Config       string     `json:"config"` // JSON-encoded MarkdownConfig
	LastImported *time.Time `json:"last_imported,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// MarkdownConfig selects the files of a markdown source.
type MarkdownConfig struct {
	Root    string   `json:"root"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ParseConfig decodes the source's markdown configuration.
func (s ImportSource) ParseConfig() (MarkdownConfig, error) {
	var cfg MarkdownConfig
	if s.Config == "" {
		return cfg, fmt.Errorf("source %s has no config", s.Name)
	}
	if err := json.Unmarshal([]byte(s.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config of source %s: %w", s.Name, err)
	}
	if cfg.Root == "" {
		return cfg, fmt.Errorf("source %s has no root directory", s.Name)
	}
	return cfg, nil
}

func (c MarkdownConfig) includes() []string {
	if len(c.Include) == 0 {
		return DefaultInclude
	}
	return c.Include
}

// Matches reports whether the slash-separated path relative to Root is
// selected by the include and exclude patterns.
func (c MarkdownConfig) Matches(rel string) bool {
	for _, p := range c.Exclude {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return false
		}
	}
	for _, p := range c.includes() {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Files returns the selected files relative to Root, sorted.
func (c MarkdownConfig) Files() ([]string, error) {
	fsys := os.DirFS(c.Root)
	seen := make(map[string]bool)
	var files []string
	for _, p := range c.includes() {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q under %s: %w", p, c.Root, err)
		}
		for _, m := range matches {
			if seen[m] || !c.Matches(m) || hiddenPath(m) {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// ImportResult contains the results of an import run.
type ImportResult struct {
	SourceID      string         `json:"source_id,omitempty"`
	ItemsFound    int            `json:"items_found"`
	ItemsImported int            `json:"items_imported"`
	ItemsSkipped  int            `json:"items_skipped"`
	Items         []ImportedItem `json:"items"`
	Errors        []string       `json:"errors,omitempty"`
}

// ImportedItem is a single document extracted from a file.
type ImportedItem struct {
	Title        string    `json:"title"`
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	Imported     bool      `json:"imported"`
}
