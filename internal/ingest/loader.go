// Package ingest loads Mozilla Support knowledge base articles from disk
// and writes them, with embeddings, into the vector index.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// Exporter convenience files that live next to the per-article files and
// must not be ingested as articles.
var skipFiles = map[string]bool{
	"all_documents.json": true,
	"index.json":         true,
	"progress.json":      true,
}

// article is the on-disk JSON shape produced by the KB exporter.
type article struct {
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	URL      string   `json:"url"`
	Topics   []string `json:"topics"`
	Products []string `json:"products"`
	Text     string   `json:"text"`
}

// LoadArticles reads every per-article JSON file in dir and returns the
// parsed documents, keyed order preserved alphabetically by filename.
// Aggregate files are skipped; a file that fails to parse or lacks a slug
// is logged and skipped rather than aborting the run.
func LoadArticles(dir string, logger log.Logger) ([]kb.Document, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no article files found in %s", dir)
	}

	seen := make(map[string]bool)
	docs := make([]kb.Document, 0, len(names))
	for _, name := range names {
		if skipFiles[filepath.Base(name)] {
			continue
		}

		doc, err := loadArticle(name)
		if err != nil {
			logger.Warn("skipping unreadable article file", "file", name, "error", err)
			continue
		}
		if doc.ID == "" {
			logger.Warn("skipping article without slug", "file", name)
			continue
		}
		if seen[doc.ID] {
			logger.Warn("skipping duplicate article slug", "file", name, "slug", doc.ID)
			continue
		}
		seen[doc.ID] = true
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no valid articles in %s", dir)
	}
	return docs, nil
}

func loadArticle(path string) (kb.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kb.Document{}, err
	}

	var a article
	if err := json.Unmarshal(data, &a); err != nil {
		return kb.Document{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	return kb.Document{
		ID:       strings.TrimSpace(a.Slug),
		Title:    a.Title,
		Summary:  a.Summary,
		URL:      a.URL,
		Topics:   a.Topics,
		Products: a.Products,
		Body:     a.Text,
	}, nil
}

// EmbedText renders the canonical text a document is embedded under.
// The same layout is used at ingest time and when re-embedding, so the
// stored vectors stay comparable across runs.
func EmbedText(d kb.Document) string {
	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(d.Title)
	sb.WriteString("\nSummary: ")
	sb.WriteString(d.Summary)
	sb.WriteString("\nTopics: ")
	sb.WriteString(strings.Join(d.Topics, ", "))
	sb.WriteString("\nProducts: ")
	sb.WriteString(strings.Join(d.Products, ", "))
	sb.WriteString("\n\nContent:\n")
	sb.WriteString(d.Body)
	return sb.String()
}
