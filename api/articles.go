package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
)

// Similar-articles bounds.
const (
	DefaultSimilarCount = 3
	MaxSimilarCount     = 20
)

// ArticleFinder serves article lookups. *retrieval.Retriever provides
// Similar; the knowledge base store provides Topics.
type ArticleFinder interface {
	Similar(ctx context.Context, id string, k int) ([]retrieval.Candidate, error)
	Topics() []string
}

// ArticlesHandler handles article endpoints.
type ArticlesHandler struct {
	finder ArticleFinder
	logger log.Logger
}

// NewArticlesHandler creates an articles handler.
func NewArticlesHandler(finder ArticleFinder, logger log.Logger) *ArticlesHandler {
	return &ArticlesHandler{finder: finder, logger: logger}
}

// RegisterRoutes registers article routes on the given mux.
func (h *ArticlesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/articles/{id}/similar", h.similar)
	mux.HandleFunc("GET /api/topics", h.topics)
}

// SimilarArticle is one related-article result.
type SimilarArticle struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
}

// SimilarResponse is the body of GET /api/articles/{id}/similar.
type SimilarResponse struct {
	ID       string           `json:"id"`
	Articles []SimilarArticle `json:"articles"`
}

func (h *ArticlesHandler) similar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	k := parseIntParam(r, "k", DefaultSimilarCount, 1, MaxSimilarCount)

	candidates, err := h.finder.Similar(r.Context(), id, k)
	if err != nil {
		if errors.Is(err, retrieval.ErrNotFound) {
			writeError(w, http.StatusNotFound, "article_not_found", "unknown article id")
			return
		}
		h.logger.Error("similar-articles lookup failed", "article_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to find similar articles")
		return
	}

	articles := make([]SimilarArticle, 0, len(candidates))
	for _, c := range candidates {
		articles = append(articles, SimilarArticle{
			ID:         c.Document.ID,
			Title:      c.Document.Title,
			Summary:    c.Document.Summary,
			URL:        c.Document.URL,
			Similarity: c.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, SimilarResponse{ID: id, Articles: articles})
}

// TopicsResponse is the body of GET /api/topics.
type TopicsResponse struct {
	Topics []string `json:"topics"`
}

func (h *ArticlesHandler) topics(w http.ResponseWriter, _ *http.Request) {
	topics := h.finder.Topics()
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, TopicsResponse{Topics: topics})
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
