package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
)

type stubFinder struct {
	similar []retrieval.Candidate
	err     error
	topics  []string
	lastK   int
}

func (f *stubFinder) Similar(_ context.Context, _ string, k int) ([]retrieval.Candidate, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.similar, nil
}

func (f *stubFinder) Topics() []string { return f.topics }

func newArticlesMux(finder *stubFinder) *http.ServeMux {
	mux := http.NewServeMux()
	NewArticlesHandler(finder, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestArticlesHandler_Similar(t *testing.T) {
	finder := &stubFinder{similar: []retrieval.Candidate{
		{
			Document: kb.Document{
				ID:      "clear-cookies",
				Title:   "Clear cookies and site data",
				URL:     "https://support.mozilla.org/kb/clear-cookies",
				Summary: "Remove stored cookies.",
			},
			Similarity: 0.72,
		},
	}}
	mux := newArticlesMux(finder)

	req := httptest.NewRequest(http.MethodGet, "/api/articles/sync-setup/similar", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SimilarResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sync-setup", resp.ID)
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "clear-cookies", resp.Articles[0].ID)
	assert.Equal(t, 0.72, resp.Articles[0].Similarity)
	assert.Equal(t, DefaultSimilarCount, finder.lastK)
}

func TestArticlesHandler_SimilarCountParam(t *testing.T) {
	finder := &stubFinder{}
	mux := newArticlesMux(finder)

	tests := []struct {
		query string
		wantK int
	}{
		{"k=7", 7},
		{"k=0", 1},
		{"k=999", MaxSimilarCount},
		{"k=junk", DefaultSimilarCount},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/articles/a/similar?"+tt.query, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.wantK, finder.lastK, "query %q", tt.query)
	}
}

func TestArticlesHandler_SimilarUnknownArticle(t *testing.T) {
	mux := newArticlesMux(&stubFinder{err: retrieval.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/articles/no-such/similar", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArticlesHandler_SimilarLookupError(t *testing.T) {
	mux := newArticlesMux(&stubFinder{err: errors.New("index down")})

	req := httptest.NewRequest(http.MethodGet, "/api/articles/a/similar", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestArticlesHandler_Topics(t *testing.T) {
	mux := newArticlesMux(&stubFinder{topics: []string{"cookies", "sync"}})

	req := httptest.NewRequest(http.MethodGet, "/api/topics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp TopicsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"cookies", "sync"}, resp.Topics)
}

func TestArticlesHandler_TopicsEmpty(t *testing.T) {
	mux := newArticlesMux(&stubFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/topics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"topics":[]`)
}
