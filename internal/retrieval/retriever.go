// Package retrieval turns a user query into a ranked list of knowledge
// base candidates. It embeds the query, oversamples the vector index,
// normalizes distances to similarities, filters, dedups, and truncates.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/index"
	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// ErrNotFound indicates the reference document for a similarity lookup
// does not exist.
var ErrNotFound = errors.New("document not found")

// Candidate is one retrieved document with its normalized similarity
// score in [0, 1].
type Candidate struct {
	Document   kb.Document
	Similarity float64
}

// scoredCandidate pairs a candidate with its ranking score, which may
// carry an entity boost the reported similarity does not.
type scoredCandidate struct {
	Candidate
	score float64
}

// Options tunes a single retrieval.
type Options struct {
	// TopK overrides the configured result count. Zero means default;
	// values above the hard cap are clamped.
	TopK int
	// Topic restricts results to documents tagged with it.
	Topic string
	// Entities are coreference hints from recent conversation. Candidates
	// matching a hint get an additive score boost before truncation.
	Entities []string
}

// Config tunes the retriever.
type Config struct {
	TopK          int     // default result count
	Oversample    int     // index fetch multiplier before filtering
	MinSimilarity float64 // drop candidates scoring below this
	EntityBoost   float64 // additive boost per entity-matching candidate
}

// Retriever executes semantic retrieval over the vector index.
// Safe for concurrent use.
type Retriever struct {
	idx      index.Index
	embedder ai.Embedder
	docs     *kb.Store
	cfg      Config
	logger   log.Logger
}

// New creates a Retriever.
func New(idx index.Index, embedder ai.Embedder, docs *kb.Store, cfg Config, logger log.Logger) *Retriever {
	if cfg.TopK < 1 {
		cfg.TopK = config.DefaultTopK
	}
	if cfg.Oversample < 1 {
		cfg.Oversample = 3
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		idx:      idx,
		embedder: embedder,
		docs:     docs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns up to topK candidates for query, ordered by descending
// similarity with ascending id as the tie-break.
//
// Retrieval is a degraded operation: embedder or index failure logs a
// warning and returns an empty result, never an error. The turn then
// proceeds with no documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) []Candidate {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	k := r.clampTopK(opts.TopK)
	fetch := k * r.cfg.Oversample

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, degrading to empty retrieval",
			"error", err)
		return nil
	}

	hits, err := r.idx.Query(ctx, vec, fetch, opts.Topic)
	if err != nil {
		r.logger.Warn("index query failed, degrading to empty retrieval",
			"error", err)
		return nil
	}

	seen := make(map[string]struct{}, len(hits))
	scored := make([]scoredCandidate, 0, len(hits))
	for _, hit := range hits {
		if _, dup := seen[hit.ID]; dup {
			continue // first occurrence wins
		}
		seen[hit.ID] = struct{}{}

		doc, ok := r.docs.Get(hit.ID)
		if !ok {
			r.logger.Warn("index hit missing from knowledge base", "id", hit.ID)
			continue
		}

		sim := similarityFromDistance(hit.Distance)
		if sim < r.cfg.MinSimilarity {
			continue
		}
		scored = append(scored, scoredCandidate{
			Candidate: Candidate{Document: doc, Similarity: sim},
			score:     sim,
		})
	}

	// The boost only reorders; the reported similarity stays the raw
	// cosine score.
	if len(opts.Entities) > 0 && r.cfg.EntityBoost > 0 {
		for i := range scored {
			if matchesAnyEntity(scored[i].Document, opts.Entities) {
				scored[i].score = min(scored[i].score+r.cfg.EntityBoost, 1)
			}
		}
	}

	slices.SortStableFunc(scored, func(a, b scoredCandidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.Document.ID < b.Document.ID:
			return -1
		case a.Document.ID > b.Document.ID:
			return 1
		}
		return 0
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	candidates := make([]Candidate, len(scored))
	for i, sc := range scored {
		candidates[i] = sc.Candidate
	}

	r.logger.Debug("retrieved candidates",
		"query_length", len(query),
		"top_k", k,
		"returned", len(candidates))
	return candidates
}

// Similar returns up to k documents nearest to the document with the
// given id, excluding the document itself. Unlike Retrieve, an unknown
// id is a caller error and is reported as ErrNotFound.
func (r *Retriever) Similar(ctx context.Context, id string, k int) ([]Candidate, error) {
	k = r.clampTopK(k)

	hits, err := r.idx.Neighbors(ctx, id, k)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("neighbor lookup for %q: %w", id, err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		doc, ok := r.docs.Get(hit.ID)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Document:   doc,
			Similarity: similarityFromDistance(hit.Distance),
		})
	}
	sortCandidates(candidates)
	return candidates, nil
}

func (r *Retriever) clampTopK(k int) int {
	if k <= 0 {
		k = r.cfg.TopK
	}
	if k > config.MaxTopK {
		k = config.MaxTopK
	}
	return k
}

// embedQuery embeds a single query string.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}
	return resp.Embeddings[0].Embedding, nil
}

// similarityFromDistance maps cosine distance [0, 2] to similarity [0, 1].
// Distances above 1 (opposing vectors) clamp to zero.
func similarityFromDistance(d float64) float64 {
	sim := 1 - d
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// sortCandidates orders by descending similarity, ascending id on ties.
func sortCandidates(candidates []Candidate) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		case a.Document.ID < b.Document.ID:
			return -1
		case a.Document.ID > b.Document.ID:
			return 1
		}
		return 0
	})
}

// matchesAnyEntity reports whether the document's title, summary, or
// topics mention any of the hinted entities, case-insensitive.
func matchesAnyEntity(doc kb.Document, entities []string) bool {
	haystack := strings.ToLower(doc.Title + " " + doc.Summary + " " + strings.Join(doc.Topics, " "))
	for _, entity := range entities {
		entity = strings.ToLower(strings.TrimSpace(entity))
		if entity == "" {
			continue
		}
		if strings.Contains(haystack, entity) {
			return true
		}
	}
	return false
}
