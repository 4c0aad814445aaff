// Package index defines the vector index that stores article embeddings
// and serves nearest-neighbor queries. Retrieval consumes the Index
// interface; ingestion writes through it.
package index

import (
	"context"
	"errors"
)

// VectorDimension is the embedding width stored in the index. It matches
// all-MiniLM class sentence embedders (384 dimensions).
const VectorDimension = 384

// ErrNotFound indicates the requested entry does not exist in the index.
var ErrNotFound = errors.New("index entry not found")

// Entry is one stored article with its metadata. Embeddings are write-only
// from the caller's perspective; queries return distances, not vectors.
type Entry struct {
	ID       string
	Title    string
	Summary  string
	URL      string
	Topics   []string
	Products []string
	Body     string
}

// Hit is one nearest-neighbor result. Distance is cosine distance,
// smaller is closer.
type Hit struct {
	ID       string
	Distance float64
}

// Index is the vector index contract.
type Index interface {
	// Query returns up to k nearest neighbors of vec, closest first.
	// A non-empty topic restricts results to entries tagged with it.
	Query(ctx context.Context, vec []float32, k int, topic string) ([]Hit, error)

	// Neighbors returns up to k nearest neighbors of the stored entry id,
	// excluding the entry itself. Returns ErrNotFound for unknown ids.
	Neighbors(ctx context.Context, id string, k int) ([]Hit, error)

	// Upsert inserts or replaces entries with their embeddings.
	// vecs[i] is the embedding of entries[i].
	Upsert(ctx context.Context, entries []Entry, vecs [][]float32) error

	// DeleteAll removes every entry. Used by wholesale re-ingestion.
	DeleteAll(ctx context.Context) error

	// List returns all entries without embeddings, ordered by id.
	List(ctx context.Context) ([]Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}
