package testutil

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/alexmeckes/SUMO-chatbot/internal/index"
)

// MemIndex is an in-memory index.Index for tests. Distances use exact
// cosine distance over the stored vectors.
//
// Thread-safe for concurrent use.
type MemIndex struct {
	mu      sync.Mutex
	entries map[string]index.Entry
	vecs    map[string][]float32
	err     error
}

// NewMemIndex creates an empty in-memory index.
func NewMemIndex() *MemIndex {
	return &MemIndex{
		entries: make(map[string]index.Entry),
		vecs:    make(map[string][]float32),
	}
}

// SetError makes every subsequent call fail with err.
// Pass nil to restore normal operation.
func (m *MemIndex) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Add stores a single entry with its vector.
func (m *MemIndex) Add(e index.Entry, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	m.vecs[e.ID] = slices.Clone(vec)
}

// Query implements index.Index.
func (m *MemIndex) Query(_ context.Context, vec []float32, k int, topic string) ([]index.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	var hits []index.Hit
	for id, v := range m.vecs {
		if topic != "" && !slices.Contains(m.entries[id].Topics, topic) {
			continue
		}
		hits = append(hits, index.Hit{ID: id, Distance: cosineDistance(vec, v)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Neighbors implements index.Index.
func (m *MemIndex) Neighbors(_ context.Context, id string, k int) ([]index.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	src, ok := m.vecs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, index.ErrNotFound)
	}

	var hits []index.Hit
	for other, v := range m.vecs {
		if other == id {
			continue
		}
		hits = append(hits, index.Hit{ID: other, Distance: cosineDistance(src, v)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Upsert implements index.Index.
func (m *MemIndex) Upsert(_ context.Context, entries []index.Entry, vecs [][]float32) error {
	if len(entries) != len(vecs) {
		return fmt.Errorf("entries/vectors length mismatch: %d vs %d", len(entries), len(vecs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i, e := range entries {
		m.entries[e.ID] = e
		m.vecs[e.ID] = slices.Clone(vecs[i])
	}
	return nil
}

// DeleteAll implements index.Index.
func (m *MemIndex) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	clear(m.entries)
	clear(m.vecs)
	return nil
}

// List implements index.Index.
func (m *MemIndex) List(context.Context) ([]index.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	entries := make([]index.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b index.Entry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return entries, nil
}

// Count implements index.Index.
func (m *MemIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return len(m.entries), nil
}

// sortHits orders by ascending distance, then ascending id for stability.
func sortHits(hits []index.Hit) {
	slices.SortFunc(hits, func(a, b index.Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// cosineDistance returns 1 - cos(a, b). Zero vectors distance to 1.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := min(len(a), len(b))
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
