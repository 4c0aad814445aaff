// Package kb holds the in-memory knowledge base of support articles.
//
// The store is an immutable snapshot: readers get consistent views without
// locking, and re-ingestion swaps the whole snapshot atomically. Documents
// are never mutated after load.
package kb

import (
	"slices"
	"strings"
	"sync/atomic"
)

// Document is one knowledge base article. ID is the article slug.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	URL      string   `json:"url"`
	Topics   []string `json:"topics"`
	Products []string `json:"products"`
	Body     string   `json:"body"`
}

// snapshot is one immutable generation of the knowledge base.
type snapshot struct {
	byID    map[string]Document
	ids     []string            // sorted
	byTopic map[string][]string // topic → sorted document ids
	topics  []string            // sorted
}

// Store provides lock-free reads over an atomically swappable snapshot.
type Store struct {
	snap atomic.Pointer[snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.snap.Store(buildSnapshot(nil))
	return s
}

// NewStoreWith creates a store pre-populated with docs.
func NewStoreWith(docs []Document) *Store {
	s := &Store{}
	s.snap.Store(buildSnapshot(docs))
	return s
}

func buildSnapshot(docs []Document) *snapshot {
	snap := &snapshot{
		byID:    make(map[string]Document, len(docs)),
		byTopic: make(map[string][]string),
	}
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		if _, dup := snap.byID[d.ID]; dup {
			continue // first occurrence wins
		}
		snap.byID[d.ID] = d
		snap.ids = append(snap.ids, d.ID)
		for _, topic := range d.Topics {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			snap.byTopic[topic] = append(snap.byTopic[topic], d.ID)
		}
	}
	slices.Sort(snap.ids)
	for topic, ids := range snap.byTopic {
		slices.Sort(ids)
		snap.byTopic[topic] = ids
		snap.topics = append(snap.topics, topic)
	}
	slices.Sort(snap.topics)
	return snap
}

// Replace atomically swaps in a new snapshot built from docs.
// In-flight readers keep the generation they started with.
func (s *Store) Replace(docs []Document) {
	s.snap.Store(buildSnapshot(docs))
}

// Get returns the document with the given id.
func (s *Store) Get(id string) (Document, bool) {
	d, ok := s.snap.Load().byID[id]
	return d, ok
}

// Len returns the number of documents in the current snapshot.
func (s *Store) Len() int {
	return len(s.snap.Load().ids)
}

// IDs returns all document ids in ascending order.
func (s *Store) IDs() []string {
	return slices.Clone(s.snap.Load().ids)
}

// Topics returns all distinct topics in ascending order.
func (s *Store) Topics() []string {
	return slices.Clone(s.snap.Load().topics)
}

// ByTopic returns the documents tagged with topic, ordered by id.
func (s *Store) ByTopic(topic string) []Document {
	snap := s.snap.Load()
	ids := snap.byTopic[topic]
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, snap.byID[id])
	}
	return docs
}
