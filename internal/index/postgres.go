package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// queryTimeout bounds a single vector search so a slow index scan cannot
// block a chat turn indefinitely.
const queryTimeout = 5 * time.Second

// DB is the subset of pgx operations Postgres needs. Defined by the
// consumer (like http.RoundTripper); *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres implements Index on PostgreSQL with the pgvector extension.
// Distances use the cosine operator (<=>). Safe for concurrent use.
type Postgres struct {
	db     DB
	logger log.Logger
}

// NewPostgres creates a pgvector-backed index.
func NewPostgres(db DB, logger log.Logger) *Postgres {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// Query returns up to k nearest neighbors of vec, closest first.
func (p *Postgres) Query(ctx context.Context, vec []float32, k int, topic string) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	embedding := pgvector.NewVector(vec)

	var (
		rows pgx.Rows
		err  error
	)
	if topic != "" {
		// The jsonb ? operator tests membership in the topics array.
		// Parameters are positional; user input never reaches the SQL text.
		rows, err = p.db.Query(queryCtx, `
			SELECT id, embedding <=> $1 AS distance
			FROM documents
			WHERE topics ? $3
			ORDER BY embedding <=> $1
			LIMIT $2`,
			embedding, k, topic)
	} else {
		rows, err = p.db.Query(queryCtx, `
			SELECT id, embedding <=> $1 AS distance
			FROM documents
			ORDER BY embedding <=> $1
			LIMIT $2`,
			embedding, k)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// Neighbors returns up to k nearest neighbors of the stored entry id,
// excluding the entry itself.
func (p *Postgres) Neighbors(ctx context.Context, id string, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := p.db.QueryRow(queryCtx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("looking up document %q: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}

	rows, err := p.db.Query(queryCtx, `
		SELECT d.id, d.embedding <=> s.embedding AS distance
		FROM documents d,
		     (SELECT embedding FROM documents WHERE id = $1) s
		WHERE d.id <> $1
		ORDER BY distance
		LIMIT $2`,
		id, k)
	if err != nil {
		return nil, fmt.Errorf("neighbor search failed: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

func scanHits(rows pgx.Rows) ([]Hit, error) {
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return hits, nil
}

// Upsert inserts or replaces entries with their embeddings.
func (p *Postgres) Upsert(ctx context.Context, entries []Entry, vecs [][]float32) error {
	if len(entries) != len(vecs) {
		return fmt.Errorf("entries/vectors length mismatch: %d vs %d", len(entries), len(vecs))
	}

	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has empty id", i)
		}
		if len(vecs[i]) != VectorDimension {
			return fmt.Errorf("entry %q embedding has %d dimensions, want %d", e.ID, len(vecs[i]), VectorDimension)
		}

		topicsJSON, err := json.Marshal(e.Topics)
		if err != nil {
			return fmt.Errorf("marshal topics for %q: %w", e.ID, err)
		}
		productsJSON, err := json.Marshal(e.Products)
		if err != nil {
			return fmt.Errorf("marshal products for %q: %w", e.ID, err)
		}

		embedding := pgvector.NewVector(vecs[i])
		_, err = p.db.Exec(ctx, `
			INSERT INTO documents (id, title, summary, url, topics, products, body, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				summary = EXCLUDED.summary,
				url = EXCLUDED.url,
				topics = EXCLUDED.topics,
				products = EXCLUDED.products,
				body = EXCLUDED.body,
				embedding = EXCLUDED.embedding`,
			e.ID, e.Title, e.Summary, e.URL, topicsJSON, productsJSON, e.Body, embedding)
		if err != nil {
			return fmt.Errorf("upsert document %q: %w", e.ID, err)
		}
	}

	p.logger.Debug("upserted documents", "count", len(entries))
	return nil
}

// DeleteAll removes every entry.
func (p *Postgres) DeleteAll(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// List returns all entries without embeddings, ordered by id.
func (p *Postgres) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, title, summary, url, topics, products, body
		FROM documents
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			topicsJSON   []byte
			productsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.URL, &topicsJSON, &productsJSON, &e.Body); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if len(topicsJSON) > 0 {
			if err := json.Unmarshal(topicsJSON, &e.Topics); err != nil {
				p.logger.Warn("failed to parse topics", "document_id", e.ID, "error", err)
			}
		}
		if len(productsJSON) > 0 {
			if err := json.Unmarshal(productsJSON, &e.Products); err != nil {
				p.logger.Warn("failed to parse products", "document_id", e.ID, "error", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	// Overflow protection for 32-bit platforms
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}
