package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/alexmeckes/SUMO-chatbot/internal/index"
	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// batchSize bounds how many documents go into one embedding request and
// one index write.
const batchSize = 50

// Ingester embeds documents and writes them to the index.
type Ingester struct {
	idx      index.Index
	embedder ai.Embedder
	logger   log.Logger
}

// NewIngester creates an Ingester.
func NewIngester(idx index.Index, embedder ai.Embedder, logger log.Logger) *Ingester {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingester{idx: idx, embedder: embedder, logger: logger}
}

// Result summarizes one ingestion run.
type Result struct {
	Ingested int
	Batches  int
	Elapsed  time.Duration
}

// Run embeds docs in batches and upserts them. When replace is true the
// index is emptied first, so the run leaves exactly docs behind.
func (in *Ingester) Run(ctx context.Context, docs []kb.Document, replace bool) (Result, error) {
	start := time.Now()

	if len(docs) == 0 {
		return Result{}, fmt.Errorf("nothing to ingest")
	}

	if replace {
		if err := in.idx.DeleteAll(ctx); err != nil {
			return Result{}, fmt.Errorf("clearing index: %w", err)
		}
		in.logger.Info("cleared index for re-ingestion")
	}

	res := Result{}
	for offset := 0; offset < len(docs); offset += batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := offset + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[offset:end]

		if err := in.runBatch(ctx, batch); err != nil {
			return res, fmt.Errorf("batch starting at %s: %w", batch[0].ID, err)
		}

		res.Ingested += len(batch)
		res.Batches++
		in.logger.Info("ingested batch",
			"batch", res.Batches,
			"documents", res.Ingested,
			"total", len(docs))
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// runBatch embeds one batch and upserts it.
func (in *Ingester) runBatch(ctx context.Context, batch []kb.Document) error {
	input := make([]*ai.Document, len(batch))
	for i, doc := range batch {
		input[i] = ai.DocumentFromText(EmbedText(doc), nil)
	}

	resp, err := in.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(resp.Embeddings) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(resp.Embeddings), len(batch))
	}

	entries := make([]index.Entry, len(batch))
	vecs := make([][]float32, len(batch))
	for i, doc := range batch {
		entries[i] = index.Entry{
			ID:       doc.ID,
			Title:    doc.Title,
			Summary:  doc.Summary,
			URL:      doc.URL,
			Topics:   doc.Topics,
			Products: doc.Products,
			Body:     doc.Body,
		}
		vecs[i] = resp.Embeddings[i].Embedding
	}

	return in.idx.Upsert(ctx, entries, vecs)
}
