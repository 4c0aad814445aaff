// Package app assembles the chatbot: configuration, database, Genkit,
// index, retrieval, sessions, and the turn pipeline.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alexmeckes/SUMO-chatbot/internal/chat"
	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/index"
	"github.com/alexmeckes/SUMO-chatbot/internal/ingest"
	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// App is the application container. Build one with Setup and release it
// with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Index     index.Index
	KB        *kb.Store
	Sessions  *session.Manager
	Retriever *retrieval.Retriever
	Bot       *chat.Bot
	Ingester  *ingest.Ingester

	otelCleanup func()
}

// Close releases all resources. Safe to call after a partial Setup.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Articles serves the HTTP article endpoints: similarity lookups come
// from the retriever, topics from the knowledge base snapshot.
type Articles struct {
	retriever *retrieval.Retriever
	kb        *kb.Store
}

// NewArticles creates an Articles facade.
func NewArticles(retriever *retrieval.Retriever, store *kb.Store) *Articles {
	return &Articles{retriever: retriever, kb: store}
}

func (a *Articles) Similar(ctx context.Context, id string, k int) ([]retrieval.Candidate, error) {
	return a.retriever.Similar(ctx, id, k)
}

func (a *Articles) Topics() []string {
	return a.kb.Topics()
}

// Status reports runtime state for the status endpoint.
type Status struct {
	model    string
	idx      index.Index
	sessions *session.Manager
}

// NewStatus creates a Status facade.
func NewStatus(model string, idx index.Index, sessions *session.Manager) *Status {
	return &Status{model: model, idx: idx, sessions: sessions}
}

func (s *Status) ModelName() string { return s.model }

func (s *Status) DocumentCount(ctx context.Context) (int, error) {
	return s.idx.Count(ctx)
}

func (s *Status) ActiveSessions() int { return s.sessions.Count() }
