package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/alexmeckes/SUMO-chatbot/db"
	"github.com/alexmeckes/SUMO-chatbot/internal/assemble"
	"github.com/alexmeckes/SUMO-chatbot/internal/chat"
	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/index"
	"github.com/alexmeckes/SUMO-chatbot/internal/ingest"
	"github.com/alexmeckes/SUMO-chatbot/internal/kb"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Index = index.NewPostgres(pool, logger)

	a.KB, err = provideKnowledgeBase(ctx, a.Index, logger)
	if err != nil {
		return nil, err
	}

	a.Sessions = session.NewManager(session.Config{
		IdleTimeout:   time.Duration(cfg.SessionIdleTimeout) * time.Second,
		SweepInterval: time.Duration(cfg.SessionSweepSeconds) * time.Second,
		MaxTurns:      cfg.MaxTurns,
	}, logger)

	a.Retriever = retrieval.New(a.Index, embedder, a.KB, retrieval.Config{
		TopK:          cfg.TopK,
		Oversample:    cfg.Oversample,
		MinSimilarity: cfg.MinSimilarity,
		EntityBoost:   cfg.EntityBoost,
	}, logger)

	assembler := assemble.New(assemble.Config{
		Budget:       cfg.ContextBudget,
		HistoryShare: cfg.HistoryShare,
	})

	synth := chat.NewModelSynthesizer(g, chat.SynthesizerConfig{
		ModelName:    cfg.FullModelName(),
		Timeout:      time.Duration(cfg.SynthesisTimeout) * time.Second,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		Limiter:      rate.NewLimiter(rate.Limit(5), 10),
	}, logger)

	a.Bot = chat.NewBot(a.Retriever, a.Sessions, assembler, synth, logger)
	a.Ingester = ingest.NewIngester(a.Index, embedder, logger)

	return a, nil
}

// provideOtelShutdown wires an OTLP trace exporter into Genkit's
// TracerProvider. Must run before provideGenkit so spans have somewhere
// to go from the first call.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled() {
		return func() {}
	}

	// Genkit's TracerProvider reads these at initialization.
	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly
	// once during startup before any goroutines are spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tc.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", tc.Endpoint,
		"service", tc.ServiceName,
		"environment", tc.Environment)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Debug("database pool ready",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	switch provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideKnowledgeBase loads the in-memory document snapshot from the index.
// An empty index is not an error; retrieval degrades until ingestion runs.
func provideKnowledgeBase(ctx context.Context, idx index.Index, logger log.Logger) (*kb.Store, error) {
	entries, err := idx.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	docs := make([]kb.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, kb.Document{
			ID:       e.ID,
			Title:    e.Title,
			Summary:  e.Summary,
			URL:      e.URL,
			Topics:   e.Topics,
			Products: e.Products,
			Body:     e.Body,
		})
	}

	logger.Info("knowledge base loaded", "documents", len(docs))
	return kb.NewStoreWith(docs), nil
}
