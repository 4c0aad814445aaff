package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/alexmeckes/SUMO-chatbot/internal/app"
	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/ingest"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// ingestOptions are the flags accepted by the ingest command.
type ingestOptions struct {
	dir  string
	keep bool
}

func parseIngestArgs(args []string) (ingestOptions, error) {
	var opts ingestOptions
	for _, arg := range args {
		switch arg {
		case "--keep":
			opts.keep = true
		default:
			if opts.dir != "" {
				return opts, fmt.Errorf("unexpected argument %q", arg)
			}
			opts.dir = arg
		}
	}
	if opts.dir == "" {
		return opts, fmt.Errorf("no article directory provided")
	}
	return opts, nil
}

// runIngest loads articles from a directory and writes them to the
// index. By default the index is replaced wholesale; --keep adds to it.
func runIngest(logger log.Logger, args []string) error {
	opts, err := parseIngestArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	docs, err := ingest.LoadArticles(opts.dir, logger)
	if err != nil {
		return fmt.Errorf("loading articles: %w", err)
	}
	logger.Info("loaded articles", "count", len(docs), "dir", opts.dir)

	ctx := context.Background()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	res, err := a.Ingester.Run(ctx, docs, !opts.keep)
	if err != nil {
		return fmt.Errorf("ingesting articles: %w", err)
	}

	fmt.Printf("Ingested %d documents in %d batches (%s)\n",
		res.Ingested, res.Batches, res.Elapsed.Round(time.Millisecond))
	return nil
}
