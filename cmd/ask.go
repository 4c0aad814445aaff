package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexmeckes/SUMO-chatbot/internal/app"
	"github.com/alexmeckes/SUMO-chatbot/internal/chat"
	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// askOptions are the flags accepted by the ask command.
type askOptions struct {
	topic    string
	topK     int
	question string
}

// parseAskArgs splits flags from the question words. Unrecognized
// arguments are treated as part of the question.
func parseAskArgs(args []string) (askOptions, error) {
	var opts askOptions
	var words []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--topic":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--topic requires a value")
			}
			i++
			opts.topic = args[i]
		case "--top-k":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--top-k requires a value")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				return opts, fmt.Errorf("--top-k requires a positive integer, got %q", args[i])
			}
			opts.topK = n
		default:
			words = append(words, args[i])
		}
	}

	opts.question = strings.TrimSpace(strings.Join(words, " "))
	if opts.question == "" {
		return opts, fmt.Errorf("no question provided")
	}
	return opts, nil
}

// runAsk answers a single question and exits.
func runAsk(logger log.Logger, args []string) error {
	opts, err := parseAskArgs(args)
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

	out, err := a.Bot.HandleTurn(ctx, chat.Input{
		Query:     opts.question,
		TopK:      opts.topK,
		Topic:     opts.topic,
		NoHistory: true,
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(out.Response)
	if len(out.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range out.Sources {
			fmt.Printf("  %s (%.2f) %s\n", s.Title, s.Similarity, s.URL)
		}
	}
	return nil
}
