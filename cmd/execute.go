// Package cmd contains the CLI entry points: serve, ask, ingest, and
// version.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// Execute is the main entry point for the CLI. It routes the first
// argument to a subcommand; version and help work even when the
// configuration is invalid.
func Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return nil
	}

	switch args[0] {
	case "version", "--version", "-v":
		printVersionInfo()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	}

	logger := initLogger()
	slog.SetDefault(logger)

	switch args[0] {
	case "serve":
		return runServe(logger)
	case "ask":
		return runAsk(logger, args[1:])
	case "ingest":
		return runIngest(logger, args[1:])
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// initLogger builds the process logger. DEBUG in the environment
// switches on debug-level output; logs go to stderr so stdout stays
// clean for command output.
func initLogger() log.Logger {
	return log.NewWithWriter(os.Stderr, log.Config{
		Level: logLevel(),
		JSON:  false,
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printHelp() {
	fmt.Println("sumo-chatbot - Mozilla Support knowledge base chatbot")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sumo-chatbot serve              Start the HTTP API server")
	fmt.Println("  sumo-chatbot ask <question>     Ask a one-off question")
	fmt.Println("  sumo-chatbot ingest <dir>       Load knowledge base articles into the index")
	fmt.Println("  sumo-chatbot version            Show version information")
	fmt.Println("  sumo-chatbot help               Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  ask:    --topic <topic>   restrict retrieval to one topic")
	fmt.Println("          --top-k <n>       number of articles to retrieve")
	fmt.Println("  ingest: --keep            add to the index instead of replacing it")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key (gemini provider)")
	fmt.Println("  OPENAI_API_KEY     OpenAI API key (openai provider)")
	fmt.Println("  DATABASE_URL       PostgreSQL connection URL override")
	fmt.Println("  DEBUG              Enable debug logging")
}
