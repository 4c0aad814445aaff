package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/alexmeckes/SUMO-chatbot/internal/assemble"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// systemInstructions is the fixed system prompt for answer synthesis.
const systemInstructions = `You are a helpful Mozilla Firefox support assistant. ` +
	`Answer the user's question using only the provided Mozilla Support knowledge base articles. ` +
	`Cite article titles when you reference them. ` +
	`If the provided articles do not cover the question, say so instead of guessing.`

// Synthesizer turns an assembled payload into an answer.
// Implementations must treat empty output as failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, payload assemble.Payload) (string, error)
}

// SynthesizerConfig tunes the model-backed synthesizer.
type SynthesizerConfig struct {
	// ModelName is the provider-qualified model, e.g. "googleai/gemini-2.5-flash".
	ModelName string
	// Timeout bounds a single model call.
	Timeout time.Duration
	// RetryBackoff is the wait before the single retry of a retriable failure.
	RetryBackoff time.Duration
	// Limiter throttles model calls. Nil disables limiting.
	Limiter *rate.Limiter
}

// ModelSynthesizer calls the configured model through Genkit.
// A retriable failure is retried once after RetryBackoff; every other
// failure surfaces immediately as a *SynthesisError.
type ModelSynthesizer struct {
	g      *genkit.Genkit
	cfg    SynthesizerConfig
	logger log.Logger
}

// NewModelSynthesizer creates a model-backed synthesizer.
func NewModelSynthesizer(g *genkit.Genkit, cfg SynthesizerConfig, logger log.Logger) *ModelSynthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ModelSynthesizer{g: g, cfg: cfg, logger: logger}
}

// Synthesize builds the prompt deterministically from the payload and
// calls the model.
func (s *ModelSynthesizer) Synthesize(ctx context.Context, payload assemble.Payload) (string, error) {
	start := time.Now()

	text, synthErr := s.attempt(ctx, payload)
	if synthErr == nil {
		s.logger.Debug("synthesized answer", "attempts", 1, "elapsed", time.Since(start))
		return text, nil
	}
	if !synthErr.Retriable {
		return "", synthErr
	}

	s.logger.Debug("retrying synthesis after retriable failure",
		"kind", synthErr.Kind,
		"backoff", s.cfg.RetryBackoff,
		"error", synthErr.Err)

	select {
	case <-ctx.Done():
		return "", &SynthesisError{Kind: KindTimeout, Retriable: false, Err: ctx.Err()}
	case <-time.After(s.cfg.RetryBackoff):
	}

	text, synthErr = s.attempt(ctx, payload)
	if synthErr == nil {
		s.logger.Debug("synthesized answer", "attempts", 2, "elapsed", time.Since(start))
		return text, nil
	}
	return "", synthErr
}

// attempt is a single rate-limited, deadline-bounded model call.
func (s *ModelSynthesizer) attempt(ctx context.Context, payload assemble.Payload) (string, *SynthesisError) {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return "", classify(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, s.g,
		ai.WithModelName(s.cfg.ModelName),
		ai.WithSystem(systemInstructions),
		ai.WithMessages(buildMessages(payload)...),
	)
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		// Malformed output is assumed deterministic: retrying the same
		// prompt would produce the same failure, so fall back at once.
		return "", &SynthesisError{Kind: KindMalformed, Retriable: false, Err: fmt.Errorf("model returned empty response")}
	}
	return text, nil
}

// buildMessages renders the payload as a message list: prior history
// turns followed by the cited context and the question in the final
// user message.
func buildMessages(payload assemble.Payload) []*ai.Message {
	messages := make([]*ai.Message, 0, len(payload.History)+1)
	for _, turn := range payload.History {
		switch turn.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Text)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(renderPrompt(payload))))
	return messages
}

// renderPrompt produces the deterministic final user message: one block
// per packed article, then the question.
func renderPrompt(payload assemble.Payload) string {
	var sb strings.Builder
	if len(payload.Documents) > 0 {
		sb.WriteString("Here are relevant Mozilla Support knowledge base articles:\n\n")
		for i, c := range payload.Documents {
			d := c.Document
			fmt.Fprintf(&sb, "Article %d: %s\n", i+1, d.Title)
			if d.Summary != "" {
				fmt.Fprintf(&sb, "Summary: %s\n", d.Summary)
			}
			if d.URL != "" {
				fmt.Fprintf(&sb, "URL: %s\n", d.URL)
			}
			if d.Body != "" {
				fmt.Fprintf(&sb, "Content: %s\n", d.Body)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Question: ")
	sb.WriteString(payload.Query)
	return sb.String()
}
