// Package chat orchestrates one conversational turn: retrieve, assemble,
// synthesize, fall back, and record the exchange in the session.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/alexmeckes/SUMO-chatbot/internal/assemble"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/retrieval"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// Retriever is the retrieval dependency consumed by the bot.
// *retrieval.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) []retrieval.Candidate
}

// Input is one user turn.
type Input struct {
	Query     string
	SessionID string // empty starts a new session
	TopK      int    // zero uses the configured default
	Topic     string // optional topic restriction
	NoHistory bool   // skip conversation history for this turn
}

// Source describes one document that informed the answer.
type Source struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
}

// Output is the bot's reply for one turn.
type Output struct {
	Response  string
	SessionID string
	Sources   []Source
	Fallback  bool // true when the answer is the deterministic listing
}

// Bot wires the turn pipeline together. Safe for concurrent use.
type Bot struct {
	retriever Retriever
	sessions  *session.Manager
	assembler *assemble.Assembler
	synth     Synthesizer
	logger    log.Logger
}

// NewBot creates a Bot.
func NewBot(retriever Retriever, sessions *session.Manager, assembler *assemble.Assembler, synth Synthesizer, logger log.Logger) *Bot {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bot{
		retriever: retriever,
		sessions:  sessions,
		assembler: assembler,
		synth:     synth,
		logger:    logger,
	}
}

// HandleTurn executes one turn end to end.
//
// The user never sees raw pipeline errors: retrieval failures degrade to
// an empty candidate list, and synthesis failures fall back to the
// deterministic article listing. The only caller errors are an empty
// query and context cancellation.
func (b *Bot) HandleTurn(ctx context.Context, in Input) (Output, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Output{}, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = b.sessions.Create()
	}

	var history []session.Turn
	if !in.NoHistory {
		// Unknown or expired ids yield empty history; the conversation
		// restarts transparently.
		history = b.sessions.History(sessionID, 0)
	}

	hints := b.sessions.Entities(sessionID)
	if len(hints) == 0 {
		hints = assemble.ContextEntities(history)
	}

	candidates := b.retriever.Retrieve(ctx, query, retrieval.Options{
		TopK:     in.TopK,
		Topic:    in.Topic,
		Entities: hints,
	})

	var (
		answer   string
		fellBack bool
	)
	if len(candidates) == 0 {
		answer = FormatFallback(nil)
		fellBack = true
	} else {
		payload := b.assembler.Assemble(query, candidates, history)
		text, err := b.synth.Synthesize(ctx, payload)
		if err != nil {
			var synthErr *SynthesisError
			if errors.As(err, &synthErr) {
				b.logger.Warn("synthesis failed, serving fallback listing",
					"kind", synthErr.Kind,
					"retriable", synthErr.Retriable,
					"error", synthErr.Err)
			} else {
				b.logger.Warn("synthesis failed, serving fallback listing", "error", err)
			}
			answer = FormatFallback(payload.Documents)
			fellBack = true
		} else {
			answer = text
		}
	}

	sessionID = b.record(sessionID, query, answer)

	return Output{
		Response:  answer,
		SessionID: sessionID,
		Sources:   sources(candidates),
		Fallback:  fellBack,
	}, nil
}

// record appends the exchange to the session, creating a fresh session
// when the original expired between history read and append. Returns the
// session id the turns actually landed in.
func (b *Bot) record(sessionID, query, answer string) string {
	if err := b.sessions.AppendTurn(sessionID, session.RoleUser, query); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			b.logger.Warn("failed to record user turn", "session_id", sessionID, "error", err)
			return sessionID
		}
		fresh := b.sessions.Create()
		b.logger.Debug("session expired mid-turn, created replacement",
			"old_session_id", sessionID, "session_id", fresh)
		sessionID = fresh
		if err := b.sessions.AppendTurn(sessionID, session.RoleUser, query); err != nil {
			b.logger.Warn("failed to record user turn", "session_id", sessionID, "error", err)
			return sessionID
		}
	}

	if err := b.sessions.AppendTurn(sessionID, session.RoleAssistant, answer); err != nil {
		b.logger.Warn("failed to record assistant turn", "session_id", sessionID, "error", err)
		return sessionID
	}

	if err := b.sessions.SetEntities(sessionID, assemble.ExtractEntities(answer)); err != nil {
		b.logger.Warn("failed to store coreference hints", "session_id", sessionID, "error", err)
	}
	return sessionID
}

func sources(candidates []retrieval.Candidate) []Source {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Source{
			ID:         c.Document.ID,
			Title:      c.Document.Title,
			URL:        c.Document.URL,
			Similarity: c.Similarity,
		})
	}
	return out
}
