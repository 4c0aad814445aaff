package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alexmeckes/SUMO-chatbot/internal/chat"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// MaxQueryLength bounds the query body field.
const MaxQueryLength = 4000

// ChatBot handles one conversational turn. *chat.Bot satisfies it.
type ChatBot interface {
	HandleTurn(ctx context.Context, in chat.Input) (chat.Output, error)
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	bot    ChatBot
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(bot ChatBot, logger log.Logger) *ChatHandler {
	return &ChatHandler{bot: bot, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	Topic      string `json:"topic,omitempty"`
	UseHistory *bool  `json:"use_history,omitempty"` // defaults to true
}

// ChatResponse is the body of a successful chat turn.
type ChatResponse struct {
	Response       string        `json:"response"`
	SessionID      string        `json:"session_id"`
	Sources        []chat.Source `json:"sources"`
	Fallback       bool          `json:"fallback"`
	ResponseTimeMS int64         `json:"response_time_ms"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "no query provided")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "query_too_long", "query exceeds 4000 characters")
		return
	}

	useHistory := true
	if req.UseHistory != nil {
		useHistory = *req.UseHistory
	}

	start := time.Now()
	out, err := h.bot.HandleTurn(r.Context(), chat.Input{
		Query:     req.Query,
		SessionID: req.SessionID,
		TopK:      req.TopK,
		Topic:     req.Topic,
		NoHistory: !useHistory,
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "missing_query", "no query provided")
			return
		}
		h.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to process the turn")
		return
	}

	sources := out.Sources
	if sources == nil {
		sources = []chat.Source{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:       out.Response,
		SessionID:      out.SessionID,
		Sources:        sources,
		Fallback:       out.Fallback,
		ResponseTimeMS: time.Since(start).Milliseconds(),
	})
}
