package api

import (
	"errors"
	"net/http"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
	"github.com/alexmeckes/SUMO-chatbot/internal/session"
)

// SessionStore is the session dependency consumed by the HTTP layer.
// *session.Manager satisfies it.
type SessionStore interface {
	Create() string
	History(id string, maxTurns int) []session.Turn
	Clear(id string) error
	Delete(id string) error
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	sessions SessionStore
	logger   log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}/history", h.history)
	mux.HandleFunc("POST /api/sessions/{id}/clear", h.clear)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
}

// CreateSessionResponse is the body of POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (h *SessionHandler) create(w http.ResponseWriter, _ *http.Request) {
	id := h.sessions.Create()
	h.logger.Debug("created session", "session_id", id)
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// HistoryResponse is the body of GET /api/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns := h.sessions.History(id, 0)
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Turns: turns})
}

func (h *SessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Clear(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "unknown or expired session")
			return
		}
		h.logger.Error("failed to clear session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "session_id": id})
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "unknown or expired session")
			return
		}
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
