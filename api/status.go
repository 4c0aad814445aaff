package api

import (
	"context"
	"net/http"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// StatusSource reports the runtime state shown by /api/status.
type StatusSource interface {
	ModelName() string
	DocumentCount(ctx context.Context) (int, error)
	ActiveSessions() int
}

// StatusHandler handles the status endpoint.
type StatusHandler struct {
	source StatusSource
	logger log.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(source StatusSource, logger log.Logger) *StatusHandler {
	return &StatusHandler{source: source, logger: logger}
}

// RegisterRoutes registers status routes on the given mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.status)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status            string `json:"status"`
	Model             string `json:"model"`
	DocumentsCount    int    `json:"documents_count"`
	ActiveSessions    int    `json:"active_sessions"`
	SupportsMultiturn bool   `json:"supports_multiturn"`
}

func (h *StatusHandler) status(w http.ResponseWriter, r *http.Request) {
	count, err := h.source.DocumentCount(r.Context())
	if err != nil {
		// The count is informational; report zero rather than failing.
		h.logger.Warn("document count unavailable", "error", err)
		count = 0
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:            "online",
		Model:             h.source.ModelName(),
		DocumentsCount:    count,
		ActiveSessions:    h.source.ActiveSessions(),
		SupportsMultiturn: true,
	})
}
