package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain/event"
)

// Pinger is satisfied by *sql.DB and the in-memory store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	outbox event.Repository
	logger *zap.Logger
}

// NewHealthHandler creates the liveness handler. outbox may be nil.
func NewHealthHandler(db Pinger, outbox event.Repository, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, outbox: outbox, logger: loggerOrNop(logger)}
}

type HealthResponse struct {
	Status string         `json:"status"`
	Outbox map[string]int `json:"outbox,omitempty"`
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	resp := HealthResponse{Status: "ok"}
	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(ctx)
		if err != nil {
			h.logger.Warn("failed to count outbox events", zap.Error(err))
		} else {
			resp.Outbox = make(map[string]int, len(counts))
			for status, n := range counts {
				resp.Outbox[string(status)] = n
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
