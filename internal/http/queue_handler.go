package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/alarm-engine/internal/occurrence"
)

type queueService interface {
	ComputeQueue(ctx context.Context, lookahead int) ([]occurrence.Occurrence, error)
}

type QueueHandler struct {
	service   queueService
	responder responder
}

func NewQueueHandler(service queueService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{service: service, responder: newResponder(logger)}
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	lookahead := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("lookahead")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		lookahead = parsed
	}

	queue, err := h.service.ComputeQueue(r.Context(), lookahead)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, queueResponse{Occurrences: toOccurrenceDTOs(queue)})
}

type queueResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type occurrenceDTO struct {
	PlanID     string `json:"plan_id"`
	Label      string `json:"label"`
	Date       string `json:"date"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	FireAt     string `json:"fire_at"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
}

func toOccurrenceDTOs(occurrences []occurrence.Occurrence) []occurrenceDTO {
	if len(occurrences) == 0 {
		return nil
	}

	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, occurrenceDTO{
			PlanID:     occ.PlanID,
			Label:      occ.Label,
			Date:       occ.Date,
			Hour:       occ.Hour,
			Minute:     occ.Minute,
			FireAt:     occ.FireAt.Format(time.RFC3339),
			Skipped:    occ.Skipped,
			SkipReason: string(occ.SkipReason),
		})
	}
	return out
}
