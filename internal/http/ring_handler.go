package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/example/alarm-engine/internal/ring"
)

type ringController interface {
	Stop() (ring.Snapshot, error)
	Snooze() (ring.Snapshot, error)
	Status() ring.Snapshot
}

type RingHandler struct {
	controller ringController
	responder  responder
}

func NewRingHandler(controller ringController, logger *slog.Logger) *RingHandler {
	return &RingHandler{controller: controller, responder: newResponder(logger)}
}

func (h *RingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.controller == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ringResponse{Session: toRingDTO(h.controller.Status())})
}

func (h *RingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.controller == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	snapshot, err := h.controller.Stop()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ringResponse{Session: toRingDTO(snapshot)})
}

func (h *RingHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.controller == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	snapshot, err := h.controller.Snooze()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ringResponse{Session: toRingDTO(snapshot)})
}

type ringResponse struct {
	Session ringDTO `json:"session"`
}

type ringDTO struct {
	State       string `json:"state"`
	TokenID     string `json:"token_id,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	Label       string `json:"label,omitempty"`
	Index       int    `json:"ring_index,omitempty"`
	Total       int    `json:"ring_total,omitempty"`
	IntervalMin int    `json:"interval_min,omitempty"`
	NextRingAt  string `json:"next_ring_at,omitempty"`
}

func toRingDTO(snapshot ring.Snapshot) ringDTO {
	dto := ringDTO{
		State:       string(snapshot.State),
		TokenID:     snapshot.TokenID,
		PlanID:      snapshot.PlanID,
		Label:       snapshot.Label,
		Index:       snapshot.Index,
		Total:       snapshot.Total,
		IntervalMin: snapshot.IntervalMin,
	}
	if !snapshot.NextRingAt.IsZero() {
		dto.NextRingAt = snapshot.NextRingAt.Format(time.RFC3339)
	}
	return dto
}
