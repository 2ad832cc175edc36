package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/alarm-engine/internal/reconcile"
)

type reconcileTrigger interface {
	Reconcile(ctx context.Context, event reconcile.Event) (reconcile.Result, error)
}

type EventHandler struct {
	reconciler reconcileTrigger
	responder  responder
}

func NewEventHandler(reconciler reconcileTrigger, logger *slog.Logger) *EventHandler {
	return &EventHandler{reconciler: reconciler, responder: newResponder(logger)}
}

// Post accepts a scheduling event and runs a reconcile pass for it.
func (h *EventHandler) Post(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reconciler == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event := reconcile.Event(strings.TrimSpace(req.Event))
	result, err := h.reconciler.Reconcile(r.Context(), event)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.responder.logger, "event", "post").InfoContext(r.Context(), "reconcile completed",
		"event", string(result.Event),
		"registered", result.Registered,
		"canceled", result.Canceled,
		"coalesced", result.Coalesced,
	)

	h.responder.writeJSON(r.Context(), w, http.StatusOK, reconcileResponse{
		Event:      string(result.Event),
		Registered: result.Registered,
		Canceled:   result.Canceled,
		Unchanged:  result.Unchanged,
		Coalesced:  result.Coalesced,
		Warnings:   toWarningDTOs(result.Warnings),
	})
}

type eventRequest struct {
	Event string `json:"event"`
}

type reconcileResponse struct {
	Event      string       `json:"event"`
	Registered int          `json:"registered"`
	Canceled   int          `json:"canceled"`
	Unchanged  int          `json:"unchanged"`
	Coalesced  bool         `json:"coalesced"`
	Warnings   []warningDTO `json:"warnings,omitempty"`
}
