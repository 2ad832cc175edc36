package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/alarm-engine/internal/application"
	"github.com/example/alarm-engine/internal/persistence"
	"github.com/example/alarm-engine/internal/reconcile"
)

type exceptionService interface {
	CreateException(ctx context.Context, input application.ExceptionInput) (persistence.SkipException, []reconcile.Warning, error)
	ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error)
	DeleteException(ctx context.Context, id string) ([]reconcile.Warning, error)
}

type ExceptionHandler struct {
	service   exceptionService
	responder responder
}

func NewExceptionHandler(service exceptionService, logger *slog.Logger) *ExceptionHandler {
	return &ExceptionHandler{service: service, responder: newResponder(logger)}
}

func (h *ExceptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	exception, warnings, err := h.service.CreateException(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := exceptionResponse{
		Exception: toExceptionDTO(exception),
		Warnings:  toWarningDTOs(warnings),
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, payload)
}

func (h *ExceptionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter := persistence.ExceptionFilter{
		DateFrom: strings.TrimSpace(r.URL.Query().Get("from")),
		DateTo:   strings.TrimSpace(r.URL.Query().Get("to")),
	}
	if planID := strings.TrimSpace(r.URL.Query().Get("plan_id")); planID != "" {
		filter.PlanID = &planID
	}

	exceptions, err := h.service.ListExceptions(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listExceptionsResponse{Exceptions: toExceptionDTOs(exceptions)})
}

func (h *ExceptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	exceptionID, ok := ExceptionIDFromContext(r.Context())
	if !ok || strings.TrimSpace(exceptionID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidExceptionID)
		return
	}

	if _, err := h.service.DeleteException(r.Context(), exceptionID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type exceptionRequest struct {
	PlanID *string `json:"plan_id"`
	Date   string  `json:"date"`
	Reason string  `json:"reason"`
}

func (r exceptionRequest) toInput() application.ExceptionInput {
	input := application.ExceptionInput{
		Date:   strings.TrimSpace(r.Date),
		Reason: persistence.SkipReason(strings.TrimSpace(r.Reason)),
	}
	if r.PlanID != nil {
		if trimmed := strings.TrimSpace(*r.PlanID); trimmed != "" {
			input.PlanID = &trimmed
		}
	}
	return input
}

type exceptionResponse struct {
	Exception exceptionDTO `json:"exception"`
	Warnings  []warningDTO `json:"warnings,omitempty"`
}

type listExceptionsResponse struct {
	Exceptions []exceptionDTO `json:"exceptions"`
}

type exceptionDTO struct {
	ID        string  `json:"id"`
	PlanID    *string `json:"plan_id,omitempty"`
	Date      string  `json:"date"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at"`
}

func toExceptionDTO(exception persistence.SkipException) exceptionDTO {
	return exceptionDTO{
		ID:        exception.ID,
		PlanID:    exception.PlanID,
		Date:      exception.Date,
		Reason:    string(exception.Reason),
		CreatedAt: exception.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toExceptionDTOs(exceptions []persistence.SkipException) []exceptionDTO {
	if len(exceptions) == 0 {
		return nil
	}
	out := make([]exceptionDTO, 0, len(exceptions))
	for _, exception := range exceptions {
		out = append(out, toExceptionDTO(exception))
	}
	return out
}
