package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
)

type tokenSource interface {
	ListPendingTokens(ctx context.Context) ([]persistence.ScheduledToken, error)
}

type TokenHandler struct {
	tokens    tokenSource
	responder responder
}

func NewTokenHandler(tokens tokenSource, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, responder: newResponder(logger)}
}

func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.tokens == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	tokens, err := h.tokens.ListPendingTokens(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listTokensResponse{Tokens: toTokenDTOs(tokens)})
}

type listTokensResponse struct {
	Tokens []tokenDTO `json:"tokens"`
}

type tokenDTO struct {
	ID                 string `json:"id"`
	PlanID             string `json:"plan_id"`
	Date               string `json:"date"`
	FireAt             string `json:"fire_at"`
	PlatformID         int    `json:"platform_id"`
	Status             string `json:"status"`
	RegistrationFailed bool   `json:"registration_failed,omitempty"`
}

func toTokenDTOs(tokens []persistence.ScheduledToken) []tokenDTO {
	if len(tokens) == 0 {
		return nil
	}

	out := make([]tokenDTO, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, tokenDTO{
			ID:                 token.ID,
			PlanID:             token.PlanID,
			Date:               token.Date,
			FireAt:             token.FireAt.Format(time.RFC3339),
			PlatformID:         token.PlatformID,
			Status:             string(token.Status),
			RegistrationFailed: token.RegistrationFailed,
		})
	}
	return out
}
