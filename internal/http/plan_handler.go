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

type planService interface {
	CreatePlan(ctx context.Context, input application.PlanInput) (persistence.AlarmPlan, []reconcile.Warning, error)
	UpdatePlan(ctx context.Context, id string, input application.PlanInput) (persistence.AlarmPlan, []reconcile.Warning, error)
	SetPlanEnabled(ctx context.Context, id string, enabled bool) (persistence.AlarmPlan, []reconcile.Warning, error)
	GetPlan(ctx context.Context, id string) (persistence.AlarmPlan, error)
	ListPlans(ctx context.Context) ([]persistence.AlarmPlan, error)
	DeletePlan(ctx context.Context, id string) ([]reconcile.Warning, error)
}

type PlanHandler struct {
	service   planService
	responder responder
}

func NewPlanHandler(service planService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{service: service, responder: newResponder(logger)}
}

func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	plan, warnings, err := h.service.CreatePlan(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderPlan(r.Context(), w, plan, warnings, http.StatusCreated)
}

func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	planID, ok := PlanIDFromContext(r.Context())
	if !ok || strings.TrimSpace(planID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPlanID)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	plan, warnings, err := h.service.UpdatePlan(r.Context(), planID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderPlan(r.Context(), w, plan, warnings, http.StatusOK)
}

func (h *PlanHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	planID, ok := PlanIDFromContext(r.Context())
	if !ok || strings.TrimSpace(planID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPlanID)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	plan, warnings, err := h.service.SetPlanEnabled(r.Context(), planID, req.Enabled)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderPlan(r.Context(), w, plan, warnings, http.StatusOK)
}

func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	planID, ok := PlanIDFromContext(r.Context())
	if !ok || strings.TrimSpace(planID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPlanID)
		return
	}

	plan, err := h.service.GetPlan(r.Context(), planID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, planResponse{Plan: toPlanDTO(plan)})
}

func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPlansResponse{Plans: toPlanDTOs(plans)})
}

func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	planID, ok := PlanIDFromContext(r.Context())
	if !ok || strings.TrimSpace(planID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPlanID)
		return
	}

	if _, err := h.service.DeletePlan(r.Context(), planID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *PlanHandler) renderPlan(ctx context.Context, w http.ResponseWriter, plan persistence.AlarmPlan, warnings []reconcile.Warning, status int) {
	payload := planResponse{
		Plan:     toPlanDTO(plan),
		Warnings: toWarningDTOs(warnings),
	}
	h.responder.writeJSON(ctx, w, status, payload)
}

type planRequest struct {
	Label             string `json:"label"`
	Enabled           bool   `json:"enabled"`
	Hour              int    `json:"hour"`
	Minute            int    `json:"minute"`
	WeekdayMask       uint8  `json:"weekday_mask"`
	RepeatCount       int    `json:"repeat_count"`
	RepeatIntervalMin int    `json:"repeat_interval_min"`
	SoundID           string `json:"sound_id"`
	SkipHolidays      bool   `json:"skip_holidays"`
}

func (r planRequest) toInput() application.PlanInput {
	return application.PlanInput{
		Label:             strings.TrimSpace(r.Label),
		Enabled:           r.Enabled,
		Hour:              r.Hour,
		Minute:            r.Minute,
		WeekdayMask:       r.WeekdayMask,
		RepeatCount:       r.RepeatCount,
		RepeatIntervalMin: r.RepeatIntervalMin,
		SoundID:           strings.TrimSpace(r.SoundID),
		SkipHolidays:      r.SkipHolidays,
	}
}

type planResponse struct {
	Plan     planDTO      `json:"plan"`
	Warnings []warningDTO `json:"warnings,omitempty"`
}

type listPlansResponse struct {
	Plans []planDTO `json:"plans"`
}

type planDTO struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	Enabled           bool   `json:"enabled"`
	Hour              int    `json:"hour"`
	Minute            int    `json:"minute"`
	WeekdayMask       uint8  `json:"weekday_mask"`
	RepeatCount       int    `json:"repeat_count"`
	RepeatIntervalMin int    `json:"repeat_interval_min"`
	SoundID           string `json:"sound_id"`
	SkipHolidays      bool   `json:"skip_holidays"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toPlanDTO(plan persistence.AlarmPlan) planDTO {
	return planDTO{
		ID:                plan.ID,
		Label:             plan.Label,
		Enabled:           plan.Enabled,
		Hour:              plan.Hour,
		Minute:            plan.Minute,
		WeekdayMask:       plan.WeekdayMask,
		RepeatCount:       plan.RepeatCount,
		RepeatIntervalMin: plan.RepeatIntervalMin,
		SoundID:           plan.SoundID,
		SkipHolidays:      plan.SkipHolidays,
		CreatedAt:         plan.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         plan.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toPlanDTOs(plans []persistence.AlarmPlan) []planDTO {
	if len(plans) == 0 {
		return nil
	}
	out := make([]planDTO, 0, len(plans))
	for _, plan := range plans {
		out = append(out, toPlanDTO(plan))
	}
	return out
}

type warningDTO struct {
	TokenID string `json:"token_id,omitempty"`
	PlanID  string `json:"plan_id"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

func toWarningDTOs(warnings []reconcile.Warning) []warningDTO {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]warningDTO, 0, len(warnings))
	for _, warning := range warnings {
		dto := warningDTO{
			TokenID: warning.TokenID,
			PlanID:  warning.PlanID,
			Date:    warning.Date,
		}
		if warning.Err != nil {
			dto.Message = warning.Err.Error()
		}
		out = append(out, dto)
	}
	return out
}
