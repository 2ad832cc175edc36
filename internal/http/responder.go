package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/alarm-engine/internal/application"
	"github.com/example/alarm-engine/internal/reconcile"
	"github.com/example/alarm-engine/internal/ring"
)

var (
	errBadRequestBody     = errors.New("無効なリクエスト形式です。")
	errInvalidPlanID      = errors.New("無効なアラーム ID です。")
	errInvalidExceptionID = errors.New("無効なスキップ例外 ID です。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "要求はリソースの現在の状態と競合しています。"})
	case errors.Is(err, ring.ErrSessionActive):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "アラームは既に鳴動中です。"})
	case errors.Is(err, ring.ErrNoSession):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "鳴動中のアラームはありません。"})
	case errors.Is(err, ring.ErrNotRinging):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "スヌーズは鳴動中のみ実行できます。"})
	case errors.Is(err, reconcile.ErrUnknownEvent):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "不明なイベント種別です。"})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			details := localizeValidationErrors(vErr)
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  details,
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "label is required":
		return "ラベルは必須です。"
	case "hour must be between 0 and 23":
		return "時は 0 から 23 の範囲で指定してください。"
	case "minute must be between 0 and 59":
		return "分は 0 から 59 の範囲で指定してください。"
	case "weekday mask uses only the lower 7 bits":
		return "曜日マスクの形式が不正です。"
	case "repeat count must be at least 1":
		return "鳴動回数は 1 以上で指定してください。"
	case "repeat interval must be at least 1 minute":
		return "鳴動間隔は 1 分以上で指定してください。"
	case "sound is required":
		return "サウンドは必須です。"
	case "date must use the YYYY-MM-DD format":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "holiday exceptions are managed automatically":
		return "祝日スキップは自動的に管理されます。"
	case "reason must be manual or system":
		return "理由は manual または system を指定してください。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
