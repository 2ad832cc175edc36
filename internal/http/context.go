package http

import (
	"context"
	"log/slog"

	"github.com/example/alarm-engine/internal/logging"
)

type contextKey string

const (
	planIDContextKey      contextKey = "plan_id"
	exceptionIDContextKey contextKey = "exception_id"
)

// ContextWithPlanID injects the plan identifier resolved from the request path.
func ContextWithPlanID(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, planIDContextKey, planID)
}

// PlanIDFromContext extracts a plan identifier previously associated with the context.
func PlanIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(planIDContextKey).(string)
	return id, ok
}

// ContextWithExceptionID injects the exception identifier resolved from the request path.
func ContextWithExceptionID(ctx context.Context, exceptionID string) context.Context {
	return context.WithValue(ctx, exceptionIDContextKey, exceptionID)
}

// ExceptionIDFromContext extracts an exception identifier previously associated with the context.
func ExceptionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(exceptionIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request-scoped logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts a request-scoped logger if one was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
