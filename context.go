package floe

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	LoggerContextKey     ContextKey = "logger"
	InstanceIDContextKey ContextKey = "instance_id"
)

func WithLoggerContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, InstanceIDContextKey, instanceID)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger)
	return logger, ok
}

func GetInstanceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(InstanceIDContextKey).(string)
	return id, ok
}
