package http

import (
	"context"
	"log/slog"
	"net/http"
)

func httpLogger() *slog.Logger {
	return slog.Default().With("module", "http", "layer", "adapter")
}

// logRequestFailure records a rejected request with the caller identity when
// the auth middleware has resolved one. 401s log at info.
func logRequestFailure(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if claims, ok := claimsFromContext(ctx); ok {
		fields = append(fields, "principal_id", claims.PrincipalID, "role", claims.Role)
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}

	logger := httpLogger()
	switch {
	case statusCode >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "request failed", fields...)
	case statusCode == http.StatusUnauthorized:
		logger.InfoContext(ctx, "request rejected", fields...)
	default:
		logger.WarnContext(ctx, "request failed", fields...)
	}
}
