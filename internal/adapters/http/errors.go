package http

import (
	"errors"
	"net/http"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

// mapDomainError picks status, error code and client message. The order matters:
// ErrAlreadyClaimed wraps ErrConflict and must be matched first.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password"
	case errors.Is(err, domain.ErrOTPInvalid):
		return http.StatusUnauthorized, "OTP_INVALID", "invalid or expired code"
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusTooManyRequests, "ACCOUNT_LOCKED", "account temporarily locked"
	case errors.Is(err, domain.ErrAccountBlocked):
		return http.StatusForbidden, "ACCOUNT_BLOCKED", "account is blocked"
	case errors.Is(err, domain.ErrPorterNotApproved):
		return http.StatusForbidden, "PORTER_NOT_APPROVED", "porter account is awaiting approval"
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, "FORBIDDEN", "operation not permitted"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return http.StatusConflict, "ALREADY_CLAIMED", "delivery has already been claimed"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusBadRequest, "SIGNATURE_INVALID", "payment signature verification failed"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "payment gateway unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
