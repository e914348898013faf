package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation marks malformed input. Callers never retry it automatically.
	ErrValidation   = errors.New("validation failed")
	ErrAccessDenied = errors.New("access denied")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	// ErrAlreadyClaimed is the losing side of a concurrent claim.
	// It wraps ErrConflict so generic handlers still see a conflict, while porter
	// clients can tell it apart from ErrNotFound.
	ErrAlreadyClaimed    = fmt.Errorf("%w: already claimed", ErrConflict)
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrSignatureInvalid  = errors.New("payment signature invalid")
	// ErrAlreadySettled is returned by settlement when the payment is no longer pending.
	ErrAlreadySettled      = errors.New("payment already settled")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrOTPInvalid is the single failure reported by OTP verification.
	// Wrong, expired and absent codes are indistinguishable to the caller.
	ErrOTPInvalid = errors.New("invalid or expired otp")
	// ErrInvalidCredentials hides whether the username or the password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrAccountLocked      = errors.New("account locked")
	ErrPorterNotApproved  = errors.New("porter not approved")
)
