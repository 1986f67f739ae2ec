package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrUnavailable    = errors.New("backing store unavailable")
	ErrInternalServer = errors.New("internal server error")

	// Admission errors
	ErrClientBlocked     = errors.New("client is temporarily blocked")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidCodeFormat = errors.New("access code has an invalid format")

	// ErrCodeInvalid is returned to anonymous callers for any code that cannot be
	// consumed. The reasons below wrap it and are informational only.
	ErrCodeInvalid   = errors.New("invalid access code")
	ErrCodeNotFound  = errors.New("access code does not exist")
	ErrCodeExhausted = errors.New("access code has no remaining uses")
	ErrCodeExpired   = errors.New("access code has expired")
)
