package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/services"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
)

// AdmissionServiceInterface defines the verification contract
type AdmissionServiceInterface interface {
	Verify(ctx context.Context, clientID, rawCode string) (*services.VerifyResult, error)
}

// AccessCodeHandler handles the public code verification endpoint
type AccessCodeHandler struct {
	service  AdmissionServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAccessCodeHandler creates a new AccessCodeHandler
func NewAccessCodeHandler(service AdmissionServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AccessCodeHandler {
	return &AccessCodeHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// VerifyRequest is the body of POST /api/access-codes/verify
type VerifyRequest struct {
	AccessCode string `json:"accessCode"`
}

// VerifyResponse is returned for both accepted and rejected codes
type VerifyResponse struct {
	Valid         bool       `json:"valid"`
	Error         string     `json:"error,omitempty"`
	Message       string     `json:"message"`
	Code          string     `json:"code,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	RemainingUses *int       `json:"remainingUses,omitempty"`
}

// Verify handles POST /api/access-codes/verify
func (h *AccessCodeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteJSON(w, http.StatusBadRequest, VerifyResponse{
			Error:   "bad_request",
			Message: "Invalid request body",
		})
		return
	}

	clientID := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Verify(r.Context(), clientID, req.AccessCode)
	if err != nil {
		status, resp := verifyErrorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("access code verification failed", slog.String("error", err.Error()))
		}
		pkghttp.WriteJSON(w, status, resp)
		return
	}

	remaining := result.RemainingUses
	pkghttp.WriteJSON(w, http.StatusOK, VerifyResponse{
		Valid:         true,
		Message:       "Access code accepted",
		Code:          result.Code,
		ExpiresAt:     result.ExpiresAt,
		RemainingUses: &remaining,
	})
}

// verifyErrorResponse maps an admission error to a status and a body that
// never reveals more than whether the code is usable
func verifyErrorResponse(err error) (int, VerifyResponse) {
	switch {
	case errors.Is(err, models.ErrClientBlocked):
		return http.StatusTooManyRequests, VerifyResponse{
			Error:   "blocked",
			Message: "Too many failed attempts. Please try again later.",
		}
	case errors.Is(err, models.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, VerifyResponse{
			Error:   "too_frequent",
			Message: "Please wait a moment before trying again.",
		}
	case errors.Is(err, models.ErrInvalidCodeFormat):
		return http.StatusBadRequest, VerifyResponse{
			Error:   "invalid_format",
			Message: "Access codes contain only letters and digits (up to 20 characters).",
		}
	case errors.Is(err, models.ErrCodeExhausted):
		return http.StatusBadRequest, VerifyResponse{
			Error:   "invalid_code",
			Message: "This access code has reached its usage limit.",
		}
	case errors.Is(err, models.ErrCodeExpired):
		return http.StatusBadRequest, VerifyResponse{
			Error:   "invalid_code",
			Message: "This access code has expired.",
		}
	case errors.Is(err, models.ErrCodeInvalid):
		return http.StatusBadRequest, VerifyResponse{
			Error:   "invalid_code",
			Message: "Invalid access code.",
		}
	case errors.Is(err, models.ErrUnavailable):
		return http.StatusServiceUnavailable, VerifyResponse{
			Error:   "service_unavailable",
			Message: "Verification is temporarily unavailable. Please try again shortly.",
		}
	default:
		return http.StatusInternalServerError, VerifyResponse{
			Error:   "internal_error",
			Message: "An unexpected error occurred.",
		}
	}
}
