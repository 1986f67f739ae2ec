package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/services"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the management contract
type AdminServiceInterface interface {
	CreateCode(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error)
	ListCodes(ctx context.Context) ([]services.CodeSummary, error)
	ResetCode(ctx context.Context, code string) (*models.AccessCode, error)
	CodeQR(ctx context.Context, code string, size int) ([]byte, error)
	EntryURL(code string) string
	ListSecurityStatus(ctx context.Context) (*services.SecurityStatus, error)
	UnblockClient(ctx context.Context, clientID string) error
}

// AdminHandler handles management HTTP requests. Every route is mounted
// behind the admin key middleware.
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// CreateCodeRequest is the body of POST /api/admin/codes. An empty code asks
// for a generated one; an empty ttl never expires.
type CreateCodeRequest struct {
	Code    string `json:"code" validate:"omitempty,alphanum,max=20"`
	MaxUses int    `json:"maxUses" validate:"required,gte=1,lte=1000000"`
	TTL     string `json:"ttl,omitempty"`
}

// CodeResponse is an access code plus the quiz link that redeems it
type CodeResponse struct {
	*models.AccessCode
	RemainingUses int    `json:"remainingUses"`
	EntryURL      string `json:"entryUrl"`
}

// CodeListResponse is the body of GET /api/admin/codes
type CodeListResponse struct {
	Codes []services.CodeSummary `json:"codes"`
	Count int                    `json:"count"`
}

// UnblockResponse is the body of DELETE /api/admin/security/blocks/{clientID}
type UnblockResponse struct {
	ClientID  string `json:"clientId"`
	Unblocked bool   `json:"unblocked"`
}

func (h *AdminHandler) codeResponse(code *models.AccessCode) CodeResponse {
	return CodeResponse{
		AccessCode:    code,
		RemainingUses: code.RemainingUses(),
		EntryURL:      h.service.EntryURL(code.Code),
	}
}

// CreateCode handles POST /api/admin/codes
func (h *AdminHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	var req CreateCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			pkghttp.WriteBadRequest(w, "ttl must be a positive duration such as 72h")
			return
		}
		ttl = parsed
	}

	code, err := h.service.CreateCode(r.Context(), req.Code, req.MaxUses, ttl)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create access code")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, h.codeResponse(code))
}

// ListCodes handles GET /api/admin/codes
func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.ListCodes(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to list access codes")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CodeListResponse{Codes: codes, Count: len(codes)})
}

// ResetCode handles POST /api/admin/codes/{code}/reset
func (h *AdminHandler) ResetCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.ResetCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to reset access code")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.codeResponse(code))
}

// CodeQR handles GET /api/admin/codes/{code}/qr
// Accepts optional query param ?size=N in pixels.
func (h *AdminHandler) CodeQR(w http.ResponseWriter, r *http.Request) {
	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			pkghttp.WriteBadRequest(w, "size must be a positive integer")
			return
		}
		size = n
	}

	png, err := h.service.CodeQR(r.Context(), chi.URLParam(r, "code"), size)
	if err != nil {
		h.writeServiceError(w, err, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// SecurityStatus handles GET /api/admin/security
func (h *AdminHandler) SecurityStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.ListSecurityStatus(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to retrieve security status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// UnblockClient handles DELETE /api/admin/security/blocks/{clientID}
func (h *AdminHandler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if err := h.service.UnblockClient(r.Context(), clientID); err != nil {
		h.writeServiceError(w, err, "Failed to unblock client")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UnblockResponse{ClientID: clientID, Unblocked: true})
}

func (h *AdminHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteError(w, http.StatusBadRequest, "conflict", "Access code already exists")
	case errors.Is(err, models.ErrInvalidCodeFormat):
		pkghttp.WriteBadRequest(w, "Access codes contain only letters and digits (up to 20 characters)")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Code store is temporarily unavailable")
	default:
		h.logger.Error(fallback, slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, fallback)
	}
}
