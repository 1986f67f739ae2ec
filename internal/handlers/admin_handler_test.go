package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/quizgate/internal/handlers"
	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// ── CreateCode ────────────────────────────────────────────────────────────────

func TestCreateCode_Success_Returns201(t *testing.T) {
	var gotCode string
	var gotMax int
	var gotTTL time.Duration

	mock := &handlers.MockAdminService{
		CreateCodeFunc: func(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error) {
			gotCode, gotMax, gotTTL = code, maxUses, ttl
			expires := adminNow.Add(ttl)
			return &models.AccessCode{Code: "SPRING26", MaxUses: maxUses, CreatedAt: adminNow, ExpiresAt: &expires}, nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	req := handlers.NewTestRequest(t, "POST", "/api/admin/codes", map[string]interface{}{
		"code": "spring26", "maxUses": 30, "ttl": "72h",
	})
	w := httptest.NewRecorder()
	h.CreateCode(w, req)

	var resp handlers.CodeResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, "SPRING26", resp.Code)
	assert.Equal(t, 30, resp.RemainingUses)
	assert.Equal(t, "https://quiz.example.com/?code=SPRING26", resp.EntryURL)

	assert.Equal(t, "spring26", gotCode)
	assert.Equal(t, 30, gotMax)
	assert.Equal(t, 72*time.Hour, gotTTL)
}

func TestCreateCode_GeneratedWhenCodeOmitted(t *testing.T) {
	var gotCode = "unset"
	mock := &handlers.MockAdminService{
		CreateCodeFunc: func(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error) {
			gotCode = code
			return &models.AccessCode{Code: "0A1B2C3D4E", MaxUses: maxUses, CreatedAt: adminNow}, nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	req := handlers.NewTestRequest(t, "POST", "/api/admin/codes", map[string]interface{}{"maxUses": 1})
	w := httptest.NewRecorder()
	h.CreateCode(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "", gotCode)
}

func TestCreateCode_ValidationErrors_Return400(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing maxUses", map[string]interface{}{"code": "ABC"}},
		{"zero maxUses", map[string]interface{}{"code": "ABC", "maxUses": 0}},
		{"non alphanumeric code", map[string]interface{}{"code": "AB-C", "maxUses": 1}},
		{"code too long", map[string]interface{}{"code": "ABCDEFGHIJKLMNOPQRSTU", "maxUses": 1}},
		{"bad ttl", map[string]interface{}{"code": "ABC", "maxUses": 1, "ttl": "soon"}},
		{"negative ttl", map[string]interface{}{"code": "ABC", "maxUses": 1, "ttl": "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mock := &handlers.MockAdminService{
				CreateCodeFunc: func(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error) {
					called = true
					return nil, nil
				},
			}
			h := handlers.NewAdminHandler(mock, testLogger())

			req := handlers.NewTestRequest(t, "POST", "/api/admin/codes", tt.body)
			w := httptest.NewRecorder()
			h.CreateCode(w, req)

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.False(t, called)
		})
	}
}

func TestCreateCode_Duplicate_Returns400Conflict(t *testing.T) {
	h := handlers.NewAdminHandler(&handlers.MockAdminService{}, testLogger())

	req := handlers.NewTestRequest(t, "POST", "/api/admin/codes", map[string]interface{}{"code": "DUP", "maxUses": 1})
	w := httptest.NewRecorder()
	h.CreateCode(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "conflict")
}

// ── ListCodes ─────────────────────────────────────────────────────────────────

func TestListCodes_Returns200(t *testing.T) {
	mock := &handlers.MockAdminService{
		ListCodesFunc: func(ctx context.Context) ([]services.CodeSummary, error) {
			return []services.CodeSummary{
				{AccessCode: &models.AccessCode{Code: "A", MaxUses: 2, CurrentUses: 1}, RemainingUses: 1, Valid: true},
				{AccessCode: &models.AccessCode{Code: "B", MaxUses: 1, CurrentUses: 1}, RemainingUses: 0, Valid: false},
			}, nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	w := httptest.NewRecorder()
	h.ListCodes(w, httptest.NewRequest("GET", "/api/admin/codes", nil))

	var resp handlers.CodeListResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Codes, 2)
	assert.Equal(t, "A", resp.Codes[0].Code)
	assert.False(t, resp.Codes[1].Valid)
}

func TestListCodes_StoreUnavailable_Returns503(t *testing.T) {
	mock := &handlers.MockAdminService{
		ListCodesFunc: func(ctx context.Context) ([]services.CodeSummary, error) {
			return nil, errors.Join(models.ErrUnavailable, errors.New("timeout"))
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	w := httptest.NewRecorder()
	h.ListCodes(w, httptest.NewRequest("GET", "/api/admin/codes", nil))

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
}

// ── ResetCode ─────────────────────────────────────────────────────────────────

func TestResetCode_Returns200(t *testing.T) {
	var got string
	mock := &handlers.MockAdminService{
		ResetCodeFunc: func(ctx context.Context, code string) (*models.AccessCode, error) {
			got = code
			return &models.AccessCode{Code: "RESETME", MaxUses: 5}, nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("POST", "/api/admin/codes/resetme/reset", nil),
		map[string]string{"code": "resetme"})
	w := httptest.NewRecorder()
	h.ResetCode(w, req)

	var resp handlers.CodeResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "resetme", got)
	assert.Equal(t, 5, resp.RemainingUses)
}

func TestResetCode_Unknown_Returns404(t *testing.T) {
	h := handlers.NewAdminHandler(&handlers.MockAdminService{}, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("POST", "/api/admin/codes/NOPE/reset", nil),
		map[string]string{"code": "NOPE"})
	w := httptest.NewRecorder()
	h.ResetCode(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

// ── CodeQR ────────────────────────────────────────────────────────────────────

func TestCodeQR_ReturnsPNG(t *testing.T) {
	var gotSize int
	mock := &handlers.MockAdminService{
		CodeQRFunc: func(ctx context.Context, code string, size int) ([]byte, error) {
			gotSize = size
			return []byte("\x89PNG"), nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("GET", "/api/admin/codes/A/qr?size=512", nil),
		map[string]string{"code": "A"})
	w := httptest.NewRecorder()
	h.CodeQR(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", w.Body.String())
	assert.Equal(t, 512, gotSize)
}

func TestCodeQR_BadSize_Returns400(t *testing.T) {
	h := handlers.NewAdminHandler(&handlers.MockAdminService{}, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("GET", "/api/admin/codes/A/qr?size=big", nil),
		map[string]string{"code": "A"})
	w := httptest.NewRecorder()
	h.CodeQR(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

// ── Security ──────────────────────────────────────────────────────────────────

func TestSecurityStatus_Returns200(t *testing.T) {
	until := adminNow.Add(15 * time.Minute)
	mock := &handlers.MockAdminService{
		ListSecurityStatusFunc: func(ctx context.Context) (*services.SecurityStatus, error) {
			return &services.SecurityStatus{
				Clients: services.LedgerSnapshot{
					TrackedClients: 3,
					Blocked: []models.ClientSecurityRecord{
						{ClientID: "203.0.113.5", FailedAttempts: 5, IsBlocked: true, BlockUntil: &until},
					},
				},
				Attack:      models.AttackDetectionState{FailedAttempts: 12, TotalAttempts: 40},
				GeneratedAt: adminNow,
			}, nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	w := httptest.NewRecorder()
	h.SecurityStatus(w, httptest.NewRequest("GET", "/api/admin/security", nil))

	var resp services.SecurityStatus
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 3, resp.Clients.TrackedClients)
	require.Len(t, resp.Clients.Blocked, 1)
	assert.Equal(t, "203.0.113.5", resp.Clients.Blocked[0].ClientID)
	assert.Equal(t, int64(12), resp.Attack.FailedAttempts)
}

func TestUnblockClient(t *testing.T) {
	var got string
	mock := &handlers.MockAdminService{
		UnblockClientFunc: func(ctx context.Context, clientID string) error {
			got = clientID
			return nil
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("DELETE", "/api/admin/security/blocks/203.0.113.5", nil),
		map[string]string{"clientID": "203.0.113.5"})
	w := httptest.NewRecorder()
	h.UnblockClient(w, req)

	var resp handlers.UnblockResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Unblocked)
	assert.Equal(t, "203.0.113.5", got)
}

func TestUnblockClient_Unknown_Returns404(t *testing.T) {
	h := handlers.NewAdminHandler(&handlers.MockAdminService{}, testLogger())

	req := handlers.WithURLParams(httptest.NewRequest("DELETE", "/api/admin/security/blocks/x", nil),
		map[string]string{"clientID": "x"})
	w := httptest.NewRecorder()
	h.UnblockClient(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestAdminHandler_UnexpectedError_Returns500(t *testing.T) {
	mock := &handlers.MockAdminService{
		ListSecurityStatusFunc: func(ctx context.Context) (*services.SecurityStatus, error) {
			return nil, errors.New("boom")
		},
	}
	h := handlers.NewAdminHandler(mock, testLogger())

	w := httptest.NewRecorder()
	h.SecurityStatus(w, httptest.NewRequest("GET", "/api/admin/security", nil))

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}
