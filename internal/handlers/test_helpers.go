package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/services"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi route parameters to a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, val := range params {
		rctx.URLParams.Add(key, val)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAdmissionService implements AdmissionServiceInterface for testing
type MockAdmissionService struct {
	VerifyFunc func(ctx context.Context, clientID, rawCode string) (*services.VerifyResult, error)
}

func (m *MockAdmissionService) Verify(ctx context.Context, clientID, rawCode string) (*services.VerifyResult, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrCodeInvalid
	}
	return m.VerifyFunc(ctx, clientID, rawCode)
}

// MockRankingService implements RankingServiceInterface for testing
type MockRankingService struct {
	RankFunc func(scores map[string]json.RawMessage) (map[string]int, error)
}

func (m *MockRankingService) Rank(scores map[string]json.RawMessage) (map[string]int, error) {
	if m.RankFunc == nil {
		return map[string]int{}, nil
	}
	return m.RankFunc(scores)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	CreateCodeFunc         func(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error)
	ListCodesFunc          func(ctx context.Context) ([]services.CodeSummary, error)
	ResetCodeFunc          func(ctx context.Context, code string) (*models.AccessCode, error)
	CodeQRFunc             func(ctx context.Context, code string, size int) ([]byte, error)
	ListSecurityStatusFunc func(ctx context.Context) (*services.SecurityStatus, error)
	UnblockClientFunc      func(ctx context.Context, clientID string) error
}

func (m *MockAdminService) CreateCode(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error) {
	if m.CreateCodeFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateCodeFunc(ctx, code, maxUses, ttl)
}

func (m *MockAdminService) ListCodes(ctx context.Context) ([]services.CodeSummary, error) {
	if m.ListCodesFunc == nil {
		return []services.CodeSummary{}, nil
	}
	return m.ListCodesFunc(ctx)
}

func (m *MockAdminService) ResetCode(ctx context.Context, code string) (*models.AccessCode, error) {
	if m.ResetCodeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ResetCodeFunc(ctx, code)
}

func (m *MockAdminService) CodeQR(ctx context.Context, code string, size int) ([]byte, error) {
	if m.CodeQRFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.CodeQRFunc(ctx, code, size)
}

func (m *MockAdminService) EntryURL(code string) string {
	return "https://quiz.example.com/?code=" + code
}

func (m *MockAdminService) ListSecurityStatus(ctx context.Context) (*services.SecurityStatus, error) {
	if m.ListSecurityStatusFunc == nil {
		return &services.SecurityStatus{}, nil
	}
	return m.ListSecurityStatusFunc(ctx)
}

func (m *MockAdminService) UnblockClient(ctx context.Context, clientID string) error {
	if m.UnblockClientFunc == nil {
		return models.ErrNotFound
	}
	return m.UnblockClientFunc(ctx, clientID)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
