package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"manuscript-review/internal/auth"
	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
)

// TestJWTSecret is the HS256 secret used by AuthHelper
const TestJWTSecret = "test-secret-key-for-testing-only"

// AuthHelper issues bearer tokens for tests
type AuthHelper struct {
	Service *auth.Service
}

// NewAuthHelper creates a new auth helper backed by an HS256 token service
func NewAuthHelper(t *testing.T) *AuthHelper {
	t.Helper()

	svc, err := auth.NewService(&config.JWTConfig{
		Secret:     TestJWTSecret,
		Issuer:     "manuscript-review-test",
		Expiration: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create auth service: %v", err)
	}
	return &AuthHelper{Service: svc}
}

// Token issues a token for actor
func (h *AuthHelper) Token(t *testing.T, actor models.Actor) string {
	t.Helper()

	token, err := h.Service.GenerateToken(actor)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// AddAuthHeader adds an authorization header to the request
func (h *AuthHelper) AddAuthHeader(t *testing.T, req *http.Request, actor models.Actor) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+h.Token(t, actor))
}

// CreateAuthenticatedRequest creates a request with auth header
func (h *AuthHelper) CreateAuthenticatedRequest(t *testing.T, method, url string, actor models.Actor) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, url, nil)
	h.AddAuthHeader(t, req, actor)
	return req
}

// TestResponse holds response data for assertions
type TestResponse struct {
	*httptest.ResponseRecorder
}

// NewTestResponse creates a new test response recorder
func NewTestResponse() *TestResponse {
	return &TestResponse{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

// AssertStatus asserts the HTTP status code
func (r *TestResponse) AssertStatus(t *testing.T, expected int) {
	t.Helper()

	if r.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, r.Code, r.Body.String())
	}
}

// AssertStatusOK asserts 200 OK
func (r *TestResponse) AssertStatusOK(t *testing.T) {
	r.AssertStatus(t, http.StatusOK)
}

// AssertStatusForbidden asserts 403 Forbidden
func (r *TestResponse) AssertStatusForbidden(t *testing.T) {
	r.AssertStatus(t, http.StatusForbidden)
}

// AssertStatusNotFound asserts 404 Not Found
func (r *TestResponse) AssertStatusNotFound(t *testing.T) {
	r.AssertStatus(t, http.StatusNotFound)
}
