package routes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/keygate/internal/auth"
	"github.com/BradenHooton/keygate/internal/handlers"
	"github.com/BradenHooton/keygate/internal/middleware"
	"github.com/BradenHooton/keygate/internal/models"
	pkghttp "github.com/BradenHooton/keygate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const otp = "ccccccccccccietctckflvnncdgckubflugerlnrdddd"

func newTestRouter(t *testing.T, verifier *handlers.MockCredentialVerifier) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := auth.NewSessionIssuer("routes-test-secret-32-characters", 15*time.Minute)

	router := chi.NewRouter()
	RegisterRoutes(router,
		handlers.NewAuthHandler(verifier, sessions, nil, nil, logger),
		handlers.NewHealthHandler(nil, logger),
		sessions,
		middleware.RateLimitConfig{RequestsPerMinute: 3},
	)
	return router
}

func login(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/otp/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.10:4000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutes_LoginThenSession(t *testing.T) {
	verifier := &handlers.MockCredentialVerifier{
		VerifyFunc: func(ctx context.Context, creds models.Credentials) models.VerificationResult {
			return models.VerificationResult{Authenticated: true, UserID: "alice", OTPSpent: true}
		},
	}
	router := newTestRouter(t, verifier)

	w := login(router, `{"otp":"`+otp+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var loginResp handlers.OTPLoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.AccessToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var sessionResp handlers.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessionResp))
	assert.Equal(t, "alice", sessionResp.UserID)
	assert.Equal(t, "otp", sessionResp.Method)
}

func TestRoutes_SessionRequiresToken(t *testing.T) {
	router := newTestRouter(t, &handlers.MockCredentialVerifier{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/session", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_LoginIsRateLimited(t *testing.T) {
	router := newTestRouter(t, &handlers.MockCredentialVerifier{})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, login(router, `{"otp":"`+otp+`"}`).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, login(router, `{"otp":"`+otp+`"}`).Code)
}

func TestRoutes_JSONFallbacks(t *testing.T) {
	router := newTestRouter(t, &handlers.MockCredentialVerifier{})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodGet, "/auth/otp/login", http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestRoutes_Health(t *testing.T) {
	router := newTestRouter(t, &handlers.MockCredentialVerifier{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
