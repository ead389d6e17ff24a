package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	pkghttp "github.com/BradenHooton/keygate/pkg/http"
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

// MockCredentialVerifier implements CredentialVerifierInterface for testing
type MockCredentialVerifier struct {
	VerifyFunc func(ctx context.Context, creds models.Credentials) models.VerificationResult
	Last       models.Credentials
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, creds models.Credentials) models.VerificationResult {
	m.Last = creds
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, creds)
	}
	return models.VerificationResult{Err: models.ErrNoKeyMatch}
}

// MockSessionIssuer implements SessionIssuerInterface for testing
type MockSessionIssuer struct {
	IssueSessionTokenFunc func(userID string) (string, time.Time, error)
}

func (m *MockSessionIssuer) IssueSessionToken(userID string) (string, time.Time, error) {
	if m.IssueSessionTokenFunc != nil {
		return m.IssueSessionTokenFunc(userID)
	}
	return "", time.Time{}, errors.New("not configured")
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	Err error
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
