package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/keygate/internal/auth"
	"github.com/BradenHooton/keygate/internal/models"
	pkghttp "github.com/BradenHooton/keygate/pkg/http"
)

// CredentialVerifierInterface decides one OTP login attempt
type CredentialVerifierInterface interface {
	Verify(ctx context.Context, creds models.Credentials) models.VerificationResult
}

// SessionIssuerInterface signs a session for an authenticated user
type SessionIssuerInterface interface {
	IssueSessionToken(userID string) (string, time.Time, error)
}

// AuthHandler handles OTP login HTTP requests
type AuthHandler struct {
	verifier CredentialVerifierInterface
	sessions SessionIssuerInterface
	timing   *auth.TimingDelay
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. timing may be nil to disable failure padding.
func NewAuthHandler(verifier CredentialVerifierInterface, sessions SessionIssuerInterface, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		sessions: sessions,
		timing:   timing,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// OTPLoginRequest represents the request body for OTP login.
// Name is accepted for form compatibility but never decides the identity.
type OTPLoginRequest struct {
	OTP  string `json:"otp" validate:"required,max=128,printascii"`
	Name string `json:"name" validate:"max=256"`
}

// OTPLoginResponse is returned for a successful login
type OTPLoginResponse struct {
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"user_id"`
	AccessToken   string    `json:"access_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	UserID    string    `json:"user_id"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPLogin handles hardware-token login
// @Summary OTP login
// @Accept json
// @Param request body OTPLoginRequest true "OTP login request"
// @Produce json
// @Success 200 {object} OTPLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/otp/login [post]
func (h *AuthHandler) OTPLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OTPLoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.verifier.Verify(r.Context(), models.Credentials{
		Pass:      req.OTP,
		Name:      req.Name,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	})

	if !result.Authenticated {
		h.timing.WaitFrom(r.Context(), start, false)
		// Every failure kind gets the same answer to prevent key id enumeration
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	token, expiresAt, err := h.sessions.IssueSessionToken(result.UserID)
	if err != nil {
		h.logger.Error("failed to issue session token",
			slog.String("user_id", result.UserID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, OTPLoginResponse{
		Authenticated: true,
		UserID:        result.UserID,
		AccessToken:   token,
		ExpiresAt:     expiresAt.UTC(),
	})
}

// Session returns the identity bound to the bearer token
// @Summary Current session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.SessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	resp := SessionResponse{
		UserID: claims.UserID,
		Method: claims.Method,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
