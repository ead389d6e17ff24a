package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/BradenHooton/keygate/internal/yubico"
	pkglogger "github.com/BradenHooton/keygate/pkg/logger"
)

// VerificationClient asks a remote authority whether an OTP is valid
type VerificationClient interface {
	VerifyRemote(ctx context.Context, otp string, req yubico.VerifyRequest) error
}

// Audit failure reasons
const (
	reasonMissingOTP       = "missing_otp"
	reasonNoKeyMatch       = "no_key_match"
	reasonResolveError     = "key_resolution_error"
	reasonStaleKeyIndex    = "stale_key_index"
	reasonAccountLoad      = "account_load_error"
	reasonNotTokenAccount  = "not_token_account"
	reasonIncompleteConfig = "incomplete_token_config"
	reasonRemoteFailed     = "remote_verification_failed"
	reasonMalformedOTP     = "malformed_otp"
	reasonKeyIDMismatch    = "key_id_mismatch"
)

// CredentialVerifier runs the OTP login protocol and decides one login attempt
type CredentialVerifier struct {
	resolver      *KeyResolver
	store         AccountStore
	client        VerificationClient
	verifyTimeout time.Duration
	logger        *slog.Logger
	auditLogger   *pkglogger.AuditLogger
}

func NewCredentialVerifier(resolver *KeyResolver, store AccountStore, client VerificationClient, verifyTimeout time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *CredentialVerifier {
	return &CredentialVerifier{
		resolver:      resolver,
		store:         store,
		client:        client,
		verifyTimeout: verifyTimeout,
		logger:        logger,
		auditLogger:   auditLogger,
	}
}

// Verify authenticates creds.Pass as a token OTP. The identity it binds is
// the one the key id resolves to; creds.Name is ignored.
//
// The OTP is sent to the verification authority before the key id is compared
// with the account's configured ids, so a guessed key id never yields an
// unspent OTP or an early answer.
func (v *CredentialVerifier) Verify(ctx context.Context, creds models.Credentials) models.VerificationResult {
	// 1. presence
	if creds.Pass == "" {
		v.logger.Info("otp login failed: missing OTP")
		return v.fail(creds, "", reasonMissingOTP, false, models.ErrMissingOTP)
	}
	redacted := pkglogger.RedactOTP(creds.Pass)

	// 2. resolve
	userID, err := v.resolver.Resolve(ctx, creds.Pass)
	if errors.Is(err, models.ErrNoKeyMatch) {
		v.logger.Info("otp login failed: no key match", slog.String("otp", redacted))
		return v.fail(creds, "", reasonNoKeyMatch, false, err)
	}
	if err != nil {
		v.logger.Error("otp login failed: key resolution error",
			slog.String("otp", redacted),
			slog.Any("error", err))
		return v.fail(creds, "", reasonResolveError, false, err)
	}

	// 3. load
	account, err := v.store.Load(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		v.logger.Warn("otp login failed: resolved user record missing, key index may be stale",
			slog.String("user_id", userID))
		return v.fail(creds, userID, reasonStaleKeyIndex, false, fmt.Errorf("%w: %s", models.ErrStaleKeyIndex, userID))
	}
	if err != nil {
		v.logger.Error("otp login failed: account load error",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return v.fail(creds, userID, reasonAccountLoad, false, err)
	}

	// 4. configuration
	if !account.UsesToken() {
		v.logger.Warn("otp login failed: account no longer uses token login",
			slog.String("user_id", userID),
			slog.String("auth_method", string(account.AuthMethod)))
		return v.fail(creds, userID, reasonNotTokenAccount, false,
			fmt.Errorf("%w: auth method %s", models.ErrIncompleteTokenConfig, account.AuthMethod))
	}
	if missing := account.Token.MissingFields(); len(missing) > 0 {
		v.logger.Warn("otp login failed: incomplete token configuration",
			slog.String("user_id", userID),
			slog.Any("missing", missing))
		return v.fail(creds, userID, reasonIncompleteConfig, false,
			fmt.Errorf("%w: missing %v", models.ErrIncompleteTokenConfig, missing))
	}
	token := account.Token

	// 5. remote verification, always before the key id comparison
	verifyCtx, cancel := context.WithTimeout(ctx, v.verifyTimeout)
	err = v.client.VerifyRemote(verifyCtx, creds.Pass, yubico.VerifyRequest{
		ClientID:           *token.ClientID,
		ClientSecret:       *token.ClientSecret,
		UseSecureTransport: *token.UseSecureTransport,
		OverrideURLs:       token.VerificationURLs,
	})
	cancel()
	if err != nil {
		v.logger.Info("otp login failed: remote verification failed",
			slog.String("user_id", userID),
			slog.String("otp", redacted),
			slog.Any("error", err))
		if !errors.Is(err, models.ErrVerificationFailed) {
			err = fmt.Errorf("%w: %v", models.ErrVerificationFailed, err)
		}
		return v.fail(creds, userID, reasonRemoteFailed, true, err)
	}

	// 6. structure and key id authorization
	parts, err := yubico.Parse(creds.Pass)
	if err != nil {
		v.logger.Info("otp login failed: malformed OTP",
			slog.String("user_id", userID),
			slog.String("otp", redacted))
		return v.fail(creds, userID, reasonMalformedOTP, true, err)
	}
	if !token.KeyIDs.Contains(parts.Prefix) {
		v.logger.Warn("otp login failed: key id mismatch",
			slog.String("user_id", userID),
			slog.String("expected", token.KeyIDs.String()),
			slog.String("received", parts.Prefix))
		return v.fail(creds, userID, reasonKeyIDMismatch, true,
			fmt.Errorf("%w: %s", models.ErrKeyIDMismatch, parts.Prefix))
	}

	// 7. success
	v.logger.Info("otp login succeeded", slog.String("user_id", userID))
	v.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPLoginSuccess,
		UserID:    userID,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
		Success:   true,
	})
	return models.VerificationResult{Authenticated: true, UserID: userID, OTPSpent: true}
}

func (v *CredentialVerifier) fail(creds models.Credentials, userID, reason string, spent bool, err error) models.VerificationResult {
	v.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     pkglogger.EventOTPLoginFailed,
		UserID:        userID,
		IPAddress:     creds.IPAddress,
		UserAgent:     creds.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
	return models.VerificationResult{OTPSpent: spent, Err: err}
}
