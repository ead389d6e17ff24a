package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims of an issued session token
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Method string `json:"amr,omitempty"`
	jwt.RegisteredClaims
}

// Credentials are what a login form submits for OTP authentication
type Credentials struct {
	Pass      string // the OTP
	Name      string // caller-supplied identity; never trusted
	IPAddress string
	UserAgent string
}

// VerificationResult is the outcome of one OTP login attempt
type VerificationResult struct {
	Authenticated bool
	UserID        string // resolved identity, set only when Authenticated
	OTPSpent      bool   // the OTP reached the verification authority
	Err           error  // failure cause, for logging and tests
}

// OTPParts is the structural split of a token OTP
type OTPParts struct {
	Password string // optional "password:" prefix
	Prefix   string // public key id
	Token    string // 32-char encrypted body
}
