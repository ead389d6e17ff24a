package models

import (
	"strings"
)

// AuthMethod selects how an account authenticates
type AuthMethod string

const (
	// AuthMethodToken is hardware-token (YubiKey OTP) login. Stored as "YUBIKEY".
	AuthMethodToken    AuthMethod = "YUBIKEY"
	AuthMethodPassword AuthMethod = "PASSWORD"
)

// ParseAuthMethod normalizes a stored auth method value.
// "TOKEN" is accepted as an alias for AuthMethodToken.
func ParseAuthMethod(raw string) AuthMethod {
	switch m := strings.ToUpper(strings.TrimSpace(raw)); m {
	case "TOKEN", string(AuthMethodToken):
		return AuthMethodToken
	default:
		return AuthMethod(m)
	}
}

// Account is the subset of a user record the OTP login flow reads
type Account struct {
	UserID     string
	AuthMethod AuthMethod
	Token      *TokenConfig // nil when the token section is absent
}

// UsesToken reports whether the account authenticates with a hardware token
func (a *Account) UsesToken() bool {
	return a != nil && a.AuthMethod == AuthMethodToken
}

// TokenConfig holds the verification settings for a token account.
// Pointer fields distinguish "absent" from the zero value.
type TokenConfig struct {
	ClientID           *string  `json:"client_id,omitempty" yaml:"client_id"`
	ClientSecret       *string  `json:"client_key,omitempty" yaml:"client_key"`
	UseSecureTransport *bool    `json:"use_https,omitempty" yaml:"use_https"`
	KeyIDs             KeyIDSet `json:"key_id,omitempty" yaml:"key_id"`
	VerificationURLs   []string `json:"URLs,omitempty" yaml:"URLs"`
}

// MissingFields lists the required settings that are absent or empty
func (c *TokenConfig) MissingFields() []string {
	if c == nil {
		return []string{"client_id", "client_key", "use_https", "key_id"}
	}

	var missing []string
	if c.ClientID == nil || *c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == nil || *c.ClientSecret == "" {
		missing = append(missing, "client_key")
	}
	if c.UseSecureTransport == nil {
		missing = append(missing, "use_https")
	}
	if c.KeyIDs.Empty() {
		missing = append(missing, "key_id")
	}
	return missing
}

// Complete reports whether every required setting is present
func (c *TokenConfig) Complete() bool {
	return len(c.MissingFields()) == 0
}
