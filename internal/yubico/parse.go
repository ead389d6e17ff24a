package yubico

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BradenHooton/keygate/internal/models"
)

const (
	// ModhexAlphabet is the keyboard-layout-independent encoding YubiKeys type in
	ModhexAlphabet = "cbdefghijklnrtuv"

	tokenLength     = 32
	maxPrefixLength = 16
)

// Parse splits an OTP into its optional password, public prefix and token.
// Modhex is checked case-insensitively and the parts keep the caller's case.
// It performs no network access and no cryptographic validation.
func Parse(otp string) (models.OTPParts, error) {
	var parts models.OTPParts

	if i := strings.LastIndex(otp, ":"); i >= 0 {
		parts.Password = otp[:i]
		otp = otp[i+1:]
	}

	if n := len(otp); n < tokenLength || n > tokenLength+maxPrefixLength {
		return models.OTPParts{}, fmt.Errorf("%w: length %d", models.ErrMalformedOTP, n)
	}
	if i := strings.IndexFunc(otp, func(r rune) bool { return !strings.ContainsRune(ModhexAlphabet, unicode.ToLower(r)) }); i >= 0 {
		return models.OTPParts{}, fmt.Errorf("%w: non-modhex character at %d", models.ErrMalformedOTP, i)
	}

	split := len(otp) - tokenLength
	parts.Prefix = otp[:split]
	parts.Token = otp[split:]
	return parts, nil
}
