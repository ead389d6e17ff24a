package logger

import "strings"

// keyIDLength mirrors models.KeyIDLength; pkg/ does not import internal/
const keyIDLength = 12

// RedactOTP keeps the public key id of an OTP and masks the one-time part
// (e.g. "vvvvvvcucrlc****************************")
func RedactOTP(otp string) string {
	if i := strings.LastIndex(otp, ":"); i >= 0 {
		otp = otp[i+1:]
	}
	if len(otp) <= keyIDLength {
		return strings.Repeat("*", len(otp))
	}
	return otp[:keyIDLength] + strings.Repeat("*", len(otp)-keyIDLength)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"otp", "password", "token", "secret", "client_key", "auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
