package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// OTP login failure kinds. All of them deny authentication; they exist so
// operators and tests can tell the failure paths apart.
var (
	// Input errors
	ErrMissingOTP   = errors.New("no OTP supplied")
	ErrMalformedOTP = errors.New("OTP is malformed")

	// Resolution errors
	ErrNoKeyMatch    = errors.New("no account matches the key id")
	ErrStaleKeyIndex = errors.New("key index points to a missing account")

	// Configuration errors
	ErrIncompleteTokenConfig = errors.New("incomplete token configuration")

	// Remote verification errors
	ErrVerificationFailed = errors.New("remote OTP verification failed")

	// Authorization mismatch
	ErrKeyIDMismatch = errors.New("key id not authorized for account")
)
