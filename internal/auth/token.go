package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionTokenType = "session"
	otpMethod        = "otp"
	issuer           = "keygate"
)

// SessionIssuer signs session tokens for identities bound by a successful OTP login
type SessionIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewSessionIssuer(secret string, expiry time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// IssueSessionToken creates a short-lived token for userID
func (si *SessionIssuer) IssueSessionToken(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", models.ErrBadRequest)
	}

	now := si.now()
	expiresAt := now.Add(si.expiry)

	claims := &models.TokenClaims{
		Type:   sessionTokenType,
		UserID: userID,
		Method: otpMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(si.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken verifies a token and returns its claims
func (si *SessionIssuer) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return si.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(si.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != sessionTokenType {
		return nil, fmt.Errorf("invalid token type %q: %w", claims.Type, models.ErrUnauthorized)
	}

	return claims, nil
}
