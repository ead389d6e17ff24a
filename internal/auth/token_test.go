package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!"

func TestSessionIssuer_IssueAndValidate(t *testing.T) {
	si := NewSessionIssuer(testSecret, 15*time.Minute)

	tokenString, expiresAt, err := si.IssueSessionToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 2*time.Second)

	claims, err := si.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "otp", claims.Method)
	assert.Equal(t, "session", claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestSessionIssuer_RejectsEmptyUser(t *testing.T) {
	si := NewSessionIssuer(testSecret, time.Minute)

	_, _, err := si.IssueSessionToken("")

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSessionIssuer_Expired(t *testing.T) {
	si := NewSessionIssuer(testSecret, time.Minute)
	si.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	tokenString, _, err := si.IssueSessionToken("alice")
	require.NoError(t, err)

	si.now = time.Now
	_, err = si.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestSessionIssuer_WrongSecret(t *testing.T) {
	tokenString, _, err := NewSessionIssuer(testSecret, time.Minute).IssueSessionToken("alice")
	require.NoError(t, err)

	_, err = NewSessionIssuer("another-secret-32-characters-long", time.Minute).ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestSessionIssuer_RejectsOtherTokenTypes(t *testing.T) {
	si := NewSessionIssuer(testSecret, time.Minute)

	claims := &models.TokenClaims{
		Type:   "refresh",
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "keygate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = si.ValidateToken(tokenString)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionIssuer_RejectsNoneAlgorithm(t *testing.T) {
	si := NewSessionIssuer(testSecret, time.Minute)

	claims := &models.TokenClaims{Type: "session", UserID: "alice"}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = si.ValidateToken(tokenString)
	assert.Error(t, err)
}
