package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/auth"
)

func newJWT(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidateDeviceToken(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", "clearskies-api", "clearskies-mobile")

	token, expiresAt, err := svc.GenerateDeviceToken("ios-1234")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DeviceTokenExpiry), expiresAt, 5*time.Second)

	claims, err := svc.ValidateDeviceToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ios-1234", claims.DeviceID)
	assert.Equal(t, "ios-1234", claims.Subject)
	assert.Equal(t, "clearskies-api", claims.Issuer)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", "clearskies-api", "clearskies-mobile")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateDeviceToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newJWT("key-one", "clearskies-api", "clearskies-mobile").GenerateDeviceToken("ios-1234")
	require.NoError(t, err)

	_, err = newJWT("key-two", "clearskies-api", "clearskies-mobile").ValidateDeviceToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongIssuerOrAudience(t *testing.T) {
	token, _, err := newJWT("test-key", "issuer-one", "audience-one").GenerateDeviceToken("ios-1234")
	require.NoError(t, err)

	_, err = newJWT("test-key", "issuer-two", "audience-one").ValidateDeviceToken(token)
	assert.Error(t, err)

	_, err = newJWT("test-key", "issuer-one", "audience-two").ValidateDeviceToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-48 * time.Hour)
	old := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-key",
		Issuer:     "clearskies-api",
		Audience:   "clearskies-mobile",
		Now:        func() time.Time { return issuedAt },
	})
	token, _, err := old.GenerateDeviceToken("ios-1234")
	require.NoError(t, err)

	_, err = newJWT("test-key", "clearskies-api", "clearskies-mobile").ValidateDeviceToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}
