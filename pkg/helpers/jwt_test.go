package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubject() Subject {
	return Subject{Type: SubjectUser, Properties: SubjectProperties{ID: "u-1", Email: "a@example.com"}}
}

func TestGenerateAndParseAccessToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "http://issuer.test/auth")

	tok, exp, err := m.GenerateAccessToken(testSubject(), "hono-app")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ParseAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, testSubject(), claims.Subject())
	assert.Equal(t, "user:u-1", claims.RegisteredClaims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"hono-app"}, claims.Audience)
}

func TestParseAccessToken_Expired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute, "")

	tok, _, err := m.GenerateAccessToken(testSubject(), "c")
	require.NoError(t, err)

	_, err = m.ParseAccessToken(tok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	tok, _, err := NewJWTManager("right", time.Hour, "").GenerateAccessToken(testSubject(), "c")
	require.NoError(t, err)

	_, err = NewJWTManager("wrong", time.Hour, "").ParseAccessToken(tok)
	assert.Error(t, err)
}

func TestParseAccessToken_WrongIssuer(t *testing.T) {
	tok, _, err := NewJWTManager("s", time.Hour, "http://a.test").GenerateAccessToken(testSubject(), "c")
	require.NoError(t, err)

	_, err = NewJWTManager("s", time.Hour, "http://b.test").ParseAccessToken(tok)
	assert.Error(t, err)
}

func TestParseAccessToken_Malformed(t *testing.T) {
	_, err := NewJWTManager("s", time.Hour, "").ParseAccessToken("not.a.jwt")
	assert.Error(t, err)
}
