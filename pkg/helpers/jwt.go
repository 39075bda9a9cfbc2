package helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// SubjectUser is the only subject type issued today.
const SubjectUser = "user"

// SubjectProperties is the payload carried by a "user" subject.
type SubjectProperties struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subject identifies who an access token was issued for.
type Subject struct {
	Type       string            `json:"type"`
	Properties SubjectProperties `json:"properties"`
}

// JWTManager signs and validates access tokens. The issuer and every client
// that verifies locally share the same secret.
type JWTManager struct {
	AccessSecret []byte
	AccessTTL    time.Duration
	Issuer       string
}

var defaultManager *JWTManager

func NewJWTManager(accessSecret string, accessTTL time.Duration, issuer string) *JWTManager {
	m := &JWTManager{
		AccessSecret: []byte(accessSecret),
		AccessTTL:    accessTTL,
		Issuer:       issuer,
	}
	defaultManager = m
	return m
}

// DefaultJWT returns the last constructed JWTManager (used for auto-wiring routes)
func DefaultJWT() *JWTManager { return defaultManager }

type Claims struct {
	Mode       string            `json:"mode"`
	Type       string            `json:"type"`
	Properties SubjectProperties `json:"properties"`
	jwt.RegisteredClaims
}

// Subject returns the subject carried by the claims.
func (c *Claims) Subject() Subject {
	return Subject{Type: c.Type, Properties: c.Properties}
}

// GenerateAccessToken signs an access token for sub, audience-bound to clientID.
func (m *JWTManager) GenerateAccessToken(sub Subject, clientID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.AccessTTL)
	claims := &Claims{
		Mode:       "access",
		Type:       sub.Type,
		Properties: sub.Properties,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.Type + ":" + sub.Properties.ID,
			Issuer:    m.Issuer,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.AccessSecret)
	return s, exp, err
}

// ParseAccessToken validates signature, expiry and mode. Expired tokens
// return an error matching jwt.ErrTokenExpired.
func (m *JWTManager) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.Issuer))
	}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.AccessSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || claims.Mode != "access" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
