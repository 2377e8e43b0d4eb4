package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
)

// SessionTTL is fixed; sessions cannot be revoked before it elapses.
const SessionTTL = 7 * 24 * time.Hour

// ErrMissingSigningKey is returned at construction when no signing secret is configured
var ErrMissingSigningKey = errors.New("jwtutil: session signing key is not configured")

// SessionClaims identifies an end user inside one project
type SessionClaims struct {
	ProjectID string `json:"project_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the session subject
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// SessionCodec signs and verifies bearer session tokens
type SessionCodec struct {
	key []byte
	now func() time.Time
}

// NewSessionCodec creates a codec bound to the configured signing secret
func NewSessionCodec(cfg *config.JWTConfig) (*SessionCodec, error) {
	if cfg == nil || cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	return &SessionCodec{
		key: []byte(cfg.SigningKey),
		now: time.Now,
	}, nil
}

// Sign issues a token for the given user that expires after SessionTTL
func (s *SessionCodec) Sign(userID, projectID, email string) (string, error) {
	issued := s.now()
	claims := SessionClaims{
		ProjectID: projectID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(SessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of a valid token, or nil for any failure
// (bad signature, expired, wrong algorithm, malformed, missing identity).
func (s *SessionCodec) Verify(tokenString string) *SessionClaims {
	if tokenString == "" {
		return nil
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.key, nil
		},
	)
	if err != nil {
		return nil
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ProjectID == "" {
		return nil
	}
	return claims
}
