// ABOUTME: Short-lived HS256 tokens authenticating gateway-to-gateway forwards.
// ABOUTME: The forwarding client mints one per request; the receiving gateway verifies it.

package forward

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid forward token")
	ErrExpiredToken = errors.New("forward token expired")
)

// forwardSubject identifies gateway-to-gateway tokens.
const forwardSubject = "drawbridge-forward"

// DefaultTokenTTL bounds how long a minted token stays valid. Forwarded
// calls complete within the route timeout, so a minute of slack is plenty.
const DefaultTokenTTL = time.Minute

// TokenMinter mints and verifies forward tokens with a shared secret.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenMinter creates a minter. A zero ttl uses DefaultTokenTTL.
func NewTokenMinter(secret []byte, ttl time.Duration) *TokenMinter {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenMinter{secret: secret, ttl: ttl}
}

// Mint creates a fresh token for one outbound request.
func (m *TokenMinter) Mint() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": forwardSubject,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks an inbound bearer token's signature, expiry, and subject.
func (m *TokenMinter) Verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidToken
	}
	if sub, _ := claims["sub"].(string); sub != forwardSubject {
		return fmt.Errorf("%w: wrong subject", ErrInvalidToken)
	}
	return nil
}
