package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user identity in a signed token
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// MakeToken issues an HS256 token for uid that expires after ttl
func MakeToken(uid, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseToken validates raw against secret and returns its claims
func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrBadToken
	}
	return c, nil
}

// JWTVerifier checks tokens signed with a shared HMAC secret
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier creates a verifier for tokens signed with secret
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify returns the token's user ID, falling back to the subject claim
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	c, err := ParseToken(token, v.secret)
	if err != nil {
		return "", err
	}
	if c.UserID != "" {
		return c.UserID, nil
	}
	if c.Subject != "" {
		return c.Subject, nil
	}
	return "", fmt.Errorf("%w: no user identity in token", ErrBadToken)
}
