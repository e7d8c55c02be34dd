package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/todoauth/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// Clock returns the current time.
type Clock func() time.Time

// Identity is what an access token asserts about its bearer.
type Identity struct {
	UserID   int64
	Username string
}

// Claims is the JWT payload. Subject carries the username.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Subject}
}

// TokenCodec signs and verifies stateless access tokens with a symmetric secret.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    Clock
}

// NewTokenCodec accepts HS256, HS384 or HS512. A nil clock means time.Now.
func NewTokenCodec(secret []byte, algorithm string, now Clock) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if now == nil {
		now = time.Now
	}

	return &TokenCodec{secret: secret, method: method, now: now}, nil
}

// Encode returns a compact JWS with iat = now and exp = now + ttl.
func (c *TokenCodec) Encode(id Identity, ttl time.Duration) (string, error) {
	issuedAt := c.now()
	claims := Claims{
		UserID: id.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// Decode returns apperr.ErrTokenInvalid for malformed input, a bad signature, a
// different algorithm, a missing subject and expiry alike. A token is expired
// from the exp second onwards.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTokenInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperr.ErrTokenInvalid
	}

	return claims, nil
}
