package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "task-tracker"

// ErrInvalidToken covers bad signatures, expired tokens and malformed input alike.
var ErrInvalidToken = errors.New("invalid token")

// Tokens issues and validates HS256 bearer tokens bound to a username.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption customises Tokens.
type TokenOption func(*Tokens)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Tokens) { t.now = now }
}

// NewTokens creates a token service signing with secret. Tokens expire ttl after issuance.
func NewTokens(secret []byte, ttl time.Duration, opts ...TokenOption) *Tokens {
	t := &Tokens{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	return t
}

// Issue signs a token for username and returns it with its expiry.
func (t *Tokens) Issue(username string) (string, time.Time, error) {
	now := t.now()
	expiresAt := jwt.NewNumericDate(now.Add(t.ttl))
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: expiresAt,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Time, nil
}

// Validate checks the signature and expiry of raw and returns its subject.
// A token is expired from the exact instant of its exp claim.
func (t *Tokens) Validate(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
