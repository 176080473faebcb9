package auth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// TokenValidator resolves a raw bearer token to a username.
type TokenValidator interface {
	Validate(raw string) (string, error)
}

// Guard turns an Authorization header into a caller identity.
type Guard struct {
	tokens TokenValidator
}

func NewGuard(tokens TokenValidator) *Guard {
	return &Guard{tokens: tokens}
}

// Identify returns the username carried by header. Callers without a usable
// token are anonymous: ok is false and no reason is given.
func (g *Guard) Identify(header string) (string, bool) {
	raw, err := BearerToken(header)
	if err != nil {
		return "", false
	}
	username, err := g.tokens.Validate(raw)
	if err != nil {
		return "", false
	}
	return username, true
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errBadAuthorization
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
