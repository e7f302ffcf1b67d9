package auth

import (
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// TokenFromHeader extracts the JWT from an Authorization header value. Both
// "Bearer <jwt>" and a bare "<jwt>" are accepted.
func TokenFromHeader(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	token := trimmed
	if len(trimmed) >= len(bearerPrefix) && strings.EqualFold(trimmed[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimLeft(trimmed[len(bearerPrefix):], " ")
	}
	if token == "" || strings.Count(token, ".") != 2 || strings.ContainsAny(token, " \t") {
		return "", errBadAuthorization
	}
	return token, nil
}
