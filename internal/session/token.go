package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMalformedToken = errors.New("session: malformed token")
	errMissingExpiry  = errors.New("session: token missing expiry claim")
)

// TokenClaims is the slice of the bearer token the client reads. The token
// is otherwise opaque: the server holds the verification key, so claims
// are parsed without signature verification and used only for local
// expiry gating.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// InspectToken extracts subject and expiry from a bearer token.
func InspectToken(tokenString string) (TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return TokenClaims{}, errors.Join(errMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return TokenClaims{}, errMissingExpiry
	}
	return TokenClaims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Valid reports whether the claims are usable at the given instant.
func (c TokenClaims) Valid(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
