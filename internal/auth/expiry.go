package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryOf decodes the exp claim of a JWT without verifying it.
func expiryOf(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiresAt returns the exp claim of accessToken, or the zero time if it has none.
func ExpiresAt(accessToken string) time.Time {
	exp, _ := expiryOf(accessToken)
	return exp
}
