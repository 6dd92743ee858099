package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim out of an access token without verifying
// the signature. The client never validates tokens, the backend does; the
// claim is only used to schedule proactive refreshes.
func ExpiresAt(accessToken string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return exp.Time, nil
}

// ExpiresWithin reports whether the token expires inside the lead window.
// An unparseable token counts as expiring, so a refresh gets attempted.
func ExpiresWithin(accessToken string, lead time.Duration) bool {
	exp, err := ExpiresAt(accessToken)
	if err != nil {
		return true
	}
	return time.Until(exp) < lead
}
