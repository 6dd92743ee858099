package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	got, err := ExpiresAt(signedToken(t, exp))
	if err != nil {
		t.Fatalf("expires at: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %s, got %s", exp, got)
	}
}

func TestExpiresAtRejectsGarbage(t *testing.T) {
	if _, err := ExpiresAt("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestExpiresWithin(t *testing.T) {
	cases := map[string]struct {
		token  string
		lead   time.Duration
		expect bool
	}{
		"far from expiry": {signedToken(t, time.Now().Add(time.Hour)), 2 * time.Minute, false},
		"inside lead":     {signedToken(t, time.Now().Add(time.Minute)), 2 * time.Minute, true},
		"already expired": {signedToken(t, time.Now().Add(-time.Minute)), 2 * time.Minute, true},
		"unparseable":     {"garbage", 2 * time.Minute, true},
	}

	for name, tc := range cases {
		if got := ExpiresWithin(tc.token, tc.lead); got != tc.expect {
			t.Fatalf("%s: expected %v, got %v", name, tc.expect, got)
		}
	}
}
