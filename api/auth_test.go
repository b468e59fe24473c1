package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	return NewAuth(nil, "", "")
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestUserIDFromAuthHeaderValidToken(t *testing.T) {
	a := newTestAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	sub, err := a.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("UserIDFromAuthHeader: %v", err)
	}
	if sub != "user-42" {
		t.Fatalf("sub = %q, want user-42", sub)
	}
}

func TestUserIDFromAuthHeaderMissingHeader(t *testing.T) {
	a := newTestAuth(t)
	if _, err := a.UserIDFromAuthHeader(""); !errors.Is(err, errMissingAuthorization) {
		t.Fatalf("err = %v, want %v", err, errMissingAuthorization)
	}
}

func TestUserIDFromAuthHeaderMalformed(t *testing.T) {
	a := newTestAuth(t)
	for _, h := range []string{
		"Bearer",
		"Bearer not-a-jwt",
		"Bearer a.b",
		"Basic dXNlcjpwYXNz",
	} {
		if _, err := a.UserIDFromAuthHeader(h); !errors.Is(err, errBadAuthorization) {
			t.Errorf("header %q: err = %v, want %v", h, err, errBadAuthorization)
		}
	}
}

func TestUserIDFromAuthHeaderExpiredToken(t *testing.T) {
	a := newTestAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestUserIDFromAuthHeaderWrongSecret(t *testing.T) {
	a := newTestAuth(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := a.UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected error for token signed with the wrong secret")
	}
}

func TestUserIDFromAuthHeaderMissingSub(t *testing.T) {
	a := newTestAuth(t)
	token := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected error for token without sub claim")
	}
}

func TestUserIDFromAuthHeaderAudienceAndIssuer(t *testing.T) {
	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	a := NewAuth(nil, "boardsync-api", "https://issuer.example.com/")

	good := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "boardsync-api",
		"iss": "https://issuer.example.com/",
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + good); err != nil {
		t.Fatalf("valid audience and issuer rejected: %v", err)
	}

	badAud := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "someone-else",
		"iss": "https://issuer.example.com/",
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + badAud); err == nil {
		t.Fatal("expected error for wrong audience")
	}
}
