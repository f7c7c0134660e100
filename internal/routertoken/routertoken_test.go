package routertoken

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// Compass never holds the router's signing key, so it cannot produce
	// a validly signed token either; any secret works here since
	// ParseUnverified never checks the signature.
	signed, err := token.SignedString([]byte("unused-in-production"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestExpiryReadsClaimWithoutVerification(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)

	insp := NewInspector(token, newLogger(&bytes.Buffer{}), 10*time.Minute)
	got, ok := insp.Expiry()
	if !ok {
		t.Fatal("Expiry() ok = false, want true")
	}
	if !got.Equal(exp) {
		t.Errorf("Expiry() = %v, want %v", got, exp)
	}
}

func TestExpiryEmptyToken(t *testing.T) {
	insp := NewInspector("", newLogger(&bytes.Buffer{}), 10*time.Minute)
	if _, ok := insp.Expiry(); ok {
		t.Error("Expiry() ok = true for empty token, want false")
	}
}

func TestExpiryMalformedToken(t *testing.T) {
	insp := NewInspector("not-a-jwt", newLogger(&bytes.Buffer{}), 10*time.Minute)
	if _, ok := insp.Expiry(); ok {
		t.Error("Expiry() ok = true for malformed token, want false")
	}
}

func TestCheckOnceWarnsNearExpiry(t *testing.T) {
	var buf bytes.Buffer
	exp := time.Now().Add(1 * time.Minute)
	insp := NewInspector(signedToken(t, exp), newLogger(&buf), 10*time.Minute)

	insp.CheckOnce()
	if buf.Len() == 0 {
		t.Error("expected a warning log line, got none")
	}
}

func TestCheckOnceSilentWhenFarFromExpiry(t *testing.T) {
	var buf bytes.Buffer
	exp := time.Now().Add(24 * time.Hour)
	insp := NewInspector(signedToken(t, exp), newLogger(&buf), 10*time.Minute)

	insp.CheckOnce()
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %q", buf.String())
	}
}

func TestObserveUnauthorizedExpiredToken(t *testing.T) {
	var buf bytes.Buffer
	exp := time.Now().Add(-time.Minute)
	insp := NewInspector(signedToken(t, exp), newLogger(&buf), 10*time.Minute)

	insp.ObserveUnauthorized("gpt-4o")
	if buf.Len() == 0 {
		t.Error("expected a warning log line, got none")
	}
}
