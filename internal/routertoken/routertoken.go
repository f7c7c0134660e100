// Package routertoken inspects the bearer token Compass holds for the
// Model Router. Compass is never the issuer of this token and has no
// access to the router's signing key, so it can only read the claims an
// attacker or a misconfiguration could not hide anyway — it never
// verifies a signature.
package routertoken

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspector periodically checks the configured Model Router token for
// upcoming expiry and logs an operator-facing warning.
type Inspector struct {
	token  string
	logger *slog.Logger
	warnAt time.Duration
}

// NewInspector builds an Inspector for the given bearer token. warnAt is
// how far ahead of expiry the inspector starts logging warnings.
func NewInspector(token string, logger *slog.Logger, warnAt time.Duration) *Inspector {
	if warnAt <= 0 {
		warnAt = 10 * time.Minute
	}
	return &Inspector{token: token, logger: logger, warnAt: warnAt}
}

// Expiry reads the exp claim from the configured token without verifying
// its signature. Returns false if the token is empty, malformed, or
// carries no exp claim.
func (i *Inspector) Expiry() (time.Time, bool) {
	return expiryOf(i.token)
}

func expiryOf(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// CheckOnce logs a warning if the configured token is within warnAt of
// expiring, or already expired.
func (i *Inspector) CheckOnce() {
	exp, ok := i.Expiry()
	if !ok {
		return
	}
	remaining := time.Until(exp)
	switch {
	case remaining <= 0:
		i.logger.Warn("model router token has expired", "expired_at", exp)
	case remaining <= i.warnAt:
		i.logger.Warn("model router token nearing expiry", "expires_at", exp, "remaining", remaining.Round(time.Second))
	}
}

// ObserveUnauthorized logs that a 401 from the router corroborates an
// already-expired or revoked token. This does not change fan-out
// behavior — the caller still records the per-model failure — it only
// gives operators a stronger signal than a bare 401 would.
func (i *Inspector) ObserveUnauthorized(model string) {
	exp, ok := i.Expiry()
	if ok && !exp.After(time.Now()) {
		i.logger.Warn("router rejected request with an already-expired token", "model", model, "expired_at", exp)
		return
	}
	i.logger.Warn("router rejected request with 401; token may have been revoked", "model", model)
}
