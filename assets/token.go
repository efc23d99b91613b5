package assets

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SetAuthToken replaces the auth token, e.g. after a user login. The
// token's expiry claim is recorded so doomed requests can be refused
// locally instead of bouncing off the server.
func (d *Downloader) SetAuthToken(token string) {
	d.setToken(token)
}

// TokenExpiresAt returns the expiry of the current auth token, zero when
// no token is set or the token carries no expiry claim.
func (d *Downloader) TokenExpiresAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokenExp
}

func (d *Downloader) setToken(token string) {
	exp := tokenExpiry(token)

	d.mu.Lock()
	d.authToken = token
	d.tokenExp = exp
	d.mu.Unlock()

	if token != "" && !exp.IsZero() {
		d.log().Debug("auth token set", slog.Time("expires_at", exp))
	}
}

func (d *Downloader) token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authToken
}

// tokenExpired reports whether a token is present but past its expiry.
// Absent tokens and tokens without an exp claim are never "expired";
// public assets need no token at all.
func (d *Downloader) tokenExpired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authToken != "" && !d.tokenExp.IsZero() && time.Now().After(d.tokenExp)
}

// tokenExpiry extracts the exp claim without verifying the signature.
// Verification is the server's job; locally the claim is only used to
// short-circuit requests that would be rejected anyway.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
