package sinch

import (
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
)

// TokenCache holds one OAuth bearer token for the lifetime of a client
// instance. It is not safe for concurrent use on its own; the client
// serializes the read-check-refresh sequence behind a single mutex.
type TokenCache struct {
	token     string
	expiresAt time.Time
}

// Get returns the cached token, or false when none is cached or the token
// is within the expiry skew window.
func (c *TokenCache) Get() (string, bool) {
	if c.token == "" {
		return "", false
	}
	if time.Now().After(c.expiresAt.Add(-constants.TokenExpirySkewSec * time.Second)) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.token = token
	c.expiresAt = time.Now().Add(ttl)
}

func (c *TokenCache) Invalidate() {
	c.token = ""
	c.expiresAt = time.Time{}
}
