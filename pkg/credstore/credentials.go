package credstore

import (
	"fmt"
	"time"
)

// Credentials holds a single OAuth credential set. The JSON field names match
// the claudeAiOauth document the Claude CLI keeps in its own store, so the
// same struct round-trips through both stores without translation.
type Credentials struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken,omitempty"`
	ExpiresAt        int64    `json:"expiresAt,omitempty"` // unix milliseconds
	Scopes           []string `json:"scopes,omitempty"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
}

// Expiry returns the token expiry as a time.Time. Zero ExpiresAt yields the
// zero time.
func (c *Credentials) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiresAt)
}

// Expired reports whether the access token expiry has already passed.
// Tokens without an expiry are treated as non-expiring.
func (c *Credentials) Expired() bool {
	return c.ExpiresWithin(0)
}

// ExpiresWithin reports whether the token expires within the given margin.
// Tokens without an expiry never report as expiring.
func (c *Credentials) ExpiresWithin(margin time.Duration) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(margin).After(c.Expiry())
}

// Validate checks that the credential set is usable.
func (c *Credentials) Validate() error {
	if c == nil {
		return fmt.Errorf("credentials are nil")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}
	return nil
}

// RedactToken returns a short, safe form of a token for logging.
func RedactToken(token string) string {
	if len(token) <= 12 {
		return "[REDACTED]"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
