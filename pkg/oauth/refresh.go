// Package oauth refreshes Claude OAuth credentials against the Anthropic
// console token endpoint.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanif/selaras/pkg/credstore"
)

const (
	// DefaultTokenURL is the console token endpoint.
	DefaultTokenURL = "https://console.anthropic.com/v1/oauth/token"
	// DefaultClientID is the public OAuth client id the Claude CLI uses.
	DefaultClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	defaultTimeout = 30 * time.Second
)

// Refresher exchanges a credential set for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, creds *credstore.Credentials) (*credstore.Credentials, error)
}

// Client is the HTTP Refresher.
type Client struct {
	tokenURL string
	clientID string
	http     *http.Client
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) Option {
	return func(c *Client) { c.tokenURL = url }
}

// WithClientID overrides the OAuth client id.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a token refresh client with the CLI's public client id
// and console endpoint unless overridden.
func NewClient(logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		tokenURL: DefaultTokenURL,
		clientID: DefaultClientID,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logger.With().Str("component", "oauth").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// Refresh exchanges the refresh token for a new access token. Scope and
// subscription metadata carry over from the input; when the response omits a
// rotated refresh token the old one is kept.
func (c *Client) Refresh(ctx context.Context, creds *credstore.Credentials) (*credstore.Credentials, error) {
	if creds == nil || creds.RefreshToken == "" {
		return nil, fmt.Errorf("oauth: no refresh token available")
	}

	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: creds.RefreshToken,
		ClientID:     c.clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("oauth: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oauth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: token request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oauth: read response: %w", err)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("oauth: token endpoint returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("oauth: parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if parsed.ErrorDesc != "" {
			msg = fmt.Sprintf("%s: %s", parsed.Error, parsed.ErrorDesc)
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("oauth: token refresh rejected: %s", msg)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("oauth: token response missing access_token")
	}

	fresh := &credstore.Credentials{
		AccessToken:      parsed.AccessToken,
		RefreshToken:     parsed.RefreshToken,
		Scopes:           creds.Scopes,
		SubscriptionType: creds.SubscriptionType,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = creds.RefreshToken
	}
	if parsed.ExpiresIn > 0 {
		fresh.ExpiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UnixMilli()
	}

	c.logger.Info().
		Dur("duration", time.Since(start)).
		Time("expires_at", fresh.Expiry()).
		Bool("rotated_refresh_token", parsed.RefreshToken != "").
		Msg("OAuth token refreshed")
	return fresh, nil
}
