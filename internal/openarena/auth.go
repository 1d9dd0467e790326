package openarena

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"raih/internal/config"
)

// TokenProvider supplies a bearer token for LLM platform requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed personal token.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("personal token is empty")
	}
	return string(s), nil
}

// ClientCredentials exchanges service-account credentials for a bearer token
// and caches it until shortly before expiry. Safe for concurrent use.
type ClientCredentials struct {
	cfg    config.AuthConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClientCredentials builds a token provider from the auth configuration.
func NewClientCredentials(cfg config.AuthConfig, client *http.Client) (*ClientCredentials, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("auth url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ClientCredentials{cfg: cfg, client: client}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a cached token or performs the form-encoded exchange.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("audience", c.cfg.Audience)
	form.Set("grant_type", c.cfg.GrantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("retrieve token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	c.token = tr.AccessToken
	if tr.ExpiresIn > 0 {
		// Renew a minute early to avoid using a token at the edge of its lifetime.
		c.expires = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	} else {
		c.expires = time.Now().Add(5 * time.Minute)
	}
	return c.token, nil
}

// ProviderFromConfig returns a StaticToken when a personal token is configured,
// otherwise a ClientCredentials provider.
func ProviderFromConfig(cfg config.AuthConfig, client *http.Client) (TokenProvider, error) {
	if cfg.PersonalToken != "" {
		return StaticToken(cfg.PersonalToken), nil
	}
	return NewClientCredentials(cfg, client)
}
