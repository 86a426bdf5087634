package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultHost is the collector used when ForwarderConfig.Host is empty.
const DefaultHost = "https://app.last9.io"

const (
	accessTokenPath  = "/api/v4/oauth/access_token"
	domainEventsPath = "/api/v4/organizations/%s/domain_events"
	tokenHeader      = "X-LAST9-API-TOKEN"

	// defaultTokenLifetime applies when the token endpoint omits expires_at.
	defaultTokenLifetime = time.Minute
)

// ErrForwarderConfig is returned by NewForwarder when the org slug or the
// refresh token is missing.
var ErrForwarderConfig = errors.New("event forwarder needs an org slug and a refresh token")

// ForwarderConfig locates the remote event collector.
type ForwarderConfig struct {
	// Host is the collector base URL. Default: https://app.last9.io
	Host string `yaml:"host" envconfig:"LEVITATE_HOST"`

	// OrgSlug selects the organization events are filed under.
	OrgSlug string `yaml:"org_slug" envconfig:"LEVITATE_ORG_SLUG"`

	// RefreshToken is the long-lived write token exchanged for short-lived
	// access tokens.
	RefreshToken string `yaml:"refresh_token" envconfig:"LEVITATE_REFRESH_TOKEN"`

	// DataSourceName is copied into every event.
	DataSourceName string `yaml:"data_source_name" envconfig:"LEVITATE_DATA_SOURCE_NAME"`
}

// Enabled reports whether enough is configured to forward events.
func (c ForwarderConfig) Enabled() bool {
	return c.OrgSlug != "" && c.RefreshToken != ""
}

// Forwarder sends lifecycle events to the collector with an authenticated
// PUT, fetching access tokens from the configured refresh token as needed.
type Forwarder struct {
	client    *http.Client
	eventsURL string
	tokens    oauth2.TokenSource
}

// NewForwarder builds a Forwarder. A nil client means http.DefaultClient.
func NewForwarder(cfg ForwarderConfig, client *http.Client) (*Forwarder, error) {
	if !cfg.Enabled() {
		return nil, ErrForwarderConfig
	}
	if client == nil {
		client = http.DefaultClient
	}
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = DefaultHost
	}

	return &Forwarder{
		client:    client,
		eventsURL: host + fmt.Sprintf(domainEventsPath, url.PathEscape(cfg.OrgSlug)),
		tokens: oauth2.ReuseTokenSource(nil, &refreshTokenSource{
			client:       client,
			url:          host + accessTokenPath,
			refreshToken: cfg.RefreshToken,
		}),
	}, nil
}

// Send delivers one event.
func (f *Forwarder) Send(ctx context.Context, event DomainEvent) error {
	token, err := f.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, f.eventsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, "Bearer "+token.AccessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("event collector responded %s", resp.Status)
	}
	return nil
}

// Listener adapts Send for Emitter.On.
func (f *Forwarder) Listener() Listener {
	return func(ctx context.Context, _ Kind, event DomainEvent) error {
		return f.Send(ctx, event)
	}
}

// refreshTokenSource exchanges the refresh token for an access token.
type refreshTokenSource struct {
	client       *http.Client
	url          string
	refreshToken string
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (s *refreshTokenSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": s.refreshToken})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("token endpoint responded %s", resp.Status)
	}

	var out accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("token endpoint returned an empty access token")
	}

	token := &oauth2.Token{
		AccessToken: out.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(defaultTokenLifetime),
	}
	if out.ExpiresAt > 0 {
		token.Expiry = time.Unix(out.ExpiresAt, 0)
	}
	return token, nil
}
