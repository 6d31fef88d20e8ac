// Package client talks to the nodelink panel API from other Go programs.
//
// Its main use is as a remote session token source: a process that does not
// hold node secrets asks the panel for a WebSocket token and hands it to
// the session client.
//
//	c, _ := client.New("https://panel.example.com", client.WithAPIKey(key))
//	sess := session.New(serverUUID, c.TokenSource(serverUUID))
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"evalgo.org/nodelink/internal/version"
	"evalgo.org/nodelink/models"
)

// ErrTokenRejected wraps failures reported in the token response body.
var ErrTokenRejected = errors.New("token request rejected")

// Client talks to the nodelink HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	bearer     string
	user       string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey authenticates with an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBearer authenticates with a panel session token.
func WithBearer(tok string) Option {
	return func(c *Client) { c.bearer = tok }
}

// WithUser sets X-User-ID, honoured only when panel authentication is off.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// New creates a client for the nodelink API at baseURL. Without an auth
// option requests are sent unauthenticated.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WebsocketToken requests a session token for server.
func (c *Client) WebsocketToken(ctx context.Context, server string) (*models.TokenData, error) {
	endpoint := c.baseURL + "/api/user/servers/" + url.PathEscape(server) + "/jwt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("nodelink-client"))
	switch {
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	case c.bearer != "":
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var body models.TokenResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("HTTP %d: malformed token response: %w", resp.StatusCode, err)
	}
	if !body.Success || body.Data == nil {
		msg := body.Message
		if body.ErrorMessage != nil {
			msg = *body.ErrorMessage
		}
		code := ""
		if body.ErrorCode != nil {
			code = *body.ErrorCode
		}
		return nil, fmt.Errorf("%w: HTTP %d %s: %s", ErrTokenRejected, resp.StatusCode, code, msg)
	}
	return body.Data, nil
}

// TokenSource fetches a fresh token for server on every call.
type TokenSource struct {
	client *Client
	server string
}

// TokenSource returns a session token source for server.
func (c *Client) TokenSource(server string) *TokenSource {
	return &TokenSource{client: c, server: server}
}

// Token implements the session token source contract.
func (s *TokenSource) Token(ctx context.Context) (*models.TokenData, error) {
	return s.client.WebsocketToken(ctx, s.server)
}
