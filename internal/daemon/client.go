// Package daemon is the synchronous REST envelope around the node agent HTTP
// API.
//
// Every call returns an *Outcome. HTTP errors, transport failures and
// undecodable bodies are folded into the outcome instead of being returned
// as Go errors, so callers handle a single shape:
//
//	c := daemon.New(target)
//	out := c.Get(ctx, "/api/system", nil)
//	if err := out.Err(); errors.Is(err, daemon.ErrUnauthorized) {
//	    // rotate the node secret
//	}
//
// Calls are never retried here.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/version"
)

// maxErrorDetail bounds the raw body excerpt used in error messages.
const maxErrorDetail = 256

// Observer receives one notification per completed call.
type Observer interface {
	ObserveRequest(method string, kind Kind, status int, elapsed time.Duration)
}

// Client performs calls against one node agent.
type Client struct {
	target     node.Target
	token      string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for target. The node secret is the default bearer.
func New(target node.Target, opts ...Option) *Client {
	c := &Client{
		target:     target,
		token:      target.Secret,
		httpClient: &http.Client{},
		userAgent:  version.UserAgent(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// WithToken returns a copy of c that authenticates with tok instead of the
// node secret.
func (c *Client) WithToken(tok string) *Client {
	cp := *c
	cp.token = tok
	return &cp
}

// Target returns the node this client talks to.
func (c *Client) Target() node.Target {
	return c.target
}

// Request is one call. Body is JSON encoded unless RawBody is set.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	RawBody []byte
	Headers http.Header

	// Raw skips JSON decoding of the response
	Raw bool
}

// CallOption adjusts a Request built by the verb helpers.
type CallOption func(*Request)

// WithQuery sets the query string.
func WithQuery(q url.Values) CallOption {
	return func(r *Request) { r.Query = q }
}

// WithHeader sets a header, overriding the defaults.
func WithHeader(key, value string) CallOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = http.Header{}
		}
		r.Headers.Set(key, value)
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: http.MethodGet, Path: path, Query: query}, opts))
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: http.MethodPost, Path: path, Body: body}, opts))
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: http.MethodPut, Path: path, Body: body}, opts))
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: http.MethodPatch, Path: path, Body: body}, opts))
}

// Delete issues a DELETE request with an optional JSON body.
func (c *Client) Delete(ctx context.Context, path string, body any, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: http.MethodDelete, Path: path, Body: body}, opts))
}

// Raw sends body untouched and leaves the response undecoded. The result is
// classified like any other call.
func (c *Client) Raw(ctx context.Context, method, path string, body []byte, opts ...CallOption) *Outcome {
	return c.Do(ctx, build(Request{Method: method, Path: path, RawBody: body, Raw: true}, opts))
}

func build(r Request, opts []CallOption) Request {
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Do performs req and normalizes the result.
func (c *Client) Do(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	out := c.do(ctx, req)

	if c.observer != nil {
		c.observer.ObserveRequest(req.Method, out.Kind, out.Status, time.Since(start))
	}
	if out.Success() {
		c.logger.Debug("daemon call",
			"node", c.target.ID, "method", req.Method, "path", req.Path, "status", out.Status)
	} else {
		c.logger.Warn("daemon call failed",
			"node", c.target.ID, "method", req.Method, "path", req.Path,
			"status", out.Status, "kind", out.Kind, "error", out.ErrorMessage)
	}
	return out
}

func (c *Client) do(ctx context.Context, req Request) *Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.target.RequestTimeout())
	defer cancel()

	endpoint := c.target.BaseURL() + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := "application/json"
	switch {
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
		contentType = "application/octet-stream"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return transportFailure(fmt.Errorf("failed to encode request body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return transportFailure(fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(fmt.Errorf("connection failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(fmt.Errorf("failed to read response: %w", err))
	}

	out := &Outcome{
		Status: resp.StatusCode,
		Raw:    raw,
		Kind:   Classify(resp.StatusCode),
	}

	if !req.Raw && len(bytes.TrimSpace(raw)) > 0 {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			c.logger.Debug("daemon returned a non-JSON body",
				"node", c.target.ID, "path", req.Path, "error", err)
		} else {
			out.Body = parsed
		}
	}

	if out.Kind != KindNone {
		out.ErrorMessage = errorMessage(resp.StatusCode, req.Path, errorDetail(out.Body, raw))
	}
	return out
}

func transportFailure(err error) *Outcome {
	return &Outcome{Status: 0, Kind: KindTransport, ErrorMessage: err.Error()}
}

// errorDetail extracts the daemon's error text from a failed response.
func errorDetail(body any, raw []byte) string {
	if m, ok := body.(map[string]any); ok {
		for _, key := range []string{"error", "message"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
		// {"errors":[{"detail": "..."}]}
		if errs, ok := m["errors"].([]any); ok && len(errs) > 0 {
			if first, ok := errs[0].(map[string]any); ok {
				if s, ok := first["detail"].(string); ok {
					return s
				}
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorDetail {
		cut := maxErrorDetail
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
