package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nodelink/internal/node"
)

func targetFor(t *testing.T, rawURL string) node.Target {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return node.Target{
		ID:      "test-node",
		Scheme:  u.Scheme,
		Host:    host,
		Port:    port,
		Secret:  "node-secret",
		Timeout: 2 * time.Second,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{0, KindTransport},
		{200, KindNone},
		{204, KindNone},
		{400, KindBadRequest},
		{401, KindUnauthorized},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindConflict},
		{422, KindInvalidData},
		{500, KindDaemon},
		{502, KindDaemon},
		{429, KindDaemon},
		{302, KindDaemon},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.status), "status %d", tt.status)
	}
}

func TestEnvelopeClassifiesEveryStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     Kind
		sentinel error
		message  string
	}{
		{"bad request", 400, `{"error":"memory must be positive"}`, KindBadRequest, ErrBadRequest, "invalid server configuration: memory must be positive"},
		{"unauthorized", 401, `{"error":"token rejected"}`, KindUnauthorized, ErrUnauthorized, "authentication failed: token rejected"},
		{"forbidden", 403, `{"message":"missing file.read"}`, KindForbidden, ErrForbidden, "access forbidden: missing file.read"},
		{"not found", 404, `{"error":"no such server"}`, KindNotFound, ErrNotFound, "endpoint not found: /api/servers/abc"},
		{"conflict", 409, `{"error":"server is busy"}`, KindConflict, ErrConflict, "resource conflict: server is busy"},
		{"invalid data", 422, `{"errors":[{"detail":"bad signal"}]}`, KindInvalidData, ErrInvalidData, "invalid data: bad signal"},
		{"server error", 500, `{"error":"docker unavailable"}`, KindDaemon, ErrDaemon, "server error: docker unavailable"},
		{"bad gateway", 502, `upstream down`, KindDaemon, ErrDaemon, "HTTP 502: upstream down"},
		{"empty error body", 500, ``, KindDaemon, ErrDaemon, "server error: unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			out := New(targetFor(t, srv.URL)).Get(context.Background(), "/api/servers/abc", nil)

			assert.False(t, out.Success())
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.message, out.ErrorMessage)
			assert.Equal(t, tt.body, string(out.Raw))

			err := out.Err()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var derr *Error
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.status, derr.Status)
		})
	}
}

func TestErrorDetailKeepsRunesWhole(t *testing.T) {
	// byte 256 falls inside a two-byte rune
	body := "a" + strings.Repeat("é", 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	out := New(targetFor(t, srv.URL)).Get(context.Background(), "/api/system", nil)

	assert.True(t, utf8.ValidString(out.ErrorMessage))
	assert.Equal(t, "HTTP 502: "+body[:maxErrorDetail-1], out.ErrorMessage)

	ascii := strings.Repeat("x", 300)
	assert.Equal(t, ascii[:maxErrorDetail], errorDetail(nil, []byte(ascii)))
}

func TestEnvelopeSuccess(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotQuery = r.URL.Query()
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"state":"running"}`)
	}))
	defer srv.Close()

	c := New(targetFor(t, srv.URL), WithUserAgent("panel/test"))
	out := c.Post(context.Background(), "/api/servers/abc/power", map[string]any{"signal": "start"},
		WithQuery(url.Values{"v": []string{"2"}}))

	require.True(t, out.Success(), out.ErrorMessage)
	assert.NoError(t, out.Err())
	assert.Empty(t, out.ErrorMessage)
	assert.Equal(t, map[string]any{"state": "running"}, out.Body)
	assert.Equal(t, "running", out.Map()["state"])

	assert.Equal(t, "Bearer node-secret", gotHeaders.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "panel/test", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "start", gotBody["signal"])
	assert.Equal(t, "2", gotQuery.Get("v"))

	res := out.Result()
	assert.True(t, res.Success)
	assert.Equal(t, 200, res.Status)
	assert.Empty(t, res.Error)
}

func TestEnvelopeWithTokenAndHeaderOverride(t *testing.T) {
	var auth, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base := New(targetFor(t, srv.URL))
	scoped := base.WithToken("capability-token")

	out := scoped.Delete(context.Background(), "/api/servers/abc", nil, WithHeader("Accept", "text/plain"))
	require.True(t, out.Success())
	assert.Nil(t, out.Body)
	assert.Equal(t, "Bearer capability-token", auth)
	assert.Equal(t, "text/plain", accept)

	// the original client keeps the node secret
	base.Get(context.Background(), "/api/system", nil)
	assert.Equal(t, "Bearer node-secret", auth)
}

func TestEnvelopeMalformedBodyFailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"truncated":`)
	}))
	defer srv.Close()

	out := New(targetFor(t, srv.URL)).Get(context.Background(), "/api/system", nil)
	assert.True(t, out.Success())
	assert.Nil(t, out.Body)
	assert.Equal(t, `{"truncated":`, string(out.Raw))
}

func TestEnvelopeRaw(t *testing.T) {
	var gotBody []byte
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		switch r.URL.Path {
		case "/api/config":
			_, _ = io.WriteString(w, "debug: false\n")
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "nope")
		}
	}))
	defer srv.Close()

	c := New(targetFor(t, srv.URL))

	out := c.Raw(context.Background(), http.MethodPost, "/api/config", []byte("a: 1"))
	require.True(t, out.Success())
	assert.Nil(t, out.Body)
	assert.Equal(t, "debug: false\n", string(out.Raw))
	assert.Equal(t, "a: 1", string(gotBody))
	assert.Equal(t, "application/octet-stream", gotType)
	assert.Equal(t, "debug: false\n", out.Result().Data)

	out = c.Raw(context.Background(), http.MethodGet, "/api/other", nil)
	assert.Equal(t, KindUnauthorized, out.Kind)
	assert.Equal(t, "authentication failed: nope", out.ErrorMessage)
}

func TestEnvelopeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := targetFor(t, srv.URL)
	srv.Close()

	out := New(target).Get(context.Background(), "/api/system", nil)

	assert.False(t, out.Success())
	assert.Equal(t, 0, out.Status)
	assert.Equal(t, KindTransport, out.Kind)
	assert.Contains(t, out.ErrorMessage, "connection failed")

	err := out.Err()
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrDaemon)

	res := out.Result()
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, "transport", res.Kind)
}

func TestEnvelopeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	target := targetFor(t, srv.URL)
	target.Timeout = 50 * time.Millisecond

	out := New(target).Get(context.Background(), "/api/system", nil)
	assert.Equal(t, 0, out.Status)
	assert.Equal(t, KindTransport, out.Kind)
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []Kind
}

func (r *recordingObserver) ObserveRequest(_ string, kind Kind, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func TestEnvelopeObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(targetFor(t, srv.URL), WithObserver(obs))
	c.Get(context.Background(), "/ok", nil)
	c.Get(context.Background(), "/missing", nil)

	assert.Equal(t, []Kind{KindNone, KindNotFound}, obs.kinds)
}
