package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nodelink/internal/auth"
	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/internal/metrics"
	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/token"
	"evalgo.org/nodelink/models"
)

// recordedCall is one request seen by the fake node agent.
type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Bearer string
	Body   map[string]any
}

type fakeNode struct {
	server *httptest.Server
	mu     sync.Mutex
	calls  []recordedCall
	status int
	reply  string
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	f := &fakeNode{status: http.StatusOK, reply: `{}`}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Bearer: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &call.Body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		status, reply := f.status, f.reply
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeNode) lastCall(t *testing.T) recordedCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "node agent was not called")
	return f.calls[len(f.calls)-1]
}

func (f *fakeNode) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	server    *Server
	node      *fakeNode
	authority *node.Authority
	provider  *metrics.Provider
	cfg       *config.Config
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	fake := newFakeNode(t)
	u, err := url.Parse(fake.server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := &config.Config{
		Panel: config.PanelConfig{URL: "https://panel.example.com"},
		Nodes: []config.NodeConfig{
			{ID: "node1", Scheme: "http", Host: u.Hostname(), Port: port, Secret: "node1-secret", Timeout: 5 * time.Second},
		},
		Servers: []config.ServerConfig{{UUID: "srv-1", Node: "node1"}, {UUID: "srv-lost", Node: "node9"}},
		Grants: []config.GrantConfig{
			{User: "alice", Server: "srv-1", Permissions: []string{"control.*", "file.read"}},
			{User: "bob", Server: "srv-1", Permissions: []string{"control.console"}},
			{User: "alice", Server: "srv-lost", Permissions: []string{"control.console"}},
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	provider, err := metrics.NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	rec, err := metrics.NewRecorder(provider.MeterProvider(), "nodelink")
	require.NoError(t, err)

	reg := node.NewRegistry(cfg)
	authority := node.NewAuthority(reg, reg,
		node.WithPanelURL(cfg.Panel.URL),
		node.WithIssueObserver(rec.TokenIssued),
	)

	return &testEnv{
		server:    New(cfg, authority, WithMetrics(provider, rec)),
		node:      fake,
		authority: authority,
		provider:  provider,
		cfg:       cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) decodeNodeToken(t *testing.T, tok string) *token.Claims {
	t.Helper()
	target, err := e.authority.Resolver().Target(context.Background(), "node1")
	require.NoError(t, err)
	iss, err := e.authority.Issuer(target)
	require.NoError(t, err)
	claims, err := iss.Decode(tok)
	require.NoError(t, err)
	return claims
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1, body.Nodes)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestIssueWebsocketToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/jwt", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Error)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "srv-1", resp.Data.ServerUUID)
	assert.Equal(t, "alice", resp.Data.UserUUID)
	assert.True(t, strings.HasPrefix(resp.Data.ConnectionString, "ws://"))
	assert.True(t, strings.HasSuffix(resp.Data.ConnectionString, "/api/servers/srv-1/ws"))

	claims := env.decodeNodeToken(t, resp.Data.Token)
	assert.Contains(t, claims.Permissions, models.PermissionWebsocketConnect)
	assert.Equal(t, "srv-1", claims.Subject)
}

func TestIssueWebsocketTokenErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		server   string
		user     string
		wantCode int
		errCode  string
	}{
		{"no user", "srv-1", "", http.StatusUnauthorized, "unauthenticated"},
		{"no grant", "srv-1", "mallory", http.StatusForbidden, "forbidden"},
		{"unknown node", "srv-lost", "alice", http.StatusNotFound, "server_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/user/servers/"+tt.server+"/jwt", tt.user, "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			var resp models.TokenResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.True(t, resp.Error)
			require.NotNil(t, resp.ErrorCode)
			assert.Equal(t, tt.errCode, *resp.ErrorCode)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestSendPower(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/power", "alice", `{"signal":"restart"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)

	call := env.node.lastCall(t)
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/api/servers/srv-1/power", call.Path)
	assert.Equal(t, "restart", call.Body["signal"])
	assert.Equal(t, float64(30), call.Body["wait_seconds"])

	claims := env.decodeNodeToken(t, call.Bearer)
	assert.Equal(t, []string{models.PermissionControlRestart}, claims.Permissions)
	assert.Equal(t, "alice", claims.UserUUID)
}

func TestSendPowerRejected(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		user     string
		body     string
		wantCode int
	}{
		{"missing permission", "bob", `{"signal":"start"}`, http.StatusForbidden},
		{"no grant", "mallory", `{"signal":"start"}`, http.StatusForbidden},
		{"unknown signal", "alice", `{"signal":"explode"}`, http.StatusBadRequest},
		{"empty body", "alice", `{}`, http.StatusBadRequest},
		{"no user", "", `{"signal":"start"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/power", tt.user, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, env.node.callCount())
}

func TestSendPowerDaemonFailure(t *testing.T) {
	env := newTestEnv(t)
	env.node.status = http.StatusConflict
	env.node.reply = `{"error":"server is busy"}`

	rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/power", "alice", `{"signal":"stop"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var result models.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "conflict", result.Kind)
	assert.Equal(t, "resource conflict: server is busy", result.Error)
}

func TestSendPowerTransportFailure(t *testing.T) {
	env := newTestEnv(t)
	env.node.server.Close()

	rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/power", "alice", `{"signal":"kill"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var result models.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "transport", result.Kind)
	assert.Equal(t, 0, result.Status)
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t)
	env.node.reply = `[{"name":"server.properties","size":1024}]`

	rec := env.do(t, http.MethodGet, "/api/user/servers/srv-1/files?directory=/config", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Len(t, result.Data, 1)

	call := env.node.lastCall(t)
	assert.Equal(t, "/api/servers/srv-1/files/list", call.Path)
	assert.Equal(t, "/config", call.Query.Get("directory"))

	claims := env.decodeNodeToken(t, call.Bearer)
	assert.Equal(t, []string{models.PermissionFileRead}, claims.Permissions)
	assert.Equal(t, "/config", claims.FilePath)
}

func TestListFilesDefaultsToRoot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/user/servers/srv-1/files", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", env.node.lastCall(t).Query.Get("directory"))

	rec = env.do(t, http.MethodGet, "/api/user/servers/srv-1/files", "bob", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthEnabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Security.AuthEnabled = true
		cfg.Security.JWTSecret = "panel-secret"
	})
	session, err := auth.NewJWTService(env.cfg).GenerateToken("alice")
	require.NoError(t, err)

	// X-User-ID is not trusted once authentication is on
	rec := env.do(t, http.MethodPost, "/api/user/servers/srv-1/jwt", "alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/user/servers/srv-1/jwt", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	ok := httptest.NewRecorder()
	env.server.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/user/servers/srv-1/jwt", "alice", "").Code)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Regexp(t, `nodelink_http_requests_total\{[^}]*path="/api/user/servers/:uuid/jwt"[^}]*\} 1`, out)
	assert.Regexp(t, `nodelink_tokens_issued_total\{[^}]*type="websocket"[^}]*\} 1`, out)
}

func TestSwaggerDocs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/docs/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nodelink API")
	assert.Contains(t, rec.Body.String(), "/api/user/servers/{uuid}/power")
}

func newAdminEnv(t *testing.T) (*testEnv, map[string]string) {
	t.Helper()
	keys := map[string]string{}
	var entries []config.APIKeyConfig
	for _, role := range []string{models.RoleAdmin, ""} {
		key, err := auth.GenerateAPIKey()
		require.NoError(t, err)
		hash, err := auth.HashAPIKey(key)
		require.NoError(t, err)
		user := "ops"
		if role == "" {
			user = "alice"
		}
		keys[user] = key
		entries = append(entries, config.APIKeyConfig{User: user, Hash: hash, Role: role})
	}
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Security.AuthEnabled = true
		cfg.Security.JWTSecret = "panel-secret"
		cfg.Security.APIKeys = entries
	})
	return env, keys
}

func (e *testEnv) doWithKey(t *testing.T, method, target, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(auth.HeaderAPIKey, key)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestAdminNodeSystem(t *testing.T) {
	env, keys := newAdminEnv(t)
	env.node.reply = `{"version":"1.11.0","architecture":"amd64"}`

	rec := env.doWithKey(t, http.MethodGet, "/api/admin/nodes/node1/system?detailed=true", keys["ops"])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)

	call := env.node.lastCall(t)
	assert.Equal(t, http.MethodGet, call.Method)
	assert.Equal(t, "/api/system", call.Path)
	assert.Equal(t, "2", call.Query.Get("v"))
	assert.Equal(t, "node1-secret", call.Bearer)
}

func TestAdminNodeConfig(t *testing.T) {
	env, keys := newAdminEnv(t)
	rec := env.doWithKey(t, http.MethodGet, "/api/admin/nodes/node1/config", keys["ops"])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	call := env.node.lastCall(t)
	assert.Equal(t, "/api/config", call.Path)
	assert.Empty(t, call.Query.Get("v"))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env, keys := newAdminEnv(t)

	rec := env.doWithKey(t, http.MethodGet, "/api/admin/nodes/node1/system", keys["alice"])
	assert.Equal(t, http.StatusForbidden, rec.Code)

	session, err := auth.NewJWTService(env.cfg).GenerateToken("alice")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/nodes/node1/system", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	forbidden := httptest.NewRecorder()
	env.server.ServeHTTP(forbidden, req)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	admin, err := auth.NewJWTService(env.cfg).GenerateToken("root", models.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/nodes/node1/system", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	ok := httptest.NewRecorder()
	env.server.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	rec = env.do(t, http.MethodGet, "/api/admin/nodes/node1/system", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, env.node.callCount())
}

func TestAdminUnknownNode(t *testing.T) {
	env, keys := newAdminEnv(t)

	rec := env.doWithKey(t, http.MethodGet, "/api/admin/nodes/node9/config", keys["ops"])
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.node.callCount())
}
