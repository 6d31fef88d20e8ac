package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/session"
	"evalgo.org/nodelink/internal/token"
)

var (
	_ daemon.Observer  = (*Recorder)(nil)
	_ session.Observer = (*Recorder)(nil)
)

// assertMetricLine matches a sample while tolerating the scope labels the
// OTel exporter adds.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	assert.Regexp(t, name+`\{[^}]*`+labels+`[^}]*\} `+value, output)
}

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func newTestRecorder(t *testing.T) (*Provider, *Recorder) {
	t.Helper()
	p, err := NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	r, err := NewRecorder(p.MeterProvider(), "nodelink")
	require.NoError(t, err)
	return p, r
}

func TestRecorderDaemonRequests(t *testing.T) {
	p, r := newTestRecorder(t)

	r.ObserveRequest("GET", daemon.KindNone, 200, 10*time.Millisecond)
	r.ObserveRequest("GET", daemon.KindNone, 200, 10*time.Millisecond)
	r.ObserveRequest("POST", daemon.KindUnauthorized, 401, 5*time.Millisecond)

	out := scrape(t, p)
	assertMetricLine(t, out, "nodelink_daemon_requests_total", `result="success"`, "2")
	assertMetricLine(t, out, "nodelink_daemon_requests_total", `result="unauthorized"`, "1")
	assert.Contains(t, out, "nodelink_daemon_request_duration_seconds")
}

func TestRecorderTokensAndSessions(t *testing.T) {
	p, r := newTestRecorder(t)

	r.TokenIssued(token.OperationGeneric)
	r.TokenIssued(token.OperationFile)
	r.SessionEvent("connected")

	out := scrape(t, p)
	assertMetricLine(t, out, "nodelink_tokens_issued_total", `type="generic"`, "1")
	assertMetricLine(t, out, "nodelink_tokens_issued_total", `type="file"`, "1")
	assertMetricLine(t, out, "nodelink_session_events_total", `event="connected"`, "1")
}

func TestRecorderHTTP(t *testing.T) {
	p, r := newTestRecorder(t)

	r.HTTPRequest(context.Background(), "POST", "/api/user/servers/:uuid/jwt", 200, time.Millisecond)
	r.HTTPRequest(context.Background(), "GET", "", 404, time.Millisecond)

	out := scrape(t, p)
	assertMetricLine(t, out, "nodelink_http_requests_total", `path="/api/user/servers/:uuid/jwt"`, "1")
	assertMetricLine(t, out, "nodelink_http_requests_total", `path="unknown"`, "1")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveRequest("GET", daemon.KindNone, 200, time.Millisecond)
		r.TokenIssued(token.OperationDocker)
		r.SessionEvent("closed")
		r.HTTPRequest(context.Background(), "GET", "/", 200, time.Millisecond)
	})

	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
