package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"evalgo.org/nodelink/internal/daemon"
	"evalgo.org/nodelink/internal/token"
)

// Recorder records nodelink metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	tokens        metric.Int64Counter
	sessionEvents metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
}

// NewRecorder creates every instrument under namespace.
func NewRecorder(mp metric.MeterProvider, namespace string) (*Recorder, error) {
	meter := mp.Meter(namespace)
	r := &Recorder{}
	var err error

	if r.requests, err = meter.Int64Counter(
		namespace+"_daemon_requests_total",
		metric.WithDescription("Total number of node agent REST calls"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create daemon request counter: %w", err)
	}

	if r.duration, err = meter.Float64Histogram(
		namespace+"_daemon_request_duration_seconds",
		metric.WithDescription("Duration of node agent REST calls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create daemon duration histogram: %w", err)
	}

	if r.tokens, err = meter.Int64Counter(
		namespace+"_tokens_issued_total",
		metric.WithDescription("Total number of capability tokens issued"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	if r.sessionEvents, err = meter.Int64Counter(
		namespace+"_session_events_total",
		metric.WithDescription("WebSocket session events by type"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session event counter: %w", err)
	}

	if r.httpRequests, err = meter.Int64Counter(
		namespace+"_http_requests_total",
		metric.WithDescription("Total number of panel API requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http request counter: %w", err)
	}

	if r.httpDuration, err = meter.Float64Histogram(
		namespace+"_http_request_duration_seconds",
		metric.WithDescription("Panel API request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return r, nil
}

// ObserveRequest implements daemon.Observer.
func (r *Recorder) ObserveRequest(method string, kind daemon.Kind, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := string(kind)
	if kind == daemon.KindNone {
		result = "success"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
		attribute.String("status_code", strconv.Itoa(status)),
	)
	ctx := context.Background()
	r.requests.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// TokenIssued counts one issued token. It matches token.WithObserver.
func (r *Recorder) TokenIssued(op token.Operation) {
	if r == nil {
		return
	}
	name := string(op)
	if name == "" {
		name = "generic"
	}
	r.tokens.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", name)))
}

// SessionEvent counts one session event such as "connected" or
// "reconnect_scheduled".
func (r *Recorder) SessionEvent(event string) {
	if r == nil {
		return
	}
	r.sessionEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

// HTTPRequest records one panel API request. path must be the route
// pattern, not the raw URL.
func (r *Recorder) HTTPRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if path == "" {
		path = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status_code", strconv.Itoa(status)),
	)
	r.httpRequests.Add(ctx, 1, attrs)
	r.httpDuration.Record(ctx, elapsed.Seconds(), attrs)
}
