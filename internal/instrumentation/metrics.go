package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrService = "service"
	attrResult  = "result"
	attrOutcome = "outcome"
	attrTool    = "tool"
	attrAccount = "account"
)

// Metrics provides methods for recording observability metrics. The zero
// value is a no-op recorder, which is what a disabled provider hands out.
type Metrics struct {
	// OAuth metrics
	authFlowTotal     metric.Int64Counter
	tokenRefreshTotal metric.Int64Counter
	pendingCallbacks  metric.Int64UpDownCounter

	// Client cache metrics
	clientCacheLookups metric.Int64Counter

	// Attachment index metrics
	indexSweepsTotal    metric.Int64Counter
	indexRecordsRemoved metric.Int64Counter
	indexSweepDuration  metric.Float64Histogram

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.authFlowTotal, err = meter.Int64Counter(
		"oauth_auth_flows_total",
		metric.WithDescription("Total number of completed OAuth authorization flows"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_flows_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.pendingCallbacks, err = meter.Int64UpDownCounter(
		"oauth_pending_callbacks",
		metric.WithDescription("Number of authorization flows waiting for the provider redirect"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_pending_callbacks gauge: %w", err)
	}

	m.clientCacheLookups, err = meter.Int64Counter(
		"client_cache_lookups_total",
		metric.WithDescription("Total number of authenticated client cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client_cache_lookups_total counter: %w", err)
	}

	m.indexSweepsTotal, err = meter.Int64Counter(
		"attachment_index_sweeps_total",
		metric.WithDescription("Total number of attachment index cleanup sweeps"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment_index_sweeps_total counter: %w", err)
	}

	m.indexRecordsRemoved, err = meter.Int64Counter(
		"attachment_index_records_removed_total",
		metric.WithDescription("Total number of attachment records removed by sweeps and evictions"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment_index_records_removed_total counter: %w", err)
	}

	m.indexSweepDuration, err = meter.Float64Histogram(
		"attachment_index_sweep_duration_seconds",
		metric.WithDescription("Attachment index sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment_index_sweep_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordAuthFlow records a completed OAuth authorization flow.
// Result should be one of: "success", "failure", "expired".
func (m *Metrics) RecordAuthFlow(ctx context.Context, result string) {
	if m.authFlowTotal == nil {
		return
	}
	m.authFlowTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordTokenRefresh records an OAuth token refresh attempt.
// Result should be one of: "success", "failure", "expired".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// IncrementPendingCallbacks increments the pending-callback gauge.
func (m *Metrics) IncrementPendingCallbacks(ctx context.Context) {
	if m.pendingCallbacks == nil {
		return
	}
	m.pendingCallbacks.Add(ctx, 1)
}

// DecrementPendingCallbacks decrements the pending-callback gauge.
func (m *Metrics) DecrementPendingCallbacks(ctx context.Context) {
	if m.pendingCallbacks == nil {
		return
	}
	m.pendingCallbacks.Add(ctx, -1)
}

// RecordClientCacheLookup records a client cache lookup.
// Outcome should be "hit" or "miss".
func (m *Metrics) RecordClientCacheLookup(ctx context.Context, service, outcome string) {
	if m.clientCacheLookups == nil {
		return
	}
	m.clientCacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordIndexSweep records one attachment index cleanup sweep.
func (m *Metrics) RecordIndexSweep(ctx context.Context, removed int, duration time.Duration) {
	if m.indexSweepsTotal == nil {
		return
	}
	m.indexSweepsTotal.Add(ctx, 1)
	m.indexRecordsRemoved.Add(ctx, int64(removed))
	m.indexSweepDuration.Record(ctx, duration.Seconds())
}

// RecordToolInvocation records an MCP tool invocation. The account label is
// only emitted when detailed labels are enabled; callers should pass an
// anonymized identifier, never a raw email.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
