// Package instrumentation provides OpenTelemetry metrics and tracing for the
// server. A Provider owns the meter and tracer providers and the exporters
// behind them; the Metrics recorder carries the domain instruments (OAuth
// flows, token refreshes, client cache lookups, attachment index sweeps, MCP
// tool invocations).
//
// Instrumentation is optional. When disabled, the Provider hands out a no-op
// Metrics recorder and a noop tracer, so callers never branch on whether
// telemetry is configured.
package instrumentation
