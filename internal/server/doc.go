// Package server wires the credential lifecycle, the attachment pipeline and
// the HTTP surfaces together. ServerContext is the single dependency root;
// CallbackServer hosts the OAuth redirect endpoint and health probes, and
// MetricsServer serves Prometheus metrics on a dedicated port.
package server
