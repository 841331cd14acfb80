// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state, reconnects and backoff delay
//   - Frame rates and decode failures
//   - Enhancement job outcomes, resends and latency
package metrics
