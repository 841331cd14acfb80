// Package connection implements the connection manager for the enhancement service.
//
// The manager:
//   - Owns exactly one WebSocket connection to a fixed endpoint
//   - Reconnects on close with capped exponential backoff until Disconnect
//   - Encodes image payloads as base64 data URLs, one JSON frame per job
//   - Hands every inbound frame to a single registered handler; matching
//     responses to requests by uuid is left to the caller (see package jobs)
package connection
