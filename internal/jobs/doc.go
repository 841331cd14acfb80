// Package jobs pairs enhancement responses with the requests that caused them.
//
// The connection manager delivers every inbound frame to one handler and
// never matches responses itself. A Tracker assigns each job a uuid, keeps it
// pending until a frame with the same uuid arrives, resends when the service
// stays quiet, and fails the job once its timeout passes.
package jobs
