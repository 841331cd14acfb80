// Package store persists finished enhancement jobs to PostgreSQL.
//
// Records are queued without blocking the caller and written in batches
// with upserts keyed by job uuid, so a job re-recorded after a restart
// overwrites its earlier row.
package store
