// Package database provides the PostgreSQL connection pool for the job journal.
//
// The journal is optional: the client runs without a database and only
// records finished enhancement jobs when database.enabled is set.
package database
