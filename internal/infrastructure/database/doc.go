// Package database manages the SQLite connection for Gatewise Core.
//
// It wraps database/sql with WAL-mode configuration, a single-writer
// connection pool suited to SQLite, embedded schema migrations, and a
// health check used by the API's health endpoint.
//
// The command ledger, plate event ledger, and device store all share one
// DB handle; repositories in internal/device, internal/barrier, and
// internal/lpr issue their own queries against it.
package database
