// Package database provides SQLite connection management for NovaCloud Core.
//
// It wraps database/sql with:
//   - WAL mode and busy-timeout configuration
//   - Embedded schema migrations (see the migrations package)
//   - Health checks and lifecycle management
//
// SQLite is opened with a single connection because it supports only one
// writer; all repositories share this connection through the *DB wrapper.
package database
