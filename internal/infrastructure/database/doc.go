// Package database provides the SQLite storage layer for the bridge.
//
// The bridge persists snapshot history so state transitions survive
// restarts and remain queryable through the local API. SQLite fits the
// deployment model: a single daemon, a single writer, no external
// database service to operate.
//
// # Schema Migrations
//
// Schema changes ship as embedded SQL files applied at startup. The main
// package wires the embedded filesystem in via the migrations package;
// each migration runs once, in version order, inside its own transaction,
// and is recorded in schema_migrations.
//
// # Connection Settings
//
// WAL journaling with NORMAL synchronous mode allows history reads while
// the poller writes. The pool is pinned to one open connection because
// SQLite has a single writer anyway.
package database
