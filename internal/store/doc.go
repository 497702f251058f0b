// Package store provides persistence for gateway sessions and resolved contacts.
//
// The panel owns the session records; switchboard reads them by session name
// and flips the active flag when the gateway reports a closed session. Two
// backends implement Store: SQLiteStore (modernc.org/sqlite, the default) and
// PostgresStore (pgx pool) for deployments that share the panel's database.
// MockStore is an in-memory implementation for tests.
package store
