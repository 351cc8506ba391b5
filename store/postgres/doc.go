// Package postgres provides a PostgreSQL implementation of store.Store
// built on pgx/v5. Cross-instance invariants are enforced by partial
// unique indexes and per-pitch advisory transaction locks.
package postgres
