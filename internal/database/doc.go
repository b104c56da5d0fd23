// Package database owns the relational connection for the delegation
// audit log. Open builds a gorm.DB from the configured driver (postgres
// in production, sqlite for tools and tests); PoolManager tunes the
// underlying sql.DB pool, runs a background liveness probe, and wraps
// transactions with retry for transient failures such as deadlocks and
// serialization aborts.
package database
