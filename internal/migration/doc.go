// Package migration manages the relational schema for the delegation
// audit log. SQL migration files for postgres and sqlite are embedded
// per dialect and applied through golang-migrate, with versioned up,
// down, steps, goto, and force operations plus status reporting.
//
// DefaultMigrator is the golang-migrate backed implementation; CLI
// wraps a Migrator with terminal-friendly output for the migrate
// subcommands. The sqlite path uses the pure-Go driver, so tools and
// tests run without cgo.
package migration
