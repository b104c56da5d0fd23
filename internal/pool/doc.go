// Package pool provides a bounded worker pool for background task
// execution. Workers spawn on demand up to a fixed cap and reap
// themselves when idle, so a quiet pool costs almost nothing.
package pool
