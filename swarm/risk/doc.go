// Package risk watches agent interactions for emergent coordination,
// behavioral, and performance problems.
//
// The tracker keeps bounded sliding windows of interaction observations,
// one per agent plus a global chronology, and derives everything from
// those windows: no detection ever blocks on I/O. Assessments walk the
// windows on demand; the per-agent risk scores consumed by the task
// scorer are refreshed on every Record call and served from a snapshot
// map so the scoring hot path never contends with writers.
package risk
