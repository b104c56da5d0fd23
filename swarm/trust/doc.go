// Package trust turns recorded task outcomes into a bounded trust signal.
//
// Each agent carries a sliding history of outcomes. The evaluator blends
// four components into a composite score: capability match against the
// task, recency-weighted outcome history, optional external evidence, and
// outcome consistency. Weights renormalize over whichever components are
// actually available, and agents without history fall back to a zero-shot
// capability-only evaluation with reduced confidence.
//
// Scores erode over time without fresh evidence. The decayed per-agent
// scores are exported through Snapshot for the task scorer, which must
// never block on evaluation work.
package trust
