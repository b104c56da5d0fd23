// Package registry holds the live set of agents and their mutable workload.
//
// The registry is the leaf state every other swarm component reads: the
// scorer reads agents and workloads, the trust evaluator and risk tracker
// resolve agent IDs against it, and the orchestrator reserves and releases
// workload slots through it. All mutation is linearized behind one lock;
// reads hand out copies in registration order.
//
// Agents never expire: a heartbeat staleness checker downgrades Status for
// observability, but only an explicit Unregister removes an agent, and
// status is never a scoring input.
package registry
