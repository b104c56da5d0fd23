// Package fixtures provides factory functions for swarmroute test data.
//
// Every factory returns a value good enough to pass validation; tests
// override only the fields under test.
package fixtures

import (
	"fmt"

	"github.com/quorvia/swarmroute/swarm/registry"
)

// Worker returns a local coder agent with spare capacity.
func Worker(id string, expertise ...string) *registry.Agent {
	if len(expertise) == 0 {
		expertise = []string{"golang", "routing"}
	}
	return &registry.Agent{
		ID:        id,
		Type:      registry.AgentTypeCoder,
		Name:      "worker " + id,
		Expertise: expertise,
		Capacity:  4,
		IsLocal:   true,
	}
}

// RemoteWorker returns a worker that routes through the remote
// inference path.
func RemoteWorker(id string, expertise ...string) *registry.Agent {
	a := Worker(id, expertise...)
	a.IsLocal = false
	return a
}

// Reviewer returns a local reviewer agent.
func Reviewer(id string) *registry.Agent {
	a := Worker(id, "review", "quality")
	a.Type = registry.AgentTypeReviewer
	a.Name = "reviewer " + id
	return a
}

// BusyWorker returns a worker already running at capacity.
func BusyWorker(id string) *registry.Agent {
	a := Worker(id)
	a.Workload = a.Capacity
	return a
}

// Swarm returns n local workers named worker-1..worker-n with rotating
// expertise so ranking tests see differentiated candidates.
func Swarm(n int) []*registry.Agent {
	expertiseSets := [][]string{
		{"golang", "routing"},
		{"python", "analysis"},
		{"review", "quality"},
		{"debugging", "tracing"},
	}
	agents := make([]*registry.Agent, 0, n)
	for i := 0; i < n; i++ {
		agents = append(agents, Worker(
			fmt.Sprintf("worker-%d", i+1),
			expertiseSets[i%len(expertiseSets)]...,
		))
	}
	return agents
}
