package risk

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// detectHandoffFailures raises handoff_failure once the window holds at
// least threshold failed handoff-typed interactions.
func detectHandoffFailures(window []*Observation, threshold int) *Risk {
	if threshold <= 0 {
		threshold = 2
	}
	var failed int
	agents := make(map[string]bool)
	for _, obs := range window {
		if obs.Type != InteractionHandoff || obs.Success {
			continue
		}
		failed++
		for _, id := range []string{obs.SourceAgentID, obs.TargetAgentID} {
			if id != "" {
				agents[id] = true
			}
		}
	}
	if failed < threshold {
		return nil
	}
	return &Risk{
		Type:        RiskHandoffFailure,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("%d failed handoffs in the observation window", failed),
		AgentIDs:    sortedKeys(agents),
		Mitigation:  "Verify context transfer between the affected agents and retry failed handoffs",
		DetectedAt:  time.Now(),
	}
}

// detectContextLoss raises context_loss when any interaction in the window
// carried no context payload.
func detectContextLoss(window []*Observation) *Risk {
	var lost int
	agents := make(map[string]bool)
	for _, obs := range window {
		if len(obs.Context) > 0 {
			continue
		}
		lost++
		if obs.TargetAgentID != "" {
			agents[obs.TargetAgentID] = true
		}
	}
	if lost == 0 {
		return nil
	}
	return &Risk{
		Type:        RiskContextLoss,
		Severity:    SeverityMedium,
		Description: fmt.Sprintf("%d interactions carried no context", lost),
		AgentIDs:    sortedKeys(agents),
		Mitigation:  "Attach task context to every handoff and verify receipt before proceeding",
		DetectedAt:  time.Now(),
	}
}

// detectAgentConflicts raises agent_conflict for every ordered agent pair
// whose outcomes flipped between success and failure more than once.
func detectAgentConflicts(window []*Observation) []*Risk {
	type pair struct{ src, dst string }
	outcomes := make(map[pair][]bool)
	order := []pair{}
	for _, obs := range window {
		if obs.SourceAgentID == "" || obs.TargetAgentID == "" {
			continue
		}
		key := pair{obs.SourceAgentID, obs.TargetAgentID}
		if _, seen := outcomes[key]; !seen {
			order = append(order, key)
		}
		outcomes[key] = append(outcomes[key], obs.Success)
	}

	risks := []*Risk{}
	for _, key := range order {
		seq := outcomes[key]
		flips := 0
		for i := 1; i < len(seq); i++ {
			if seq[i] != seq[i-1] {
				flips++
			}
		}
		if flips < 2 {
			continue
		}
		risks = append(risks, &Risk{
			Type:     RiskAgentConflict,
			Severity: SeverityMedium,
			Description: fmt.Sprintf("outcomes between %s and %s flipped %d times",
				key.src, key.dst, flips),
			AgentIDs:   []string{key.src, key.dst},
			Mitigation: "Align the conflicting agents on a shared task definition or insert an arbiter",
			DetectedAt: time.Now(),
		})
	}
	return risks
}

// detectDeadlock raises deadlock when the directed interaction graph has a
// cycle. Self-interactions do not count as cycles. Traversal order is
// sorted so repeated assessments of the same window report the same cycle.
func detectDeadlock(window []*Observation) *Risk {
	adjacency := make(map[string]map[string]bool)
	nodeSet := make(map[string]bool)
	for _, obs := range window {
		src, dst := obs.SourceAgentID, obs.TargetAgentID
		if src == "" || dst == "" || src == dst {
			continue
		}
		nodeSet[src] = true
		nodeSet[dst] = true
		if adjacency[src] == nil {
			adjacency[src] = make(map[string]bool)
		}
		adjacency[src][dst] = true
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodeSet))
	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, next := range sortedKeys(adjacency[node]) {
			switch color[next] {
			case gray:
				for i, p := range path {
					if p == next {
						cycle = append([]string(nil), path[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return false
	}

	for _, node := range sortedKeys(nodeSet) {
		if color[node] == white && visit(node) {
			break
		}
	}
	if len(cycle) == 0 {
		return nil
	}
	return &Risk{
		Type:        RiskDeadlock,
		Severity:    SeverityCritical,
		Description: "interaction cycle detected: " + strings.Join(append(cycle, cycle[0]), " -> "),
		AgentIDs:    cycle,
		Mitigation:  "Break the handoff cycle with a coordinator or a hop budget",
		DetectedAt:  time.Now(),
	}
}

// detectUnexpectedInteractions raises unexpected_interaction when the window
// names agent IDs absent from the directory. Empty IDs are skipped; a nil
// directory disables the detection.
func detectUnexpectedInteractions(window []*Observation, directory Directory) *Risk {
	if directory == nil {
		return nil
	}
	unknown := make(map[string]bool)
	for _, obs := range window {
		for _, id := range []string{obs.SourceAgentID, obs.TargetAgentID} {
			if id == "" || unknown[id] {
				continue
			}
			if _, ok := directory.Get(id); !ok {
				unknown[id] = true
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	ids := sortedKeys(unknown)
	return &Risk{
		Type:        RiskUnexpectedInteraction,
		Severity:    SeverityMedium,
		Description: "interactions involve unregistered agents: " + strings.Join(ids, ", "),
		AgentIDs:    ids,
		Mitigation:  "Audit agent registration and reject traffic from unknown agent IDs",
		DetectedAt:  time.Now(),
	}
}

// detectCascadingFailure raises cascading_failure when the chronology holds
// a run of at least threshold consecutive failures.
func detectCascadingFailure(window []*Observation, threshold int) *Risk {
	if threshold <= 0 {
		threshold = 3
	}
	var run, longest int
	agents := make(map[string]bool)
	runAgents := make(map[string]bool)
	for _, obs := range window {
		if obs.Success {
			run = 0
			runAgents = make(map[string]bool)
			continue
		}
		run++
		for _, id := range []string{obs.SourceAgentID, obs.TargetAgentID} {
			if id != "" {
				runAgents[id] = true
			}
		}
		if run > longest {
			longest = run
		}
		if run >= threshold {
			for id := range runAgents {
				agents[id] = true
			}
		}
	}
	if longest < threshold {
		return nil
	}
	return &Risk{
		Type:        RiskCascadingFailure,
		Severity:    SeverityCritical,
		Description: fmt.Sprintf("%d consecutive failed interactions", longest),
		AgentIDs:    sortedKeys(agents),
		Mitigation:  "Pause delegation and drain in-flight work before resuming at reduced load",
		DetectedAt:  time.Now(),
	}
}

// detectConsensusFailure raises consensus_failure when the failure rate on
// consensus-typed interactions reaches the configured ratio.
func detectConsensusFailure(window []*Observation, rate float64) *Risk {
	if rate <= 0 {
		rate = 0.4
	}
	var total, failed int
	agents := make(map[string]bool)
	for _, obs := range window {
		if obs.Type != InteractionConsensus {
			continue
		}
		total++
		if !obs.Success {
			failed++
			for _, id := range []string{obs.SourceAgentID, obs.TargetAgentID} {
				if id != "" {
					agents[id] = true
				}
			}
		}
	}
	if total == 0 {
		return nil
	}
	failureRate := float64(failed) / float64(total)
	if failureRate < rate {
		return nil
	}
	return &Risk{
		Type:     RiskConsensusFailure,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("consensus failure rate %.0f%% across %d interactions",
			failureRate*100, total),
		AgentIDs:   sortedKeys(agents),
		Mitigation: "Shrink the consensus group or relax the agreement threshold",
		DetectedAt: time.Now(),
	}
}

// sortedKeys returns the keys of a string set in ascending order.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
