package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/quorvia/swarmroute/swarm/routing"
	"github.com/quorvia/swarmroute/types"
)

// Task returns a code-generation task with a fresh ID.
func Task(description string) *types.Task {
	return &types.Task{
		ID:          uuid.NewString(),
		Description: description,
		Type:        "code_generation",
		Priority:    1,
		SubmittedAt: time.Now(),
	}
}

// TaskOfType returns a task with the given classification.
func TaskOfType(description, taskType string) *types.Task {
	t := Task(description)
	t.Type = taskType
	return t
}

// Outcome returns a completed task outcome for the agent.
func Outcome(taskID, agentID string, success bool) *types.TaskOutcome {
	return &types.TaskOutcome{
		TaskID:    taskID,
		AgentID:   agentID,
		Success:   success,
		Timestamp: time.Now(),
	}
}

// ScoredOutcome returns an outcome with an explicit performance score.
func ScoredOutcome(taskID, agentID string, score float64) *types.TaskOutcome {
	o := Outcome(taskID, agentID, score >= 0.5)
	o.PerformanceScore = &score
	return o
}

// Decision returns a routing decision attributing taskID to agentID.
func Decision(taskID, agentID string) *routing.RoutingDecision {
	return &routing.RoutingDecision{
		TaskID:     taskID,
		AgentID:    agentID,
		AgentType:  "coder",
		Score:      0.8,
		Confidence: 0.9,
		Reasoning:  "fixture decision",
		TrustAware: true,
		DecidedAt:  time.Now(),
	}
}
