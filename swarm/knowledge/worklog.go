package knowledge

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quorvia/swarmroute/types"
)

// WorkRecord is one completed unit of work attributed to an agent.
type WorkRecord struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	CompletedAt time.Time `json:"completed_at"`
}

// WorkLogConfig tunes the evidence work log.
type WorkLogConfig struct {
	// HistorySize bounds the records kept per agent. Oldest fall off first.
	HistorySize int `json:"history_size" yaml:"history_size"`

	// Now supplies the clock, overridable in tests.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultWorkLogConfig returns the default work log configuration.
func DefaultWorkLogConfig() *WorkLogConfig {
	return &WorkLogConfig{
		HistorySize: 100,
		Now:         time.Now,
	}
}

// WorkLog keeps a bounded trail of completed work per agent and scores
// evidence from it: half from the agent's outcome rate, half from how
// similar its past successful work is to the task at hand. An agent with
// no recorded work scores a neutral 0.5 so evidence neither inflates nor
// sinks a fresh agent.
type WorkLog struct {
	config *WorkLogConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[string][]WorkRecord
}

const neutralEvidence = 0.5

// NewWorkLog creates a work log. Config and logger may be nil.
func NewWorkLog(config *WorkLogConfig, logger *zap.Logger) *WorkLog {
	if config == nil {
		config = DefaultWorkLogConfig()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultWorkLogConfig().HistorySize
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkLog{
		config:  config,
		logger:  logger.With(zap.String("component", "work_log")),
		now:     config.Now,
		records: make(map[string][]WorkRecord),
	}
}

// RecordCompletion appends one completed unit of work for an agent. Records
// beyond the configured history size are dropped oldest-first. Empty agent
// IDs are ignored.
func (l *WorkLog) RecordCompletion(agentID string, record WorkRecord) {
	if agentID == "" {
		return
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	window := append(l.records[agentID], record)
	if len(window) > l.config.HistorySize {
		window = window[len(window)-l.config.HistorySize:]
	}
	l.records[agentID] = window

	l.logger.Debug("work recorded",
		zap.String("agent_id", agentID),
		zap.String("task_id", record.TaskID),
		zap.Bool("success", record.Success))
}

// RecordCount reports how many records are held for an agent.
func (l *WorkLog) RecordCount(agentID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records[agentID])
}

// RetrieveEvidence scores the agent's recorded work against the task.
func (l *WorkLog) RetrieveEvidence(ctx context.Context, agentID string, task *types.Task) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	window := l.records[agentID]
	successes := 0
	relevance := 0.0
	var taskTokens []string
	if task != nil {
		taskTokens = tokenize(task.Description)
	}
	for _, record := range window {
		if !record.Success {
			continue
		}
		successes++
		if overlap := tokenOverlap(taskTokens, tokenize(record.Description)); overlap > relevance {
			relevance = overlap
		}
	}
	total := len(window)
	l.mu.RUnlock()

	if total == 0 {
		return neutralEvidence, nil
	}

	successRate := float64(successes) / float64(total)
	return clampScore(0.5*successRate + 0.5*relevance), nil
}

// tokenize lowercases and splits on whitespace, trimming edge punctuation.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, field := range fields {
		if token := strings.Trim(field, ".,;:!?\"'()[]"); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// tokenOverlap reports the fraction of task tokens present in the record.
func tokenOverlap(taskTokens, recordTokens []string) float64 {
	if len(taskTokens) == 0 || len(recordTokens) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(recordTokens))
	for _, token := range recordTokens {
		seen[token] = true
	}
	matched := 0
	for _, token := range taskTokens {
		if seen[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(taskTokens))
}
