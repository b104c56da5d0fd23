package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quorvia/swarmroute/swarm/delegation"
	"github.com/quorvia/swarmroute/types"
)

// DelegationRecord is one audit row for a completed or failed delegation.
type DelegationRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TaskID       string    `gorm:"size:128;not null;index:idx_delegation_task" json:"task_id"`
	AgentID      string    `gorm:"size:128;index:idx_delegation_agent" json:"agent_id"`
	Success      bool      `gorm:"not null" json:"success"`
	DurationMs   float64   `gorm:"default:0" json:"duration_ms"`
	WithinTarget bool      `json:"within_target"`
	Error        string    `gorm:"size:1024" json:"error,omitempty"`
	CreatedAt    time.Time `gorm:"index:idx_delegation_created" json:"created_at"`
}

// TableName sets the table name for gorm.
func (DelegationRecord) TableName() string {
	return "delegation_log"
}

// DelegationLogStats summarizes the audit log.
type DelegationLogStats struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// DelegationLog is an append-only audit of delegation outcomes backed by a
// relational database. The log does not own the connection; closing is the
// caller's concern.
type DelegationLog struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewDelegationLog migrates the audit table and returns a log bound to db.
// Logger may be nil.
func NewDelegationLog(db *gorm.DB, logger *zap.Logger) (*DelegationLog, error) {
	if db == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "delegation log requires a database")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&DelegationRecord{}); err != nil {
		return nil, err
	}
	return &DelegationLog{
		db:     db,
		logger: logger.With(zap.String("component", "delegation_log")),
		now:    time.Now,
	}, nil
}

// Append persists one audit record.
func (l *DelegationLog) Append(ctx context.Context, record *DelegationRecord) error {
	if record == nil || record.TaskID == "" {
		return types.NewError(types.ErrInvalidRequest, "delegation record task ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now()
	}
	return l.db.WithContext(ctx).Create(record).Error
}

// AppendResult converts a delegation result into an audit record and
// appends it. Results lacking metrics (for example the empty-registry
// refusal) are recorded with zero duration.
func (l *DelegationLog) AppendResult(ctx context.Context, result *delegation.DelegationResult) error {
	if result == nil {
		return types.NewError(types.ErrInvalidRequest, "delegation result is nil")
	}
	record := &DelegationRecord{
		TaskID:  result.TaskID,
		AgentID: result.DelegatedToAgentID,
		Success: result.Success,
		Error:   result.Error,
	}
	if result.Metrics != nil {
		record.DurationMs = result.Metrics.DurationMs
		record.WithinTarget = result.Metrics.LatencyWithinTarget
	}
	return l.Append(ctx, record)
}

// Recent returns up to limit records, newest first.
func (l *DelegationLog) Recent(ctx context.Context, limit int) ([]*DelegationRecord, error) {
	limit = clampLimit(limit)
	var records []*DelegationRecord
	err := l.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ByAgent returns up to limit records for one agent, newest first.
func (l *DelegationLog) ByAgent(ctx context.Context, agentID string, limit int) ([]*DelegationRecord, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent ID is required")
	}
	limit = clampLimit(limit)
	var records []*DelegationRecord
	err := l.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Stats summarizes the log.
func (l *DelegationLog) Stats(ctx context.Context) (*DelegationLogStats, error) {
	stats := &DelegationLogStats{}

	if err := l.db.WithContext(ctx).Model(&DelegationRecord{}).
		Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := l.db.WithContext(ctx).Model(&DelegationRecord{}).
		Where("success = ?", true).Count(&stats.Succeeded).Error; err != nil {
		return nil, err
	}
	stats.Failed = stats.Total - stats.Succeeded

	if stats.Total > 0 {
		row := l.db.WithContext(ctx).
			Model(&DelegationRecord{}).
			Select("COALESCE(AVG(duration_ms), 0)").
			Row()
		if err := row.Scan(&stats.AvgDurationMs); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Ping verifies the underlying database connection is usable.
func (l *DelegationLog) Ping(ctx context.Context) error {
	db, err := l.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Purge deletes records older than the retention window and returns how
// many were removed.
func (l *DelegationLog) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := l.now().Add(-olderThan)
	result := l.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&DelegationRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		l.logger.Info("purged delegation audit records",
			zap.Int64("removed", result.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return result.RowsAffected, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
