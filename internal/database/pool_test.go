package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB builds a gorm handle over a sqlmock connection with ping
// monitoring enabled. Automatic ping is disabled so gorm.Open itself
// does not consume a ping expectation.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func TestDefaultPoolConfig_Values(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.NoError(t, cfg.Validate())
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr string
	}{
		{
			name: "valid",
			config: PoolConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				ConnMaxIdleTime: 30 * time.Minute,
			},
		},
		{
			name:    "zero max open conns",
			config:  PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5},
			wantErr: "max_open_conns",
		},
		{
			name:    "zero max idle conns",
			config:  PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0},
			wantErr: "max_idle_conns",
		},
		{
			name:    "idle exceeds open",
			config:  PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: "cannot exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupMockDB(t)
	defer mockDB.Close()

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, manager)

	assert.Equal(t, config, manager.config)
	// The limits propagate to the underlying sql.DB.
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	manager, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, manager)
	assert.Contains(t, err.Error(), "db cannot be nil")
}

func TestNewPoolManager_NilLogger(t *testing.T) {
	mockDB, _, gormDB := setupMockDB(t)
	defer mockDB.Close()

	assert.NotPanics(t, func() {
		manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, nil)
		require.NoError(t, err)
		require.NotNil(t, manager)
	})
}

func TestPoolManager_DB(t *testing.T) {
	mockDB, _, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, gormDB, manager.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()

	err = manager.Ping(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_PingFailed(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	err = manager.Ping(context.Background())
	assert.Error(t, err)
}

func TestPoolManager_PingAfterClose(t *testing.T) {
	_, mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	err = manager.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is closed")
}

func TestPoolManager_GetStats(t *testing.T) {
	mockDB, _, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionClosed(t *testing.T) {
	_, mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is closed")
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return assert.AnError
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable errors should not be retried")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_SucceedsAfterRetry(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_Exhausted(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error {
		attempts++
		return errors.New("deadlock detected")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "after 2 retries")
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupMockDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()

	require.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	// Second close is a no-op.
	assert.NoError(t, manager.Close())
}

func TestPoolManager_HealthCheckLoop(t *testing.T) {
	_, mock, gormDB := setupMockDB(t)

	// Unordered so Close can match while probe pings are still pending.
	mock.MatchExpectationsInOrder(false)

	config := PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: 20 * time.Millisecond,
	}

	// Allow a handful of probe pings; the loop may not consume all of
	// them before it is stopped, so expectations are not verified.
	for i := 0; i < 10; i++ {
		mock.ExpectPing()
	}
	mock.ExpectClose()

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(70 * time.Millisecond)

	require.NoError(t, manager.Close())

	// Give the loop a tick to observe the closed flag and exit.
	time.Sleep(30 * time.Millisecond)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", errors.New("deadlock detected"), true},
		{"serialization failure", errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"lock wait timeout", errors.New("Lock wait timeout exceeded"), true},
		{"bad connection", errors.New("driver: bad connection"), true},
		{"not found", errors.New("record not found"), false},
		{"generic", assert.AnError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}
