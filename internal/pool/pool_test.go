package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(Config{Workers: 4, QueueSize: 16})
	defer p.Close()

	var count atomic.Int64
	for i := 0; i < 10; i++ {
		err := p.Submit(context.Background(), func(context.Context) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return count.Load() == 10 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(10), p.Stats().Completed)
}

func TestPool_SubmitWaitReturnsTaskError(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	defer p.Close()

	sentinel := errors.New("task failed")
	err := p.SubmitWait(context.Background(), func(context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPool_FullQueueRejects(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	gate := make(chan struct{})
	blocker := func(context.Context) error {
		<-gate
		return nil
	}

	// First task occupies the worker, second fills the queue.
	require.NoError(t, p.Submit(context.Background(), blocker))
	require.Eventually(t, func() bool { return p.Stats().Active == 1 },
		time.Second, time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), blocker))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(gate)
}

func TestPool_SubmitAfterCloseFails(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)

	err = p.SubmitWait(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestPool_CloseDrainsQueuedWork(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 32})

	var count atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	p.Close()
	assert.Equal(t, int64(20), count.Load(), "Close returns only after queued tasks ran")
}

func TestPool_PanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(context.Context) error {
		panic("boom")
	})
	require.ErrorIs(t, err, ErrTaskPanicked)

	// The same worker must still pick up new work.
	err = p.SubmitWait(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestPool_SubmitWaitHonorsCancelledContext(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	gate := make(chan struct{})
	defer close(gate)
	blocker := func(context.Context) error {
		<-gate
		return nil
	}
	require.NoError(t, p.Submit(context.Background(), blocker))
	require.Eventually(t, func() bool { return p.Stats().Active == 1 },
		time.Second, time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), blocker))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.SubmitWait(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestPool_DefaultsApplied(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Workers, p.config.Workers)
	assert.Equal(t, defaults.QueueSize, cap(p.queue))
	assert.Equal(t, defaults.IdleTimeout, p.config.IdleTimeout)
}
