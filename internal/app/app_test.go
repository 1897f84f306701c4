package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(ctx context.Context) (service.SweepReport, error) {
	c.calls.Add(1)
	return service.SweepReport{}, c.err
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := NewScheduler(sweeper, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	s.Stop()
	// после остановки тик не запускает проход
	s.tick()
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

// slowSweeper дорабатывает проход уже после отмены контекста
type slowSweeper struct {
	started  chan struct{}
	finished atomic.Bool
}

func (s *slowSweeper) Sweep(ctx context.Context) (service.SweepReport, error) {
	close(s.started)
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	s.finished.Store(true)
	return service.SweepReport{}, ctx.Err()
}

func TestScheduler_StopWaitsForInitialSweep(t *testing.T) {
	sweeper := &slowSweeper{started: make(chan struct{})}
	s, err := NewScheduler(sweeper, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	s.Start(context.Background())
	<-sweeper.started

	s.Stop()
	assert.True(t, sweeper.finished.Load(), "Stop returned while the first sweep was still running")
}

func TestScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler(&countingSweeper{}, "every now and then", zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_RunOnceSurvivesErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	s, err := NewScheduler(sweeper, "@every 1m", zap.NewNop())
	require.NoError(t, err)

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	assert.Equal(t, int32(2), sweeper.calls.Load())
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(env, "expert-sessions")
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}
}

func TestSetupTracing_NoopWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "", "expert-sessions", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
