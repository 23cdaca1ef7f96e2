package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingService struct {
	started atomic.Bool
	stopped atomic.Bool
	block   chan struct{}
	err     error
}

func newRecordingService() *recordingService {
	return &recordingService{block: make(chan struct{})}
}

func (s *recordingService) Start() error {
	s.started.Store(true)
	if s.err != nil {
		return s.err
	}
	<-s.block
	return nil
}

func (s *recordingService) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.block)
	}
}

func TestLifecycle_ContextCancelStopsServices(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newRecordingService()
	lc.Add("svc", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	// Let the service start before cancelling.
	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.True(t, svc.stopped.Load())
}

func TestLifecycle_ServiceErrorTriggersShutdown(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	failing := newRecordingService()
	failing.err = errors.New("bind: address already in use")
	healthy := newRecordingService()
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service failing")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after service failure")
	}
	assert.True(t, healthy.stopped.Load(), "healthy service must be stopped on shutdown")
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}
	require.NoError(t, svc.Start())
	svc.Stop()
	assert.True(t, started)
	assert.True(t, stopped)
}
