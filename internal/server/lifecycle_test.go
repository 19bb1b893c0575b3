package server_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zvx-echo6/mmud-sub000/internal/server"
)

type blockingService struct {
	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func newBlockingService() *blockingService {
	return &blockingService{done: make(chan struct{})}
}

func (s *blockingService) Start(ctx context.Context) error {
	s.started.Store(true)
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

func (s *blockingService) Stop(context.Context) {
	s.stopped.Store(true)
	s.once.Do(func() { close(s.done) })
}

type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) service(name string) server.Service {
	return &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		StopFn: func(context.Context) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.order = append(r.order, name)
		},
	}
}

func waitStarted(t *testing.T, svcs ...*blockingService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLifecycle_StartsAndStopsServices(t *testing.T) {
	lc := server.NewLifecycle(zaptest.NewLogger(t))
	svc1, svc2 := newBlockingService(), newBlockingService()
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitStarted(t, svc1, svc2)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	lc := server.NewLifecycle(zaptest.NewLogger(t))
	rec := &orderRecorder{}
	lc.Add("storage", rec.service("storage"))
	lc.Add("epoch", rec.service("epoch"))
	lc.Add("grpc", rec.service("grpc"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, lc.Run(ctx))
	assert.Equal(t, []string{"grpc", "epoch", "storage"}, rec.order)
}

func TestLifecycle_ServiceFailureIsReturned(t *testing.T) {
	lc := server.NewLifecycle(zaptest.NewLogger(t))
	healthy := newBlockingService()
	boom := errors.New("listen failed")
	lc.Add("healthy", healthy)
	lc.Add("broken", &server.FuncService{
		StartFn: func(context.Context) error { return boom },
	})

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Contains(t, err.Error(), "broken")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not stop after failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycle_SlowStopIsBounded(t *testing.T) {
	lc := server.NewLifecycle(zaptest.NewLogger(t))
	lc.SetStopTimeout(20 * time.Millisecond)
	lc.Add("slow", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: func(ctx context.Context) { <-ctx.Done() },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, lc.Run(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFuncService_NilStopIsNoOp(t *testing.T) {
	started := false
	svc := &server.FuncService{
		StartFn: func(context.Context) error {
			started = true
			return nil
		},
	}
	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, started)
	assert.NotPanics(t, func() { svc.Stop(context.Background()) })
}
