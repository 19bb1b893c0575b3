package gameserver

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskManager runs named maintenance tasks on a shared interval.
// Tasks run sequentially in name order within one goroutine.
//
// Invariant: each task is invoked at most once per interval.
type TaskManager struct {
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	tasks map[string]func(context.Context)
}

// NewTaskManager returns a manager that fires tasks every interval.
//
// Precondition: interval must be > 0; logger must be non-nil.
func NewTaskManager(interval time.Duration, logger *zap.Logger) *TaskManager {
	if interval <= 0 {
		panic("gameserver.NewTaskManager: interval must be > 0")
	}
	return &TaskManager{
		interval: interval,
		logger:   logger,
		tasks:    make(map[string]func(context.Context)),
	}
}

// Register adds fn under name, replacing any existing task of that name.
func (m *TaskManager) Register(name string, fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[name] = fn
}

// Unregister removes the task called name.
func (m *TaskManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, name)
}

// Names returns the registered task names in sorted order.
func (m *TaskManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce invokes every registered task once, in name order.
func (m *TaskManager) RunOnce(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]func(context.Context), len(names))
	for i, name := range names {
		fns[i] = m.tasks[name]
	}
	m.mu.Unlock()

	for i, fn := range fns {
		if ctx.Err() != nil {
			return
		}
		m.logger.Debug("running task", zap.String("task", names[i]))
		fn(ctx)
	}
}

// Run fires all tasks every interval until ctx is cancelled.
//
// Postcondition: Returns nil once ctx is done.
func (m *TaskManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}
