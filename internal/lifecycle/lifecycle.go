// Package lifecycle implements the §4.15 system lifecycle: a single
// stopped->starting->running->stopping->stopped state machine guarding
// idempotent Start/Shutdown and a list of cleanup tasks run with per-task
// error isolation. Grounded on the Start/Stop/Health shape of the teacher's
// stream.EventBus interface (internal/stream/bus.go), generalized from one
// event-bus connection to an arbitrary list of managed components.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// CleanupTask is a named shutdown action; a failure in one task never
// prevents the remaining tasks from running.
type CleanupTask struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Manager owns the single lifecycle state and transitions atomically under
// one lock, per §4.15's single-lock-atomic-transitions requirement.
type Manager struct {
	mu       sync.Mutex
	state    State
	cleanups []CleanupTask
}

func New() *Manager {
	return &Manager{state: StateStopped}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RegisterCleanup appends a cleanup task run in registration order during
// Shutdown.
func (m *Manager) RegisterCleanup(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, CleanupTask{Name: name, Fn: fn})
}

// Start transitions stopped->starting->running. Calling Start while already
// starting or running is a no-op (idempotent), matching §4.15.
func (m *Manager) Start(ctx context.Context, startFn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.state == StateStarting || m.state == StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStarting
	m.mu.Unlock()

	if startFn != nil {
		if err := startFn(ctx); err != nil {
			m.mu.Lock()
			m.state = StateStopped
			m.mu.Unlock()
			return fmt.Errorf("lifecycle start: %w", err)
		}
	}

	m.mu.Lock()
	m.state = StateRunning
	m.mu.Unlock()
	return nil
}

// Shutdown transitions running/starting->stopping, runs every registered
// cleanup task isolating per-task failures by logging and continuing, then
// guarantees a final transition to stopped regardless of cleanup outcome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateStopping {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	tasks := make([]CleanupTask, len(m.cleanups))
	copy(tasks, m.cleanups)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = StateStopped
		m.mu.Unlock()
	}()

	var firstErr error
	for _, task := range tasks {
		if err := task.Fn(ctx); err != nil {
			log.Error().Err(err).Str("cleanup_task", task.Name).Msg("cleanup task failed, continuing shutdown")
			if firstErr == nil {
				firstErr = fmt.Errorf("cleanup task %q: %w", task.Name, err)
			}
		}
	}
	return firstErr
}
