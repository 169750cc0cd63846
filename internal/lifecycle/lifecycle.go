// Package lifecycle starts and stops long-lived service components in a
// defined order. Used by the MCP server, which holds a tracing provider,
// an index store watcher, and the protocol server.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/moolen/triage/internal/logging"
)

// Component is a long-lived part of the service. Start must be safe to
// call once; Stop must respect the context deadline.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// DefaultShutdownTimeout is the per-component grace period on Stop.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts components in registration order and stops them in
// reverse. A failed Start rolls back the already started components.
type Manager struct {
	components      []Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register appends a component. Registration order is start order.
func (m *Manager) Register(c Component) {
	m.components = append(m.components, c)
}

// SetShutdownTimeout overrides the per-component grace period.
func (m *Manager) SetShutdownTimeout(d time.Duration) {
	m.shutdownTimeout = d
}

// Start starts all components in order. On failure the components that
// already started are stopped in reverse order before the error returns.
func (m *Manager) Start(ctx context.Context) error {
	for _, c := range m.components {
		m.logger.Info("starting %s", c.Name())
		if err := c.Start(ctx); err != nil {
			m.logger.Error("failed to start %s: %v", c.Name(), err)
			m.rollback()
			return err
		}
		m.started = append(m.started, c)
	}
	return nil
}

func (m *Manager) rollback() {
	for i := len(m.started) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		if err := m.started[i].Stop(ctx); err != nil {
			m.logger.Warn("error stopping %s during rollback: %v", m.started[i].Name(), err)
		}
		cancel()
	}
	m.started = nil
}

// Stop stops the started components in reverse order, giving each its own
// grace period. Errors are collected, not short-circuited; every component
// gets its Stop call.
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		m.logger.Info("stopping %s", c.Name())

		stopCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		if err := c.Stop(stopCtx); err != nil {
			m.logger.Error("error stopping %s: %v", c.Name(), err)
			errs = append(errs, err)
		}
		cancel()
	}
	m.started = nil
	return errors.Join(errs...)
}
