package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Component is something that needs cleanup on shutdown.
type Component interface {
	Name() string
	Shutdown(ctx context.Context) error
}

type funcComponent struct {
	name string
	fn   func(ctx context.Context) error
}

func (c funcComponent) Name() string                       { return c.name }
func (c funcComponent) Shutdown(ctx context.Context) error { return c.fn(ctx) }

// ComponentFunc wraps fn as a Component.
func ComponentFunc(name string, fn func(ctx context.Context) error) Component {
	return funcComponent{name: name, fn: fn}
}

// Lifecycle shuts registered components down in reverse registration
// order.
type Lifecycle struct {
	mu         sync.Mutex
	components []Component
	isShutdown bool
	timeout    time.Duration
	logger     *log.Logger
}

// NewLifecycle creates a registry whose shutdown is bounded by timeout.
func NewLifecycle(timeout time.Duration, logger *log.Logger) *Lifecycle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default().WithPrefix("session")
	}
	return &Lifecycle{timeout: timeout, logger: logger}
}

// Register adds a component. Components registered after Shutdown are
// ignored.
func (l *Lifecycle) Register(c Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isShutdown {
		l.logger.Warn("cannot register component during shutdown", "component", c.Name())
		return
	}
	l.components = append(l.components, c)
	l.logger.Debug("registered lifecycle component", "name", c.Name())
}

// Shutdown runs once; later calls return nil.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.isShutdown {
		l.mu.Unlock()
		return nil
	}
	l.isShutdown = true
	components := l.components
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		l.logger.Debug("shutting down component", "name", c.Name())
		if err := c.Shutdown(ctx); err != nil {
			l.logger.Warn("component shutdown failed", "name", c.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
