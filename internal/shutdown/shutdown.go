// Package shutdown stops the daemon's components in reverse order of
// registration, so that the socket server stops before the journal it
// writes to is closed.
//
// Usage:
//
//	coord := shutdown.NewCoordinator(logger)
//	coord.Register("journal", shutdown.Func(j.Close))
//	coord.Register("pruner", pruner)
//	coord.Register("daemon", srv)
//	coord.Shutdown(ctx) // daemon, then pruner, then journal
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components that take part in shutdown.
// Shutdown should return ctx.Err() if it cannot finish before the deadline.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain close function, such as (*journal.Journal).Close.
type Func func() error

// Shutdown calls f.
func (f Func) Shutdown(context.Context) error { return f() }

type component struct {
	name       string
	shutdowner Shutdowner
}

// Coordinator holds the registered components.
type Coordinator struct {
	components []component
	logger     *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logger.With(slog.String("component", "shutdown")),
	}
}

// Register adds a component. The last registered component stops first.
func (c *Coordinator) Register(name string, s Shutdowner) {
	c.components = append(c.components, component{name: name, shutdowner: s})
	c.logger.Debug("registered shutdown handler", slog.String("handler", name))
}

// Shutdown stops every component, newest first, and keeps going after
// individual failures. Once ctx expires the remaining components are
// skipped. All failures are returned joined.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.logger.Info("starting coordinated shutdown", slog.Int("components", len(c.components)))

	var errs []error
	for i := len(c.components) - 1; i >= 0; i-- {
		comp := c.components[i]

		if err := ctx.Err(); err != nil {
			c.logger.Error("shutdown deadline exceeded", slog.String("remaining_component", comp.name))
			errs = append(errs, fmt.Errorf("shutdown deadline exceeded at component %s: %w", comp.name, err))
			break
		}

		start := time.Now()
		err := comp.shutdowner.Shutdown(ctx)
		duration := time.Since(start)

		if err != nil {
			c.logger.Error("component shutdown failed",
				slog.String("handler", comp.name),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", comp.name, err))
			continue
		}
		c.logger.Info("component shutdown complete",
			slog.String("handler", comp.name),
			slog.Duration("duration", duration),
		)
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warn("coordinated shutdown completed with errors")
	} else {
		c.logger.Info("coordinated shutdown complete")
	}
	return err
}

// ComponentCount returns the number of registered components.
func (c *Coordinator) ComponentCount() int {
	return len(c.components)
}
