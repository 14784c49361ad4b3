package module

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Module defines the contract for a self-contained application feature.
// Dependencies are passed explicitly at construction; Boot is the phase for
// registering routes and starting background processes.
type Module interface {
	// Name returns a unique identifier for the module.
	Name() string

	// Boot registers routes on the router group and starts the module's
	// background work. It is called once, after all modules are constructed.
	Boot(ctx context.Context, router *echo.Group) error

	// Shutdown stops background processes during graceful shutdown.
	Shutdown(ctx context.Context) error
}

// BaseModule provides default no-op implementations for Module methods.
// Modules can embed this to avoid implementing methods they don't need.
type BaseModule struct{}

func (m *BaseModule) Boot(ctx context.Context, router *echo.Group) error { return nil }
func (m *BaseModule) Shutdown(ctx context.Context) error                 { return nil }
