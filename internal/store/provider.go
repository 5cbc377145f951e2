package store

import (
	"context"
	"fmt"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/clock"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/config"
)

// Driver is a function that opens a connection and returns an Adapter.
type Driver func(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (Adapter, error)

// registry maps driver names to their factory functions.
var registry = map[string]Driver{}

// Register adds a named driver to the global registry.
// It is intended to be called from init() in each driver package.
func Register(name string, d Driver) {
	registry[name] = d
}

// Open selects the driver specified in cfg.Driver and returns an Adapter.
func Open(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (Adapter, error) {
	d, ok := registry[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (registered: %v)", cfg.Driver, registeredNames())
	}
	return d(ctx, cfg, clk)
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	return names
}
