// services/hal/hal.go
package hal

import (
	"context"
	"log/slog"
	"time"

	"ip5306-hal/bus"
	"ip5306-hal/services/hal/internal/core"
	"ip5306-hal/services/hal/internal/provider"

	// Device builders register themselves with core.
	_ "ip5306-hal/services/hal/devices/ip5306"

	"tinygo.org/x/drivers"
)

// Options carries the host resources HAL may hand to devices.
type Options struct {
	// Buses maps bus ids used in config bus_ref (e.g. "i2c1") to an open bus.
	Buses map[string]drivers.I2C
	// TxTimeout bounds each I²C transaction; zero selects the provider default.
	TxTimeout time.Duration
	Logger    *slog.Logger
}

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run serves HAL on conn until ctx is cancelled. Configuration arrives as a
// config.HALConfig on config/hal.
func Run(ctx context.Context, conn *bus.Connection, opts Options) {
	var popts []provider.Option
	if opts.TxTimeout > 0 {
		popts = append(popts, provider.WithTxTimeout(opts.TxTimeout))
	}
	reg := provider.New(opts.Buses, popts...)
	defer reg.Close()

	h := core.NewHAL(conn, core.Resources{Reg: reg, Log: opts.Logger})
	h.Run(ctx)
}
