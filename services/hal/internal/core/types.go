package core

import (
	"context"
	"log/slog"

	"ip5306-hal/errcode"
	"ip5306-hal/types"

	"tinygo.org/x/drivers"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability:
// hal/cap/<domain>/<kind>/<name>.
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string // "" => default domain for Kind
	Kind   types.Kind
	Name   string // "" => device id
	Info   types.Info
}

// EnqueueResult is the synchronous answer to a control: whether the request
// was accepted for processing, not whether it succeeded.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

// Device is what HAL drives. Init is called once after Build; Control must
// never block; Close releases claimed resources.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device → HAL telemetry (single shape) ----
// By default, an Event represents a "value-like" update for a capability that
// HAL should publish to .../value (retained). If IsEvent is true, HAL instead
// publishes to .../event (non-retained). Err, when non-empty, causes HAL to
// publish only .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any    // typed value payload (e.g. types.BatteryLevelValue)
	TSms     int64  // ms timestamp
	Err      string // "timeout","io_error",...
	IsEvent  bool   // true => publish to .../event (non-retained)
	EventTag string // optional subtopic tag for events (e.g. "describe")
}

type EventEmitter interface {
	// Emit tries to enqueue an Event for HAL publication.
	// It must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type ResourceID string // e.g. "i2c0"

// ResourceRegistry hands out serialised bus views. The returned drivers.I2C
// is safe to use from the claiming device's own goroutine.
type ResourceRegistry interface {
	ClaimI2C(devID string, id ResourceID) (drivers.I2C, error)
	ReleaseI2C(devID string, id ResourceID)
}

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL; devices use it to emit values/events
	Log *slog.Logger
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Bus      ResourceID // from the device's bus_ref; "" if none
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
