// Package ip5306dev exposes an IP5306 as HAL capabilities: Component runs the
// chip lifecycle and Device owns it on a single worker goroutine.
package ip5306dev

import (
	"io"
	"log/slog"

	"ip5306-hal/drivers/ip5306"
	"ip5306-hal/x/conv"
)

type health uint8

const (
	healthy health = iota
	failed
)

// Sinks receive decoded observables. A nil sink means the observable is not
// configured; its register data is still read but never published.
//
// BatteryLevel and Failure report whether the value was delivered. An
// undelivered level is not remembered as published; an undelivered failure
// is offered again on each later Poll.
type Sinks struct {
	BatteryLevel     func(percent uint8) bool
	ChargerConnected func(on bool)
	ChargeFull       func(on bool)

	Failure func(err error) bool
}

// Component drives one IP5306 through Init, Poll and Describe. It is not safe
// for concurrent use; the owning Device calls it from a single goroutine.
type Component struct {
	drv   *ip5306.Device
	sinks Sinks
	log   *slog.Logger

	state health

	// failure cause, held until the Failure sink accepts it
	failErr      error
	failReported bool

	// battery level dedup
	lastPercent uint8
	hasPercent  bool
}

func NewComponent(drv *ip5306.Device, sinks Sinks, log *slog.Logger) *Component {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Component{drv: drv, sinks: sinks, log: log}
}

// Failed reports whether an I/O error has disabled the component.
func (c *Component) Failed() bool { return c.state == failed }

// LastPercent returns the last published battery level, if any.
func (c *Component) LastPercent() (uint8, bool) { return c.lastPercent, c.hasPercent }

// Init programs SYS_CTL0 and SYS_CTL1. A failed write latches the component
// and skips anything after it.
func (c *Component) Init() {
	if c.state == failed {
		return
	}
	c.log.Debug("setting up IP5306")
	if err := c.drv.Configure(); err != nil {
		msg := "setup of SYS_CTL0 failed"
		if reg, ok := ip5306.FailedRegister(err); ok && reg == ip5306.RegSysCtl1 {
			msg = "setup of SYS_CTL1 failed"
		}
		c.log.Error(msg, slog.String("error", err.Error()))
		c.latch(err)
	}
}

// Poll reads the gauge (when battery level is configured) and the status
// pair, publishing to configured sinks. Any read error latches and ends the
// tick. Battery level is published only when it differs from the last
// delivered value; the status booleans are published on every successful
// tick. Once failed, Poll does no I/O and only re-offers an undelivered
// failure.
func (c *Component) Poll() {
	if c.state == failed {
		c.reportFailure()
		return
	}

	if c.sinks.BatteryLevel != nil {
		raw, err := c.drv.ReadLevelRaw()
		if err != nil {
			c.log.Error("unable to read level", slog.String("error", err.Error()))
			c.latch(err)
			return
		}
		pct := ip5306.DecodeLevel(raw)
		if (!c.hasPercent || pct != c.lastPercent) && c.sinks.BatteryLevel(pct) {
			c.lastPercent, c.hasPercent = pct, true
		}
	}

	st, err := c.drv.ReadStatus()
	if err != nil {
		c.log.Error("unable to read status", slog.String("error", err.Error()))
		c.latch(err)
		return
	}
	if c.sinks.ChargerConnected != nil {
		c.sinks.ChargerConnected(st.ChargerConnected())
	}
	if c.sinks.ChargeFull != nil {
		c.sinks.ChargeFull(st.ChargeFull())
	}
}

// Describe logs the configuration and health and returns the failed flag.
func (c *Component) Describe() bool {
	c.log.Info("IP5306", slog.String("addr", conv.Hex8(uint8(c.drv.Address()))))
	if c.state == failed {
		c.log.Error("communication with IP5306 failed")
	}
	if c.sinks.BatteryLevel != nil {
		c.log.Info("  battery level sensor configured")
	}
	if c.sinks.ChargerConnected != nil {
		c.log.Info("  charger connected sensor configured")
	}
	if c.sinks.ChargeFull != nil {
		c.log.Info("  charge full sensor configured")
	}
	return c.state == failed
}

func (c *Component) latch(err error) {
	if c.state == failed {
		return
	}
	c.state = failed
	c.failErr = err
	c.reportFailure()
}

func (c *Component) reportFailure() {
	if c.failReported || c.failErr == nil {
		return
	}
	if c.sinks.Failure == nil || c.sinks.Failure(c.failErr) {
		c.failReported = true
	}
}
