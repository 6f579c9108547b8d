package ip5306dev

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ip5306-hal/drivers/ip5306"
	"ip5306-hal/errcode"
	"ip5306-hal/services/hal/internal/consts"
	"ip5306-hal/services/hal/internal/core"
	"ip5306-hal/types"

	"tinygo.org/x/drivers"
)

const (
	reqQueueLen  = 4
	closeTimeout = 300 * time.Millisecond
	tagDescribe  = consts.TagDescribe
)

// Device is a single-goroutine HAL device for IP5306.
type Device struct {
	id  string
	bus core.ResourceID

	// nil when the observable is not configured
	aLevel *core.CapAddr // <domain>/battery/<name>
	aChg   *core.CapAddr // <domain>/charger/<name>
	aFull  *core.CapAddr // <domain>/charge_full/<name>

	res    core.Resources
	i2c    drivers.I2C
	params Params
	log    *slog.Logger
	alive  atomic.Bool

	// Owned by the worker only:
	comp          *Component
	lastConnected *bool
	lastFull      *bool

	reqCh    chan request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type opCode uint8

const (
	opPoll opCode = iota
	opDescribe
)

type request struct {
	op opCode
}

// ---- core.Device interface ----

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	out := make([]core.CapabilitySpec, 0, 3)
	add := func(a *core.CapAddr, role string) {
		if a == nil {
			return
		}
		out = append(out, core.CapabilitySpec{
			Domain: a.Domain,
			Kind:   a.Kind,
			Name:   a.Name,
			Info: types.Info{SchemaVersion: 1, Driver: "ip5306", Detail: types.IP5306Info{
				Bus:  string(d.bus),
				Addr: d.params.Addr,
				Role: role,
			}},
		})
	}
	add(d.aLevel, "battery_level")
	add(d.aChg, "charger_connected")
	add(d.aFull, "charge_full")
	return out
}

func (d *Device) Init(ctx context.Context) error {
	d.reqCh = make(chan request, reqQueueLen)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	d.alive.Store(true)
	go d.worker(ctx)
	return nil
}

func (d *Device) Close() error {
	if d.done == nil {
		d.res.Reg.ReleaseI2C(d.id, d.bus)
		return nil
	}
	d.alive.Store(false)
	d.stopOnce.Do(func() { close(d.stop) })

	// bounded wait; a transaction stuck in the bus owner must not hang HAL shutdown
	t := time.NewTimer(closeTimeout)
	defer t.Stop()
	select {
	case <-d.done:
	case <-t.C:
		d.log.Warn("worker did not stop in time")
	}
	d.res.Reg.ReleaseI2C(d.id, d.bus)
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	send := func(req request) (core.EnqueueResult, error) {
		if !d.alive.Load() {
			return core.EnqueueResult{OK: false, Error: errcode.Unavailable}, nil
		}
		select {
		case d.reqCh <- req:
			return core.EnqueueResult{OK: true}, nil
		default:
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
	}

	switch verb {
	case consts.CtrlRead:
		// Both status bits and the gauge come from one poll; the address
		// does not narrow the work.
		return send(request{op: opPoll})
	case consts.CtrlDescribe:
		return send(request{op: opDescribe})
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

// ---- Worker ----

func (d *Device) worker(ctx context.Context) {
	defer close(d.done)
	defer d.alive.Store(false)

	d.comp = NewComponent(
		ip5306.New(d.i2c, ip5306.Config{Address: d.params.Addr}),
		d.sinks(),
		d.log,
	)
	d.comp.Init()
	d.describe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case req := <-d.reqCh:
			switch req.op {
			case opPoll:
				d.comp.Poll()
			case opDescribe:
				d.describe()
			}
		}
	}
}

// sinks binds the component's observables to HAL events.
func (d *Device) sinks() Sinks {
	var s Sinks
	if d.aLevel != nil {
		a := *d.aLevel
		s.BatteryLevel = func(pct uint8) bool {
			return d.emit(core.Event{Addr: a, Payload: types.BatteryLevelValue{Percent: pct}})
		}
	}
	if d.aChg != nil {
		a := *d.aChg
		s.ChargerConnected = func(on bool) {
			d.lastConnected = &on
			d.emit(core.Event{Addr: a, Payload: types.BinaryValue{On: on}})
		}
	}
	if d.aFull != nil {
		a := *d.aFull
		s.ChargeFull = func(on bool) {
			d.lastFull = &on
			d.emit(core.Event{Addr: a, Payload: types.BinaryValue{On: on}})
		}
	}
	// Re-sent in full until every cap took it; degraded status is retained
	// so a repeat is harmless.
	s.Failure = func(err error) bool {
		code := string(errcode.MapDriverErr(err))
		delivered := true
		for _, a := range d.addrs() {
			if !d.emit(core.Event{Addr: a, Err: code}) {
				delivered = false
			}
		}
		return delivered
	}
	return s
}

func (d *Device) describe() {
	failed := d.comp.Describe()
	dump := types.IP5306Describe{
		Bus:           string(d.bus),
		Addr:          d.params.Addr,
		Failed:        failed,
		LastConnected: d.lastConnected,
		LastFull:      d.lastFull,
	}
	if d.aLevel != nil {
		dump.BatteryLevel = d.aLevel.Name
	}
	if d.aChg != nil {
		dump.ChargerConnected = d.aChg.Name
	}
	if d.aFull != nil {
		dump.ChargeFull = d.aFull.Name
	}
	if pct, ok := d.comp.LastPercent(); ok {
		dump.LastPercent = &pct
	}
	for _, a := range d.addrs() {
		d.emit(core.Event{Addr: a, Payload: dump, IsEvent: true, EventTag: tagDescribe})
	}
}

func (d *Device) addrs() []core.CapAddr {
	out := make([]core.CapAddr, 0, 3)
	for _, a := range []*core.CapAddr{d.aLevel, d.aChg, d.aFull} {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// emit hands ev to HAL and reports whether it was queued.
func (d *Device) emit(ev core.Event) bool {
	if ev.TSms == 0 {
		ev.TSms = time.Now().UnixMilli()
	}
	if !d.res.Pub.Emit(ev) {
		d.log.Debug("event dropped", slog.String("kind", string(ev.Addr.Kind)), slog.String("name", ev.Addr.Name))
		return false
	}
	return true
}
