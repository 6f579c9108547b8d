// Package provider owns the physical buses handed to HAL devices. Each I²C
// bus gets one worker goroutine; devices receive a drivers.I2C view that
// posts transactions to it, so devices sharing a bus never interleave.
package provider

import (
	"sync"
	"time"

	"ip5306-hal/errcode"
	"ip5306-hal/services/hal/internal/core"

	"tinygo.org/x/drivers"
)

// Ensure the provider satisfies the contracts at compile time.
var _ core.ResourceRegistry = (*Registry)(nil)

const defaultTxTimeout = 250 * time.Millisecond

// -----------------------------------------------------------------------------
// I²C owner (one worker per bus)
// -----------------------------------------------------------------------------

// request posted to the per-bus worker
type i2cReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// per-bus owner that hosts a single worker goroutine
type i2cOwner struct {
	id   core.ResourceID
	hw   drivers.I2C
	reqs chan i2cReq
	quit chan struct{}
	wg   sync.WaitGroup
}

func newI2COwner(id core.ResourceID, hw drivers.I2C) *i2cOwner {
	o := &i2cOwner{
		id:   id,
		hw:   hw,
		reqs: make(chan i2cReq, 16),
		quit: make(chan struct{}),
	}
	o.wg.Add(1)
	go o.loop()
	return o
}

func (o *i2cOwner) loop() {
	defer o.wg.Done()
	for {
		select {
		case req := <-o.reqs:
			err := o.hw.Tx(req.addr, req.w, req.r)
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *i2cOwner) stop() {
	close(o.quit)
	o.wg.Wait()
}

// busView adapts the owner to tinygo.org/x/drivers.I2C.
// It posts a request and optionally enforces a per-call timeout.
type busView struct {
	o       *i2cOwner
	timeout time.Duration // 0 => no deadline
}

// Ensure compile-time conformance with drivers.I2C
var _ drivers.I2C = (*busView)(nil)

// The worker only touches private copies of w and r, so a request abandoned
// on timeout can never write into the caller's buffer after Tx returns.
func (d *busView) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{
		addr: addr,
		w:    append([]byte(nil), w...),
		r:    make([]byte, len(r)),
		done: make(chan error, 1),
	}
	reply := func(err error) error {
		if err == nil {
			copy(r, req.r)
		}
		return err
	}

	if d.timeout <= 0 {
		select {
		case d.o.reqs <- req:
		case <-d.o.quit:
			return errcode.Unavailable
		}
		select {
		case err := <-req.done:
			return reply(err)
		case <-d.o.quit:
			return errcode.Unavailable
		}
	}

	t := time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case d.o.reqs <- req:
	case <-t.C:
		return errcode.Busy
	case <-d.o.quit:
		return errcode.Unavailable
	}
	select {
	case err := <-req.done:
		return reply(err)
	case <-t.C:
		return errcode.Timeout
	case <-d.o.quit:
		return errcode.Unavailable
	}
}

// -----------------------------------------------------------------------------
// Resource registry
// -----------------------------------------------------------------------------

type Registry struct {
	mu        sync.Mutex
	owners    map[core.ResourceID]*i2cOwner
	claims    map[core.ResourceID]map[string]bool // bus -> device ids
	txTimeout time.Duration
	closed    bool
}

// Option tweaks a Registry at construction.
type Option func(*Registry)

// WithTxTimeout bounds each transaction (queueing plus execution).
// Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(r *Registry) { r.txTimeout = d }
}

// New starts one worker per bus. The map key is the bus id used in
// bus_ref (e.g. "i2c1").
func New(buses map[string]drivers.I2C, opts ...Option) *Registry {
	r := &Registry{
		owners:    make(map[core.ResourceID]*i2cOwner, len(buses)),
		claims:    make(map[core.ResourceID]map[string]bool, len(buses)),
		txTimeout: defaultTxTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	for id, hw := range buses {
		if hw == nil {
			continue
		}
		rid := core.ResourceID(id)
		r.owners[rid] = newI2COwner(rid, hw)
	}
	return r
}

// ClaimI2C returns a serialised view of the bus. Several devices may claim
// the same bus; each claim is tracked for diagnostics.
func (r *Registry) ClaimI2C(devID string, id core.ResourceID) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errcode.Unavailable
	}
	o := r.owners[id]
	if o == nil {
		return nil, errcode.UnknownBus
	}
	c := r.claims[id]
	if c == nil {
		c = make(map[string]bool)
		r.claims[id] = c
	}
	c[devID] = true
	return &busView{o: o, timeout: r.txTimeout}, nil
}

func (r *Registry) ReleaseI2C(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims[id], devID)
}

// Claimants lists devices currently holding a claim on bus id.
func (r *Registry) Claimants(id core.ResourceID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.claims[id]))
	for dev := range r.claims[id] {
		out = append(out, dev)
	}
	return out
}

// Close stops background workers. Pending and later transactions fail with
// errcode.Unavailable.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	owners := r.owners
	r.mu.Unlock()
	for _, o := range owners {
		o.stop()
	}
}
