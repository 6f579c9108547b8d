package ip5306dev

import (
	"errors"
	"sync"
	"sync/atomic"

	"ip5306-hal/services/hal/internal/core"
	"ip5306-hal/types"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*fakeBus)(nil)

var errNack = errors.New("nack")

// fakeBus is a register file shared with the device worker goroutine.
type fakeBus struct {
	mu     sync.Mutex
	regs   [256]byte
	failOn map[byte]bool
	txs    [][]byte // write halves, in order
}

func newFakeBus() *fakeBus { return &fakeBus{failOn: map[byte]bool{}} }

func (f *fakeBus) Tx(_ uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, append([]byte(nil), w...))
	if len(w) == 0 || f.failOn[w[0]] {
		return errNack
	}
	reg := w[0]
	for i, b := range w[1:] {
		f.regs[int(reg)+i] = b
	}
	for i := range r {
		r[i] = f.regs[int(reg)+i]
	}
	return nil
}

func (f *fakeBus) set(reg, v byte) {
	f.mu.Lock()
	f.regs[reg] = v
	f.mu.Unlock()
}

func (f *fakeBus) fail(reg byte) {
	f.mu.Lock()
	f.failOn[reg] = true
	f.mu.Unlock()
}

func (f *fakeBus) txCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs)
}

func (f *fakeBus) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.txs...)
}

// fakeReg hands out the fake bus for any claim on "i2c0".
type fakeReg struct {
	mu       sync.Mutex
	bus      drivers.I2C
	claimed  map[string]bool
	released map[string]bool
}

func newFakeReg(b drivers.I2C) *fakeReg {
	return &fakeReg{bus: b, claimed: map[string]bool{}, released: map[string]bool{}}
}

func (r *fakeReg) ClaimI2C(devID string, id core.ResourceID) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "i2c0" {
		return nil, errors.New("unknown bus")
	}
	r.claimed[devID] = true
	return r.bus, nil
}

func (r *fakeReg) ReleaseI2C(devID string, _ core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released[devID] = true
}

// fakePub collects emitted events. dropLevels and dropErrs refuse that many
// battery level values and error events, as a full HAL queue would.
type fakePub struct {
	ch         chan core.Event
	dropLevels atomic.Int32
	dropErrs   atomic.Int32
}

func newFakePub() *fakePub { return &fakePub{ch: make(chan core.Event, 64)} }

func (p *fakePub) Emit(ev core.Event) bool {
	if _, ok := ev.Payload.(types.BatteryLevelValue); ok && p.dropLevels.Add(-1) >= 0 {
		return false
	}
	if ev.Err != "" && p.dropErrs.Add(-1) >= 0 {
		return false
	}
	select {
	case p.ch <- ev:
		return true
	default:
		return false
	}
}
