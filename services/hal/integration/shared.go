package integration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"ip5306-hal/bus"

	"tinygo.org/x/drivers"
)

func recvOrTimeout(ch <-chan *bus.Message, d time.Duration) (*bus.Message, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case m := <-ch:
		return m, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}

func topicStr(t bus.Topic) string {
	s := ""
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			s += "/"
		}
		switch v := t.At(i).(type) {
		case string:
			s += v
		case int:
			s += strconv.Itoa(v)
		default:
			s += "<unk>"
		}
	}
	return s
}

// ---- simulated IP5306 on a host bus ----

var _ drivers.I2C = (*simIP5306)(nil)

var errNack = errors.New("nack")

// simIP5306 answers register reads and writes at one address and NACKs
// everything else.
type simIP5306 struct {
	mu   sync.Mutex
	addr uint16
	regs [256]byte
	dead bool
	txs  int
}

func newSimIP5306(addr uint16) *simIP5306 { return &simIP5306{addr: addr} }

func (s *simIP5306) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	if addr != s.addr || s.dead || len(w) == 0 {
		return errNack
	}
	reg := int(w[0])
	for i, b := range w[1:] {
		s.regs[reg+i] = b
	}
	for i := range r {
		r[i] = s.regs[reg+i]
	}
	return nil
}

func (s *simIP5306) set(reg, v byte) {
	s.mu.Lock()
	s.regs[reg] = v
	s.mu.Unlock()
}

func (s *simIP5306) get(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

func (s *simIP5306) kill() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

func (s *simIP5306) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}
