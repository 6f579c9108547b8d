package core

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"
)

// PollReq is one scheduled tick, delivered to the HAL loop which dispatches
// Verb to the capability owner as a control.
type PollReq struct {
	Addr  CapAddr
	Verb  string
	Every time.Duration
}

type pollKey struct {
	addr CapAddr
	verb string
}

type schedule struct {
	key    pollKey
	next   time.Time
	every  time.Duration
	jitter time.Duration
	slot   int // index in the heap
}

// dueQueue orders schedules by next fire time.
type dueQueue []*schedule

func (q dueQueue) Len() int           { return len(q) }
func (q dueQueue) Less(i, j int) bool { return q[i].next.Before(q[j].next) }
func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].slot, q[j].slot = i, j
}
func (q *dueQueue) Push(x any) {
	s := x.(*schedule)
	s.slot = len(*q)
	*q = append(*q, s)
}
func (q *dueQueue) Pop() any {
	old := *q
	s := old[len(old)-1]
	s.slot = -1
	*q = old[:len(old)-1]
	return s
}

// Poller is the tick source for periodic reads. A tick that finds the output
// channel full is dropped; the schedule is re-armed regardless so a slow
// consumer never sees a burst of stale ticks.
type Poller struct {
	mu    sync.Mutex
	byKey map[pollKey]*schedule
	queue dueQueue
	rng   *rand.Rand

	kick chan struct{}
	out  chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		byKey: make(map[pollKey]*schedule),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		kick:  make(chan struct{}, 1),
		out:   out,
	}
}

// Upsert adds or replaces the schedule for (addr, verb). The first tick comes
// after interval plus a random delay in [0, jitter]; every re-arm is
// jittered the same way. A non-positive interval or an empty verb is ignored.
func (p *Poller) Upsert(addr CapAddr, verb string, interval, jitter time.Duration) {
	if interval <= 0 || verb == "" {
		return
	}
	jitter = max(jitter, 0)
	key := pollKey{addr: addr, verb: verb}

	p.mu.Lock()
	s, ok := p.byKey[key]
	if !ok {
		s = &schedule{key: key, slot: -1}
		p.byKey[key] = s
	}
	s.every, s.jitter = interval, jitter
	s.next = time.Now().Add(p.period(s))
	if ok {
		heap.Fix(&p.queue, s.slot)
	} else {
		heap.Push(&p.queue, s)
	}
	p.mu.Unlock()
	p.poke()
}

func (p *Poller) Stop(addr CapAddr, verb string) {
	p.mu.Lock()
	p.drop(pollKey{addr: addr, verb: verb})
	p.mu.Unlock()
	p.poke()
}

// StopAll removes every schedule targeting addr, whatever the verb.
func (p *Poller) StopAll(addr CapAddr) {
	p.mu.Lock()
	for k := range p.byKey {
		if k.addr == addr {
			p.drop(k)
		}
	}
	p.mu.Unlock()
	p.poke()
}

// Len reports the number of active schedules.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byKey)
}

// Run emits ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		req, wait, fired := p.advance(time.Now())
		if fired {
			select {
			case p.out <- req:
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		var expiry <-chan time.Time
		if wait > 0 {
			timer.Reset(wait)
			expiry = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			timer.Stop()
		case <-expiry:
		}
	}
}

// advance re-arms the earliest schedule if it is due and returns its tick.
// Otherwise it returns the time until the next one, or zero when idle.
func (p *Poller) advance(now time.Time) (PollReq, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return PollReq{}, 0, false
	}
	s := p.queue[0]
	if d := s.next.Sub(now); d > 0 {
		return PollReq{}, d, false
	}
	s.next = now.Add(p.period(s))
	heap.Fix(&p.queue, s.slot)
	return PollReq{Addr: s.key.addr, Verb: s.key.verb, Every: s.every}, 0, true
}

// caller holds p.mu
func (p *Poller) drop(k pollKey) {
	if s, ok := p.byKey[k]; ok {
		heap.Remove(&p.queue, s.slot)
		delete(p.byKey, k)
	}
}

// caller holds p.mu
func (p *Poller) period(s *schedule) time.Duration {
	if s.jitter <= 0 {
		return s.every
	}
	return s.every + time.Duration(p.rng.Int63n(int64(s.jitter)+1))
}

func (p *Poller) poke() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}
