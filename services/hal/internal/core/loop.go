package core

import (
	"context"
	"io"
	"log/slog"
	"time"

	"ip5306-hal/bus"
	"ip5306-hal/errcode"
	"ip5306-hal/services/hal/config"
	"ip5306-hal/services/hal/internal/consts"
	"ip5306-hal/types"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
)

// HAL-handled verbs (never forwarded to devices).
const (
	VerbPollStart = consts.CtrlPollStart
	VerbPollStop  = consts.CtrlPollStop
)

type HAL struct {
	conn *bus.Connection
	res  Resources
	log  *slog.Logger

	// Device registry
	dev   map[string]Device // devID -> device
	order []string          // build order, for Close

	// Capability index: address -> devID
	capIndex map[CapAddr]string

	// Single-threaded publication of device events
	evCh chan Event

	pollCh chan PollReq
	poller *Poller
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	if res.Log == nil {
		res.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &HAL{
		conn:     conn,
		res:      res,
		log:      res.Log.With(slog.String("service", "hal")),
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

// Run blocks until ctx is cancelled. All bus publication happens on this
// goroutine.
func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(TopicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)
	cfgCh, ctrlCh := cfgSub.Channel(), ctrlSub.Channel()

	go h.poller.Run(ctx)

	h.pubHALState(consts.StateIdle, "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeDevices()
			h.pubHALState(consts.StateStopped, "context_cancelled")
			return
		case msg, ok := <-cfgCh:
			if !ok {
				cfgCh = nil
				continue
			}
			cfg, ok := asHALConfig(msg.Payload)
			if !ok {
				h.log.Warn("ignoring config with unexpected payload type")
				continue
			}
			// applyConfig is additive/idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState(consts.StateReady, "configured")
			}
		case m, ok := <-ctrlCh:
			if !ok {
				ctrlCh = nil
				continue
			}
			if !ready {
				// Reject controls until HAL has a configuration.
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case pr := <-h.pollCh:
			h.dispatchPoll(pr)
		case ev := <-h.evCh:
			h.handleEvent(ev)
		}
	}
}

func asHALConfig(p any) (config.HALConfig, bool) {
	switch v := p.(type) {
	case config.HALConfig:
		return v, true
	case *config.HALConfig:
		if v != nil {
			return *v, true
		}
	}
	return config.HALConfig{}, false
}

func (h *HAL) applyConfig(ctx context.Context, cfg config.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		l := h.log.With(slog.String("device", dc.ID), slog.String("type", dc.Type))
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			l.Warn("no builder for device type")
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Bus:    ResourceID(dc.BusRef.ID),
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			l.Error("build failed", slog.String("error", err.Error()))
			continue
		}
		if err := dev.Init(ctx); err != nil {
			l.Error("init failed", slog.String("error", err.Error()))
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev
		h.order = append(h.order, dev.ID())

		// Register capabilities, publish retained info + initial status:down
		for _, cs := range dev.Capabilities() {
			addr := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
			if addr.Domain == "" {
				addr.Domain = defaultDomainFor(cs.Kind)
			}
			if addr.Name == "" {
				addr.Name = dev.ID()
			}
			h.capIndex[addr] = dev.ID()

			d, k, n := addr.Domain, string(addr.Kind), addr.Name
			h.conn.Publish(h.conn.NewMessage(CapInfo(d, k, n), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				CapStatus(d, k, n),
				types.CapabilityStatus{Link: types.LinkDown, TSms: nowMs()},
				true,
			))
		}
		l.Info("device ready")
	}

	for _, p := range cfg.Pollers {
		addr := CapAddr{Domain: p.Domain, Kind: types.Kind(p.Kind), Name: p.Name}
		if _, ok := h.capIndex[addr]; !ok {
			h.log.Warn("poller for unknown capability",
				slog.String("domain", p.Domain), slog.String("kind", p.Kind), slog.String("name", p.Name))
			continue
		}
		h.poller.Upsert(addr, p.VerbOrDefault(),
			time.Duration(p.IntervalMs)*time.Millisecond,
			time.Duration(p.JitterMs)*time.Millisecond)
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() != 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	if domain == "" || kind == "" || name == "" || verb == "" {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	addr := CapAddr{Domain: domain, Kind: types.Kind(kind), Name: name}

	ownerID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case VerbPollStart:
		ps, code := As[types.PollStart](msg.Payload)
		if code != "" || ps.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if ps.Verb == "" {
			ps.Verb = consts.CtrlRead
		}
		h.poller.Upsert(addr, ps.Verb,
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
		h.replyOK(msg)
		return
	case VerbPollStop:
		ps, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if ps.Verb == "" {
			ps.Verb = consts.CtrlRead
		}
		h.poller.Stop(addr, ps.Verb)
		h.replyOK(msg)
		return
	}

	dev := h.dev[ownerID]
	res, err := dev.Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

// dispatchPoll forwards a scheduled tick as a control with no reply path.
func (h *HAL) dispatchPoll(pr PollReq) {
	ownerID, ok := h.capIndex[pr.Addr]
	if !ok {
		h.poller.StopAll(pr.Addr)
		return
	}
	dev := h.dev[ownerID]
	if _, err := dev.Control(pr.Addr, pr.Verb, nil); err != nil {
		h.log.Debug("poll dispatch failed",
			slog.String("device", ownerID), slog.String("verb", pr.Verb), slog.String("error", err.Error()))
	}
}

func (h *HAL) handleEvent(ev Event) {
	d := ev.Addr.Domain
	k := string(ev.Addr.Kind)
	n := ev.Addr.Name

	// 1) Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			CapStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ev.TSms, Error: ev.Err},
			true,
		))
		return
	}

	// 2) Success: event vs value
	if ev.IsEvent {
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(CapEventTagged(d, k, n, ev.EventTag), ev.Payload, false))
		} else {
			h.conn.Publish(h.conn.NewMessage(CapEvent(d, k, n), ev.Payload, false))
		}
		return
	}
	h.conn.Publish(h.conn.NewMessage(CapValue(d, k, n), ev.Payload, true))
	h.conn.Publish(h.conn.NewMessage(
		CapStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ev.TSms},
		true,
	))
}

func (h *HAL) closeDevices() {
	for i := len(h.order) - 1; i >= 0; i-- {
		id := h.order[i]
		if err := h.dev[id].Close(); err != nil {
			h.log.Warn("close failed", slog.String("device", id), slog.String("error", err.Error()))
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		TopicHALState(),
		types.HALState{Level: level, Status: status, TSms: nowMs()},
		true,
	))
}

func defaultDomainFor(kind types.Kind) string {
	switch kind {
	case types.KindBattery, types.KindCharger, types.KindChargeFull:
		return consts.DomainPower
	default:
		return "io"
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
